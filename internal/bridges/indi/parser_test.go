package indi

import (
	"errors"
	"strings"
	"testing"
)

const cameraConnection = `<defSwitchVector device="Cam" name="CONNECTION" state="Idle"><defSwitch name="CONNECT">Off</defSwitch></defSwitchVector>`

func TestParser_SingleElement(t *testing.T) {
	p := NewParser(0)

	elements, err := p.Feed([]byte(cameraConnection + "\n"))
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(elements) != 1 {
		t.Fatalf("Feed() returned %d elements, want 1", len(elements))
	}
	if string(elements[0]) != cameraConnection {
		t.Errorf("element = %q, want %q", elements[0], cameraConnection)
	}
}

func TestParser_ByteAtATime(t *testing.T) {
	p := NewParser(0)
	input := "<setNumberVector device=\"Focuser\" name=\"ABS_FOCUS_POSITION\" state=\"Busy\">\n" +
		"  <oneNumber name=\"FOCUS_ABSOLUTE_POSITION\">\n    1200\n  </oneNumber>\n" +
		"</setNumberVector>\n"

	var got [][]byte
	for i := 0; i < len(input); i++ {
		elements, err := p.Feed([]byte{input[i]})
		if err != nil {
			t.Fatalf("Feed() at byte %d error = %v", i, err)
		}
		if len(elements) > 0 && i < strings.LastIndex(input, ">") {
			t.Fatalf("element completed early at byte %d", i)
		}
		got = append(got, elements...)
	}

	if len(got) != 1 {
		t.Fatalf("got %d elements, want 1", len(got))
	}
	if want := strings.TrimSuffix(input, "\n"); string(got[0]) != want {
		t.Errorf("element = %q, want %q", got[0], want)
	}
}

func TestParser_MultipleElementsAndNoise(t *testing.T) {
	p := NewParser(0)
	input := `<?xml version="1.0"?>` + "\n" +
		`<message device="Cam" message="hello"/>` + "\n" +
		cameraConnection + "  \n" +
		`<delProperty device="Cam"/>` + `<defNumberVector device="Cam" name="X" state="Ok">`

	elements, err := p.Feed([]byte(input))
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}

	wantTags := []string{"<message", "<defSwitchVector", "<delProperty"}
	if len(elements) != len(wantTags) {
		t.Fatalf("Feed() returned %d elements, want %d", len(elements), len(wantTags))
	}
	for i, prefix := range wantTags {
		if !strings.HasPrefix(string(elements[i]), prefix) {
			t.Errorf("element %d = %q, want prefix %q", i, elements[i], prefix)
		}
	}

	if p.Buffered() == 0 {
		t.Error("unfinished defNumberVector should stay buffered")
	}

	elements, err = p.Feed([]byte(`<defNumber name="Y">1</defNumber></defNumberVector>`))
	if err != nil {
		t.Fatalf("second Feed() error = %v", err)
	}
	if len(elements) != 1 || !strings.HasPrefix(string(elements[0]), "<defNumberVector") {
		t.Fatalf("second Feed() = %q, want the defNumberVector", elements)
	}
}

func TestParser_SplitInsideTokens(t *testing.T) {
	chunks := []string{
		`<defSwitchVec`, `tor device="Ca`, `m" name="CONNECTION" state="Idle"><defSw`,
		`itch name="CONNECT">Of`, `f</defSwitch></defSwitchVector`, ">\n",
	}

	p := NewParser(0)
	var got [][]byte
	for _, c := range chunks {
		elements, err := p.Feed([]byte(c))
		if err != nil {
			t.Fatalf("Feed(%q) error = %v", c, err)
		}
		got = append(got, elements...)
	}

	if len(got) != 1 || string(got[0]) != cameraConnection {
		t.Fatalf("got %q, want one %q", got, cameraConnection)
	}
}

func TestParser_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"mismatched end tag", "<defNumberVector><oneNumber></defNumberVector>\n"},
		{"stray end tag", "</setSwitchVector>\n"},
		{"bad attribute", "<message device=Cam/>\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser(0)
			_, err := p.Feed([]byte(tt.input))
			if !errors.Is(err, ErrMalformedStream) {
				t.Fatalf("Feed() error = %v, want ErrMalformedStream", err)
			}
			if p.Buffered() != 0 {
				t.Errorf("Buffered() = %d after error, want 0", p.Buffered())
			}
		})
	}
}

func TestParser_ReturnsElementsBeforeError(t *testing.T) {
	p := NewParser(0)
	elements, err := p.Feed([]byte(cameraConnection + "</bogus>"))
	if !errors.Is(err, ErrMalformedStream) {
		t.Fatalf("Feed() error = %v, want ErrMalformedStream", err)
	}
	if len(elements) != 1 {
		t.Errorf("Feed() returned %d elements before the error, want 1", len(elements))
	}
}

func TestParser_ElementTooLarge(t *testing.T) {
	p := NewParser(64)

	if _, err := p.Feed([]byte(`<setBLOBVector device="Cam" name="CCD1">`)); err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	_, err := p.Feed([]byte(strings.Repeat("QUJD", 20) + "\n"))
	if !errors.Is(err, ErrElementTooLarge) {
		t.Fatalf("Feed() error = %v, want ErrElementTooLarge", err)
	}
	if p.Buffered() != 0 {
		t.Errorf("Buffered() = %d after overflow, want 0", p.Buffered())
	}
}

func TestParser_ElementsAreCopies(t *testing.T) {
	p := NewParser(0)
	elements, err := p.Feed([]byte(`<message device="A" message="one"/>`))
	if err != nil || len(elements) != 1 {
		t.Fatalf("Feed() = %q, %v", elements, err)
	}
	first := string(elements[0])

	if _, err := p.Feed([]byte(`<message device="B" message="two"/>`)); err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if string(elements[0]) != first {
		t.Errorf("earlier element changed to %q", elements[0])
	}
}
