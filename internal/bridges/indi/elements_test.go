package indi

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantKind ElementKind
		wantProp Property
	}{
		{
			name:     "def switch vector",
			raw:      cameraConnection,
			wantKind: ElementSwitchUpdate,
			wantProp: Property{
				Device: "Cam", Name: "CONNECTION", State: StateIdle, Kind: KindSwitch,
				Keys: []Key{{Key: "CONNECT", Value: false}},
			},
		},
		{
			name: "set switch vector",
			raw: `<setSwitchVector device="Mount" name="TELESCOPE_PARK" state="Ok">
  <oneSwitch name="PARK"> On </oneSwitch>
  <oneSwitch name="UNPARK">Off</oneSwitch>
</setSwitchVector>`,
			wantKind: ElementSwitchUpdate,
			wantProp: Property{
				Device: "Mount", Name: "TELESCOPE_PARK", State: StateOk, Kind: KindSwitch,
				Keys: []Key{{Key: "PARK", Value: true}, {Key: "UNPARK", Value: false}},
			},
		},
		{
			name: "def number vector",
			raw: `<defNumberVector device="Focuser" name="ABS_FOCUS_POSITION" state="Idle" perm="rw">
  <defNumber name="FOCUS_ABSOLUTE_POSITION" format="%6.0f" min="0" max="60000" step="10">
    30000
  </defNumber>
</defNumberVector>`,
			wantKind: ElementNumberUpdate,
			wantProp: Property{
				Device: "Focuser", Name: "ABS_FOCUS_POSITION", State: StateIdle, Kind: KindNumber,
				Keys: []Key{{Key: "FOCUS_ABSOLUTE_POSITION", Value: 30000.0}},
			},
		},
		{
			name: "set number vector with sexagesimal",
			raw: `<setNumberVector device="Mount" name="EQUATORIAL_EOD_COORD" state="Busy">` +
				`<oneNumber name="RA">5:30:00</oneNumber><oneNumber name="DEC">-0.25</oneNumber></setNumberVector>`,
			wantKind: ElementNumberUpdate,
			wantProp: Property{
				Device: "Mount", Name: "EQUATORIAL_EOD_COORD", State: StateBusy, Kind: KindNumber,
				Keys: []Key{{Key: "RA", Value: 5.5}, {Key: "DEC", Value: -0.25}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el, err := Decode([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if el.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", el.Kind, tt.wantKind)
			}
			if !reflect.DeepEqual(el.Property, tt.wantProp) {
				t.Errorf("Property = %+v, want %+v", el.Property, tt.wantProp)
			}
		})
	}
}

func TestDecode_MessageAndUnknown(t *testing.T) {
	el, err := Decode([]byte(`<message device="Cam" timestamp="2026-10-16T21:00:00" message="Exposure done"/>`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if el.Kind != ElementMessage || el.Device != "Cam" || el.Message != "Exposure done" {
		t.Errorf("Decode() = %+v, want message from Cam", el)
	}

	for _, raw := range []string{
		`<defTextVector device="Cam" name="DRIVER_INFO" state="Idle"><defText name="DRIVER_NAME">CCD</defText></defTextVector>`,
		`<delProperty device="Cam"/>`,
		`<defLightVector device="Cam" name="STATUS" state="Ok"><defLight name="A">Ok</defLight></defLightVector>`,
	} {
		el, err := Decode([]byte(raw))
		if err != nil {
			t.Fatalf("Decode(%q) error = %v", raw, err)
		}
		if el.Kind != ElementUnknown {
			t.Errorf("Decode(%q).Kind = %v, want unknown", raw, el.Kind)
		}
	}
}

func TestDecode_InvalidNumber(t *testing.T) {
	for _, text := range []string{"abc", "NaN", "1:2:3:4", ""} {
		raw := `<setNumberVector device="D" name="P" state="Ok"><oneNumber name="K">` + text + `</oneNumber></setNumberVector>`
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrInvalidElement) {
			t.Errorf("Decode(number %q) error = %v, want ErrInvalidElement", text, err)
		}
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"42.5", 42.5},
		{" 7 ", 7},
		{"-1e3", -1000},
		{"12:30", 12.5},
		{"12:30:36", 12.51},
		{"-10:30:00", -10.5},
		{"-0:30:00", -0.5},
		{"12 30 00", 12.5},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseNumber(tt.input)
			if err != nil {
				t.Fatalf("parseNumber(%q) error = %v", tt.input, err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("parseNumber(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
