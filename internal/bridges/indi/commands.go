package indi

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
)

// ProtocolVersion is the INDI protocol version announced in getProperties.
const ProtocolVersion = "1.7"

// SwitchValue is one member of a newSwitchVector command.
type SwitchValue struct {
	Name string
	On   bool
}

// NumberValue is one member of a newNumberVector command.
type NumberValue struct {
	Name  string
	Value float64
}

// EncodeGetProperties returns the discovery request asking the server for every property.
func EncodeGetProperties() []byte {
	return []byte(`<getProperties version="` + ProtocolVersion + `"/>`)
}

// EncodeNewSwitchVector encodes a command setting switch members of device.name.
//
// Example output:
//
//	<newSwitchVector device="Cam" name="CONNECTION"><oneSwitch name="CONNECT">On</oneSwitch></newSwitchVector>
func EncodeNewSwitchVector(device, name string, keys []SwitchValue) ([]byte, error) {
	if err := validateCommand(device, name, len(keys)); err != nil {
		return nil, err
	}

	var b bytes.Buffer
	openVector(&b, "newSwitchVector", device, name)
	for _, k := range keys {
		state := "Off"
		if k.On {
			state = "On"
		}
		writeMember(&b, "oneSwitch", k.Name, state)
	}
	b.WriteString("</newSwitchVector>")
	return b.Bytes(), nil
}

// EncodeNewNumberVector encodes a command setting number members of device.name.
// Values use the shortest decimal form that round-trips (42.5, 42, 0.001).
func EncodeNewNumberVector(device, name string, keys []NumberValue) ([]byte, error) {
	if err := validateCommand(device, name, len(keys)); err != nil {
		return nil, err
	}

	var b bytes.Buffer
	openVector(&b, "newNumberVector", device, name)
	for _, k := range keys {
		writeMember(&b, "oneNumber", k.Name, FormatNumber(k.Value))
	}
	b.WriteString("</newNumberVector>")
	return b.Bytes(), nil
}

// FormatNumber renders v the way it is written into newNumberVector members.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func validateCommand(device, name string, keyCount int) error {
	switch {
	case device == "":
		return fmt.Errorf("%w: device is required", ErrInvalidCommand)
	case name == "":
		return fmt.Errorf("%w: property name is required", ErrInvalidCommand)
	case keyCount == 0:
		return fmt.Errorf("%w: at least one key is required", ErrInvalidCommand)
	}
	return nil
}

func openVector(b *bytes.Buffer, tag, device, name string) {
	b.WriteString("<" + tag + ` device="`)
	escape(b, device)
	b.WriteString(`" name="`)
	escape(b, name)
	b.WriteString(`">`)
}

func writeMember(b *bytes.Buffer, tag, name, text string) {
	b.WriteString("<" + tag + ` name="`)
	escape(b, name)
	b.WriteString(`">`)
	escape(b, text)
	b.WriteString("</" + tag + ">")
}

func escape(b *bytes.Buffer, s string) {
	// bytes.Buffer writes cannot fail.
	_ = xml.EscapeText(b, []byte(s))
}
