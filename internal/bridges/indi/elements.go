package indi

import (
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ElementKind classifies a complete top-level INDI element.
type ElementKind int

// Element kinds. Everything the gateway does not act on is ElementUnknown.
const (
	ElementUnknown ElementKind = iota
	ElementMessage
	ElementNumberUpdate
	ElementSwitchUpdate
)

// String returns a short name for logging.
func (k ElementKind) String() string {
	switch k {
	case ElementMessage:
		return "message"
	case ElementNumberUpdate:
		return "number"
	case ElementSwitchUpdate:
		return "switch"
	default:
		return "unknown"
	}
}

// Element is the decoded form of one top-level INDI element.
type Element struct {
	Kind      ElementKind
	Tag       string
	Device    string
	Message   string
	Timestamp string

	// Property is set for number and switch updates.
	Property Property
}

// vectorXML covers every top-level element the gateway reads.
type vectorXML struct {
	XMLName   xml.Name
	Device    string      `xml:"device,attr"`
	Name      string      `xml:"name,attr"`
	State     string      `xml:"state,attr"`
	Message   string      `xml:"message,attr"`
	Timestamp string      `xml:"timestamp,attr"`
	Members   []memberXML `xml:",any"`
}

type memberXML struct {
	XMLName xml.Name
	Name    string `xml:"name,attr"`
	Text    string `xml:",chardata"`
}

// Decode classifies a complete top-level element produced by Parser.Feed.
//
// Number and switch vectors become a Property with one key per member.
// Number text may be decimal or sexagesimal ("D:M:S"). A switch member is
// on only when its text is "On".
func Decode(raw []byte) (Element, error) {
	var v vectorXML
	if err := newDecoder(raw).Decode(&v); err != nil {
		return Element{}, fmt.Errorf("%w: %w", ErrInvalidElement, err)
	}

	el := Element{
		Tag:       v.XMLName.Local,
		Device:    v.Device,
		Message:   v.Message,
		Timestamp: v.Timestamp,
	}

	switch el.Tag {
	case "message":
		el.Kind = ElementMessage

	case "defNumberVector", "setNumberVector":
		keys, err := numberKeys(v.Members)
		if err != nil {
			return Element{}, fmt.Errorf("%w: %s %s.%s: %w", ErrInvalidElement, el.Tag, v.Device, v.Name, err)
		}
		el.Kind = ElementNumberUpdate
		el.Property = newProperty(v, keys, KindNumber)

	case "defSwitchVector", "setSwitchVector":
		el.Kind = ElementSwitchUpdate
		el.Property = newProperty(v, switchKeys(v.Members), KindSwitch)

	default:
		el.Kind = ElementUnknown
	}

	return el, nil
}

func newProperty(v vectorXML, keys []Key, kind Kind) Property {
	return Property{
		Device: v.Device,
		Name:   v.Name,
		State:  State(v.State),
		Keys:   keys,
		Kind:   kind,
	}
}

func numberKeys(members []memberXML) ([]Key, error) {
	keys := make([]Key, 0, len(members))
	for _, m := range members {
		if m.XMLName.Local != "defNumber" && m.XMLName.Local != "oneNumber" {
			continue
		}
		v, err := parseNumber(m.Text)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", m.Name, err)
		}
		keys = append(keys, Key{Key: m.Name, Value: v})
	}
	return keys, nil
}

func switchKeys(members []memberXML) []Key {
	keys := make([]Key, 0, len(members))
	for _, m := range members {
		if m.XMLName.Local != "defSwitch" && m.XMLName.Local != "oneSwitch" {
			continue
		}
		keys = append(keys, Key{Key: m.Name, Value: strings.TrimSpace(m.Text) == "On"})
	}
	return keys
}

// parseNumber parses an INDI number value.
func parseNumber(text string) (float64, error) {
	s := strings.TrimSpace(text)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		v, err = parseSexagesimal(s)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", s)
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite number %q", s)
	}
	return v, nil
}

// parseSexagesimal parses "D:M", "D:M:S" and the space or semicolon separated forms.
func parseSexagesimal(s string) (float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ':' || r == ' ' || r == ';'
	})
	if len(fields) < 2 || len(fields) > 3 {
		return 0, fmt.Errorf("not sexagesimal: %q", s)
	}

	negative := strings.HasPrefix(fields[0], "-")
	var total float64
	scale := 1.0
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, err
		}
		if i > 0 && v < 0 {
			return 0, fmt.Errorf("negative sexagesimal component in %q", s)
		}
		total += math.Abs(v) / scale
		scale *= 60
	}
	if negative {
		total = -total
	}
	return total, nil
}
