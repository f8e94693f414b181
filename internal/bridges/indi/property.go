package indi

// State is the status token an INDI device reports for a property.
// The protocol defines Idle, Ok, Busy and Alert; other tokens are kept verbatim.
type State string

// Property states defined by the INDI protocol.
const (
	StateIdle  State = "Idle"
	StateOk    State = "Ok"
	StateBusy  State = "Busy"
	StateAlert State = "Alert"
)

// Kind identifies the value type of a property's keys.
type Kind int

// Property kinds carried by the gateway.
const (
	KindNumber Kind = iota + 1
	KindSwitch
)

// String returns the protocol name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindSwitch:
		return "switch"
	default:
		return "unknown"
	}
}

// Reserved names for the gateway's own connection status.
const (
	// ProxyDevice is the synthetic device that mirrors the link state.
	ProxyDevice = "proxy"

	// ConnectionProperty is the standard INDI property used to connect a device.
	// The proxy device reuses it for the link status.
	ConnectionProperty = "CONNECTION"

	// ConnectKey is the CONNECTION switch member that means "connected".
	ConnectKey = "CONNECT"
)

// Key is one member of a property vector. Value is float64 for number
// properties and bool for switch properties.
type Key struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Property is the last known value of one INDI property vector.
//
// A Property is treated as immutable once built: updates replace the whole
// value, and Keys must not be modified after construction.
type Property struct {
	Device string `json:"device"`
	Name   string `json:"name"`
	State  State  `json:"state"`
	Keys   []Key  `json:"keys"`
	Kind   Kind   `json:"-"`
}

// ID returns the "device.name" form used in logs and metrics.
func (p Property) ID() string {
	return p.Device + "." + p.Name
}

// Number returns the numeric value of key k.
func (p Property) Number(k string) (float64, bool) {
	for _, key := range p.Keys {
		if key.Key == k {
			v, ok := key.Value.(float64)
			return v, ok
		}
	}
	return 0, false
}

// Switch returns the boolean value of key k.
func (p Property) Switch(k string) (bool, bool) {
	for _, key := range p.Keys {
		if key.Key == k {
			v, ok := key.Value.(bool)
			return v, ok
		}
	}
	return false, false
}

// ConnectionStatus builds the proxy CONNECTION property for the given link state.
func ConnectionStatus(connected bool) Property {
	return Property{
		Device: ProxyDevice,
		Name:   ConnectionProperty,
		State:  StateOk,
		Keys:   []Key{{Key: ConnectKey, Value: connected}},
		Kind:   KindSwitch,
	}
}
