package gateway

import (
	"iter"

	"github.com/nerrad567/astroconsole/internal/bridges/indi"
)

// Store maps device name → property name → last known Property.
// Iteration follows insertion order of devices, then of their properties.
//
// Store is not safe for concurrent use; the Hub goroutine owns it.
type Store struct {
	devices []*deviceEntry
	index   map[string]*deviceEntry
}

type deviceEntry struct {
	name  string
	props []indi.Property
	index map[string]int
}

// NewStore returns a store holding only the proxy device, disconnected.
func NewStore() *Store {
	s := &Store{index: make(map[string]*deviceEntry)}
	s.SetConnected(false)
	return s
}

// Upsert inserts p or replaces the property with the same device and name.
// An update without a state keeps the state it replaces.
// It returns the stored value.
func (s *Store) Upsert(p indi.Property) indi.Property {
	d := s.index[p.Device]
	if d == nil {
		d = &deviceEntry{name: p.Device, index: make(map[string]int)}
		s.devices = append(s.devices, d)
		s.index[p.Device] = d
	}

	if i, ok := d.index[p.Name]; ok {
		if p.State == "" {
			p.State = d.props[i].State
		}
		d.props[i] = p
		return p
	}

	d.index[p.Name] = len(d.props)
	d.props = append(d.props, p)
	return p
}

// SetConnected stores the proxy CONNECTION property for the given link state.
func (s *Store) SetConnected(connected bool) indi.Property {
	return s.Upsert(indi.ConnectionStatus(connected))
}

// Connected reports the link state held by the proxy device.
func (s *Store) Connected() bool {
	p, _ := s.Get(indi.ProxyDevice, indi.ConnectionProperty)
	on, _ := p.Switch(indi.ConnectKey)
	return on
}

// Get returns the property for device and name.
func (s *Store) Get(device, name string) (indi.Property, bool) {
	d := s.index[device]
	if d == nil {
		return indi.Property{}, false
	}
	i, ok := d.index[name]
	if !ok {
		return indi.Property{}, false
	}
	return d.props[i], true
}

// Reset discards every device except proxy.
func (s *Store) Reset() {
	proxy := s.index[indi.ProxyDevice]
	s.devices = s.devices[:0]
	clear(s.index)
	if proxy != nil {
		s.devices = append(s.devices, proxy)
		s.index[indi.ProxyDevice] = proxy
	}
}

// All yields every stored property in device-then-property insertion order.
// The store must not be modified while the sequence is being iterated.
func (s *Store) All() iter.Seq[indi.Property] {
	return func(yield func(indi.Property) bool) {
		for _, d := range s.devices {
			for _, p := range d.props {
				if !yield(p) {
					return
				}
			}
		}
	}
}

// Devices returns the device names in insertion order.
func (s *Store) Devices() []string {
	names := make([]string, 0, len(s.devices))
	for _, d := range s.devices {
		names = append(names, d.name)
	}
	return names
}

// Len returns the number of stored properties.
func (s *Store) Len() int {
	n := 0
	for _, d := range s.devices {
		n += len(d.props)
	}
	return n
}
