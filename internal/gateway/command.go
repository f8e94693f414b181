package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/astroconsole/internal/bridges/indi"
)

// Client command names.
const (
	CommandSwitch = "switch"
	CommandNumber = "number"
	CommandConfig = "config"
)

var (
	// ErrMalformedKeys is returned when a key entry lacks its key or value.
	ErrMalformedKeys = errors.New("gateway: malformed keys")

	// ErrInvalidValue is returned when a value cannot be converted for its
	// property kind.
	ErrInvalidValue = errors.New("gateway: invalid key value")

	// ErrUnknownCommand is returned by Dispatch for anything but switch or number.
	ErrUnknownCommand = errors.New("gateway: unknown command")
)

// Commander sends commands to the upstream INDI server. *indi.Link implements it.
type Commander interface {
	SendSwitch(ctx context.Context, device, name string, keys []indi.SwitchValue) error
	SendNumber(ctx context.Context, device, name string, keys []indi.NumberValue) error
}

// ClientKey is one {key, value} entry of a client command.
type ClientKey struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// CheckKeys reports ErrMalformedKeys if any entry is missing its key or value.
// A JSON null value counts as present.
func CheckKeys(keys []ClientKey) error {
	for i, k := range keys {
		if k.Key == "" {
			return fmt.Errorf("%w: entry %d has no key", ErrMalformedKeys, i)
		}
		if len(k.Value) == 0 {
			return fmt.Errorf("%w: entry %q has no value", ErrMalformedKeys, k.Key)
		}
	}
	return nil
}

// SwitchValues converts client keys to switch members.
//
// Values are read by truthiness: true, a non-zero number or a non-empty
// string is On; false, 0, "" and null are Off. Arrays and objects are invalid.
func SwitchValues(keys []ClientKey) ([]indi.SwitchValue, error) {
	if err := CheckKeys(keys); err != nil {
		return nil, err
	}

	out := make([]indi.SwitchValue, 0, len(keys))
	for _, k := range keys {
		var v any
		if err := json.Unmarshal(k.Value, &v); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidValue, k.Key, err)
		}

		var on bool
		switch v := v.(type) {
		case nil:
		case bool:
			on = v
		case float64:
			on = v != 0
		case string:
			on = v != ""
		default:
			return nil, fmt.Errorf("%w: %s: switch value must be a scalar", ErrInvalidValue, k.Key)
		}
		out = append(out, indi.SwitchValue{Name: k.Key, On: on})
	}
	return out, nil
}

// NumberValues converts client keys to number members. A value may be a
// JSON number or a string holding a decimal number.
func NumberValues(keys []ClientKey) ([]indi.NumberValue, error) {
	if err := CheckKeys(keys); err != nil {
		return nil, err
	}

	out := make([]indi.NumberValue, 0, len(keys))
	for _, k := range keys {
		var v any
		if err := json.Unmarshal(k.Value, &v); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidValue, k.Key, err)
		}

		var f float64
		switch v := v.(type) {
		case float64:
			f = v
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %q is not a number", ErrInvalidValue, k.Key, v)
			}
			f = parsed
		default:
			return nil, fmt.Errorf("%w: %s: number value must be a number or numeric string", ErrInvalidValue, k.Key)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: %s: %v is not finite", ErrInvalidValue, k.Key, f)
		}
		out = append(out, indi.NumberValue{Name: k.Key, Value: f})
	}
	return out, nil
}

// Dispatch decodes keys for cmd and sends the command through c.
func Dispatch(ctx context.Context, c Commander, cmd, device, name string, keys []ClientKey) error {
	switch cmd {
	case CommandSwitch:
		vals, err := SwitchValues(keys)
		if err != nil {
			return err
		}
		return c.SendSwitch(ctx, device, name, vals)
	case CommandNumber:
		vals, err := NumberValues(keys)
		if err != nil {
			return err
		}
		return c.SendNumber(ctx, device, name, vals)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
}
