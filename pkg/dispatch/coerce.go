package dispatch

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/aretw0/ason/pkg/protocol"
	"github.com/mitchellh/mapstructure"
)

// Coerce converts an incoming argument to the declared parameter type.
//
// Wire values (protocol.Value or plain JSON-like Go values) are decoded with
// weak typing, so "5" becomes 5 and an RFC 3339 string becomes a time.Time.
// Values of an unrelated shape (structs defined by a script, slices of them)
// are converted through their JSON encoding, element by element when the whole
// slice does not convert. Assignable values pass through unchanged.
func Coerce(v any, t reflect.Type) (reflect.Value, error) {
	switch w := v.(type) {
	case protocol.Value:
		v = w.Interface()
	case *protocol.Value:
		if w == nil {
			v = nil
		} else {
			v = w.Interface()
		}
	}

	if v == nil {
		return reflect.Zero(t), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if isNumber(rv.Kind()) && isNumber(t.Kind()) {
		return convertNumber(rv, t)
	}

	if isWire(v) {
		out, err := decodeWire(v, t)
		if err == nil {
			return out, nil
		}
		if rv.Kind() != reflect.Slice {
			return reflect.Value{}, err
		}
	}

	if out, err := roundTrip(v, t); err == nil {
		return out, nil
	}

	if rv.Kind() == reflect.Slice && (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) {
		return coerceElements(rv, t)
	}

	return reflect.Value{}, fmt.Errorf("cannot convert %T to %s", v, t)
}

func coerceElements(rv reflect.Value, t reflect.Type) (reflect.Value, error) {
	var out reflect.Value
	if t.Kind() == reflect.Array {
		if rv.Len() > t.Len() {
			return reflect.Value{}, fmt.Errorf("cannot fit %d elements into %s", rv.Len(), t)
		}
		out = reflect.New(t).Elem()
	} else {
		out = reflect.MakeSlice(t, rv.Len(), rv.Len())
	}
	for i := 0; i < rv.Len(); i++ {
		elem, err := Coerce(rv.Index(i).Interface(), t.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(elem)
	}
	return out, nil
}

func decodeWire(v any, t reflect.Type) (reflect.Value, error) {
	target := reflect.New(t)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target.Interface(),
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc(),
			numberHook,
		),
	})
	if err != nil {
		return reflect.Value{}, err
	}
	if err := dec.Decode(v); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot convert %T to %s: %w", v, t, err)
	}
	return target.Elem(), nil
}

func roundTrip(v any, t reflect.Type) (reflect.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return reflect.Value{}, err
	}
	target := reflect.New(t)
	if err := json.Unmarshal(data, target.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return target.Elem(), nil
}

// convertNumber converts between numeric kinds, refusing fractions into
// integers and values outside the target range.
func convertNumber(rv reflect.Value, t reflect.Type) (reflect.Value, error) {
	target := reflect.New(t).Elem()
	ok := true
	switch {
	case isInt(rv.Kind()):
		i := rv.Int()
		switch {
		case isInt(t.Kind()):
			ok = !target.OverflowInt(i)
		case isUint(t.Kind()):
			ok = i >= 0 && !target.OverflowUint(uint64(i))
		}
	case isUint(rv.Kind()):
		u := rv.Uint()
		switch {
		case isInt(t.Kind()):
			ok = u <= math.MaxInt64 && !target.OverflowInt(int64(u))
		case isUint(t.Kind()):
			ok = !target.OverflowUint(u)
		}
	default:
		f := rv.Float()
		switch {
		case math.IsNaN(f) || math.IsInf(f, 0):
			ok = t.Kind() == reflect.Float64
		case isInt(t.Kind()):
			// 2^63 is exact in float64; anything at or above it overflows
			ok = f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 && !target.OverflowInt(int64(f))
		case isUint(t.Kind()):
			ok = f == math.Trunc(f) && f >= 0 && f < math.MaxUint64 && !target.OverflowUint(uint64(f))
		default:
			ok = !target.OverflowFloat(f)
		}
	}
	if !ok {
		return reflect.Value{}, fmt.Errorf("cannot convert %T(%v) to %s", rv.Interface(), rv.Interface(), t)
	}
	return rv.Convert(t), nil
}

// numberHook applies convertNumber inside mapstructure, which would otherwise
// truncate floats decoded into integer fields.
func numberHook(from, to reflect.Type, data any) (any, error) {
	if !isNumber(from.Kind()) || !isNumber(to.Kind()) {
		return data, nil
	}
	out, err := convertNumber(reflect.ValueOf(data), to)
	if err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

func isInt(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUint(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// isWire reports whether v is made only of JSON-like Go values.
func isWire(v any) bool {
	switch t := v.(type) {
	case bool, string, float64, float32, int, int64, int32, json.Number:
		return true
	case []any:
		for _, item := range t {
			if item != nil && !isWire(item) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, item := range t {
			if item != nil && !isWire(item) {
				return false
			}
		}
		return true
	}
	return false
}
