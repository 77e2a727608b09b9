package dispatch_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/ason/pkg/dispatch"
	"github.com/aretw0/ason/pkg/protocol"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Status int

const (
	StatusOpen Status = iota + 1
	StatusClosed
)

func (s *Status) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "open":
		*s = StatusOpen
	case "closed":
		*s = StatusClosed
	default:
		return errors.New("unknown status")
	}
	return nil
}

type Filter struct {
	Region string    `json:"region"`
	Since  time.Time `json:"since"`
	Limit  int       `json:"limit"`
}

// scriptFilter mimics a struct defined by a script with a compatible shape.
type scriptFilter struct {
	Region string `json:"region"`
	Limit  int    `json:"limit"`
}

func coerce[T any](t *testing.T, v any) T {
	t.Helper()
	out, err := dispatch.Coerce(v, reflect.TypeFor[T]())
	require.NoError(t, err)
	return out.Interface().(T)
}

func TestCoerce_Matrix(t *testing.T) {
	assert.Equal(t, 5, coerce[int](t, int64(5)))
	assert.Equal(t, 5, coerce[int](t, "5"))
	assert.Equal(t, 2.5, coerce[float64](t, protocol.Float(2.5)))
	assert.Equal(t, "7", coerce[string](t, protocol.Int(7)))
	assert.Equal(t, true, coerce[bool](t, "true"))
	assert.Equal(t, 0, coerce[int](t, nil))
	assert.Equal(t, StatusClosed, coerce[Status](t, "Closed"))
	assert.Equal(t, StatusOpen, coerce[Status](t, int64(1)))
	assert.Equal(t, 90*time.Second, coerce[time.Duration](t, "1m30s"))

	id := uuid.New()
	assert.Equal(t, id, coerce[uuid.UUID](t, id.String()))

	when := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.True(t, when.Equal(coerce[time.Time](t, when.Format(time.RFC3339))))

	assert.Equal(t, []int{1, 2}, coerce[[]int](t, []any{int64(1), "2"}))
	assert.Equal(t, map[string]int{"a": 1}, coerce[map[string]int](t, map[string]any{"a": 1.0}))
}

func TestCoerce_Structs(t *testing.T) {
	v := protocol.MustFromAny(map[string]any{"region": "north", "since": "2026-01-02T00:00:00Z", "limit": "3"})
	f := coerce[Filter](t, v)
	assert.Equal(t, "north", f.Region)
	assert.Equal(t, 3, f.Limit)
	assert.Equal(t, 2026, f.Since.Year())

	f = coerce[Filter](t, scriptFilter{Region: "south", Limit: 9})
	assert.Equal(t, Filter{Region: "south", Limit: 9}, f)

	fs := coerce[[]Filter](t, []scriptFilter{{Region: "a"}, {Region: "b"}})
	require.Len(t, fs, 2)
	assert.Equal(t, "b", fs[1].Region)
}

func TestCoerce_Passthrough(t *testing.T) {
	f := Filter{Region: "x"}
	assert.Equal(t, f, coerce[Filter](t, f))
	assert.Equal(t, any("s"), coerce[any](t, "s"))
}

func TestCoerce_Failure(t *testing.T) {
	_, err := dispatch.Coerce("not a number", reflect.TypeFor[int]())
	assert.Error(t, err)

	_, err = dispatch.Coerce(make(chan int), reflect.TypeFor[Filter]())
	assert.Error(t, err)
}

func TestCoerce_Numbers(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		target reflect.Type
		want   any
	}{
		{"float to int", 3.0, reflect.TypeFor[int](), 3},
		{"int to uint8", int64(255), reflect.TypeFor[uint8](), uint8(255)},
		{"uint to int", uint(7), reflect.TypeFor[int](), 7},
		{"int to float", 2, reflect.TypeFor[float64](), 2.0},
		{"float32 range", 1.5, reflect.TypeFor[float32](), float32(1.5)},
		{"wire number", protocol.Int(42), reflect.TypeFor[int16](), int16(42)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := dispatch.Coerce(tt.in, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Interface())
		})
	}
}

func TestCoerce_LossyNumbersFail(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		target reflect.Type
	}{
		{"fraction to int", 3.7, reflect.TypeFor[int]()},
		{"fraction to uint", 0.5, reflect.TypeFor[uint]()},
		{"int overflow", int64(300), reflect.TypeFor[uint8]()},
		{"signed overflow", int64(1 << 40), reflect.TypeFor[int32]()},
		{"negative to uint", -1, reflect.TypeFor[uint]()},
		{"uint overflow", uint64(1 << 63), reflect.TypeFor[int64]()},
		{"float overflow", 1e20, reflect.TypeFor[int64]()},
		{"float32 overflow", 1e300, reflect.TypeFor[float32]()},
		{"wire fraction", protocol.Float(2.5), reflect.TypeFor[int]()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dispatch.Coerce(tt.in, tt.target)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "cannot convert")
		})
	}
}

func TestCoerce_StructFieldsAreNotTruncated(t *testing.T) {
	_, err := dispatch.Coerce(map[string]any{"region": "north", "limit": 2.5}, reflect.TypeFor[Filter]())
	assert.Error(t, err)

	f := coerce[Filter](t, map[string]any{"region": "north", "limit": 2.0})
	assert.Equal(t, 2, f.Limit)
}
