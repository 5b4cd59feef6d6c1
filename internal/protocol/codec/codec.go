// Package codec owns payload serialization for framed messages.
//
// A Codec must be deterministic: equal values always marshal to identical
// bytes. Frame headers are handled by package frame; codecs only see payloads.
package codec

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
)

var ErrMalformedPayload = errors.New("codec: malformed payload")

// Codec converts one message type to and from payload bytes.
type Codec[T any] interface {
	Marshal(v T) ([]byte, error)
	Unmarshal(b []byte) (T, error)
}

// Equaler is implemented by codecs whose type needs a custom structural
// equality (e.g. pointer-backed messages).
type Equaler[T any] interface {
	Equal(a, b T) bool
}

// EqualFunc returns the equality used for dedup of values handled by c.
func EqualFunc[T any](c Codec[T]) func(a, b T) bool {
	if eq, ok := c.(Equaler[T]); ok {
		return eq.Equal
	}
	return func(a, b T) bool {
		return reflect.DeepEqual(a, b)
	}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))
}

// String encodes a uint16 little-endian byte length followed by the raw bytes.
type String struct{}

func (String) Marshal(v string) ([]byte, error) {
	if len(v) > math.MaxUint16 {
		return nil, fmt.Errorf("codec: string of %d bytes exceeds %d", len(v), math.MaxUint16)
	}
	out := make([]byte, 2+len(v))
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(v)))
	copy(out[2:], v)
	return out, nil
}

func (String) Unmarshal(b []byte) (string, error) {
	if len(b) < 2 {
		return "", malformed("string prefix needs 2 bytes, have %d", len(b))
	}
	n := int(binary.LittleEndian.Uint16(b[0:2]))
	if len(b)-2 != n {
		return "", malformed("string length %d disagrees with %d bytes", n, len(b)-2)
	}
	return string(b[2:]), nil
}

// Int32 encodes a fixed 4-byte little-endian integer.
type Int32 struct{}

func (Int32) Marshal(v int32) ([]byte, error) {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(v))
	return out, nil
}

func (Int32) Unmarshal(b []byte) (int32, error) {
	if len(b) != 4 {
		return 0, malformed("int32 needs 4 bytes, have %d", len(b))
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

// Int64 encodes a fixed 8-byte little-endian integer.
type Int64 struct{}

func (Int64) Marshal(v int64) ([]byte, error) {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, uint64(v))
	return out, nil
}

func (Int64) Unmarshal(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, malformed("int64 needs 8 bytes, have %d", len(b))
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

// JSON serializes structs with encoding/json. Struct field order is fixed,
// so output is deterministic for struct types; map keys are sorted.
type JSON[T any] struct{}

func (JSON[T]) Marshal(v T) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON[T]) Unmarshal(b []byte) (T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return v, nil
}
