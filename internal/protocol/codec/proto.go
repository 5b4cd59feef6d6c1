package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Proto serializes protobuf messages with deterministic marshaling and
// compares them with proto.Equal for dedup.
type Proto[T proto.Message] struct {
	New func() T
}

func NewProto[T proto.Message](newFn func() T) Proto[T] {
	return Proto[T]{New: newFn}
}

var marshalOpts = proto.MarshalOptions{Deterministic: true}

func (p Proto[T]) Marshal(v T) ([]byte, error) {
	return marshalOpts.Marshal(v)
}

func (p Proto[T]) Unmarshal(b []byte) (T, error) {
	msg := p.New()
	if err := proto.Unmarshal(b, msg); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return msg, nil
}

func (p Proto[T]) Equal(a, b T) bool {
	return proto.Equal(a, b)
}
