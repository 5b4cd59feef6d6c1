package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	HeaderLen = 6

	// MaxPayloadLen is the largest payload the 16-bit length field can describe.
	MaxPayloadLen = 1<<16 - 1
)

const (
	V0 uint8 = 0
)

// Kind is the frame-kind byte of the header.
type Kind uint8

const (
	KindRequest  Kind = 0
	KindResponse Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

var (
	ErrMalformedHeader   = errors.New("frame: malformed header")
	ErrProtocolViolation = errors.New("frame: protocol violation")
	ErrPayloadTooLarge   = errors.New("frame: payload too large")
)

// Header is the fixed wire header. Length never counts the header itself.
type Header struct {
	Version  uint8
	Kind     Kind
	Length   uint16
	Reserved uint16
}

// Frame is one header plus its payload.
type Frame struct {
	Header  Header
	Payload []byte
}

// SupportedVersion reports whether v is a version this codec understands.
func SupportedVersion(v uint8) bool {
	return v == V0
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	buf[0] = h.Version
	buf[1] = byte(h.Kind)
	binary.LittleEndian.PutUint16(buf[2:4], h.Length)
	binary.LittleEndian.PutUint16(buf[4:6], h.Reserved)
	return buf
}

// DecodeHeader parses the first HeaderLen bytes of b. Extra bytes are ignored.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: need %d bytes, have %d", ErrMalformedHeader, HeaderLen, len(b))
	}
	h := Header{
		Version:  b[0],
		Kind:     Kind(b[1]),
		Length:   binary.LittleEndian.Uint16(b[2:4]),
		Reserved: binary.LittleEndian.Uint16(b[4:6]),
	}
	if !SupportedVersion(h.Version) {
		return Header{}, fmt.Errorf("%w: unknown version %d", ErrMalformedHeader, h.Version)
	}
	if h.Kind != KindRequest && h.Kind != KindResponse {
		return Header{}, fmt.Errorf("%w: unknown frame kind %d", ErrMalformedHeader, uint8(h.Kind))
	}
	return h, nil
}

// NewHeader builds a V0 header of the given kind sized for payload.
// Oversized payloads are rejected before any header bytes exist.
func NewHeader(kind Kind, payload []byte) (Header, error) {
	if len(payload) > MaxPayloadLen {
		return Header{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(payload), MaxPayloadLen)
	}
	return Header{
		Version: V0,
		Kind:    kind,
		Length:  uint16(len(payload)),
	}, nil
}

// EncodeFrame returns header bytes followed by payload. The header's Length
// is overwritten with the real payload length.
func EncodeFrame(h Header, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(payload), MaxPayloadLen)
	}
	h.Length = uint16(len(payload))
	out := make([]byte, 0, HeaderLen+len(payload))
	out = append(out, EncodeHeader(h)...)
	out = append(out, payload...)
	return out, nil
}

func WriteFrame(w io.Writer, f Frame) error {
	b, err := EncodeFrame(f.Header, f.Payload)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// ReadHeader reads exactly HeaderLen bytes from r. A clean io.EOF before any
// byte is returned as-is so callers can tell a closed peer from a torn header.
func ReadHeader(r io.Reader) (Header, error) {
	var fixed [HeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Header{}, fmt.Errorf("%w: short read", ErrMalformedHeader)
		}
		return Header{}, err
	}
	return DecodeHeader(fixed[:])
}

// ReadPayload reads exactly h.Length bytes following a header.
func ReadPayload(r io.Reader, h Header) ([]byte, error) {
	payload := make([]byte, h.Length)
	if h.Length == 0 {
		return payload, nil
	}
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: payload length %d disagrees with bytes available", ErrProtocolViolation, h.Length)
		}
		return nil, err
	}
	return payload, nil
}

func ReadFrame(r io.Reader) (Frame, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return Frame{}, err
	}
	payload, err := ReadPayload(r, h)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Header: h, Payload: payload}, nil
}

// ExpectKind returns ErrProtocolViolation when h is not of the wanted kind.
func ExpectKind(h Header, want Kind) error {
	if h.Kind != want {
		return fmt.Errorf("%w: expected %s frame, got %s", ErrProtocolViolation, want, h.Kind)
	}
	return nil
}
