package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// LengthPrefixSize is the size of the frame header in bytes.
const LengthPrefixSize = 4

// MaxFrameSize is the largest payload accepted in either direction (50MB).
const MaxFrameSize = 50 * 1024 * 1024

// Common errors for frame handling
var (
	ErrFrameTooLarge  = errors.New("frame size exceeds maximum allowed size")
	ErrMalformedFrame = errors.New("malformed frame payload")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: failed to create CBOR encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		IndefLength:      cbor.IndefLengthForbidden,
		MaxArrayElements: 1 << 24,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: failed to create CBOR decoder: %v", err))
	}
}

// Codec converts values of T to and from length-prefixed frames.
type Codec[T any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// New returns a codec for T.
func New[T any]() *Codec[T] {
	return &Codec[T]{enc: encMode, dec: decMode}
}

// Clone returns an independent codec. Codecs hold no stream state, so this
// is the same as calling New.
func (c *Codec[T]) Clone() *Codec[T] {
	return New[T]()
}

// Marshal returns the CBOR payload for v, without a length prefix.
func (c *Codec[T]) Marshal(v *T) ([]byte, error) {
	data, err := c.enc.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	if len(data) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrFrameTooLarge, len(data), MaxFrameSize)
	}
	return data, nil
}

// Unmarshal decodes a single payload.
func (c *Codec[T]) Unmarshal(data []byte) (*T, error) {
	v := new(T)
	if err := c.dec.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return v, nil
}

// AppendFrame appends the framed encoding of v to dst.
func (c *Codec[T]) AppendFrame(dst []byte, v *T) ([]byte, error) {
	data, err := c.Marshal(v)
	if err != nil {
		return dst, err
	}
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(data))) // #nosec G115 - bounded by MaxFrameSize
	return append(dst, data...), nil
}

// Encode writes one frame for v to w in a single Write call.
func (c *Codec[T]) Encode(w io.Writer, v *T) error {
	frame, err := c.AppendFrame(nil, v)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Decode extracts one frame from the front of buf. If buf does not yet
// hold a complete frame, Decode returns (nil, false, nil) and leaves buf
// untouched, so it can be called again once more bytes arrive.
//
// A length above MaxFrameSize yields ErrFrameTooLarge. A complete frame
// whose payload does not decode is consumed and yields ErrMalformedFrame.
// Both are fatal to the stream.
func (c *Codec[T]) Decode(buf *bytes.Buffer) (*T, bool, error) {
	b := buf.Bytes()
	if len(b) < LengthPrefixSize {
		return nil, false, nil
	}

	length := binary.BigEndian.Uint32(b)
	if length > MaxFrameSize {
		return nil, false, fmt.Errorf("%w: %d bytes (max: %d)", ErrFrameTooLarge, length, MaxFrameSize)
	}
	total := LengthPrefixSize + int(length)
	if len(b) < total {
		return nil, false, nil
	}

	v, err := c.Unmarshal(b[LengthPrefixSize:total])
	buf.Next(total)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}
