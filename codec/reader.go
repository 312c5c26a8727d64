package codec

import (
	"bytes"
	"io"
)

const readChunkSize = 32 * 1024

// Reader pulls frames of T off a stream. Each connection owns one Reader;
// the Codec inside it may be shared.
type Reader[T any] struct {
	src   io.Reader
	codec *Codec[T]
	buf   bytes.Buffer
	chunk []byte
	err   error
}

// NewReader returns a Reader decoding frames from src with c.
func NewReader[T any](src io.Reader, c *Codec[T]) *Reader[T] {
	return &Reader[T]{
		src:   src,
		codec: c,
		chunk: make([]byte, readChunkSize),
	}
}

// Next blocks until a complete frame is available and returns its value.
// A stream that ends cleanly between frames returns io.EOF; one that ends
// inside a frame returns io.ErrUnexpectedEOF.
func (r *Reader[T]) Next() (*T, error) {
	for {
		v, ok, err := r.codec.Decode(&r.buf)
		if err != nil {
			return nil, err
		}
		if ok {
			return v, nil
		}

		if r.err != nil {
			if r.err == io.EOF && r.buf.Len() > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, r.err
		}

		n, err := r.src.Read(r.chunk)
		r.buf.Write(r.chunk[:n])
		if err != nil {
			r.err = err
		}
	}
}

// Buffered returns the number of bytes read but not yet decoded.
func (r *Reader[T]) Buffered() int {
	return r.buf.Len()
}
