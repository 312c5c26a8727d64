package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/VanDung-dev/HieraChain-Replica/types"
)

var equateEmpty = cmpopts.EquateEmpty()

func sampleBlock(height uint64, txs ...string) *types.Block {
	b := &types.Block{
		Header: types.Header{
			Height: height,
			Parent: bytes.Repeat([]byte{0xaa}, 32),
			Author: 2,
		},
	}
	for _, tx := range txs {
		b.Body = append(b.Body, types.Transaction{Data: []byte(tx)})
	}
	return b
}

func TestRoundTrip(t *testing.T) {
	t.Run("transaction", func(t *testing.T) {
		c := NewTxCodec()
		for _, tx := range []*types.Transaction{
			{Data: []byte("transfer 10")},
			{Data: []byte{}},
			{Data: bytes.Repeat([]byte{0x5a}, 4<<20)},
		} {
			roundTrip(t, c, tx)
		}
	})

	t.Run("block", func(t *testing.T) {
		c := NewBlockCodec()
		roundTrip(t, c, sampleBlock(0))
		roundTrip(t, c, sampleBlock(7, "a", "", "ccc"))
	})

	t.Run("protocol", func(t *testing.T) {
		c := NewProtocolCodec()
		roundTrip(t, c, &types.ProtocolMsg{Kind: types.MsgVote, Round: 3, Signature: []byte{1, 2}})
		roundTrip(t, c, &types.ProtocolMsg{Kind: types.MsgPropose, Round: 4, Block: sampleBlock(4, "x")})
	})
}

func roundTrip[T any](t *testing.T, c *Codec[T], v *T) {
	t.Helper()

	var buf bytes.Buffer
	if err := c.Encode(&buf, v); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, ok, err := c.Decode(&buf)
	if err != nil || !ok {
		t.Fatalf("Decode = ok %v, err %v", ok, err)
	}
	if diff := cmp.Diff(v, got, equateEmpty); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if buf.Len() != 0 {
		t.Errorf("%d bytes left in buffer", buf.Len())
	}
}

func TestFrameLayout(t *testing.T) {
	c := NewTxCodec()
	tx := &types.Transaction{Data: []byte("hello")}

	payload, err := c.Marshal(tx)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	frame, err := c.AppendFrame([]byte{0xff}, tx)
	if err != nil {
		t.Fatalf("AppendFrame failed: %v", err)
	}

	if frame[0] != 0xff {
		t.Fatal("AppendFrame overwrote dst")
	}
	if got := binary.BigEndian.Uint32(frame[1:5]); int(got) != len(payload) {
		t.Errorf("length prefix = %d, want %d", got, len(payload))
	}
	if !bytes.Equal(frame[5:], payload) {
		t.Error("frame body differs from Marshal output")
	}

	again, _ := c.Marshal(&types.Transaction{Data: []byte("hello")})
	if !bytes.Equal(payload, again) {
		t.Error("encoding is not deterministic")
	}
}

func TestDecodePartialFrames(t *testing.T) {
	c := NewBlockCodec()
	want := sampleBlock(9, "one", "two", "three")
	frame, err := c.AppendFrame(nil, want)
	if err != nil {
		t.Fatalf("AppendFrame failed: %v", err)
	}

	for k := 0; k < len(frame); k++ {
		buf := bytes.NewBuffer(append([]byte(nil), frame[:k]...))
		got, ok, err := c.Decode(buf)
		if err != nil || ok || got != nil {
			t.Fatalf("k=%d: Decode = %v, %v, %v; want no frame", k, got, ok, err)
		}
		if buf.Len() != k {
			t.Fatalf("k=%d: Decode consumed bytes from a partial frame", k)
		}

		buf.Write(frame[k:])
		got, ok, err = c.Decode(buf)
		if err != nil || !ok {
			t.Fatalf("k=%d: Decode after completion = %v, %v", k, ok, err)
		}
		if diff := cmp.Diff(want, got, equateEmpty); diff != "" {
			t.Fatalf("k=%d: mismatch (-want +got):\n%s", k, diff)
		}
		if _, ok, _ := c.Decode(buf); ok {
			t.Fatalf("k=%d: second frame produced from one", k)
		}
	}
}

func TestDecodeMultipleFrames(t *testing.T) {
	c := NewTxCodec()
	var buf bytes.Buffer
	for _, s := range []string{"a", "b", "c"} {
		if err := c.Encode(&buf, &types.Transaction{Data: []byte(s)}); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	for {
		tx, ok, err := c.Decode(&buf)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, string(tx.Data))
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestClonedCodecsDoNotShareState(t *testing.T) {
	base := NewTxCodec()
	c1, c2 := base.Clone(), base.Clone()

	f1, _ := c1.AppendFrame(nil, &types.Transaction{Data: []byte("stream one payload")})
	f2, _ := c2.AppendFrame(nil, &types.Transaction{Data: []byte("second stream")})

	var b1, b2 bytes.Buffer
	var got1, got2 *types.Transaction
	for i := 0; i < len(f1) || i < len(f2); i++ {
		if i < len(f1) {
			b1.WriteByte(f1[i])
			if tx, ok, err := c1.Decode(&b1); err != nil {
				t.Fatalf("stream 1: %v", err)
			} else if ok {
				got1 = tx
			}
		}
		if i < len(f2) {
			b2.WriteByte(f2[i])
			if tx, ok, err := c2.Decode(&b2); err != nil {
				t.Fatalf("stream 2: %v", err)
			} else if ok {
				got2 = tx
			}
		}
	}

	if got1 == nil || string(got1.Data) != "stream one payload" {
		t.Errorf("stream 1 decoded %v", got1)
	}
	if got2 == nil || string(got2.Data) != "second stream" {
		t.Errorf("stream 2 decoded %v", got2)
	}
}

func TestDecodeOversizedFrame(t *testing.T) {
	c := NewTxCodec()
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], MaxFrameSize+1)

	_, _, err := c.Decode(bytes.NewBuffer(hdr[:]))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("error = %v, want ErrFrameTooLarge", err)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	c := NewBlockCodec()
	payload := []byte{0xa1, 0x61} // map with a truncated text key
	frame := binary.BigEndian.AppendUint32(nil, uint32(len(payload)))
	frame = append(frame, payload...)
	buf := bytes.NewBuffer(frame)

	_, ok, err := c.Decode(buf)
	if !errors.Is(err, ErrMalformedFrame) || ok {
		t.Errorf("Decode = %v, %v; want ErrMalformedFrame", ok, err)
	}
	if buf.Len() != 0 {
		t.Errorf("malformed frame not consumed: %d bytes left", buf.Len())
	}
}

func TestEncodeSharedValueConcurrently(t *testing.T) {
	c := NewBlockCodec()
	shared := sampleBlock(1, "x", "y")
	want, _ := c.AppendFrame(nil, shared)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var buf bytes.Buffer
			if err := c.Encode(&buf, shared); err != nil {
				t.Errorf("Encode failed: %v", err)
				return
			}
			if !bytes.Equal(buf.Bytes(), want) {
				t.Error("concurrent encode produced different bytes")
			}
		}()
	}
	wg.Wait()
}

func TestReader(t *testing.T) {
	c := NewTxCodec()
	var stream bytes.Buffer
	for _, s := range []string{"first", "second"} {
		if err := c.Encode(&stream, &types.Transaction{Data: []byte(s)}); err != nil {
			t.Fatal(err)
		}
	}

	r := NewReader(iotest.OneByteReader(&stream), c)
	for _, want := range []string{"first", "second"} {
		tx, err := r.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if string(tx.Data) != want {
			t.Errorf("Next = %q, want %q", tx.Data, want)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("Next at end = %v, want io.EOF", err)
	}
}

func TestReaderTruncatedStream(t *testing.T) {
	c := NewTxCodec()
	frame, _ := c.AppendFrame(nil, &types.Transaction{Data: []byte("cut short")})

	r := NewReader(bytes.NewReader(frame[:len(frame)-2]), c)
	if _, err := r.Next(); err != io.ErrUnexpectedEOF {
		t.Errorf("Next = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestReaderReturnsFrameBeforeEOF(t *testing.T) {
	c := NewTxCodec()
	frame, _ := c.AppendFrame(nil, &types.Transaction{Data: []byte("last")})

	r := NewReader(iotest.DataErrReader(bytes.NewReader(frame)), c)
	tx, err := r.Next()
	if err != nil || string(tx.Data) != "last" {
		t.Fatalf("Next = %v, %v", tx, err)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("Next = %v, want io.EOF", err)
	}
}
