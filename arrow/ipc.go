package arrow

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/VanDung-dev/HieraChain-Replica/types"
)

// ErrNoRecords is returned when an IPC stream carries no record batch.
var ErrNoRecords = errors.New("no records in IPC data")

// IPCWriter writes block records in the Arrow IPC stream format.
type IPCWriter struct {
	allocator memory.Allocator
	converter *Converter
}

// NewIPCWriter creates a new IPCWriter.
func NewIPCWriter() *IPCWriter {
	return NewIPCWriterWithAllocator(memory.DefaultAllocator)
}

// NewIPCWriterWithAllocator creates an IPCWriter using mem for records and
// decoding.
func NewIPCWriterWithAllocator(mem memory.Allocator) *IPCWriter {
	return &IPCWriter{
		allocator: mem,
		converter: NewConverterWithAllocator(mem),
	}
}

// SerializeToIPC serializes an Arrow Record to IPC bytes.
func (w *IPCWriter) SerializeToIPC(record arrow.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := w.writeRecords(&buf, []arrow.Record{record}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeFromIPC returns the first record in data. The caller
// releases it.
func (w *IPCWriter) DeserializeFromIPC(data []byte) (arrow.Record, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(w.allocator))
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		if reader.Err() != nil {
			return nil, reader.Err()
		}
		return nil, ErrNoRecords
	}

	record := reader.Record()
	record.Retain()
	return record, nil
}

// WriteBlocks converts blocks into one record and streams it to dst.
func (w *IPCWriter) WriteBlocks(dst io.Writer, blocks []*types.Block) error {
	record, err := w.converter.BlocksToRecord(blocks)
	if err != nil {
		return err
	}
	defer record.Release()
	return w.writeRecords(dst, []arrow.Record{record})
}

// ReadBlocks reads every record of an IPC stream and returns the blocks in
// stream order.
func (w *IPCWriter) ReadBlocks(src io.Reader) ([]*types.Block, error) {
	reader, err := ipc.NewReader(src, ipc.WithAllocator(w.allocator))
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer reader.Release()

	var blocks []*types.Block
	for reader.Next() {
		batch, err := w.converter.RecordToBlocks(reader.Record())
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, batch...)
	}
	if reader.Err() != nil {
		return nil, reader.Err()
	}
	if blocks == nil {
		return nil, ErrNoRecords
	}
	return blocks, nil
}

func (w *IPCWriter) writeRecords(dst io.Writer, records []arrow.Record) error {
	if len(records) == 0 || records[0] == nil {
		return ErrNoRecords
	}

	writer := ipc.NewWriter(dst, ipc.WithSchema(records[0].Schema()), ipc.WithAllocator(w.allocator))
	for i, record := range records {
		if err := writer.Write(record); err != nil {
			_ = writer.Close()
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}
