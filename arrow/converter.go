package arrow

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/VanDung-dev/HieraChain-Replica/types"
)

// Common errors for conversion
var (
	ErrNoBlocks      = errors.New("empty blocks slice")
	ErrInvalidRecord = errors.New("invalid block record")
)

// Converter turns blocks into Arrow records and back.
type Converter struct {
	allocator memory.Allocator
	schema    *arrow.Schema
}

// NewConverter creates a Converter with the default memory allocator.
func NewConverter() *Converter {
	return NewConverterWithAllocator(memory.DefaultAllocator)
}

// NewConverterWithAllocator creates a Converter using mem. Tests pass a
// checked allocator to catch leaks.
func NewConverterWithAllocator(mem memory.Allocator) *Converter {
	return &Converter{
		allocator: mem,
		schema:    BlockSchema(),
	}
}

// Schema returns the schema of produced records.
func (c *Converter) Schema() *arrow.Schema {
	return c.schema
}

// BlocksToRecord converts blocks into one record, one row per block. The
// caller releases the record.
func (c *Converter) BlocksToRecord(blocks []*types.Block) (arrow.Record, error) {
	if len(blocks) == 0 {
		return nil, ErrNoBlocks
	}

	builder := array.NewRecordBuilder(c.allocator, c.schema)
	defer builder.Release()

	heightBuilder := builder.Field(colHeight).(*array.Uint64Builder)
	authorBuilder := builder.Field(colAuthor).(*array.Uint16Builder)
	parentBuilder := builder.Field(colParent).(*array.BinaryBuilder)
	extraBuilder := builder.Field(colExtra).(*array.BinaryBuilder)
	hashBuilder := builder.Field(colHash).(*array.BinaryBuilder)
	numTxsBuilder := builder.Field(colNumTxs).(*array.Int64Builder)
	txsBuilder := builder.Field(colTxs).(*array.ListBuilder)
	payloadBuilder := txsBuilder.ValueBuilder().(*array.BinaryBuilder)

	for i, b := range blocks {
		if b == nil {
			return nil, fmt.Errorf("block %d is nil", i)
		}
		heightBuilder.Append(b.Header.Height)
		authorBuilder.Append(uint16(b.Header.Author))
		if len(b.Header.Parent) > 0 {
			parentBuilder.Append(b.Header.Parent)
		} else {
			parentBuilder.AppendNull()
		}
		if len(b.Header.Extra) > 0 {
			extraBuilder.Append(b.Header.Extra)
		} else {
			extraBuilder.AppendNull()
		}
		hashBuilder.Append(b.Hash())
		numTxsBuilder.Append(int64(len(b.Body)))

		txsBuilder.Append(true)
		for _, tx := range b.Body {
			payloadBuilder.Append(tx.Data)
		}
	}

	return builder.NewRecord(), nil
}

// RecordToBlocks rebuilds blocks from a record produced by BlocksToRecord.
// Every row's hash column is checked against the rebuilt block.
func (c *Converter) RecordToBlocks(record arrow.Record) ([]*types.Block, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if !record.Schema().Equal(c.schema) {
		return nil, fmt.Errorf("%w: schema mismatch", ErrInvalidRecord)
	}
	if record.NumCols() != numCols {
		return nil, fmt.Errorf("%w: expected %d columns, got %d", ErrInvalidRecord, numCols, record.NumCols())
	}

	heightCol := record.Column(colHeight).(*array.Uint64)
	authorCol := record.Column(colAuthor).(*array.Uint16)
	parentCol := record.Column(colParent).(*array.Binary)
	extraCol := record.Column(colExtra).(*array.Binary)
	hashCol := record.Column(colHash).(*array.Binary)
	numTxsCol := record.Column(colNumTxs).(*array.Int64)
	txsCol := record.Column(colTxs).(*array.List)
	payloads, ok := txsCol.ListValues().(*array.Binary)
	if !ok {
		return nil, fmt.Errorf("%w: txs values are not binary", ErrInvalidRecord)
	}

	blocks := make([]*types.Block, record.NumRows())
	for i := range blocks {
		b := &types.Block{
			Header: types.Header{
				Height: heightCol.Value(i),
				Author: types.Replica(authorCol.Value(i)),
			},
		}
		if parentCol.IsValid(i) {
			b.Header.Parent = bytes.Clone(parentCol.Value(i))
		}
		if extraCol.IsValid(i) {
			b.Header.Extra = bytes.Clone(extraCol.Value(i))
		}

		start, end := txsCol.ValueOffsets(i)
		b.Body = make([]types.Transaction, 0, end-start)
		for j := start; j < end; j++ {
			b.Body = append(b.Body, types.Transaction{Data: bytes.Clone(payloads.Value(int(j)))})
		}

		if int64(len(b.Body)) != numTxsCol.Value(i) {
			return nil, fmt.Errorf("%w: row %d has %d txs, num_txs says %d",
				ErrInvalidRecord, i, len(b.Body), numTxsCol.Value(i))
		}
		if !bytes.Equal(b.Hash(), hashCol.Value(i)) {
			return nil, fmt.Errorf("%w: row %d hash mismatch", ErrInvalidRecord, i)
		}
		blocks[i] = b
	}
	return blocks, nil
}
