package arrow

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// Column positions in BlockSchema
const (
	colHeight = iota
	colAuthor
	colParent
	colExtra
	colHash
	colNumTxs
	colTxs
	numCols
)

// BlockSchema returns the Arrow schema for a block.
//
// Fields:
//   - height: uint64 - block height, starting at 1
//   - author: uint16 - proposing replica
//   - parent: binary (nullable) - hash of the previous block
//   - extra: binary (nullable) - engine-defined header data
//   - hash: binary - block hash
//   - num_txs: int64 - number of transactions
//   - txs: list<binary> - transaction payloads in block order
func BlockSchema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "height", Type: arrow.PrimitiveTypes.Uint64},
			{Name: "author", Type: arrow.PrimitiveTypes.Uint16},
			{Name: "parent", Type: arrow.BinaryTypes.Binary, Nullable: true},
			{Name: "extra", Type: arrow.BinaryTypes.Binary, Nullable: true},
			{Name: "hash", Type: arrow.BinaryTypes.Binary},
			{Name: "num_txs", Type: arrow.PrimitiveTypes.Int64},
			{Name: "txs", Type: arrow.ListOf(arrow.BinaryTypes.Binary)},
		},
		nil,
	)
}
