package types

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
)

// Replica identifies one voting node of the cluster, in [0, n).
type Replica uint16

// String returns the replica id in decimal.
func (r Replica) String() string {
	return fmt.Sprintf("%d", uint16(r))
}

// Transaction is an opaque client request.
type Transaction struct {
	Data []byte `cbor:"data" json:"data"`
}

// Header carries the chaining metadata of a block.
type Header struct {
	Height uint64  `cbor:"height" json:"height"`
	Parent []byte  `cbor:"parent" json:"parent"`
	Author Replica `cbor:"author" json:"author"`
	Extra  []byte  `cbor:"extra,omitempty" json:"extra,omitempty"`
}

// Block is a batch of transactions proposed by one replica.
type Block struct {
	Header Header        `cbor:"header" json:"header"`
	Body   []Transaction `cbor:"body" json:"body"`
}

// NumTxs returns the number of transactions in the block body.
func (b *Block) NumTxs() int {
	return len(b.Body)
}

// Hash returns the SHA-256 digest over the header fields and the
// transaction payloads, each length-prefixed.
func (b *Block) Hash() []byte {
	h := sha256.New()
	var scratch [8]byte

	binary.BigEndian.PutUint64(scratch[:], b.Header.Height)
	h.Write(scratch[:])
	writeChunk(h, b.Header.Parent)
	binary.BigEndian.PutUint16(scratch[:2], uint16(b.Header.Author))
	h.Write(scratch[:2])
	writeChunk(h, b.Header.Extra)

	binary.BigEndian.PutUint64(scratch[:], uint64(len(b.Body)))
	h.Write(scratch[:])
	for _, tx := range b.Body {
		writeChunk(h, tx.Data)
	}
	return h.Sum(nil)
}

func writeChunk(h hash.Hash, p []byte) {
	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], uint64(len(p)))
	h.Write(scratch[:])
	h.Write(p)
}

// MsgKind enumerates the protocol-control message kinds.
type MsgKind uint8

const (
	MsgPropose MsgKind = iota
	MsgVote
	MsgBlame
	MsgBeaconShare
	MsgStatus
)

func (k MsgKind) String() string {
	switch k {
	case MsgPropose:
		return "propose"
	case MsgVote:
		return "vote"
	case MsgBlame:
		return "blame"
	case MsgBeaconShare:
		return "beacon_share"
	case MsgStatus:
		return "status"
	default:
		return "unknown"
	}
}

// ProtocolMsg is the replica-to-replica control payload. Its content is
// interpreted by the consensus engine only.
type ProtocolMsg struct {
	Kind      MsgKind `cbor:"kind" json:"kind"`
	Round     uint64  `cbor:"round" json:"round"`
	Block     *Block  `cbor:"block,omitempty" json:"block,omitempty"`
	Payload   []byte  `cbor:"payload,omitempty" json:"payload,omitempty"`
	Signature []byte  `cbor:"sig,omitempty" json:"sig,omitempty"`
}
