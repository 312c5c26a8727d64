package codec

import "github.com/VanDung-dev/HieraChain-Replica/types"

// NewTxCodec frames client transactions.
func NewTxCodec() *Codec[types.Transaction] {
	return New[types.Transaction]()
}

// NewBlockCodec frames blocks sent to clients.
func NewBlockCodec() *Codec[types.Block] {
	return New[types.Block]()
}

// NewProtocolCodec frames replica-to-replica protocol messages.
func NewProtocolCodec() *Codec[types.ProtocolMsg] {
	return New[types.ProtocolMsg]()
}
