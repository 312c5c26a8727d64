package config

import (
	"fmt"
	"time"

	"github.com/VanDung-dev/HieraChain-Replica/crypto"
	"github.com/VanDung-dev/HieraChain-Replica/types"
)

// DefaultRoundTimeout is used when a config omits delta.
const DefaultRoundTimeout = 50 * time.Millisecond

// Node is one replica's view of the cluster.
type Node struct {
	ID        types.Replica
	NumNodes  int
	NumFaults int
	// NetMap maps every replica id to its reachable address.
	NetMap     map[types.Replica]string
	ClientPort uint16

	RoundTimeout time.Duration
	// SleepTime is the engine's batching pause, derived from NumNodes.
	SleepTime time.Duration
	BlockSize int
	Payload   int

	CryptoAlg crypto.Algorithm
	PKMap     map[types.Replica][]byte
	SecretKey []byte

	Threshold crypto.ThresholdParams

	frozen bool
}

// NewNode returns an empty record with defaults applied.
func NewNode() *Node {
	return &Node{
		NetMap:       make(map[types.Replica]string),
		PKMap:        make(map[types.Replica][]byte),
		RoundTimeout: DefaultRoundTimeout,
		SleepTime:    SleepTimeFor(0),
		CryptoAlg:    crypto.ED25519,
	}
}

// SleepTimeFor returns 10ms plus 4ms per replica.
func SleepTimeFor(numNodes int) time.Duration {
	return 10*time.Millisecond + time.Duration(numNodes)*4*time.Millisecond
}

// Freeze makes the record read-only. Mutators fail with ErrFrozen after
// this call.
func (n *Node) Freeze() {
	n.frozen = true
}

// Frozen reports whether Freeze has been called.
func (n *Node) Frozen() bool {
	return n.frozen
}

// SetRoundTimeout replaces the round timeout verbatim. No range check is
// applied.
func (n *Node) SetRoundTimeout(d time.Duration) error {
	if n.frozen {
		return ErrFrozen
	}
	n.RoundTimeout = d
	return nil
}

// OwnListenAddress returns the network map entry for this replica.
func (n *Node) OwnListenAddress() (string, error) {
	addr, ok := n.NetMap[n.ID]
	if !ok {
		return "", fmt.Errorf("%w: replica %d", ErrOwnAddressMissing, n.ID)
	}
	return addr, nil
}

// ClientListenAddress returns the wildcard address on the client port.
func (n *Node) ClientListenAddress() string {
	return fmt.Sprintf("0.0.0.0:%d", n.ClientPort)
}

// Peers returns every replica id other than this one, in ascending order.
func (n *Node) Peers() []types.Replica {
	ids := sortedIDs(n.NetMap)
	out := ids[:0]
	for _, id := range ids {
		if id != n.ID {
			out = append(out, id)
		}
	}
	return out
}
