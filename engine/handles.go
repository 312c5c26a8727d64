package engine

import (
	"context"

	"github.com/VanDung-dev/HieraChain-Replica/config"
	"github.com/VanDung-dev/HieraChain-Replica/network"
)

// Handles is everything an engine is given at start.
type Handles struct {
	// Config is frozen before the engine starts.
	Config *config.Node

	// ClientMode restricts block delivery to the clients whose
	// transactions the block contains.
	ClientMode bool

	ClientIn  <-chan network.ClientTx
	ClientOut chan<- network.ClientBlock
	PeerIn    <-chan network.PeerMsg
	PeerOut   chan<- network.ReplicaEnvelope
}

// Engine consumes Handles until ctx is cancelled or it fails.
type Engine interface {
	Run(ctx context.Context, h Handles) error
}
