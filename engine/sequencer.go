package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraChain-Replica/api"
	"github.com/VanDung-dev/HieraChain-Replica/config"
	"github.com/VanDung-dev/HieraChain-Replica/logging"
	"github.com/VanDung-dev/HieraChain-Replica/network"
	"github.com/VanDung-dev/HieraChain-Replica/types"
)

// DefaultPoolSize bounds the sequencer's mempool.
const DefaultPoolSize = 100000

// ErrNoConfig is returned by Run when Handles carries no configuration.
var ErrNoConfig = errors.New("engine started without configuration")

// BlockSink receives every block the sequencer produces.
type BlockSink interface {
	Publish(b *types.Block) error
}

// SequencerOption configures a Sequencer.
type SequencerOption func(*Sequencer)

// WithSequencerLogger sets the logger.
func WithSequencerLogger(l *zap.Logger) SequencerOption {
	return func(s *Sequencer) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSequencerMetrics sets the metrics recorder.
func WithSequencerMetrics(m *api.Metrics) SequencerOption {
	return func(s *Sequencer) { s.metrics = m }
}

// WithSink adds a block sink, such as the ZeroMQ feed.
func WithSink(sink BlockSink) SequencerOption {
	return func(s *Sequencer) { s.sink = sink }
}

// WithPoolSize sets the mempool capacity.
func WithPoolSize(n int) SequencerOption {
	return func(s *Sequencer) {
		if n > 0 {
			s.poolSize = n
		}
	}
}

// Sequencer turns pooled client transactions into a chain of blocks.
// A block is cut every SleepTime, or as soon as BlockSize transactions are
// pending.
type Sequencer struct {
	log      *zap.Logger
	metrics  *api.Metrics
	sink     BlockSink
	poolSize int

	pool   *Mempool
	height uint64
	parent []byte
}

// NewSequencer creates a Sequencer.
func NewSequencer(opts ...SequencerOption) *Sequencer {
	s := &Sequencer{
		log:      zap.NewNop(),
		poolSize: DefaultPoolSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pool = NewMempool(s.poolSize)
	return s
}

// Height returns the height of the last produced block.
func (s *Sequencer) Height() uint64 {
	return s.height
}

// Run implements Engine. It returns nil when ctx is cancelled.
func (s *Sequencer) Run(ctx context.Context, h Handles) error {
	if h.Config == nil {
		return ErrNoConfig
	}

	interval := h.Config.SleepTime
	if interval <= 0 {
		interval = config.SleepTimeFor(h.Config.NumNodes)
	}
	batch := h.Config.BlockSize
	if batch <= 0 {
		batch = 1
	}

	log := s.log.With(zap.Uint16("replica", uint16(h.Config.ID)))
	log.Info("sequencer started",
		zap.Duration("interval", interval),
		zap.Int("block_size", batch),
		zap.Bool("client_mode", h.ClientMode))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	clientIn, peerIn := h.ClientIn, h.PeerIn
	for {
		select {
		case <-ctx.Done():
			log.Info("sequencer stopped", zap.Uint64("height", s.height))
			return nil

		case in, ok := <-clientIn:
			if !ok {
				clientIn = nil
				continue
			}
			s.admit(log, in)
			if s.pool.Size() >= batch {
				s.cut(ctx, log, h, batch)
			}

		case msg, ok := <-peerIn:
			if !ok {
				peerIn = nil
				continue
			}
			s.observe(log, msg)

		case <-ticker.C:
			s.cut(ctx, log, h, batch)
		}
	}
}

func (s *Sequencer) admit(log *zap.Logger, in network.ClientTx) {
	if err := s.pool.Add(in.From, in.Tx); err != nil {
		log.Debug("transaction rejected",
			zap.Uint64("client", uint64(in.From)), zap.Error(err))
		return
	}
	s.metrics.RecordPooled(s.pool.Size())
	logging.Trace(log, "transaction pooled", zap.Uint64("client", uint64(in.From)))
}

func (s *Sequencer) observe(log *zap.Logger, msg network.PeerMsg) {
	if msg.Msg == nil {
		return
	}
	if msg.Msg.Kind == types.MsgPropose {
		s.metrics.RecordProposal()
	}
	logging.Trace(log, "peer message",
		zap.Uint16("from", uint16(msg.From)),
		zap.Stringer("kind", msg.Msg.Kind),
		zap.Uint64("round", msg.Msg.Round))
}

func (s *Sequencer) cut(ctx context.Context, log *zap.Logger, h Handles, batch int) {
	entries := s.pool.PopBatch(batch)
	if len(entries) == 0 {
		return
	}

	block := &types.Block{
		Header: types.Header{
			Height: s.height + 1,
			Parent: s.parent,
			Author: h.Config.ID,
		},
		Body: make([]types.Transaction, len(entries)),
	}
	for i, e := range entries {
		block.Body[i] = *e.Tx
	}
	s.height = block.Header.Height
	s.parent = block.Hash()

	if h.PeerOut != nil {
		env := network.ToAll(&types.ProtocolMsg{
			Kind:  types.MsgPropose,
			Round: block.Header.Height,
			Block: block,
		})
		select {
		case h.PeerOut <- env:
		case <-ctx.Done():
			return
		}
	}

	if h.ClientOut != nil {
		for _, to := range recipients(h.ClientMode, entries) {
			select {
			case h.ClientOut <- network.ClientBlock{To: to, Block: block}:
			case <-ctx.Done():
				return
			}
		}
	}

	if s.sink != nil {
		if err := s.sink.Publish(block); err != nil {
			log.Warn("block sink publish failed",
				zap.Uint64("height", block.Header.Height), zap.Error(err))
		}
	}

	s.metrics.RecordBlock(len(entries), s.pool.Size(), time.Since(entries[0].Added))
	log.Debug("block produced",
		zap.Uint64("height", block.Header.Height),
		zap.Int("txs", len(entries)))
}

// recipients lists the clients a block goes to. Outside client mode that
// is every client; in client mode it is each contributing client once, in
// order of first appearance.
func recipients(clientMode bool, entries []*Entry) []network.ClientID {
	if !clientMode {
		return []network.ClientID{network.AllClients}
	}
	seen := make(map[network.ClientID]struct{}, len(entries))
	out := make([]network.ClientID, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.From]; ok {
			continue
		}
		seen[e.From] = struct{}{}
		out = append(out, e.From)
	}
	return out
}
