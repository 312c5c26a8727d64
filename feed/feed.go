// Package feed publishes committed blocks on a ZeroMQ PUB socket for
// read-only observers.
//
// Every block is sent as a two-frame message: the topic "block" followed
// by the block encoded with the same CBOR codec the client fabric uses.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraChain-Replica/codec"
	"github.com/VanDung-dev/HieraChain-Replica/types"
)

// Topic prefixes every block message.
const Topic = "block"

// Common errors for feed operations
var (
	ErrFeedClosed     = errors.New("feed is closed")
	ErrMalformedEvent = errors.New("malformed feed message")
)

// BlockFeed is a PUB socket publishing blocks.
type BlockFeed struct {
	endpoint string
	pub      zmq4.Socket
	codec    *codec.Codec[types.Block]
	log      *zap.Logger

	mu     sync.Mutex
	closed bool
	sent   uint64
}

// NewBlockFeed binds a PUB socket to endpoint, e.g. "tcp://0.0.0.0:7000".
func NewBlockFeed(ctx context.Context, endpoint string, log *zap.Logger) (*BlockFeed, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pub := zmq4.NewPub(ctx)
	if err := pub.Listen(endpoint); err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("failed to bind feed on %s: %w", endpoint, err)
	}

	f := &BlockFeed{
		endpoint: endpoint,
		pub:      pub,
		codec:    codec.NewBlockCodec(),
		log:      log.With(zap.String("component", "feed")),
	}
	f.log.Info("block feed listening", zap.String("endpoint", f.Endpoint()))
	return f, nil
}

// Endpoint returns the bound endpoint, with the real port when the
// configured one was 0.
func (f *BlockFeed) Endpoint() string {
	if addr := f.pub.Addr(); addr != nil {
		if tcp, ok := addr.(*net.TCPAddr); ok {
			return "tcp://" + tcp.String()
		}
	}
	return f.endpoint
}

// Publish sends b to every subscriber. Subscribers that are not connected
// miss it.
func (f *BlockFeed) Publish(b *types.Block) error {
	data, err := f.codec.Marshal(b)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFeedClosed
	}
	if err := f.pub.Send(zmq4.NewMsgFrom([]byte(Topic), data)); err != nil {
		return fmt.Errorf("failed to publish block %d: %w", b.Header.Height, err)
	}
	f.sent++
	return nil
}

// Sent returns the number of published blocks.
func (f *BlockFeed) Sent() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

// Close closes the socket. Further Publish calls fail with ErrFeedClosed.
func (f *BlockFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.pub.Close()
}

// Subscription reads blocks from a feed.
type Subscription struct {
	sub   zmq4.Socket
	codec *codec.Codec[types.Block]
}

// Subscribe connects a SUB socket to endpoint and subscribes to Topic.
func Subscribe(ctx context.Context, endpoint string) (*Subscription, error) {
	sub := zmq4.NewSub(ctx)
	if err := sub.Dial(endpoint); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to connect to feed %s: %w", endpoint, err)
	}
	if err := sub.SetOption(zmq4.OptionSubscribe, Topic); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return &Subscription{sub: sub, codec: codec.NewBlockCodec()}, nil
}

// Next blocks until the next block arrives or the subscription's context
// ends.
func (s *Subscription) Next() (*types.Block, error) {
	msg, err := s.sub.Recv()
	if err != nil {
		return nil, err
	}
	if len(msg.Frames) != 2 || string(msg.Frames[0]) != Topic {
		return nil, fmt.Errorf("%w: %d frames", ErrMalformedEvent, len(msg.Frames))
	}
	return s.codec.Unmarshal(msg.Frames[1])
}

// Close closes the SUB socket.
func (s *Subscription) Close() error {
	return s.sub.Close()
}
