package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraChain-Replica/api"
	"github.com/VanDung-dev/HieraChain-Replica/codec"
	"github.com/VanDung-dev/HieraChain-Replica/logging"
	"github.com/VanDung-dev/HieraChain-Replica/types"
)

// ClientID identifies one accepted client connection for the lifetime of
// the fabric. IDs start at 1.
type ClientID uint64

// AllClients addresses a block to every connected client.
const AllClients ClientID = 0

// ClientTx is a transaction received from a client.
type ClientTx struct {
	From ClientID
	Tx   *types.Transaction
}

// ClientBlock is a block to deliver to one client or to AllClients.
type ClientBlock struct {
	To    ClientID
	Block *types.Block
}

// ClientFabric accepts client connections, fans their transactions into
// one channel and routes outbound blocks back to them.
//
// A full ingress channel blocks the reading goroutine of the sending
// client, which pushes back on that client through TCP. A client whose
// outbound queue fills up is disconnected so it cannot stall the others.
type ClientFabric struct {
	listener   net.Listener
	opts       options
	log        *zap.Logger
	metrics    *api.Metrics
	txCodec    *codec.Codec[types.Transaction]
	blockCodec *codec.Codec[types.Block]

	ingress chan ClientTx
	egress  chan ClientBlock

	mu     sync.RWMutex
	conns  map[ClientID]*clientConn
	nextID atomic.Uint64

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type clientConn struct {
	id        ClientID
	conn      net.Conn
	out       chan *types.Block
	done      chan struct{}
	closeOnce sync.Once
}

// StartClientFabric binds addr (or the listener given with WithListener)
// and starts serving clients. A bind failure is returned; everything after
// that is handled per connection.
func StartClientFabric(ctx context.Context, addr string, opts ...Option) (*ClientFabric, error) {
	o := buildOptions(opts)
	lis, err := listen(&o, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	fctx, cancel := context.WithCancel(ctx)
	f := &ClientFabric{
		listener:   lis,
		opts:       o,
		log:        o.logger.With(zap.String("fabric", api.FabricClient)),
		metrics:    o.metrics,
		txCodec:    codec.NewTxCodec(),
		blockCodec: codec.NewBlockCodec(),
		ingress:    make(chan ClientTx, o.ingressBuffer),
		egress:     make(chan ClientBlock, o.ingressBuffer),
		conns:      make(map[ClientID]*clientConn),
		ctx:        fctx,
		cancel:     cancel,
	}

	f.wg.Add(2)
	go f.acceptLoop()
	go f.dispatchLoop()
	go f.shutdownOnCancel()

	f.log.Info("client fabric listening", zap.String("addr", lis.Addr().String()))
	return f, nil
}

// Ingress returns the channel of transactions from all clients.
func (f *ClientFabric) Ingress() <-chan ClientTx {
	return f.ingress
}

// Egress returns the channel accepting blocks for delivery.
func (f *ClientFabric) Egress() chan<- ClientBlock {
	return f.egress
}

// Addr returns the listening address.
func (f *ClientFabric) Addr() net.Addr {
	return f.listener.Addr()
}

// Clients returns the number of connected clients.
func (f *ClientFabric) Clients() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.conns)
}

// Close stops accepting, disconnects every client and waits for all
// fabric goroutines to exit. The ingress channel is closed afterwards.
func (f *ClientFabric) Close() error {
	f.cancel()
	f.closeOnce.Do(func() {
		f.wg.Wait()
		close(f.ingress)
	})
	return nil
}

func (f *ClientFabric) shutdownOnCancel() {
	<-f.ctx.Done()
	_ = f.listener.Close()

	f.mu.RLock()
	conns := make([]*clientConn, 0, len(f.conns))
	for _, cc := range f.conns {
		conns = append(conns, cc)
	}
	f.mu.RUnlock()
	for _, cc := range conns {
		f.drop(cc, "shutdown")
	}
}

func (f *ClientFabric) acceptLoop() {
	defer f.wg.Done()

	var tempDelay time.Duration
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			if f.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else if tempDelay *= 2; tempDelay > time.Second {
				tempDelay = time.Second
			}
			f.log.Warn("accept failed", zap.Error(err), zap.Duration("retry_in", tempDelay))
			select {
			case <-time.After(tempDelay):
			case <-f.ctx.Done():
				return
			}
			continue
		}
		tempDelay = 0

		cc := &clientConn{
			id:   ClientID(f.nextID.Add(1)),
			conn: conn,
			out:  make(chan *types.Block, f.opts.queueSize),
			done: make(chan struct{}),
		}

		f.mu.Lock()
		if f.ctx.Err() != nil {
			f.mu.Unlock()
			_ = conn.Close()
			return
		}
		f.conns[cc.id] = cc
		f.mu.Unlock()

		f.metrics.ConnOpened(api.FabricClient)
		f.log.Debug("client connected",
			zap.Uint64("client", uint64(cc.id)),
			zap.String("remote", conn.RemoteAddr().String()))

		f.wg.Add(2)
		go f.readLoop(cc)
		go f.writeLoop(cc)
	}
}

func (f *ClientFabric) readLoop(cc *clientConn) {
	defer f.wg.Done()

	reader := codec.NewReader(cc.conn, f.txCodec)
	for {
		tx, err := reader.Next()
		if err != nil {
			f.readFailed(cc, err)
			return
		}
		f.metrics.RecordFrameIn(api.FabricClient)
		logging.Trace(f.log, "client transaction",
			zap.Uint64("client", uint64(cc.id)),
			zap.Int("bytes", len(tx.Data)))

		select {
		case f.ingress <- ClientTx{From: cc.id, Tx: tx}:
		case <-cc.done:
			return
		case <-f.ctx.Done():
			return
		}
	}
}

func (f *ClientFabric) readFailed(cc *clientConn, err error) {
	switch {
	case errors.Is(err, io.EOF):
		f.drop(cc, "disconnected")
	case errors.Is(err, codec.ErrMalformedFrame), errors.Is(err, codec.ErrFrameTooLarge),
		errors.Is(err, io.ErrUnexpectedEOF):
		f.metrics.RecordDecodeError(api.FabricClient)
		f.log.Warn("bad frame from client",
			zap.Uint64("client", uint64(cc.id)), zap.Error(err))
		f.drop(cc, "bad frame")
	default:
		select {
		case <-cc.done:
		default:
			f.log.Debug("client read failed",
				zap.Uint64("client", uint64(cc.id)), zap.Error(err))
		}
		f.drop(cc, "read error")
	}
}

func (f *ClientFabric) writeLoop(cc *clientConn) {
	defer f.wg.Done()

	for {
		select {
		case b := <-cc.out:
			if err := f.blockCodec.Encode(cc.conn, b); err != nil {
				f.log.Debug("client write failed",
					zap.Uint64("client", uint64(cc.id)), zap.Error(err))
				f.drop(cc, "write error")
				return
			}
			f.metrics.RecordFrameOut(api.FabricClient)
		case <-cc.done:
			return
		}
	}
}

func (f *ClientFabric) dispatchLoop() {
	defer f.wg.Done()

	for {
		select {
		case msg := <-f.egress:
			f.deliver(msg)
		case <-f.ctx.Done():
			return
		}
	}
}

func (f *ClientFabric) deliver(msg ClientBlock) {
	if msg.Block == nil {
		return
	}

	if msg.To == AllClients {
		f.mu.RLock()
		targets := make([]*clientConn, 0, len(f.conns))
		for _, cc := range f.conns {
			targets = append(targets, cc)
		}
		f.mu.RUnlock()

		for _, cc := range targets {
			f.enqueue(cc, msg.Block)
		}
		return
	}

	f.mu.RLock()
	cc, ok := f.conns[msg.To]
	f.mu.RUnlock()
	if !ok {
		f.metrics.RecordDrop(api.FabricClient, "unknown_client")
		f.log.Debug("block for unknown client dropped", zap.Uint64("client", uint64(msg.To)))
		return
	}
	f.enqueue(cc, msg.Block)
}

func (f *ClientFabric) enqueue(cc *clientConn, b *types.Block) {
	select {
	case cc.out <- b:
	default:
		f.metrics.RecordDrop(api.FabricClient, "queue_full")
		f.log.Warn("client outbound queue full, disconnecting",
			zap.Uint64("client", uint64(cc.id)))
		f.drop(cc, "slow client")
	}
}

func (f *ClientFabric) drop(cc *clientConn, reason string) {
	cc.closeOnce.Do(func() {
		close(cc.done)
		_ = cc.conn.Close()

		f.mu.Lock()
		delete(f.conns, cc.id)
		f.mu.Unlock()

		f.metrics.ConnClosed(api.FabricClient)
		f.log.Debug("client dropped",
			zap.Uint64("client", uint64(cc.id)), zap.String("reason", reason))
	})
}
