package network

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraChain-Replica/api"
	"github.com/VanDung-dev/HieraChain-Replica/codec"
	"github.com/VanDung-dev/HieraChain-Replica/logging"
	"github.com/VanDung-dev/HieraChain-Replica/types"
)

// Common errors for the replica mesh
var (
	ErrSelfMissing   = errors.New("own replica id missing from network map")
	ErrBadHandshake  = errors.New("invalid mesh handshake")
	ErrUnknownPeer   = errors.New("unknown peer replica")
	ErrHelloTooLarge = errors.New("hello frame too large")
)

const maxHelloSize = 64

// PeerMsg is a protocol message received from a peer.
type PeerMsg struct {
	From types.Replica
	Msg  *types.ProtocolMsg
}

// ReplicaEnvelope addresses a protocol message to one peer, or to every
// peer when All is set.
type ReplicaEnvelope struct {
	To  types.Replica
	All bool
	Msg *types.ProtocolMsg
}

// ToReplica addresses msg to a single peer.
func ToReplica(id types.Replica, msg *types.ProtocolMsg) ReplicaEnvelope {
	return ReplicaEnvelope{To: id, Msg: msg}
}

// ToAll addresses msg to every peer.
func ToAll(msg *types.ProtocolMsg) ReplicaEnvelope {
	return ReplicaEnvelope{All: true, Msg: msg}
}

// ConnInfo describes the live connection to one peer.
type ConnInfo struct {
	Local     string
	Remote    string
	Initiator types.Replica
}

type hello struct {
	ID types.Replica `cbor:"id"`
}

// Mesh keeps exactly one duplex connection to every other replica.
type Mesh struct {
	self       types.Replica
	listener   net.Listener
	opts       options
	log        *zap.Logger
	metrics    *api.Metrics
	protoCodec *codec.Codec[types.ProtocolMsg]
	helloCodec *codec.Codec[hello]

	peers   map[types.Replica]*peer
	ingress chan PeerMsg
	egress  chan ReplicaEnvelope

	// every open socket, including ones still in handshake
	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type peer struct {
	id   types.Replica
	addr string
	out  chan *types.ProtocolMsg

	mu        sync.Mutex
	conn      net.Conn
	initiator types.Replica
	changed   chan struct{}
}

// current returns the active connection (possibly nil) and a channel
// closed on the next change.
func (p *peer) current() (net.Conn, chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn, p.changed
}

func (p *peer) owns(c net.Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn == c
}

func (p *peer) notifyLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}

// StartMesh listens at netMap[self] (or the WithListener listener) and
// starts dialling every other replica in netMap.
func StartMesh(ctx context.Context, self types.Replica, netMap map[types.Replica]string, opts ...Option) (*Mesh, error) {
	addr, ok := netMap[self]
	if !ok {
		return nil, fmt.Errorf("%w: replica %d", ErrSelfMissing, self)
	}

	o := buildOptions(opts)
	lis, err := listen(&o, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mctx, cancel := context.WithCancel(ctx)
	m := &Mesh{
		self:       self,
		listener:   lis,
		opts:       o,
		log:        o.logger.With(zap.String("fabric", api.FabricReplica), zap.Uint16("self", uint16(self))),
		metrics:    o.metrics,
		protoCodec: codec.NewProtocolCodec(),
		helloCodec: codec.New[hello](),
		peers:      make(map[types.Replica]*peer, len(netMap)),
		ingress:    make(chan PeerMsg, o.ingressBuffer),
		egress:     make(chan ReplicaEnvelope, o.ingressBuffer),
		conns:      make(map[net.Conn]struct{}),
		ctx:        mctx,
		cancel:     cancel,
	}
	for id, a := range netMap {
		if id == self {
			continue
		}
		m.peers[id] = &peer{
			id:      id,
			addr:    a,
			out:     make(chan *types.ProtocolMsg, o.queueSize),
			changed: make(chan struct{}),
		}
	}

	m.wg.Add(2)
	go m.acceptLoop()
	go m.dispatchLoop()
	for _, p := range m.peers {
		m.wg.Add(2)
		go m.dialLoop(p)
		go m.writeLoop(p)
	}
	go m.shutdownOnCancel()

	m.log.Info("replica mesh listening",
		zap.String("addr", lis.Addr().String()), zap.Int("peers", len(m.peers)))
	return m, nil
}

// Ingress returns the channel of messages from all peers.
func (m *Mesh) Ingress() <-chan PeerMsg {
	return m.ingress
}

// Egress returns the channel accepting outbound envelopes.
func (m *Mesh) Egress() chan<- ReplicaEnvelope {
	return m.egress
}

// Addr returns the listening address.
func (m *Mesh) Addr() net.Addr {
	return m.listener.Addr()
}

// PeerCount returns the number of peers with a live connection.
func (m *Mesh) PeerCount() int {
	n := 0
	for _, p := range m.peers {
		if c, _ := p.current(); c != nil {
			n++
		}
	}
	return n
}

// ActivePeers maps every connected peer to its remote address.
func (m *Mesh) ActivePeers() map[types.Replica]string {
	out := make(map[types.Replica]string)
	for id, info := range m.Connections() {
		out[id] = info.Remote
	}
	return out
}

// Connections describes the live connection to every connected peer.
func (m *Mesh) Connections() map[types.Replica]ConnInfo {
	out := make(map[types.Replica]ConnInfo)
	for id, p := range m.peers {
		p.mu.Lock()
		if p.conn != nil {
			out[id] = ConnInfo{
				Local:     p.conn.LocalAddr().String(),
				Remote:    p.conn.RemoteAddr().String(),
				Initiator: p.initiator,
			}
		}
		p.mu.Unlock()
	}
	return out
}

// Close tears the mesh down and waits for its goroutines. The ingress
// channel is closed afterwards.
func (m *Mesh) Close() error {
	m.cancel()
	m.closeOnce.Do(func() {
		m.wg.Wait()
		close(m.ingress)
	})
	return nil
}

func (m *Mesh) shutdownOnCancel() {
	<-m.ctx.Done()
	_ = m.listener.Close()

	m.connMu.Lock()
	for c := range m.conns {
		_ = c.Close()
	}
	m.connMu.Unlock()
}

func (m *Mesh) track(c net.Conn) bool {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	if m.ctx.Err() != nil {
		_ = c.Close()
		return false
	}
	m.conns[c] = struct{}{}
	return true
}

func (m *Mesh) closeConn(c net.Conn) {
	m.connMu.Lock()
	delete(m.conns, c)
	m.connMu.Unlock()
	_ = c.Close()
}

func (m *Mesh) acceptLoop() {
	defer m.wg.Done()

	for {
		conn, err := m.listener.Accept()
		if err != nil {
			if m.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			m.log.Warn("accept failed", zap.Error(err))
			select {
			case <-time.After(m.opts.initialInterval):
			case <-m.ctx.Done():
				return
			}
			continue
		}
		if !m.track(conn) {
			return
		}

		m.wg.Add(1)
		go m.handleInbound(conn)
	}
}

func (m *Mesh) handleInbound(conn net.Conn) {
	defer m.wg.Done()

	_ = conn.SetDeadline(time.Now().Add(m.opts.dialTimeout))
	h, err := m.readHello(conn)
	if err == nil {
		p, ok := m.peers[h.ID]
		if !ok {
			err = fmt.Errorf("%w: replica %d", ErrUnknownPeer, h.ID)
		} else {
			err = m.writeHello(conn)
			if err == nil {
				_ = conn.SetDeadline(time.Time{})
				m.install(p, conn, p.id)
				return
			}
		}
	}

	m.log.Warn("inbound handshake failed",
		zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
	m.closeConn(conn)
}

func (m *Mesh) dialLoop(p *peer) {
	defer m.wg.Done()

	bo := newBackoff(m.opts.initialInterval, m.opts.maxInterval)
	log := m.log.With(zap.Uint16("peer", uint16(p.id)))

	for {
		conn, changed := p.current()
		if conn != nil {
			select {
			case <-changed:
				continue
			case <-m.ctx.Done():
				return
			}
		}

		// The higher id holds back so the lower id's connection, which
		// both sides prefer, usually lands first.
		if m.self > p.id && !m.sleep(m.opts.initialInterval) {
			return
		}
		if c, _ := p.current(); c != nil {
			continue
		}

		m.metrics.RecordDial()
		err := m.dial(p)
		if err == nil {
			bo.Reset()
			continue
		}
		if m.ctx.Err() != nil {
			return
		}

		wait := bo.NextBackOff()
		log.Debug("dial failed", zap.String("addr", p.addr), zap.Error(err), zap.Duration("retry_in", wait))
		if !m.sleep(wait) {
			return
		}
	}
}

func (m *Mesh) dial(p *peer) error {
	d := net.Dialer{Timeout: m.opts.dialTimeout}
	conn, err := d.DialContext(m.ctx, "tcp", p.addr)
	if err != nil {
		return err
	}
	if !m.track(conn) {
		return m.ctx.Err()
	}

	_ = conn.SetDeadline(time.Now().Add(m.opts.dialTimeout))
	if err := m.writeHello(conn); err != nil {
		m.closeConn(conn)
		return err
	}
	h, err := m.readHello(conn)
	if err != nil {
		m.closeConn(conn)
		return err
	}
	if h.ID != p.id {
		m.closeConn(conn)
		return fmt.Errorf("%w: dialled replica %d, got %d", ErrBadHandshake, p.id, h.ID)
	}
	_ = conn.SetDeadline(time.Time{})

	m.install(p, conn, m.self)
	return nil
}

// install makes conn the active connection to p unless p already holds the
// connection initiated by the lower id of the pair and conn is not that
// connection. Both ends apply the same rule, so they settle on the same
// socket. The losing socket is retired rather than closed.
func (m *Mesh) install(p *peer, conn net.Conn, initiator types.Replica) {
	preferred := min(m.self, p.id)

	p.mu.Lock()
	old := p.conn
	if old != nil && p.initiator == preferred && initiator != preferred {
		p.mu.Unlock()
		m.log.Debug("duplicate connection retired",
			zap.Uint16("peer", uint16(p.id)), zap.Uint16("initiator", uint16(initiator)))
		m.retire(conn)
		m.wg.Add(1)
		go m.readLoop(p, conn)
		return
	}
	p.conn = conn
	p.initiator = initiator
	p.notifyLocked()
	p.mu.Unlock()

	if old != nil {
		m.log.Debug("connection replaced",
			zap.Uint16("peer", uint16(p.id)), zap.Uint16("initiator", uint16(initiator)))
		// old's readLoop keeps draining it until EOF.
		m.retire(old)
	} else {
		m.metrics.ConnOpened(api.FabricReplica)
		m.log.Info("peer connected",
			zap.Uint16("peer", uint16(p.id)),
			zap.String("remote", conn.RemoteAddr().String()),
			zap.Uint16("initiator", uint16(initiator)))
	}

	m.wg.Add(1)
	go m.readLoop(p, conn)
}

// retire half-closes c. The remote still receives every frame already
// written, sees EOF, and closes its end; the local readLoop delivers what
// the remote wrote before that and then releases c. The read deadline
// bounds the drain if the remote never closes.
func (m *Mesh) retire(c net.Conn) {
	hc, ok := c.(interface{ CloseWrite() error })
	if !ok {
		m.closeConn(c)
		return
	}
	if err := hc.CloseWrite(); err != nil {
		m.closeConn(c)
		return
	}
	_ = c.SetReadDeadline(time.Now().Add(m.opts.dialTimeout))
}

// release clears p's slot if it still holds conn.
func (m *Mesh) release(p *peer, conn net.Conn) {
	p.mu.Lock()
	owned := p.conn == conn
	if owned {
		p.conn = nil
		p.notifyLocked()
	}
	p.mu.Unlock()

	m.closeConn(conn)
	if owned {
		m.metrics.ConnClosed(api.FabricReplica)
		m.log.Info("peer disconnected", zap.Uint16("peer", uint16(p.id)))
	}
}

func (m *Mesh) readLoop(p *peer, conn net.Conn) {
	defer m.wg.Done()

	reader := codec.NewReader(conn, m.protoCodec)
	for {
		msg, err := reader.Next()
		if err != nil {
			if errors.Is(err, codec.ErrMalformedFrame) || errors.Is(err, codec.ErrFrameTooLarge) {
				m.metrics.RecordDecodeError(api.FabricReplica)
				m.log.Warn("bad frame from peer", zap.Uint16("peer", uint16(p.id)), zap.Error(err))
			} else if m.ctx.Err() == nil {
				m.log.Debug("peer read ended", zap.Uint16("peer", uint16(p.id)), zap.Error(err))
			}
			m.release(p, conn)
			return
		}

		m.metrics.RecordFrameIn(api.FabricReplica)
		logging.Trace(m.log, "peer message",
			zap.Uint16("peer", uint16(p.id)), zap.Stringer("kind", msg.Kind), zap.Uint64("round", msg.Round))

		select {
		case m.ingress <- PeerMsg{From: p.id, Msg: msg}:
		case <-m.ctx.Done():
			return
		}
	}
}

// writeLoop sends p's queue over whichever connection is active. A frame
// whose write fails is kept and sent first on the next connection.
func (m *Mesh) writeLoop(p *peer) {
	defer m.wg.Done()

	var pending []byte
	for {
		conn, changed := p.current()
		if conn == nil {
			select {
			case <-changed:
				continue
			case <-m.ctx.Done():
				return
			}
		}

		if pending == nil {
			select {
			case msg := <-p.out:
				frame, err := m.protoCodec.AppendFrame(nil, msg)
				if err != nil {
					m.metrics.RecordDrop(api.FabricReplica, "encode_error")
					m.log.Warn("peer message not encodable, dropped",
						zap.Uint16("peer", uint16(p.id)), zap.Stringer("kind", msg.Kind), zap.Error(err))
					continue
				}
				pending = frame
			case <-changed:
				continue
			case <-m.ctx.Done():
				return
			}
		}

		if _, err := conn.Write(pending); err != nil {
			m.log.Debug("peer write failed, frame kept for next connection",
				zap.Uint16("peer", uint16(p.id)), zap.Error(err))
			// A retired socket is closed by its readLoop once drained.
			if p.owns(conn) {
				m.release(p, conn)
			}
			continue
		}
		pending = nil
		m.metrics.RecordFrameOut(api.FabricReplica)
	}
}

func (m *Mesh) dispatchLoop() {
	defer m.wg.Done()

	for {
		select {
		case env := <-m.egress:
			m.route(env)
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Mesh) route(env ReplicaEnvelope) {
	if env.Msg == nil {
		return
	}
	if env.All {
		for _, id := range m.peerIDs() {
			m.enqueue(m.peers[id], env.Msg)
		}
		return
	}

	p, ok := m.peers[env.To]
	if !ok {
		m.metrics.RecordDrop(api.FabricReplica, "unknown_peer")
		m.log.Warn("message for unknown peer dropped", zap.Uint16("to", uint16(env.To)))
		return
	}
	m.enqueue(p, env.Msg)
}

func (m *Mesh) enqueue(p *peer, msg *types.ProtocolMsg) {
	select {
	case p.out <- msg:
	default:
		m.metrics.RecordDrop(api.FabricReplica, "queue_full")
		m.log.Warn("peer outbound queue full, message dropped",
			zap.Uint16("peer", uint16(p.id)), zap.Stringer("kind", msg.Kind))
	}
}

func (m *Mesh) peerIDs() []types.Replica {
	ids := make([]types.Replica, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *Mesh) writeHello(conn net.Conn) error {
	return m.helloCodec.Encode(conn, &hello{ID: m.self})
}

// readHello reads exactly one hello frame, leaving any following bytes on
// the socket for the protocol reader.
func (m *Mesh) readHello(conn net.Conn) (*hello, error) {
	var hdr [codec.LengthPrefixSize]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxHelloSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHelloTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}
	h, err := m.helloCodec.Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}
	if h.ID == m.self {
		return nil, fmt.Errorf("%w: peer claims own id %d", ErrBadHandshake, h.ID)
	}
	return h, nil
}

func (m *Mesh) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-m.ctx.Done():
		return false
	}
}
