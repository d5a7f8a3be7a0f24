package utp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/wireloop/go-utp/internal/buffer"
)

var (
	// ErrConnClosed is returned by Write once the local side has sent FIN
	// or the connection has otherwise torn down.
	ErrConnClosed = errors.New("utp: connection closed")
)

// Conn implements net.Conn over a uTP stream. Unlike the source's ad hoc
// sendBuffer/receiveBuffer bookkeeping, Conn owns no sequencing state
// itself: it delegates every sequencing decision to a *buffer.Buffer and
// only ever touches it from within run's goroutine (or a caller holding
// mu, which run also holds while active), matching the single-goroutine-
// per-connection model.
type Conn struct {
	pconn      net.PacketConn
	ownsPConn  bool
	localAddr  net.Addr
	remoteAddr net.Addr

	connID uint16 // id we expect stamped on inbound packets
	sendID uint16 // id we stamp on outbound packets

	cfg Config
	log *logrus.Entry

	mu             sync.Mutex
	buf            *buffer.Buffer
	stats          *buffer.Counters
	pktWindow      uint32
	lastPeerWindow uint32
	srttMicro      int64

	outQueue writeQueue

	readCond  *sync.Cond
	writeCond *sync.Cond

	readDeadline  time.Time
	writeDeadline time.Time

	ackSched *ackScheduler

	inbox     chan buffer.Packet
	closeCh   chan struct{}
	closeOnce sync.Once
	lastErr   error // set once under mu before closeCh is closed; first failure wins

	onClose func()
}

// newConn constructs a Conn around an already-completed handshake:
// initialSeqNo is the sequence number this side will use for its first
// DATA/FIN packet, nextExpectedSeqNo is the peer's first data sequence
// number (learned from its SYN or SYN-ACK).
func newConn(pconn net.PacketConn, ownsPConn bool, local, remote net.Addr, connID, sendID uint16, cfg Config, log *logrus.Entry, initialSeqNo, nextExpectedSeqNo uint16) *Conn {
	c := &Conn{
		pconn:      pconn,
		ownsPConn:  ownsPConn,
		localAddr:  local,
		remoteAddr: remote,
		connID:     connID,
		sendID:     sendID,
		cfg:        cfg,
		log:        connLogger(log, connID),
		buf:        buffer.NewBuffer(cfg.bufferConfig(), initialSeqNo, nextExpectedSeqNo),
		pktWindow:  cfg.MaxWindowSend,
		inbox:      make(chan buffer.Packet, 64),
		closeCh:    make(chan struct{}),
	}
	c.stats = buffer.NewCounters(c.buf)
	c.readCond = sync.NewCond(&c.mu)
	c.writeCond = sync.NewCond(&c.mu)
	c.ackSched = newAckScheduler(cfg.DelayedAckByteThreshold, time.Duration(cfg.DelayedAckTimeMs)*time.Millisecond, c.flushAck)

	if ownsPConn {
		go c.receiveLoop()
	}
	go c.run()
	return c
}

// Deliver hands an already-decoded inbound packet to this connection's
// event loop. The listener's demux path and a Dial-owned receiveLoop are
// the only callers.
func (c *Conn) Deliver(pkt buffer.Packet) {
	select {
	case c.inbox <- pkt:
	case <-c.closeCh:
	}
}

// run is the single goroutine that serializes every mutation of buf: it
// drains inbound packets and drives the retransmit/zero-window-probe
// timers. Locally originated writes are applied synchronously by Write
// itself (it already holds mu), so run never needs a write-side kick.
func (c *Conn) run() {
	retransmitTick := time.NewTicker(c.cfg.RetransmitTick)
	defer retransmitTick.Stop()
	probeTick := time.NewTicker(c.cfg.RetransmitTick * 4)
	defer probeTick.Stop()

	for {
		select {
		case pkt := <-c.inbox:
			c.handleInbound(pkt)
		case <-retransmitTick.C:
			c.mu.Lock()
			c.checkRetransmitLocked()
			c.mu.Unlock()
		case <-probeTick.C:
			c.mu.Lock()
			c.probeZeroWindowLocked()
			c.mu.Unlock()
		case <-c.closeCh:
			return
		}
	}
}

func (c *Conn) handleInbound(pkt buffer.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pkt.Type == buffer.TypeReset {
		c.log.Warn("received reset from peer")
		c.failLocked(buffer.ErrConnReset)
		return
	}

	events, newWindow, err := c.buf.HandlePacket(c, pkt, c.pktWindow)
	if err != nil {
		c.log.WithError(err).Debug("dropping packet")
		return
	}
	c.pktWindow = newWindow
	c.stats.Observe(events, false)

	wake := false
	for _, ev := range events {
		switch ev.Kind {
		case buffer.EventSendAck:
			if c.ackSched.shouldFlushNow(len(pkt.Payload)) {
				if err := c.buf.SendAck(c, c.buf.AdvertisedWindow()); err != nil {
					c.log.WithError(err).Debug("send ack failed")
				}
			}
		case buffer.EventAcked:
			c.recordRTT(buffer.ExtractRTT(ev.Acked))
			wake = true
		case buffer.EventGotFin:
			wake = true
		}
	}

	if len(pkt.Payload) > 0 || wake {
		c.readCond.Broadcast()
	}

	if c.buf.State() == buffer.StateFinSent && c.buf.AdvanceToClosed(hasFinSentAcked(events)) {
		c.log.Debug("connection closed after fin exchange")
		c.finalizeLocked()
	}

	c.fillWindowLocked()
	c.writeCond.Broadcast()
}

func hasFinSentAcked(events []buffer.Event) bool {
	for _, ev := range events {
		if ev.Kind == buffer.EventFinSentAcked {
			return true
		}
	}
	return false
}

func (c *Conn) fillWindowLocked() {
	if c.outQueue.Len() == 0 || c.buf.State() != buffer.StateConnected {
		return
	}
	events, err := c.buf.FillWindow(c, c, c.buf.AdvertisedWindow())
	if err != nil {
		c.log.WithError(err).Debug("fill window failed")
		return
	}
	c.stats.Observe(events, false)
}

func (c *Conn) checkRetransmitLocked() {
	if c.buf.RetransmissionLen() == 0 {
		return
	}
	seq, resent, transmissions, err := c.buf.RetransmitOldest(c, c.buf.AdvertisedWindow())
	if err != nil {
		c.log.WithError(err).WithField("seq", seq).Warn("retransmit failed")
		return
	}
	if !resent {
		return
	}
	c.stats.Observe(nil, true)
	c.log.WithField("seq", seq).WithField("transmissions", transmissions).Debug("retransmitted packet")

	if c.cfg.MaxRetries > 0 && transmissions > uint32(c.cfg.MaxRetries) {
		c.log.WithField("seq", seq).Warn("giving up after too many retransmissions")
		c.failLocked(errors.New("utp: max retries exceeded for packet"))
	}
}

// probeZeroWindowLocked resends a bare ACK when the peer's last advertised
// window was zero and we still have data queued, so the peer's own next
// ACK gives us a fresh chance to see the window reopen (spec's
// ViewZeroWindowReopen only detects the reopen; something has to keep
// asking).
func (c *Conn) probeZeroWindowLocked() {
	if c.lastPeerWindow != 0 || c.outQueue.Len() == 0 {
		return
	}
	if err := c.buf.SendAck(c, c.buf.AdvertisedWindow()); err != nil {
		c.log.WithError(err).Debug("zero-window probe failed")
	}
}

func (c *Conn) recordRTT(samples []int64) {
	now := time.Now().UnixMicro()
	for _, sendTime := range samples {
		sample := now - sendTime
		if sample <= 0 {
			continue
		}
		if c.srttMicro == 0 {
			c.srttMicro = sample
		} else {
			c.srttMicro = (c.srttMicro*7 + sample) / 8
		}
	}
}

func (c *Conn) flushAck() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closeCh:
		return
	default:
	}
	if err := c.buf.SendAck(c, c.buf.AdvertisedWindow()); err != nil {
		c.log.WithError(err).Debug("delayed ack flush failed")
	}
}

// failLocked records a hard connection failure. The caller must hold mu.
// lastErr is set before closeCh is closed so any goroutine that wakes on
// closeCh sees a fully-formed error rather than racing to read it.
func (c *Conn) failLocked(err error) {
	if c.lastErr == nil {
		c.lastErr = err
	}
	c.buf.SetState(buffer.StateClosed)
	c.finalizeLocked()
}

func (c *Conn) finalizeLocked() {
	c.closeOnce.Do(func() { close(c.closeCh) })
	c.readCond.Broadcast()
	c.writeCond.Broadcast()
}

// Read implements net.Conn.
func (c *Conn) Read(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		beforeWindow := c.buf.AdvertisedWindow()
		outcome, chunk := c.buf.DrainingReceive(len(b))
		if outcome != buffer.ReadEmpty {
			// The window can only grow here, as bytes leave recv_buf on the
			// way to the caller — HandlePacket only ever shrinks it by
			// ingesting more payload, so this is the one place a zero
			// window actually reopens (spec scenario 5).
			if buffer.ViewZeroWindowReopen(beforeWindow, c.buf.AdvertisedWindow()) {
				if err := c.buf.SendAck(c, c.buf.AdvertisedWindow()); err != nil {
					c.log.WithError(err).Debug("zero-window-reopen ack failed")
				}
			}
			return copy(b, chunk), nil
		}

		if c.lastErr != nil {
			return 0, c.lastErr
		}

		if c.buf.FinSurfaced() {
			return 0, io.EOF
		}

		select {
		case <-c.closeCh:
			return 0, io.EOF
		default:
		}

		if !c.readDeadline.IsZero() && !time.Now().Before(c.readDeadline) {
			return 0, &timeoutError{op: "read"}
		}

		c.readCond.Wait()
	}
}

// Write implements net.Conn.
func (c *Conn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastErr != nil {
		return 0, c.lastErr
	}
	if c.buf.State() != buffer.StateConnected {
		return 0, ErrConnClosed
	}
	select {
	case <-c.closeCh:
		return 0, ErrConnClosed
	default:
	}
	if !c.writeDeadline.IsZero() && !time.Now().Before(c.writeDeadline) {
		return 0, &timeoutError{op: "write"}
	}

	c.outQueue.Write(b)
	c.fillWindowLocked()

	for c.outQueue.Len() > 0 && c.buf.State() == buffer.StateConnected {
		select {
		case <-c.closeCh:
			return len(b), nil
		default:
		}
		if !c.writeDeadline.IsZero() && !time.Now().Before(c.writeDeadline) {
			return len(b), &timeoutError{op: "write"}
		}
		c.writeCond.Wait()
	}

	return len(b), nil
}

// Close implements net.Conn. It sends a FIN if the connection is still
// active, then tears down local state immediately; it does not wait for
// the FIN to be acknowledged.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.buf.State() == buffer.StateConnected {
		if _, err := c.buf.SendFin(c, c.buf.AdvertisedWindow()); err != nil {
			c.log.WithError(err).Warn("send fin failed")
		}
	}
	c.finalizeLocked()
	c.mu.Unlock()

	c.ackSched.cancel()
	if c.onClose != nil {
		c.onClose()
	}
	if c.ownsPConn {
		return c.pconn.Close()
	}
	return nil
}

// LocalAddr implements net.Conn.
func (c *Conn) LocalAddr() net.Addr { return c.localAddr }

// RemoteAddr implements net.Conn.
func (c *Conn) RemoteAddr() net.Addr { return c.remoteAddr }

// SetDeadline implements net.Conn.
func (c *Conn) SetDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDeadline = t
	c.writeDeadline = t
	c.armDeadlineLocked(t)
	return nil
}

// SetReadDeadline implements net.Conn.
func (c *Conn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDeadline = t
	c.armDeadlineLocked(t)
	return nil
}

// SetWriteDeadline implements net.Conn.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeDeadline = t
	c.armDeadlineLocked(t)
	return nil
}

func (c *Conn) armDeadlineLocked(t time.Time) {
	if t.IsZero() {
		return
	}
	d := time.Until(t)
	if d <= 0 {
		c.readCond.Broadcast()
		c.writeCond.Broadcast()
		return
	}
	time.AfterFunc(d, func() {
		c.readCond.Broadcast()
		c.writeCond.Broadcast()
	})
}

// receiveLoop pumps datagrams off a privately-owned net.PacketConn (Dial
// side only; Accept-side connections share the listener's socket and are
// fed through Deliver by the listener's demux loop).
func (c *Conn) receiveLoop() {
	raw := make([]byte, PACKET_SIZE)
	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		n, addr, err := c.pconn.ReadFrom(raw)
		if err != nil {
			c.mu.Lock()
			c.failLocked(err)
			c.mu.Unlock()
			return
		}
		if addr.String() != c.remoteAddr.String() {
			continue
		}

		_, pkt, err := wireDecode(raw[:n])
		if err != nil {
			c.log.WithError(err).Debug("dropping malformed packet")
			continue
		}
		c.Deliver(pkt)
	}
}

// SendPacket implements buffer.Network.
func (c *Conn) SendPacket(window uint32, pkt buffer.Packet) (int64, error) {
	now := time.Now().UnixMicro()
	data := wireEncode(c.sendID, uint32(now), 0, pkt)
	if _, err := c.pconn.WriteTo(data, c.remoteAddr); err != nil {
		return now, err
	}
	return now, nil
}

// MaxWindowSend implements buffer.Network. It returns the last window size
// negotiated via HandleWindowSize, capped at cfg.MaxWindowSend — the
// congestion ceiling this port carries in place of real LEDBAT/congestion
// computation, which is out of scope (spec §1 Non-goals).
func (c *Conn) MaxWindowSend() uint32 { return c.pktWindow }

// HandleWindowSize implements buffer.Network.
func (c *Conn) HandleWindowSize(pktWindow, peerWinSz uint32) uint32 {
	c.lastPeerWindow = peerWinSz
	if peerWinSz < c.cfg.MaxWindowSend {
		return peerWinSz
	}
	return c.cfg.MaxWindowSend
}

// Fill implements buffer.ProcessQueue by draining the local write queue.
func (c *Conn) Fill(n int) buffer.FillResult {
	return c.outQueue.Fill(n)
}

// Metrics returns a prometheus.Collector exposing this connection's
// buffer engine counters, labeled by connection id. Callers register it
// with their own prometheus.Registry; nothing in this package registers
// it automatically, since a Conn may outlive any particular registry.
func (c *Conn) Metrics() prometheus.Collector {
	return buffer.NewStatsCollector(fmt.Sprintf("%d", c.connID), c.stats)
}
