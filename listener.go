package utp

import (
	"errors"
	"math/rand"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/wireloop/go-utp/internal/buffer"
)

// Listener implements net.Listener for uTP. It owns the shared
// net.PacketConn for every Accept-side Conn and demultiplexes inbound
// datagrams by remote address, handing each connection's packets to its
// Deliver method.
type Listener struct {
	pconn net.PacketConn
	addr  net.Addr
	cfg   Config
	log   *logrus.Entry

	connMap  sync.Map // remote addr string -> *Conn
	acceptCh chan net.Conn
	closeCh  chan struct{}
}

// Accept implements net.Listener.
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.acceptCh:
		return conn, nil
	case <-l.closeCh:
		return nil, errors.New("utp: listener closed")
	}
}

// Close implements net.Listener.
func (l *Listener) Close() error {
	select {
	case <-l.closeCh:
	default:
		close(l.closeCh)
	}
	return l.pconn.Close()
}

// Addr implements net.Listener.
func (l *Listener) Addr() net.Addr { return l.addr }

// acceptLoop reads every datagram arriving on the shared socket, routes
// it to the matching established Conn, or completes a new handshake on
// SYN.
func (l *Listener) acceptLoop() {
	raw := make([]byte, PACKET_SIZE)

	for {
		select {
		case <-l.closeCh:
			return
		default:
		}

		n, addr, err := l.pconn.ReadFrom(raw)
		if err != nil {
			continue
		}

		header, pkt, err := wireDecode(raw[:n])
		if err != nil {
			l.log.WithError(err).Debug("dropping malformed packet")
			continue
		}

		if v, ok := l.connMap.Load(addr.String()); ok {
			v.(*Conn).Deliver(pkt)
			continue
		}

		if pkt.Type != buffer.TypeSyn {
			// Not a handshake and no established connection: nothing to
			// route it to.
			continue
		}

		l.acceptConn(addr, header)
	}
}

func (l *Listener) acceptConn(addr net.Addr, header Header) {
	connID := uint16(rand.Uint32())
	initialSeq := uint16(rand.Uint32())
	nextExpected := header.SeqNr + 1 // uint16 wraps mod 65536, matching sequence-space arithmetic

	conn := newConn(l.pconn, false, l.addr, addr, connID, header.ConnID, l.cfg, l.log, initialSeq, nextExpected)
	conn.onClose = func() { l.connMap.Delete(addr.String()) }
	l.connMap.Store(addr.String(), conn)

	conn.mu.Lock()
	if err := conn.buf.SendAck(conn, conn.buf.AdvertisedWindow()); err != nil {
		l.log.WithError(err).Warn("syn-ack send failed")
	}
	conn.mu.Unlock()

	select {
	case l.acceptCh <- conn:
	case <-l.closeCh:
	}
}
