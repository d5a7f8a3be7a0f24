package utp

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// Listen creates a uTP listener bound to address, using DefaultConfig and
// the standard logger. Use ListenConfig to inject a Config or logger.
func Listen(network, address string) (net.Listener, error) {
	return ListenConfig(network, address, DefaultConfig(), nil)
}

// ListenConfig creates a uTP listener with an explicit Config and logger
// (nil logger falls back to logrus's standard logger).
func ListenConfig(network, address string, cfg Config, log *logrus.Entry) (net.Listener, error) {
	if network != "utp" {
		return nil, fmt.Errorf("utp: unsupported network %q", network)
	}

	pconn, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, err
	}

	l := &Listener{
		pconn:    pconn,
		addr:     pconn.LocalAddr(),
		cfg:      cfg,
		log:      connLogger(log, 0),
		acceptCh: make(chan net.Conn),
		closeCh:  make(chan struct{}),
	}

	go l.acceptLoop()

	return l, nil
}

// Dial establishes a uTP connection to address, using DefaultConfig and
// the standard logger. Use DialConfig to inject a Config or logger.
func Dial(network, address string) (net.Conn, error) {
	return DialConfig(network, address, DefaultConfig(), nil)
}

// DialConfig establishes a uTP connection with an explicit Config and
// logger.
func DialConfig(network, address string, cfg Config, log *logrus.Entry) (net.Conn, error) {
	if network != "utp" {
		return nil, fmt.Errorf("utp: unsupported network %q", network)
	}

	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}

	pconn, err := net.ListenPacket("udp", "")
	if err != nil {
		return nil, err
	}

	connID := uint16(rand.Uint32())
	seqNr := uint16(rand.Uint32())

	syn := Header{
		Type:      ST_SYN,
		Version:   VERSION,
		ConnID:    connID,
		Timestamp: uint32(time.Now().UnixMicro()),
		WndSize:   cfg.RecvBufBytes,
		SeqNr:     seqNr,
	}
	if _, err := pconn.WriteTo(syn.Marshal(), raddr); err != nil {
		pconn.Close()
		return nil, err
	}

	if err := pconn.SetReadDeadline(time.Now().Add(cfg.DialTimeout)); err != nil {
		pconn.Close()
		return nil, err
	}

	raw := make([]byte, PACKET_SIZE)
	for {
		n, addr, err := pconn.ReadFrom(raw)
		if err != nil {
			pconn.Close()
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, errors.New("connection timeout")
			}
			return nil, err
		}
		if addr.String() != raddr.String() {
			continue
		}

		var reply Header
		if err := reply.Unmarshal(raw[:n]); err != nil {
			continue
		}
		if reply.Type != ST_STATE {
			continue
		}

		if err := pconn.SetReadDeadline(time.Time{}); err != nil {
			pconn.Close()
			return nil, err
		}

		conn := newConn(pconn, true, pconn.LocalAddr(), raddr, connID, reply.ConnID, cfg, log, seqNr+1, reply.SeqNr+1)
		return conn, nil
	}
}
