package buffer

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel error kinds surfaced by the core (spec §7). Duplicates and old
// ACKs are reported as Events (EventDuplicate, EventOldAck) and never
// returned as errors. A failed Network.SendPacket is not reported as an
// Event: the sending entry points (SendData, SendFin, SendAck, FillWindow,
// RetransmitOldest) return it as a *SendFailedError, which matches
// ErrSendFailed. ErrInvalidState and ErrFarInFuture abort HandlePacket and
// are returned wrapped with context via github.com/pkg/errors.
var (
	ErrInvalidState = errors.New("buffer: invalid state for packet")
	ErrFarInFuture  = errors.New("buffer: sequence number far in future")
	ErrDuplicate    = errors.New("buffer: duplicate sequence number")
	ErrOldAck       = errors.New("buffer: ack precedes send window")
	ErrSendFailed   = errors.New("buffer: network send failed")
	ErrConnReset    = errors.New("buffer: peer sent reset")
)

func wrapInvalidState(state ConnState, pktType uint8) error {
	return pkgerrors.Wrapf(ErrInvalidState, "state=%d packet_type=%d", state, pktType)
}

func wrapFarInFuture(seqNo, nextExpected uint16, diff uint16) error {
	return pkgerrors.Wrapf(ErrFarInFuture, "seq_no=%d next_expected=%d diff=%d", seqNo, nextExpected, diff)
}

// SendFailedError carries the underlying I/O error from a failed
// Network.SendPacket call while still satisfying errors.Is(err,
// ErrSendFailed).
type SendFailedError struct {
	Seq uint16
	Err error
}

func (e *SendFailedError) Error() string {
	return fmt.Sprintf("buffer: send failed for seq %d: %v", e.Seq, e.Err)
}

func (e *SendFailedError) Unwrap() error { return ErrSendFailed }

func wrapSendFailed(seq uint16, err error) error {
	return pkgerrors.WithStack(&SendFailedError{Seq: seq, Err: err})
}
