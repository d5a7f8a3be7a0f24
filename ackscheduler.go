package utp

import (
	"sync"
	"time"
)

// ackScheduler implements the delayed-ACK byte/time thresholds. The buffer
// engine only ever emits a send_ack intent; it never times anything
// itself (it stays a pure state machine). This type decides, on behalf of
// the owning Conn, whether that intent should flush immediately or be
// held briefly to coalesce with more incoming data.
type ackScheduler struct {
	byteThreshold uint32
	holdTime      time.Duration
	onExpire      func()

	mu           sync.Mutex
	bytesPending uint32
	timer        *time.Timer
}

func newAckScheduler(byteThreshold uint32, holdTime time.Duration, onExpire func()) *ackScheduler {
	return &ackScheduler{
		byteThreshold: byteThreshold,
		holdTime:      holdTime,
		onExpire:      onExpire,
	}
}

// shouldFlushNow records payloadLen newly-delivered bytes and reports
// whether the caller — which must already hold the connection lock —
// should send the ACK immediately. If it returns false, a timer is armed
// (or left armed) that will call onExpire, which acquires the connection
// lock itself, after holdTime.
func (s *ackScheduler) shouldFlushNow(payloadLen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payloadLen == 0 {
		// No payload, e.g. a FIN whose forced ack is being requested.
		// There is nothing to coalesce, so flush right away.
		s.resetLocked()
		return true
	}

	s.bytesPending += uint32(payloadLen)
	if s.bytesPending >= s.byteThreshold {
		s.resetLocked()
		return true
	}

	if s.timer == nil {
		s.timer = time.AfterFunc(s.holdTime, s.expire)
	}
	return false
}

func (s *ackScheduler) expire() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	s.onExpire()
}

func (s *ackScheduler) resetLocked() {
	s.bytesPending = 0
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *ackScheduler) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}
