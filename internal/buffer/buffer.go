package buffer

// Buffer is the per-connection engine state described in spec §3. It is
// mutated only by the owning connection's goroutine. Its methods are the
// entry points in §4; the collaborators (Network, ProcessQueue) are passed
// to each call rather than stored in the Buffer.
type Buffer struct {
	recvBuf     [][]byte
	recvBufLen  int
	reorderBuf  *reorderBuffer
	retransQ    *retransmissionQueue
	nextExpSeq  uint16
	seqNo       uint16
	fin         finState
	finSurfaced bool
	state       ConnState
	optRecvSize uint32
	pktSize     uint32
	reorderMax  int
}

// NewBuffer creates a Buffer for a freshly-established connection.
// initialSeqNo is the locally chosen starting sequence number;
// nextExpectedSeqNo is learned from the peer's SYN.
func NewBuffer(cfg Config, initialSeqNo, nextExpectedSeqNo uint16) *Buffer {
	return &Buffer{
		reorderBuf:  newReorderBuffer(cfg.ReorderBufMax),
		retransQ:    newRetransmissionQueue(),
		nextExpSeq:  nextExpectedSeqNo,
		seqNo:       initialSeqNo,
		state:       StateConnected,
		optRecvSize: cfg.RecvBufBytes,
		pktSize:     cfg.PktSize,
		reorderMax:  cfg.ReorderBufMax,
	}
}

// State returns the connection state as observed by the buffer.
func (b *Buffer) State() ConnState { return b.state }

// SetState transitions the buffer's connection state. The connection task
// drives transitions (spec §4.9); the buffer itself never decides to
// transition on its own except FinSent -> Closed inference exposed via
// ReadyToClose.
func (b *Buffer) SetState(s ConnState) { b.state = s }

// SeqNo returns the next outbound sequence number.
func (b *Buffer) SeqNo() uint16 { return b.seqNo }

// NextExpectedSeqNo returns the next inbound sequence number wanted.
func (b *Buffer) NextExpectedSeqNo() uint16 { return b.nextExpSeq }

// GotFin reports whether the peer's FIN has been observed, and at which
// sequence number. A true result does not by itself mean the stream has
// ended for the reader: data preceding the FIN may still be sitting in the
// reorder buffer. Use FinSurfaced for that.
func (b *Buffer) GotFin() (bool, uint16) { return b.fin.got, b.fin.seq }

// FinSurfaced reports whether the peer's FIN has become deliverable —
// next_expected_seq has caught up to it, so every payload byte preceding
// it has already been ingested — as opposed to merely having arrived out
// of order (spec scenario 4).
func (b *Buffer) FinSurfaced() bool { return b.finSurfaced }

// ReorderLen returns the number of entries currently buffered out of
// order.
func (b *Buffer) ReorderLen() int { return b.reorderBuf.len() }

// RetransmissionLen returns the number of packets awaiting ACK.
func (b *Buffer) RetransmissionLen() int { return b.retransQ.len() }

// InflightBytes sums payload bytes of packets awaiting ACK.
func (b *Buffer) InflightBytes() int { return b.retransQ.inflightBytes() }

// ReadyToClose reports whether FinSent -> Closed can fire: the local FIN
// has been ACKed, the peer's FIN has been observed, and no ACKs remain
// outstanding (spec §4.9).
func (b *Buffer) ReadyToClose(finSentAcked bool) bool {
	got, _ := b.GotFin()
	return b.state == StateFinSent && finSentAcked && got && b.retransQ.len() == 0
}
