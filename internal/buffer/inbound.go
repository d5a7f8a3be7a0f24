package buffer

// seqValidation tags the result of validateSeqNo.
type seqValidation int

const (
	seqNoData seqValidation = iota // pure ACK/STATE or duplicate of last consumed sequence
	seqOk
)

// validateSeqNo implements spec §4.2 step 2. It returns seqNoData when the
// packet carries no new sequence-space information (diff_m1 == 0), seqOk
// with the computed distance otherwise, or an error if the sequence number
// is too far ahead of what the reorder buffer can hold.
func (b *Buffer) validateSeqNo(seqNo uint16) (seqValidation, uint16, error) {
	diff := dist(seqNo, b.nextExpSeq)
	diffM1 := dist(seqNo, bit16(int32(b.nextExpSeq)-1))

	if diffM1 == 0 {
		return seqNoData, 0, nil
	}
	if diff >= uint16(b.reorderMax) {
		return 0, 0, wrapFarInFuture(seqNo, b.nextExpSeq, diff)
	}
	return seqOk, diff, nil
}

// ingestOutcome tags the result of the receive-buffer update rules.
type ingestOutcome int

const (
	ingestOk ingestOutcome = iota
	ingestDuplicate
	ingestNoop
)

// ingestPayload applies spec §4.2's receive-buffer update rules for an
// inbound (seqNo, payload) pair. FIN sequencing itself is handled
// separately by checkFinReady, since a FIN can become deliverable purely
// as a side effect of later in-order DATA arriving (spec scenario 4).
func (b *Buffer) ingestPayload(seqNo uint16, payload []byte) ingestOutcome {
	if len(payload) == 0 {
		return ingestNoop
	}

	if seqNo == b.nextExpSeq {
		if b.state == StateConnected {
			b.enqueueRecv(payload)
		}
		b.nextExpSeq = bit16(int32(b.nextExpSeq) + 1)
		next, drained := b.reorderBuf.drain(b.nextExpSeq)
		b.nextExpSeq = next
		if b.state == StateConnected {
			for _, p := range drained {
				b.enqueueRecv(p)
			}
		}
		return ingestOk
	}

	if b.reorderBuf.has(seqNo) {
		return ingestDuplicate
	}
	b.reorderBuf.insert(seqNo, payload)
	return ingestOk
}

// checkFinReady surfaces a previously-received FIN once next_expected_seq
// catches up to its sequence number, whether that happens because the FIN
// itself just arrived in order or because a later DATA packet filled the
// gap (spec §4.2 empty-payload FIN-match rule, generalized).
func (b *Buffer) checkFinReady() bool {
	if b.fin.got && !b.finSurfaced && b.nextExpSeq == b.fin.seq {
		b.nextExpSeq = bit16(int32(b.fin.seq) + 1)
		b.finSurfaced = true
		return true
	}
	return false
}

// HandlePacket is the inbound entry point (spec §4.2). state must be
// StateConnected or StateFinSent; any other state fails with
// ErrInvalidState. pktWindow is the congestion controller's opaque
// per-connection send-window handle, threaded through to
// Network.HandleWindowSize.
func (b *Buffer) HandlePacket(net Network, pkt Packet, pktWindow uint32) ([]Event, uint32, error) {
	if b.state != StateConnected && b.state != StateFinSent {
		return nil, pktWindow, wrapInvalidState(b.state, pkt.Type)
	}

	validation, _, err := b.validateSeqNo(pkt.SeqNo)
	if err != nil {
		return nil, pktWindow, err
	}

	var events []Event
	reorderChangedOrAdvanced := false
	forcedAck := false

	if pkt.Type == TypeFin {
		if !b.fin.got {
			b.fin = finState{got: true, seq: pkt.SeqNo}
		}
		forcedAck = true
	}

	if validation == seqOk || len(pkt.Payload) > 0 {
		beforeReorder := b.reorderBuf.len()
		beforeNext := b.nextExpSeq

		outcome := b.ingestPayload(pkt.SeqNo, pkt.Payload)
		if outcome == ingestDuplicate {
			events = append(events, duplicateEvent())
			forcedAck = true
		}

		if checkFinReady := b.checkFinReady(); checkFinReady {
			events = append(events, gotFin(b.fin.seq))
		}

		if b.reorderBuf.len() != beforeReorder || b.nextExpSeq != beforeNext {
			reorderChangedOrAdvanced = true
		}
	} else if b.checkFinReady() {
		events = append(events, gotFin(b.fin.seq))
		reorderChangedOrAdvanced = true
	}

	if reorderChangedOrAdvanced || forcedAck {
		events = append(events, sendAck())
	}

	ackEvents := b.updateSendBuffer(pkt.AckNo)
	events = append(events, ackEvents...)

	newPktWindow := net.HandleWindowSize(pktWindow, pkt.WndSz)

	return events, newPktWindow, nil
}
