package buffer

// updateSendBuffer implements spec §4.4. It prunes the retransmission
// queue against ackNo and returns the resulting Events.
func (b *Buffer) updateSendBuffer(ackNo uint16) []Event {
	windowSize := uint16(b.retransQ.len())
	lastSent := bit16(int32(b.seqNo) - 1)
	windowStart := bit16(int32(lastSent) - int32(windowSize))

	acksAhead := dist(ackNo, windowStart)
	if acksAhead > windowSize {
		return []Event{oldAck()}
	}

	removed := b.retransQ.removeAcked(windowStart, acksAhead)
	if len(removed) == 0 {
		return nil
	}

	var events []Event
	finAcked := false
	for _, wp := range removed {
		if wp.Packet.Type == TypeFin {
			finAcked = true
		}
	}
	if finAcked {
		events = append(events, finSentAcked())
	}

	events = append(events, acked(removed))

	if b.retransQ.len() > 0 {
		events = append(events, dataInflight())
	} else {
		events = append(events, allAcked())
	}

	return events
}
