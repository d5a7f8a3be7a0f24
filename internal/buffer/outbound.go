package buffer

// sendPacket assigns a sequence number (for DATA/FIN) or reuses the last
// assigned one unchanged (for STATE), transmits via net, and — for
// DATA/FIN — appends the resulting WrappedPacket to the retransmission
// queue, per spec §4.3.
func (b *Buffer) sendPacket(net Network, advertisedWindow uint32, pktType uint8, payload []byte) (Packet, error) {
	ackNo := bit16(int32(b.nextExpSeq) - 1)

	if pktType == TypeState {
		pkt := Packet{
			Type:  TypeState,
			SeqNo: bit16(int32(b.seqNo) - 1),
			AckNo: ackNo,
			WndSz: advertisedWindow,
		}
		_, err := net.SendPacket(advertisedWindow, pkt)
		if err != nil {
			return pkt, wrapSendFailed(pkt.SeqNo, err)
		}
		return pkt, nil
	}

	pkt := Packet{
		Type:    pktType,
		SeqNo:   b.seqNo,
		AckNo:   ackNo,
		WndSz:   advertisedWindow,
		Payload: payload,
	}

	sendTime, err := net.SendPacket(advertisedWindow, pkt)
	if err != nil {
		return pkt, wrapSendFailed(pkt.SeqNo, err)
	}

	b.retransQ.pushTail(&WrappedPacket{
		Packet:        pkt,
		Transmissions: 1,
		SendTime:      sendTime,
	})
	b.seqNo = bit16(int32(b.seqNo) + 1)

	return pkt, nil
}

// SendData sends a DATA packet carrying payload.
func (b *Buffer) SendData(net Network, advertisedWindow uint32, payload []byte) (Packet, error) {
	return b.sendPacket(net, advertisedWindow, TypeData, payload)
}

// SendFin sends a FIN packet and transitions Connected -> FinSent.
func (b *Buffer) SendFin(net Network, advertisedWindow uint32) (Packet, error) {
	pkt, err := b.sendPacket(net, advertisedWindow, TypeFin, nil)
	if err == nil {
		b.state = StateFinSent
	}
	return pkt, err
}

// SendAck sends a pure STATE (ACK) packet, consuming no sequence number.
func (b *Buffer) SendAck(net Network, advertisedWindow uint32) error {
	_, err := b.sendPacket(net, advertisedWindow, TypeState, nil)
	return err
}

// FillWindow implements spec §4.3's window-filling algorithm: pull payload
// from pq in pkt_size-capped chunks up to the free send window, then
// transmit each chunk in order via sendPacket.
func (b *Buffer) FillWindow(net Network, pq ProcessQueue, advertisedWindow uint32) ([]Event, error) {
	maxWindow := net.MaxWindowSend()
	inflight := b.retransQ.inflightBytes()

	var free int
	if b.retransQ.len() == 0 {
		free = int(maxWindow)
	} else {
		free = int(maxWindow) - inflight
		if free < 0 {
			free = 0
		}
	}

	var chunks [][]byte
	filled := 0
	maxedOut := false

fillLoop:
	for filled < free {
		toFill := int(b.pktSize)
		if remaining := free - filled; toFill > remaining {
			toFill = remaining
		}
		if toFill <= 0 {
			break
		}

		result := pq.Fill(toFill)
		switch result.Outcome {
		case FillFilled:
			chunks = append(chunks, result.Bin)
			filled += len(result.Bin)
			if filled >= free {
				maxedOut = true
			}
		case FillPartial:
			chunks = append(chunks, result.Bin)
			filled += len(result.Bin)
			break fillLoop
		case FillZero:
			break fillLoop
		}
	}

	var events []Event
	if len(chunks) == 0 {
		events = append(events, noPiggyback())
	} else {
		for _, chunk := range chunks {
			if _, err := b.SendData(net, advertisedWindow, chunk); err != nil {
				return events, err
			}
		}
		events = append(events, sentData())
	}

	if maxedOut {
		events = append(events, windowMaxedOut())
	}

	return events, nil
}
