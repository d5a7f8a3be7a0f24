package buffer

// ExtractRTT returns the send timestamps of every packet in packets whose
// Transmissions == 1, i.e. Karn's algorithm: retransmitted packets never
// contribute an RTT sample because the ACK cannot be attributed to a
// specific transmission.
func ExtractRTT(packets []WrappedPacket) []int64 {
	var out []int64
	for _, p := range packets {
		if p.Transmissions == 1 {
			out = append(out, p.SendTime)
		}
	}
	return out
}

// ExtractPayloadSize sums payload bytes across a list of WrappedPacket.
func ExtractPayloadSize(packets []WrappedPacket) int {
	total := 0
	for _, p := range packets {
		total += len(p.Packet.Payload)
	}
	return total
}
