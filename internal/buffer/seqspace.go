package buffer

// bit16 reduces x into the 16-bit sequence space. All sequence and ack
// arithmetic in this package goes through this function; raw integer
// comparison of sequence numbers is never used anywhere else.
func bit16(x int32) uint16 {
	return uint16(uint32(x) & 0xFFFF)
}

// dist returns the modular distance bit16(a - b), in 0..65535. A small
// distance means a is "ahead of" b by only a little; a large distance
// means a is "old" relative to b.
func dist(a, b uint16) uint16 {
	return bit16(int32(a) - int32(b))
}

// orderPackets defines the total order used to pick the oldest packet in
// the retransmission queue: the packet whose sequence number is smaller in
// modular space relative to the newest assigned sequence number wins.
// It returns true if a is older than b.
func orderPackets(a, b uint16, newestSeq uint16) bool {
	return dist(newestSeq, a) > dist(newestSeq, b)
}
