package buffer

// AdvertisedWindow computes max(0, opt_recv_buf_sz - sum(recv_buf payload
// sizes)), per spec §4.6 / invariant 5.
func (b *Buffer) AdvertisedWindow() uint32 {
	if uint32(b.recvBufLen) >= b.optRecvSize {
		return 0
	}
	return b.optRecvSize - uint32(b.recvBufLen)
}

// ViewZeroWindowReopen reports whether the advertised window transitioned
// from a zero-window stall to a window large enough to be worth notifying
// the peer about, avoiding silly-window churn (spec §4.6).
func ViewZeroWindowReopen(oldWindow, newWindow uint32) bool {
	return oldWindow == 0 && newWindow > 1000
}
