package buffer

// AdvanceToClosed transitions FinSent -> Closed once the connection task
// observes finSentAcked (spec §4.9). It is a no-op unless ReadyToClose
// holds.
func (b *Buffer) AdvanceToClosed(finSentAcked bool) bool {
	if b.ReadyToClose(finSentAcked) {
		b.state = StateClosed
		return true
	}
	return false
}
