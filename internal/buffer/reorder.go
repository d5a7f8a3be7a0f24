package buffer

// reorderBuffer holds out-of-order payloads keyed by sequence number,
// bounded at ReorderBufferMax distinct entries. Shaped after
// AeonDave-fluxify's map-backed reorder buffer: insert, then drain
// contiguous runs starting at the expected sequence number.
type reorderBuffer struct {
	packets map[uint16][]byte
	max     int
}

func newReorderBuffer(max int) *reorderBuffer {
	return &reorderBuffer{
		packets: make(map[uint16][]byte),
		max:     max,
	}
}

func (r *reorderBuffer) len() int { return len(r.packets) }

// has reports whether seq already has a buffered entry (invariant 3: a
// second arrival with the same key is a Duplicate).
func (r *reorderBuffer) has(seq uint16) bool {
	_, ok := r.packets[seq]
	return ok
}

// insert stores payload at seq. Caller must have already checked has(seq).
func (r *reorderBuffer) insert(seq uint16, payload []byte) {
	r.packets[seq] = payload
}

// drain removes and returns, in order, every contiguous run of entries
// starting at next. It never leaves an entry at key == next behind
// (invariant 2), returning the advanced next-expected sequence number
// alongside the drained payloads.
func (r *reorderBuffer) drain(next uint16) (uint16, [][]byte) {
	var out [][]byte
	for {
		payload, ok := r.packets[next]
		if !ok {
			break
		}
		out = append(out, payload)
		delete(r.packets, next)
		next = bit16(int32(next) + 1)
	}
	return next, out
}
