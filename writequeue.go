package utp

import (
	"bytes"

	"github.com/wireloop/go-utp/internal/buffer"
)

// writeQueue holds bytes handed to Conn.Write that have not yet been
// packetized. It is only ever touched while the owning Conn holds its
// mutex, so it needs no locking of its own.
type writeQueue struct {
	buf bytes.Buffer
}

func (q *writeQueue) Write(p []byte) { q.buf.Write(p) }

func (q *writeQueue) Len() int { return q.buf.Len() }

// Fill implements buffer.ProcessQueue.Fill's contract: return up to n
// bytes, tagging whether the request was fully satisfied, partially
// satisfied, or the queue was empty.
func (q *writeQueue) Fill(n int) buffer.FillResult {
	avail := q.buf.Len()
	if avail == 0 {
		return buffer.FillResult{Outcome: buffer.FillZero}
	}
	if avail >= n {
		bin := make([]byte, n)
		q.buf.Read(bin)
		return buffer.FillResult{Outcome: buffer.FillFilled, Bin: bin}
	}
	bin := make([]byte, avail)
	q.buf.Read(bin)
	return buffer.FillResult{Outcome: buffer.FillPartial, Bin: bin}
}
