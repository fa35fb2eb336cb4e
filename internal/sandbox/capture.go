package sandbox

import (
	"bytes"
	"strings"
)

// cappedBuffer keeps the first limit bytes written to it and silently drops
// the rest so the writing process never blocks on a full pipe.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.limit <= 0 {
		return b.buf.Write(p)
	}
	room := b.limit - b.buf.Len()
	if len(p) > room {
		b.truncated = true
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

// String returns the captured text with invalid UTF-8 replaced.
func (b *cappedBuffer) String() string {
	return strings.ToValidUTF8(b.buf.String(), "\uFFFD")
}

func (b *cappedBuffer) Truncated() bool { return b.truncated }
