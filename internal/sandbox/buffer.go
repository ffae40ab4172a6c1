package sandbox

import (
	"bytes"
	"sync"
)

// CappedBuffer keeps at most limit bytes. The first write past the limit
// calls onExceed once; later bytes are discarded but reported as written so
// the pipe keeps draining until the process is gone.
type CappedBuffer struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	limit    int64
	exceeded bool
	onExceed func()
}

func NewCappedBuffer(limit int64, onExceed func()) *CappedBuffer {
	return &CappedBuffer{limit: limit, onExceed: onExceed}
}

func (b *CappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit <= 0 {
		return b.buf.Write(p)
	}
	remaining := b.limit - int64(b.buf.Len())
	if int64(len(p)) <= remaining {
		return b.buf.Write(p)
	}
	if remaining > 0 {
		b.buf.Write(p[:remaining])
	}
	if !b.exceeded {
		b.exceeded = true
		if b.onExceed != nil {
			b.onExceed()
		}
	}
	return len(p), nil
}

func (b *CappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *CappedBuffer) Exceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exceeded
}
