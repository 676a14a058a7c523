package ingest

import "sync"

// Buffer accumulates raw producer bytes until the pipeline drains them.
// A single mutex guards both Append and the drain operations, so every
// appended byte lands in exactly one drained chunk.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	offset uint64
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append copies data into the buffer. Empty input is a no-op.
func (b *Buffer) Append(data []byte) {
	if len(data) == 0 {
		return
	}
	b.mu.Lock()
	b.data = append(b.data, data...)
	b.offset += uint64(len(data))
	b.mu.Unlock()
}

// DrainIfThreshold swaps the buffer for an empty one and returns the previous
// contents when at least threshold bytes are buffered. A threshold <= 0
// drains any non-empty buffer.
func (b *Buffer) DrainIfThreshold(threshold int) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.data) == 0 || len(b.data) < threshold {
		return nil, false
	}
	out := b.data
	b.data = nil
	return out, true
}

// Drain returns whatever is buffered regardless of size.
func (b *Buffer) Drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.data
	b.data = nil
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Offset reports the total number of bytes ever appended, drained or not.
func (b *Buffer) Offset() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.offset
}
