package memtable

import "errors"

var (
	ErrStreamNotFound = errors.New("stream not found")
	ErrOutOfRange     = errors.New("read range out of bounds")
)

// StreamBuffer accumulates appended data for one stream. Chunks are kept
// in append order and never split or merged; the offset is the logical
// position of the first buffered byte within the stream's total history,
// fixed at creation time.
//
// A StreamBuffer is not safe for concurrent use on its own; the owning
// MemTable serializes access through its lock.
type StreamBuffer struct {
	streamID uint64
	offset   uint64
	size     uint64
	chunks   [][]byte
}

// NewStreamBuffer returns an empty buffer for streamID whose data begins
// at the given logical offset.
func NewStreamBuffer(streamID, offset uint64) *StreamBuffer {
	return &StreamBuffer{streamID: streamID, offset: offset}
}

// StreamID returns the stream this buffer belongs to.
func (b *StreamBuffer) StreamID() uint64 { return b.streamID }

// Offset returns the logical offset of the first buffered byte.
func (b *StreamBuffer) Offset() uint64 { return b.offset }

// Size returns the number of bytes buffered so far.
func (b *StreamBuffer) Size() uint64 { return b.size }

// Append copies data into a new chunk at the end of the buffer.
func (b *StreamBuffer) Append(data []byte) error {
	chunk := make([]byte, len(data))
	copy(chunk, data)
	b.chunks = append(b.chunks, chunk)
	b.size += uint64(len(chunk))
	return nil
}

// Range returns the logical byte range [start, end) covered by the
// buffer, or ok=false when nothing has been buffered yet.
func (b *StreamBuffer) Range() (start, end uint64, ok bool) {
	if b.size == 0 {
		return 0, 0, false
	}
	return b.offset, b.offset + b.size, true
}

// Read returns size bytes starting at the given logical offset, walking
// the chunk list. The window must lie entirely within [Offset, Offset+Size).
func (b *StreamBuffer) Read(offset, size uint64) ([]byte, error) {
	if offset < b.offset {
		return nil, ErrOutOfRange
	}
	rel := offset - b.offset
	if size > b.size || rel > b.size-size {
		return nil, ErrOutOfRange
	}

	out := make([]byte, 0, size)
	remaining := size
	for _, chunk := range b.chunks {
		if remaining == 0 {
			break
		}
		if rel >= uint64(len(chunk)) {
			rel -= uint64(len(chunk))
			continue
		}
		take := uint64(len(chunk)) - rel
		if take > remaining {
			take = remaining
		}
		out = append(out, chunk[rel:rel+take]...)
		remaining -= take
		rel = 0
	}
	return out, nil
}

// Chunks returns the buffered chunks in append order. The returned slices
// share storage with the buffer; callers must not modify them.
func (b *StreamBuffer) Chunks() [][]byte {
	return b.chunks
}
