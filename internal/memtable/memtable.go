// Package memtable implements the in-memory write buffer: one generation
// of appended entries, grouped per stream, accumulated between two
// segment flushes. Producers append concurrently; a flush consumes the
// table exactly once and the table is discarded afterwards.
package memtable

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// Entry is one caller-supplied unit of appended data. IDs are assigned by
// the caller and expected to be monotonic; the engine never generates them.
type Entry struct {
	ID       uint64
	StreamID uint64
	Data     []byte
}

// OffsetResolver supplies the logical starting offset for a stream the
// first time it is appended to within a table. It typically queries the
// tail of the previous segment; it must never call back into the same
// MemTable, which would deadlock on the table lock.
type OffsetResolver interface {
	ResolveStreamOffset(streamID uint64) (uint64, error)
}

// OffsetResolverFunc adapts a plain function to the OffsetResolver interface.
type OffsetResolverFunc func(streamID uint64) (uint64, error)

func (f OffsetResolverFunc) ResolveStreamOffset(streamID uint64) (uint64, error) {
	return f(streamID)
}

// MemTable is the mutable write buffer for one generation of data.
//
// The stream map is guarded by a single mutex; Append, StreamRange, Read
// and Streams take it. The entry/size counters are independent atomics so
// FirstEntry, LastEntry and Size never block behind an append.
//
// Entry id 0 is the "unset" sentinel: FirstEntry returns 0 until the
// first append, is set exactly once, and never changes afterwards.
type MemTable struct {
	mu       sync.Mutex
	streams  map[uint64]*StreamBuffer
	resolver OffsetResolver

	firstEntry atomic.Uint64
	lastEntry  atomic.Uint64
	size       atomic.Uint64
}

// New returns an empty table. resolver may be nil, in which case every
// new stream starts at offset 0.
func New(resolver OffsetResolver) *MemTable {
	return &MemTable{
		streams:  make(map[uint64]*StreamBuffer),
		resolver: resolver,
	}
}

// Append adds one entry to the table. The payload is copied. If the
// stream is unseen, its starting offset is resolved first; a resolver
// error is returned to the caller with the table left untouched.
func (m *MemTable) Append(entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buffer, ok := m.streams[entry.StreamID]
	if !ok {
		var offset uint64
		if m.resolver != nil {
			var err error
			offset, err = m.resolver.ResolveStreamOffset(entry.StreamID)
			if err != nil {
				return fmt.Errorf("resolve offset for stream %d: %w", entry.StreamID, err)
			}
		}
		buffer = NewStreamBuffer(entry.StreamID, offset)
		m.streams[entry.StreamID] = buffer
	}

	if err := buffer.Append(entry.Data); err != nil {
		return err
	}

	m.size.Add(uint64(len(entry.Data)))
	m.lastEntry.Store(entry.ID)
	m.firstEntry.CompareAndSwap(0, entry.ID)
	return nil
}

// FirstEntry returns the id of the first entry ever appended, or 0 if the
// table is empty.
func (m *MemTable) FirstEntry() uint64 { return m.firstEntry.Load() }

// LastEntry returns the id of the most recently appended entry.
func (m *MemTable) LastEntry() uint64 { return m.lastEntry.Load() }

// Size returns the total number of payload bytes buffered.
func (m *MemTable) Size() uint64 { return m.size.Load() }

// StreamCount returns the number of distinct streams in the table.
func (m *MemTable) StreamCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// StreamRange returns the logical byte range buffered for streamID, or
// ok=false if the stream is absent or empty.
func (m *MemTable) StreamRange(streamID uint64) (start, end uint64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buffer, found := m.streams[streamID]
	if !found {
		return 0, 0, false
	}
	return buffer.Range()
}

// Read returns size bytes of streamID's buffered data starting at the
// given logical offset.
func (m *MemTable) Read(streamID, offset, size uint64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buffer, found := m.streams[streamID]
	if !found {
		return nil, fmt.Errorf("stream %d: %w", streamID, ErrStreamNotFound)
	}
	return buffer.Read(offset, size)
}

// Streams returns a snapshot of the table's stream buffers sorted by
// stream id. The buffers are shared, not copied; the flush path relies on
// the caller's contract that no appends race a flush of the same table.
func (m *MemTable) Streams() []*StreamBuffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*StreamBuffer, 0, len(m.streams))
	for _, buffer := range m.streams {
		out = append(out, buffer)
	}
	slices.SortFunc(out, func(a, b *StreamBuffer) int {
		return cmp.Compare(a.streamID, b.streamID)
	})
	return out
}
