// Package segment implements the immutable on-disk segment file: the
// writer that flushes one memtable generation into a file, and the
// memory-mapped reader that serves per-stream lookups from it.
//
// A published segment file is never modified, so any number of readers
// may hold it open concurrently without coordination. Slices returned by
// StreamData point straight into the mapping and stay valid until Close.
package segment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"syscall"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"
)

// Segment is a read-only view of one segment file.
type Segment struct {
	file   *os.File
	path   string
	data   []byte
	header Header
}

// Open opens a segment file and memory-maps it read-only. The header and
// the whole stream index are validated up front so that no later lookup
// can compute an out-of-bounds slice from corrupt metadata.
func Open(path string) (*Segment, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.Size() < HeaderSize {
		_ = file.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrHeaderTooSmall)
	}

	data, err := syscall.Mmap(int(file.Fd()), 0, int(info.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	segment := &Segment{file: file, path: path, data: data}
	if err := segment.validate(); err != nil {
		_ = segment.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return segment, nil
}

func (s *Segment) validate() error {
	header, err := DecodeHeader(s.data)
	if err != nil {
		return err
	}
	if header.Version != HeaderVersion {
		return fmt.Errorf("header version %d: %w", header.Version, ErrVersionMismatch)
	}
	if header.IndexOffset != HeaderSize {
		return fmt.Errorf("index offset %d: %w", header.IndexOffset, ErrIndexCorrupt)
	}

	size := uint64(len(s.data))
	if header.IndexCount > (size-HeaderSize)/StreamIndexSize {
		return fmt.Errorf("index count %d exceeds file size: %w", header.IndexCount, ErrIndexCorrupt)
	}
	indexEnd := HeaderSize + header.IndexCount*StreamIndexSize

	// Walk the index once: entries must be version 1, strictly ascending
	// by stream id, and reference non-overlapping payload regions that
	// fit inside the file and never reach back into the metadata.
	prevEnd := indexEnd
	var prevID uint64
	for i := uint64(0); i < header.IndexCount; i++ {
		entry := DecodeStreamIndex(s.data[HeaderSize+i*StreamIndexSize:])
		if entry.Version != StreamIndexVersion {
			return fmt.Errorf("stream %d index version %d: %w", entry.StreamID, entry.Version, ErrVersionMismatch)
		}
		if i > 0 && entry.StreamID <= prevID {
			return fmt.Errorf("stream index not sorted at %d: %w", i, ErrIndexCorrupt)
		}
		if entry.FileOffset < prevEnd {
			return fmt.Errorf("stream %d payload overlaps at %d: %w", entry.StreamID, entry.FileOffset, ErrIndexCorrupt)
		}
		if entry.FileOffset > size || entry.Size > size-entry.FileOffset {
			return fmt.Errorf("stream %d payload out of bounds: %w", entry.StreamID, ErrIndexCorrupt)
		}
		prevEnd = entry.End()
		prevID = entry.StreamID
	}

	s.header = header
	return nil
}

// Path returns the file the segment was opened from.
func (s *Segment) Path() string { return s.path }

// EntryRange returns the ids of the first and last entries that were
// appended to the generation this segment was flushed from.
func (s *Segment) EntryRange() (first, last uint64) {
	return s.header.FirstEntry, s.header.LastEntry
}

// StreamCount returns the number of streams in the segment.
func (s *Segment) StreamCount() int {
	return int(s.header.IndexCount)
}

func (s *Segment) indexAt(i int) StreamIndex {
	return DecodeStreamIndex(s.data[int(s.header.IndexOffset)+i*StreamIndexSize:])
}

// FindStream binary-searches the index for streamID.
func (s *Segment) FindStream(streamID uint64) (StreamIndex, bool) {
	count := int(s.header.IndexCount)
	i := sort.Search(count, func(i int) bool {
		return s.indexAt(i).StreamID >= streamID
	})
	if i >= count {
		return StreamIndex{}, false
	}
	entry := s.indexAt(i)
	if entry.StreamID != streamID {
		return StreamIndex{}, false
	}
	return entry, true
}

// StreamRange returns the byte range [start, end) of streamID's payload
// within the file, or ok=false if the stream is absent.
func (s *Segment) StreamRange(streamID uint64) (start, end uint64, ok bool) {
	entry, found := s.FindStream(streamID)
	if !found {
		return 0, 0, false
	}
	return entry.FileOffset, entry.End(), true
}

// StreamData returns streamID's payload as a slice into the mapping, or
// ok=false if the stream is absent. The slice is valid until Close and
// must not be modified.
func (s *Segment) StreamData(streamID uint64) ([]byte, bool) {
	entry, found := s.FindStream(streamID)
	if !found {
		return nil, false
	}
	return s.data[entry.FileOffset:entry.End()], true
}

// Streams returns every index record in stream-id order.
func (s *Segment) Streams() []StreamIndex {
	out := make([]StreamIndex, s.header.IndexCount)
	for i := range out {
		out[i] = s.indexAt(i)
	}
	return out
}

// Verify recomputes each stream's payload checksum and compares it to the
// index. Streams are checked concurrently; the first mismatch or context
// cancellation stops the pass.
func (s *Segment) Verify(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < int(s.header.IndexCount); i++ {
		entry := s.indexAt(i)
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sum := xxhash.Sum64(s.data[entry.FileOffset:entry.End()])
			if sum != entry.Checksum {
				return fmt.Errorf("stream %d: %w", entry.StreamID, ErrChecksumMismatch)
			}
			return nil
		})
	}
	return group.Wait()
}

// Close unmaps the file and closes it. Slices previously returned by
// StreamData become invalid.
func (s *Segment) Close() error {
	var err error
	if s.data != nil {
		if unmapErr := syscall.Munmap(s.data); unmapErr != nil {
			err = unmapErr
		}
		s.data = nil
	}
	if s.file != nil {
		if closeErr := s.file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		s.file = nil
	}
	return err
}
