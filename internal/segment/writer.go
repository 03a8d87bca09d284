package segment

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/akzj/streamstore/internal/logging"
	"github.com/akzj/streamstore/internal/memtable"
)

// WriteOptions configures a flush.
type WriteOptions struct {
	// FileMode for the segment file. Defaults to 0o644.
	FileMode os.FileMode

	// Logger for structured logging. If nil, logging is disabled.
	// Flush logs a single line per published segment.
	Logger *slog.Logger
}

// Write flushes a memtable into an immutable segment file at path and
// returns the published segment, opened for reading.
//
// The file is materialized atomically: everything is written to an
// uniquely-named temp file next to path, synced, and renamed into place
// as the last step, so a concurrent reader never observes a partial file
// at the published path. Any failure removes the temp file and leaves
// the target untouched.
//
// The caller must have stopped appends to the table; Write reads the
// table without further coordination.
func Write(path string, table *memtable.MemTable, opts WriteOptions) (*Segment, error) {
	logger := logging.Default(opts.Logger).With("component", "segment-writer")
	mode := cmp.Or(opts.FileMode, os.FileMode(0o644))

	streams := table.Streams()

	// Finalize the whole index before writing anything: the metadata
	// region precedes the payloads, so every file offset and checksum
	// must be known up front. Streams() is sorted by id, and payloads
	// are written in the same order, keeping regions contiguous.
	entries := make([]StreamIndex, len(streams))
	cursor := uint64(HeaderSize + len(streams)*StreamIndexSize)
	for i, stream := range streams {
		entries[i] = StreamIndex{
			Version:    StreamIndexVersion,
			StreamID:   stream.StreamID(),
			Offset:     stream.Offset(),
			FileOffset: cursor,
			Size:       stream.Size(),
			Checksum:   checksum(stream),
		}
		cursor += stream.Size()
	}

	header := Header{
		Version:     HeaderVersion,
		LastEntry:   table.LastEntry(),
		FirstEntry:  table.FirstEntry(),
		IndexOffset: HeaderSize,
		IndexCount:  uint64(len(entries)),
	}

	tmpPath := fmt.Sprintf("%s.tmp-%s", path, uuid.Must(uuid.NewV7()))
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, mode)
	if err != nil {
		return nil, fmt.Errorf("create temp segment: %w", err)
	}

	published := false
	defer func() {
		if !published {
			_ = file.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	meta := make([]byte, HeaderSize+len(entries)*StreamIndexSize)
	header.EncodeInto(meta)
	for i, entry := range entries {
		EncodeStreamIndex(entry, meta[HeaderSize+i*StreamIndexSize:])
	}
	if err := writeAll(file, meta); err != nil {
		return nil, fmt.Errorf("write segment metadata: %w", err)
	}

	for _, stream := range streams {
		for _, chunk := range stream.Chunks() {
			if err := writeAll(file, chunk); err != nil {
				return nil, fmt.Errorf("write stream %d payload: %w", stream.StreamID(), err)
			}
		}
	}

	if err := file.Sync(); err != nil {
		return nil, fmt.Errorf("sync segment: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("close segment: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("publish segment: %w", err)
	}
	published = true

	segment, err := Open(path)
	if err != nil {
		return nil, err
	}

	logger.Info("published segment",
		"path", path,
		"streams", len(entries),
		"bytes", cursor,
		"first_entry", header.FirstEntry,
		"last_entry", header.LastEntry,
	)
	return segment, nil
}

// checksum hashes a stream's buffered chunks in append order.
func checksum(stream *memtable.StreamBuffer) uint64 {
	digest := xxhash.New()
	for _, chunk := range stream.Chunks() {
		_, _ = digest.Write(chunk)
	}
	return digest.Sum64()
}

func writeAll(f *os.File, data []byte) error {
	n, err := f.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return io.ErrShortWrite
	}
	return nil
}
