package segment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"

	"github.com/akzj/streamstore/internal/memtable"
)

// rawSegment hand-assembles a segment file from a header, index entries,
// and payload bytes, bypassing the writer's invariants.
func rawSegment(t *testing.T, header Header, entries []StreamIndex, payload []byte) string {
	t.Helper()
	buf := make([]byte, HeaderSize+len(entries)*StreamIndexSize)
	header.EncodeInto(buf)
	for i, entry := range entries {
		EncodeStreamIndex(entry, buf[HeaderSize+i*StreamIndexSize:])
	}
	buf = append(buf, payload...)

	path := filepath.Join(t.TempDir(), "segment.seg")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope.seg")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestOpenTruncatedHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.seg")
	if err := os.WriteFile(path, make([]byte, HeaderSize-8), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Open(path); !errors.Is(err, ErrHeaderTooSmall) {
		t.Fatalf("expected header too small, got %v", err)
	}
}

func TestOpenVersionMismatch(t *testing.T) {
	path := rawSegment(t, Header{Version: 99, IndexOffset: HeaderSize}, nil, nil)
	if _, err := Open(path); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestOpenRejectsCorruptIndex(t *testing.T) {
	payload := []byte("abcdxyz")
	metaEnd := uint64(HeaderSize + 2*StreamIndexSize)
	validEntries := func() []StreamIndex {
		return []StreamIndex{
			{Version: StreamIndexVersion, StreamID: 7, FileOffset: metaEnd, Size: 4, Checksum: xxhash.Sum64([]byte("abcd"))},
			{Version: StreamIndexVersion, StreamID: 9, FileOffset: metaEnd + 4, Size: 3, Checksum: xxhash.Sum64([]byte("xyz"))},
		}
	}
	validHeader := Header{
		Version:     HeaderVersion,
		FirstEntry:  1,
		LastEntry:   2,
		IndexOffset: HeaderSize,
		IndexCount:  2,
	}

	// The unmodified file must open cleanly, otherwise the corruption
	// cases below prove nothing.
	if segment, err := Open(rawSegment(t, validHeader, validEntries(), payload)); err != nil {
		t.Fatalf("baseline open: %v", err)
	} else {
		_ = segment.Close()
	}

	tests := []struct {
		name    string
		mutate  func(h *Header, e []StreamIndex)
		wantErr error
	}{
		{
			"misplaced index",
			func(h *Header, e []StreamIndex) { h.IndexOffset = HeaderSize + 8 },
			ErrIndexCorrupt,
		},
		{
			"count exceeds file",
			func(h *Header, e []StreamIndex) { h.IndexCount = 1 << 40 },
			ErrIndexCorrupt,
		},
		{
			"entry version mismatch",
			func(h *Header, e []StreamIndex) { e[1].Version = 2 },
			ErrVersionMismatch,
		},
		{
			"unsorted stream ids",
			func(h *Header, e []StreamIndex) { e[0].StreamID, e[1].StreamID = 9, 7 },
			ErrIndexCorrupt,
		},
		{
			"duplicate stream ids",
			func(h *Header, e []StreamIndex) { e[1].StreamID = e[0].StreamID },
			ErrIndexCorrupt,
		},
		{
			"payload reaches into metadata",
			func(h *Header, e []StreamIndex) { e[0].FileOffset = HeaderSize },
			ErrIndexCorrupt,
		},
		{
			"overlapping payload regions",
			func(h *Header, e []StreamIndex) { e[1].FileOffset = e[0].FileOffset },
			ErrIndexCorrupt,
		},
		{
			"payload past end of file",
			func(h *Header, e []StreamIndex) { e[1].Size = 1 << 30 },
			ErrIndexCorrupt,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := validHeader
			entries := validEntries()
			tt.mutate(&header, entries)
			_, err := Open(rawSegment(t, header, entries, payload))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("want %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFindStreamAbsentIDs(t *testing.T) {
	table := memtable.New(nil)
	for i, streamID := range []uint64{10, 20, 30} {
		if err := table.Append(memtable.Entry{ID: uint64(i + 1), StreamID: streamID, Data: []byte("d")}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), "segment.seg")
	segment, err := Write(path, table, WriteOptions{})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	defer segment.Close()

	for _, streamID := range []uint64{10, 20, 30} {
		if _, ok := segment.FindStream(streamID); !ok {
			t.Fatalf("stream %d not found", streamID)
		}
	}
	for _, streamID := range []uint64{0, 5, 15, 25, 31, ^uint64(0)} {
		if _, ok := segment.FindStream(streamID); ok {
			t.Fatalf("found absent stream %d", streamID)
		}
		if _, _, ok := segment.StreamRange(streamID); ok {
			t.Fatalf("range for absent stream %d", streamID)
		}
		if _, ok := segment.StreamData(streamID); ok {
			t.Fatalf("data for absent stream %d", streamID)
		}
	}
}

func TestVerifyDetectsCorruptPayload(t *testing.T) {
	table := memtable.New(nil)
	if err := table.Append(memtable.Entry{ID: 1, StreamID: 7, Data: []byte("payload")}); err != nil {
		t.Fatalf("append: %v", err)
	}

	path := filepath.Join(t.TempDir(), "segment.seg")
	segment, err := Write(path, table, WriteOptions{})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := segment.Verify(context.Background()); err != nil {
		t.Fatalf("verify clean segment: %v", err)
	}
	if err := segment.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Flip one payload byte behind the reader's back.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	data[HeaderSize+StreamIndexSize] ^= 0xff
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	corrupted, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer corrupted.Close()
	if err := corrupted.Verify(context.Background()); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}
}

func TestVerifyHonorsCancellation(t *testing.T) {
	table := memtable.New(nil)
	for i := uint64(1); i <= 64; i++ {
		if err := table.Append(memtable.Entry{ID: i, StreamID: i, Data: make([]byte, 1024)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "segment.seg")
	segment, err := Write(path, table, WriteOptions{})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	defer segment.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := segment.Verify(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStreamsListing(t *testing.T) {
	table := memtable.New(nil)
	for i, streamID := range []uint64{3, 1, 2} {
		if err := table.Append(memtable.Entry{ID: uint64(i + 1), StreamID: streamID, Data: []byte("abc")}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "segment.seg")
	segment, err := Write(path, table, WriteOptions{})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	defer segment.Close()

	streams := segment.Streams()
	if len(streams) != 3 {
		t.Fatalf("streams: want 3 got %d", len(streams))
	}
	for i, want := range []uint64{1, 2, 3} {
		if streams[i].StreamID != want {
			t.Fatalf("streams[%d]: want %d got %d", i, want, streams[i].StreamID)
		}
		if streams[i].Size != 3 {
			t.Fatalf("streams[%d] size: want 3 got %d", i, streams[i].Size)
		}
	}
}
