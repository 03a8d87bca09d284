package segment

import (
	"encoding/binary"
	"errors"
)

// On-disk layout, all fields little-endian uint64, no padding:
//
//	[0 .. 40)        Header: version, last entry, first entry,
//	                 index offset (always 40), index count
//	[40 .. 40+48*K)  K StreamIndex records, sorted ascending by stream id
//	[40+48*K .. EOF) concatenated stream payloads, one contiguous region
//	                 per index record, region order = index order
const (
	HeaderVersion      = 1
	StreamIndexVersion = 1

	HeaderSize      = 40
	StreamIndexSize = 48
)

var (
	ErrHeaderTooSmall   = errors.New("segment header too small")
	ErrVersionMismatch  = errors.New("segment version mismatch")
	ErrIndexCorrupt     = errors.New("segment stream index corrupt")
	ErrChecksumMismatch = errors.New("stream payload checksum mismatch")
)

// Header is the fixed-size block at the start of every segment file.
type Header struct {
	Version    uint64
	LastEntry  uint64
	FirstEntry uint64
	// IndexOffset is the byte position of the stream index array. It is
	// always HeaderSize; the field exists so readers never hardcode it.
	IndexOffset uint64
	IndexCount  uint64
}

// StreamIndex is one fixed-size index record, locating a stream's payload
// within the file. Offset is the stream's logical starting offset across
// its whole history; FileOffset is the byte position within this file.
type StreamIndex struct {
	Version    uint64
	StreamID   uint64
	Offset     uint64
	FileOffset uint64
	Size       uint64
	Checksum   uint64
}

// End returns the byte position just past the stream's payload region.
func (e StreamIndex) End() uint64 {
	return e.FileOffset + e.Size
}

// EncodeInto writes the header into buf, which must be at least HeaderSize bytes.
func (h Header) EncodeInto(buf []byte) int {
	binary.LittleEndian.PutUint64(buf[0:], h.Version)
	binary.LittleEndian.PutUint64(buf[8:], h.LastEntry)
	binary.LittleEndian.PutUint64(buf[16:], h.FirstEntry)
	binary.LittleEndian.PutUint64(buf[24:], h.IndexOffset)
	binary.LittleEndian.PutUint64(buf[32:], h.IndexCount)
	return HeaderSize
}

// DecodeHeader reads a header from buf.
// Returns ErrHeaderTooSmall if buf is less than HeaderSize bytes.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrHeaderTooSmall
	}
	return Header{
		Version:     binary.LittleEndian.Uint64(buf[0:]),
		LastEntry:   binary.LittleEndian.Uint64(buf[8:]),
		FirstEntry:  binary.LittleEndian.Uint64(buf[16:]),
		IndexOffset: binary.LittleEndian.Uint64(buf[24:]),
		IndexCount:  binary.LittleEndian.Uint64(buf[32:]),
	}, nil
}

// EncodeStreamIndex writes entry into buf, which must be at least
// StreamIndexSize bytes.
func EncodeStreamIndex(entry StreamIndex, buf []byte) int {
	binary.LittleEndian.PutUint64(buf[0:], entry.Version)
	binary.LittleEndian.PutUint64(buf[8:], entry.StreamID)
	binary.LittleEndian.PutUint64(buf[16:], entry.Offset)
	binary.LittleEndian.PutUint64(buf[24:], entry.FileOffset)
	binary.LittleEndian.PutUint64(buf[32:], entry.Size)
	binary.LittleEndian.PutUint64(buf[40:], entry.Checksum)
	return StreamIndexSize
}

// DecodeStreamIndex reads one index record from buf, which must be at
// least StreamIndexSize bytes.
func DecodeStreamIndex(buf []byte) StreamIndex {
	return StreamIndex{
		Version:    binary.LittleEndian.Uint64(buf[0:]),
		StreamID:   binary.LittleEndian.Uint64(buf[8:]),
		Offset:     binary.LittleEndian.Uint64(buf[16:]),
		FileOffset: binary.LittleEndian.Uint64(buf[24:]),
		Size:       binary.LittleEndian.Uint64(buf[32:]),
		Checksum:   binary.LittleEndian.Uint64(buf[40:]),
	}
}
