// Package cli implements the streamstore subcommands for building,
// listing, dumping, and verifying segment files.
package cli

import (
	"github.com/akzj/streamstore/internal/segment"
)

// withSegment opens a segment, runs fn against it, and closes it.
func withSegment(path string, fn func(*segment.Segment) error) error {
	seg, err := segment.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = seg.Close() }()
	return fn(seg)
}
