package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/akzj/streamstore/internal/segment"
)

// NewDumpCmd returns the "dump" command, which writes one stream's
// payload to stdout.
func NewDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <segment> <stream-id>",
		Short: "Write a stream's payload to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			streamID, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid stream id %q: %w", args[1], err)
			}
			return withSegment(args[0], func(seg *segment.Segment) error {
				data, ok := seg.StreamData(streamID)
				if !ok {
					return fmt.Errorf("stream %d not found in %s", streamID, args[0])
				}
				_, err := cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}
}
