package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/akzj/streamstore/internal/segment"
)

// NewInspectCmd returns the "inspect" command, which prints a segment's
// header summary.
func NewInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <segment>",
		Short: "Print a segment's header summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			return withSegment(path, func(seg *segment.Segment) error {
				first, last := seg.EntryRange()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "path:        %s\n", path)
				fmt.Fprintf(out, "file size:   %d\n", info.Size())
				fmt.Fprintf(out, "first entry: %d\n", first)
				fmt.Fprintf(out, "last entry:  %d\n", last)
				fmt.Fprintf(out, "streams:     %d\n", seg.StreamCount())
				return nil
			})
		},
	}
}

// NewStreamsCmd returns the "streams" command, which lists a segment's
// stream index.
func NewStreamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "streams <segment>",
		Short: "List the stream index of a segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSegment(args[0], func(seg *segment.Segment) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "STREAM\tOFFSET\tFILE OFFSET\tSIZE\tCHECKSUM")
				for _, entry := range seg.Streams() {
					fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%016x\n",
						entry.StreamID, entry.Offset, entry.FileOffset, entry.Size, entry.Checksum)
				}
				return w.Flush()
			})
		},
	}
}
