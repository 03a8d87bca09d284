package cli

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/akzj/streamstore/internal/segment"
)

// NewVerifyCmd returns the "verify" command, which recomputes every
// stream checksum in a segment.
func NewVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <segment>",
		Short: "Verify all stream payload checksums in a segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()
			return withSegment(args[0], func(seg *segment.Segment) error {
				if err := seg.Verify(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d streams ok\n", args[0], seg.StreamCount())
				return nil
			})
		},
	}
}
