package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/akzj/streamstore/internal/memtable"
	"github.com/akzj/streamstore/internal/segment"
)

// NewPackCmd returns the "pack" command, which builds a segment file
// from input files: each input becomes one stream, chunked into entries.
func NewPackCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack <segment> <file>...",
		Short: "Build a segment from input files, one stream per file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chunkSize, _ := cmd.Flags().GetInt("chunk-size")
			if chunkSize <= 0 {
				return fmt.Errorf("chunk size must be positive, got %d", chunkSize)
			}

			table := memtable.New(nil)
			entryID := uint64(1)
			for i, input := range args[1:] {
				data, err := os.ReadFile(input)
				if err != nil {
					return err
				}
				streamID := uint64(i + 1)
				if len(data) == 0 {
					// Keep empty inputs visible in the index.
					if err := table.Append(memtable.Entry{ID: entryID, StreamID: streamID}); err != nil {
						return err
					}
					entryID++
				}
				for len(data) > 0 {
					n := min(len(data), chunkSize)
					if err := table.Append(memtable.Entry{
						ID:       entryID,
						StreamID: streamID,
						Data:     data[:n],
					}); err != nil {
						return err
					}
					entryID++
					data = data[n:]
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stream %d: %s\n", streamID, input)
			}

			seg, err := segment.Write(args[0], table, segment.WriteOptions{Logger: logger})
			if err != nil {
				return err
			}
			return seg.Close()
		},
	}
	cmd.Flags().Int("chunk-size", 64<<10, "maximum entry payload size in bytes")
	return cmd
}
