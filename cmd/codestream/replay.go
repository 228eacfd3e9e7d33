package main

import (
	"fmt"
	"io"
	"os"

	"codestream/internal/decoder"
	"codestream/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// replayCmd rebuilds a session result from a raw transcript.
var replayCmd = &cobra.Command{
	Use:   "replay [transcript]",
	Short: "Rebuild the final result from a raw transcript (or stdin)",
	Long: `Decodes a complete transcript (the concatenated text deltas, not an event
stream) in a single step and prints the session result. The result equals the
one produced by streaming the same text in any chunking.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	name := "-"
	if len(args) == 1 && args[0] != "-" {
		name = args[0]
		f, err := os.Open(name)
		if err != nil {
			return fmt.Errorf("failed to open transcript: %w", err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read transcript: %w", err)
	}

	res := decoder.Replay(string(data), sessionOptions()...)
	logging.CLI("replay %s: %d files, %d dropped", name, len(res.Files), len(res.Dropped))
	logger.Debug("Replayed transcript", zap.String("input", name), zap.Int("bytes", len(data)))

	ew, err := newEventWriter(cmd.OutOrStdout(), formatResult, "")
	if err != nil {
		return err
	}
	return ew.writeResult(res)
}
