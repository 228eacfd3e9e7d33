package main

import (
	"fmt"

	"codestream/internal/decoder"
	"codestream/internal/logging"
	"codestream/internal/transport"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// tailCmd follows a capture file that another process is still writing.
var tailCmd = &cobra.Command{
	Use:   "tail <capture-file>",
	Short: "Follow a growing event-stream capture and decode it live",
	Long: `Follows a capture file as it grows and decodes it live. The session ends
at the [DONE] sentinel, when the file is removed, or after tail.idle_timeout
without new writes.`,
	Args: cobra.ExactArgs(1),
	RunE: runTail,
}

func runTail(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	src, err := transport.NewTailSource(args[0], cfg.GetReadSize(), cfg.GetTailIdleTimeout())
	if err != nil {
		return err
	}
	defer src.Close()

	ew, err := newEventWriter(cmd.OutOrStdout(), format, "")
	if err != nil {
		return err
	}

	stream := decoder.NewStream(src, sessionOptions()...)
	logging.CLI("tail %s: session %s", args[0], stream.Session().ID())

	res, err := pump(ctx, stream, ew)
	if err != nil {
		return err
	}

	stats := src.Stats()
	logger.Debug("Tail finished",
		zap.Int("reads", stats.Reads),
		zap.Int("bytes", stats.Bytes),
		zap.Bool("idle_expired", stats.IdleExpiry))
	if res.Status == decoder.StatusErrored {
		return fmt.Errorf("session failed: %s", res.Error)
	}
	return nil
}
