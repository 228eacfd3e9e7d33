package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"codestream/internal/decoder"
	"codestream/internal/logging"
	"codestream/internal/transport"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var decodeParallel int

// decodeCmd decodes captured event streams.
var decodeCmd = &cobra.Command{
	Use:   "decode [file...]",
	Short: "Decode captured event-stream files (or stdin)",
	Long: `Decodes one or more captured event streams. Each input is its own session;
inputs are decoded concurrently and printed in argument order. With no
arguments, or "-", the stream is read from stdin.`,
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().IntVarP(&decodeParallel, "parallel", "p", 4, "Maximum inputs decoded at once")
}

// decodeInput is one input of the decode command and its buffered output.
type decodeInput struct {
	name   string
	out    bytes.Buffer
	result decoder.SessionResult
}

func runDecode(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	if len(args) == 0 {
		args = []string{"-"}
	}

	inputs := make([]*decodeInput, len(args))
	stdinUsed := false
	for i, name := range args {
		if name == "-" {
			if stdinUsed {
				return fmt.Errorf("stdin (-) given more than once")
			}
			stdinUsed = true
		}
		inputs[i] = &decodeInput{name: name}
	}
	multi := len(inputs) > 1

	g, gctx := errgroup.WithContext(ctx)
	if decodeParallel > 0 {
		g.SetLimit(decodeParallel)
	}
	for _, in := range inputs {
		g.Go(func() error {
			source := ""
			if multi {
				source = in.name
			}
			res, err := decodeOne(gctx, in.name, &in.out, source, cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("%s: %w", in.name, err)
			}
			in.result = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, in := range inputs {
		if _, err := io.Copy(cmd.OutOrStdout(), &in.out); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		if in.result.Status == decoder.StatusErrored {
			failed++
		}
		logger.Debug("Decoded input",
			zap.String("input", in.name),
			zap.String("status", string(in.result.Status)),
			zap.Int("files", len(in.result.Files)),
			zap.Int("dropped", len(in.result.Dropped)))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d sessions failed", failed, len(inputs))
	}
	return nil
}

// decodeOne runs one session over a file or stdin.
func decodeOne(ctx context.Context, name string, out io.Writer, source string, stdin io.Reader) (decoder.SessionResult, error) {
	var r io.Reader = stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return decoder.SessionResult{}, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	ew, err := newEventWriter(out, format, source)
	if err != nil {
		return decoder.SessionResult{}, err
	}

	src := transport.NewReaderSource(r, cfg.GetReadSize())
	stream := decoder.NewStream(src, sessionOptions()...)
	logging.CLI("decode %s: session %s", name, stream.Session().ID())

	res, err := pump(ctx, stream, ew)
	if err != nil {
		return res, err
	}
	if skipped := stream.SkippedFrames(); skipped > 0 {
		logger.Warn("Skipped unparsable frames", zap.String("input", name), zap.Int("count", skipped))
	}
	return res, nil
}
