package main

import (
	"context"
	"fmt"
	"strings"

	"codestream/internal/config"
	"codestream/internal/decoder"
	"codestream/internal/logging"
	"codestream/internal/transport"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var systemPrompt string

// fetchCmd streams a live model response through the decoder.
var fetchCmd = &cobra.Command{
	Use:   "fetch [prompt]",
	Short: "Send a prompt to the configured model and decode the streamed reply",
	Long: `Sends the prompt to the configured provider (transport.provider: openai or
gemini) and decodes the response as it streams. OpenAI-compatible endpoints are
reached at {base_url}/chat/completions.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&systemPrompt, "system", "", "System prompt")
}

// closableSource is a chunk source the command must release.
type closableSource interface {
	decoder.ChunkSource
	Close() error
}

func runFetch(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := commandContext(cmd)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.GetTransportTimeout())
	defer cancel()

	prompt := strings.Join(args, " ")
	logger.Info("Fetching", zap.String("provider", cfg.Transport.Provider), zap.String("model", cfg.Transport.Model))

	src, err := openSource(ctx, prompt)
	if err != nil {
		return fmt.Errorf("failed to open %s stream: %w", cfg.Transport.Provider, err)
	}
	defer src.Close()

	ew, err := newEventWriter(cmd.OutOrStdout(), format, "")
	if err != nil {
		return err
	}

	stream := decoder.NewStream(src, sessionOptions()...)
	logging.CLI("fetch: session %s via %s", stream.Session().ID(), cfg.Transport.Provider)

	res, err := pump(ctx, stream, ew)
	if err != nil {
		return err
	}
	if res.Status == decoder.StatusErrored {
		return fmt.Errorf("session failed: %s", res.Error)
	}
	return nil
}

// openSource opens the configured provider's stream.
func openSource(ctx context.Context, prompt string) (closableSource, error) {
	switch cfg.Transport.Provider {
	case "gemini":
		model := cfg.Transport.Model
		if model == config.DefaultConfig().Transport.Model {
			// The default model names an OpenAI model; let the source choose.
			model = ""
		}
		return transport.NewGeminiSource(ctx, transport.GeminiConfig{
			APIKey: cfg.Transport.APIKey,
			Model:  model,
		}, systemPrompt, prompt)
	default:
		client := transport.NewOpenAIClient(transport.OpenAIConfig{
			APIKey:     cfg.Transport.APIKey,
			BaseURL:    cfg.Transport.BaseURL,
			Model:      cfg.Transport.Model,
			Timeout:    cfg.GetTransportTimeout(),
			MaxRetries: cfg.Transport.MaxRetries,
			ReadSize:   cfg.GetReadSize(),
		})
		return client.Stream(ctx, systemPrompt, prompt)
	}
}
