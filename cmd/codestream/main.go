package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"codestream/internal/config"
	"codestream/internal/decoder"
	"codestream/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose       bool
	configPath    string
	stopAtFence   bool
	salvageDrafts bool
	format        string

	// Loaded configuration
	cfg *config.Config

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "codestream",
	Short: "Decode streamed model output into narrative, files and annotations",
	Long: `codestream decodes a language model's streamed response into structured events.

Input is an event stream of "data:" lines. The decoder reassembles the text and
recognizes two in-band markers:

  [SERVICE: Display Name|domain.example]
  [FILE: path/to/file] ...contents... [/FILE]

Narrative text, file creation, progressive file content and the service
annotation are printed as they are recognized.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		applyFlagOverrides(cmd)

		if err := logging.Initialize(cfg.Logging.Dir, cfg.Logging.Settings()); err != nil {
			logger.Warn("File logging disabled", zap.Error(err))
		}
		logging.Boot("config loaded from %s (provider=%s)", configPath, cfg.Transport.Provider)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", filepath.Join(".codestream", "config.yaml"), "Config file")
	rootCmd.PersistentFlags().BoolVar(&stopAtFence, "stop-at-fence", false, "End the narrative at the first ``` fence")
	rootCmd.PersistentFlags().BoolVar(&salvageDrafts, "salvage-drafts", false, "Keep never-closed files in the result")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", formatJSONL, "Output format: jsonl, text or result")

	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(tailCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applyFlagOverrides lets explicit flags win over the config file.
func applyFlagOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("stop-at-fence") {
		cfg.Decoder.StopAtFence = stopAtFence
	}
	if flags.Changed("salvage-drafts") {
		cfg.Decoder.SalvageDrafts = salvageDrafts
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
}

// sessionOptions maps the decoder config onto session options.
func sessionOptions() []decoder.Option {
	return []decoder.Option{
		decoder.WithStopAtFence(cfg.Decoder.StopAtFence),
		decoder.WithSalvageDrafts(cfg.Decoder.SalvageDrafts),
	}
}

// commandContext returns the command's context, cancelled on SIGINT/SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
