package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"medqa/internal/config"
)

// options are the flags shared by every command.
type options struct {
	configPath string
	flags      config.Config
}

func buildRootCmd() *cobra.Command { return buildRootCmdWith(&options{}) }

// buildRootCmdWith builds the command tree with flags bound to opts.
func buildRootCmdWith(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "medqa",
		Short:         "Offline clinical question answering over local guideline passages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", envStr("MEDQA_CONFIG"), "Config file (.yaml, .json or .toml)")
	pf.StringVar(&opts.flags.AssetsDir, "assets-dir", "", "Directory holding *.gguf models and the passage index (default ~/.medqa)")
	pf.StringVar(&opts.flags.ModelPath, "model", "", "Generation model path (discovered in assets dir when empty)")
	pf.StringVar(&opts.flags.EmbedModelPath, "embed-model", "", "Embedding model path (discovered in assets dir when empty)")
	pf.StringVar(&opts.flags.IndexPath, "index", "", "Passage index path, relative to the assets dir unless absolute")
	pf.StringVar(&opts.flags.ConversationsDB, "conversations-db", "", "Conversation database path, relative to the assets dir unless absolute")
	pf.BoolVar(&opts.flags.DisableConversations, "no-conversations", false, "Disable the conversation store")
	pf.IntVar(&opts.flags.RetrievalK, "k", 0, "Passages retrieved per question (default 3)")
	pf.Float64Var(&opts.flags.SimilarityCutoff, "cutoff", 0, "Minimum passage similarity (0 keeps all)")
	pf.IntVar(&opts.flags.ContextTokens, "context-tokens", 0, "Prompt budget in tokens (default 32000)")
	pf.IntVar(&opts.flags.ModelContextSize, "ctx-size", 0, "Model context window (default 32768)")
	pf.IntVar(&opts.flags.Threads, "threads", 0, "Inference threads (default 4)")
	pf.IntVar(&opts.flags.GPULayers, "gpu-layers", 0, "Layers offloaded to the GPU")
	pf.IntVar(&opts.flags.MaxTokens, "max-tokens", 0, "Maximum tokens per answer (default 1024)")
	pf.StringVar(&opts.flags.LogLevel, "log-level", "", "Log level: debug|info|warn|error (default info)")

	root.AddCommand(serveCmd(opts), askCmd(opts))
	return root
}

// resolveConfig layers MEDQA_* environment defaults, the config file and the
// flags the user actually set, in that order.
func resolveConfig(cmd *cobra.Command, opts *options) (config.Config, error) {
	cfg := envConfig()
	if opts.configPath != "" {
		fc, err := config.Load(opts.configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("load config: %w", err)
		}
		cfg = cfg.Merge(fc)
	}
	cfg = cfg.Merge(changedFlags(cmd.Flags(), opts.flags))
	return cfg.WithDefaults(), nil
}

// changedFlags returns the subset of f that was set on the command line.
func changedFlags(fs *pflag.FlagSet, f config.Config) config.Config {
	var out config.Config
	fs.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "addr":
			out.Addr = f.Addr
		case "assets-dir":
			out.AssetsDir = f.AssetsDir
		case "model":
			out.ModelPath = f.ModelPath
		case "embed-model":
			out.EmbedModelPath = f.EmbedModelPath
		case "index":
			out.IndexPath = f.IndexPath
		case "conversations-db":
			out.ConversationsDB = f.ConversationsDB
		case "no-conversations":
			out.DisableConversations = f.DisableConversations
		case "k":
			out.RetrievalK = f.RetrievalK
		case "cutoff":
			out.SimilarityCutoff = f.SimilarityCutoff
		case "context-tokens":
			out.ContextTokens = f.ContextTokens
		case "ctx-size":
			out.ModelContextSize = f.ModelContextSize
		case "threads":
			out.Threads = f.Threads
		case "gpu-layers":
			out.GPULayers = f.GPULayers
		case "max-tokens":
			out.MaxTokens = f.MaxTokens
		case "log-level":
			out.LogLevel = f.LogLevel
		case "cors":
			out.CORSEnabled = f.CORSEnabled
		case "cors-origins":
			out.CORSOrigins = f.CORSOrigins
		case "generate-timeout":
			out.GenerateTimeoutSeconds = f.GenerateTimeoutSeconds
		case "asset-wait":
			out.AssetWaitSeconds = f.AssetWaitSeconds
		case "max-body":
			out.MaxBodyBytes = f.MaxBodyBytes
		}
	})
	return out
}

// newLogger returns a console logger on stderr at the given level.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(lvl).With().Timestamp().Logger()
}
