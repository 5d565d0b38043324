package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anp-network/node/internal/config"
	"github.com/anp-network/node/internal/logger"
	"github.com/anp-network/node/internal/metrics"
	"github.com/anp-network/node/pkg/node"
	"github.com/anp-network/node/pkg/provider"
	"github.com/anp-network/node/pkg/store"
	"github.com/anp-network/node/pkg/store/postgres"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the node: start the owner API, the peer wire protocol, and the background loops",
	Long: `serve loads configuration, opens the configured store, selects the
configured language-model provider, and runs the node until interrupted
(SIGINT/SIGTERM) or until its context is otherwise cancelled.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if problems := cfg.Validate(); len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(os.Stderr, "config warning: %s\n", p)
		}
	}

	log := newConfiguredLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	prov, err := newProvider(cfg.Provider)
	if err != nil {
		return fmt.Errorf("configure provider: %w", err)
	}

	n, err := node.New(cfg, log, st, prov)
	if err != nil {
		return fmt.Errorf("construct node: %w", err)
	}

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		go func() {
			log.Info("metrics server starting", logger.String("addr", cfg.Metrics.Addr))
			if err := metrics.StartServer(cfg.Metrics.Addr); err != nil {
				log.Error("metrics server stopped", logger.Error(err))
			}
		}()
	}

	log.Info("node starting", logger.String("did", n.Identity().DID()), logger.Int("port", cfg.Port))
	return n.Run(ctx)
}

// loadConfig honors --config when given, otherwise falls back to the
// environment-detecting loader.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

func newConfiguredLogger(cfg *config.Config) *logger.StructuredLogger {
	out := os.Stdout
	if cfg.Logging != nil && cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	level := logger.InfoLevel
	if cfg.Logging != nil {
		switch strings.ToUpper(cfg.Logging.Level) {
		case "DEBUG":
			level = logger.DebugLevel
		case "WARN":
			level = logger.WarnLevel
		case "ERROR":
			level = logger.ErrorLevel
		}
	}

	log := logger.NewLogger(out, level)
	if cfg.Logging != nil {
		log.SetPrettyPrint(cfg.Logging.Format == "pretty")
	}
	return log
}

// openStore selects the storage backend named by cfg.Storage.Driver. The
// postgres branch passes the configured DSN straight through rather than
// decomposing it into discrete host/port/user fields, since pgx accepts
// both URL and keyword connection strings directly.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return postgres.NewStoreFromDSN(ctx, cfg.Storage.PostgresDSN)
	case "file", "":
		return store.NewFileStore(cfg.Storage.Root)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// newProvider selects the language-model backend named by cfg.Name. A nil
// cfg, an empty name, or "mock" selects the canned-reply mock provider;
// "anthropic" selects Anthropic's Messages API and requires an API key. Any
// other name is an error.
func newProvider(cfg *config.ProviderConfig) (provider.Provider, error) {
	if cfg == nil || cfg.Name == "" || cfg.Name == "mock" {
		return provider.NewMockProvider("I'm still getting configured, ask my owner to finish setup."), nil
	}

	switch cfg.Name {
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider %q requires an api_key", cfg.Name)
		}
		return provider.NewAnthropicProvider(provider.AnthropicConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}
