package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/unimail/unimail/internal/config"
	"github.com/unimail/unimail/internal/oauth"
	"github.com/unimail/unimail/internal/store"
	"github.com/unimail/unimail/internal/unified"
)

var (
	cfgFile string
	homeDir string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "unimail",
	Short: "Unified multi-account Gmail inbox",
	Long: `unimail merges several Gmail accounts into one logical inbox:
a single ranked message stream, one search surface, and one summary.

It serves the inbox to MCP clients (Claude Desktop and others) over
stdio, and optionally over a local HTTP API.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Set up logging
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))

		// Load config (--home is passed through so it influences
		// where config.toml is loaded from, like UNIMAIL_HOME).
		var err error
		cfg, err = config.Load(cfgFile, homeDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// Ensure home directory exists on first use
		if err := cfg.EnsureHomeDir(); err != nil {
			return fmt.Errorf("create data directory %s: %w", cfg.HomeDir, err)
		}

		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// oauthSetupHint returns help text for OAuth configuration issues.
func oauthSetupHint() string {
	return `
To use unimail, you need a Google Cloud OAuth credential:
  1. Create an OAuth client ID (Desktop app) in the Google Cloud console
  2. Enable the Gmail API for the project
  3. Add the credential to ~/.unimail/config.toml:
       [oauth]
       client_id = "..."
       client_secret = "..."
     or export GOOGLE_OAUTH_CLIENT_ID and GOOGLE_OAUTH_CLIENT_SECRET`
}

// openStore opens the account database and ensures the schema exists.
func openStore() (*store.Store, error) {
	s, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := s.InitSchema(); err != nil {
		s.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// newFlow builds the interactive OAuth flow from config, with setup
// instructions when credentials are missing.
func newFlow() (*oauth.Flow, error) {
	flow, err := oauth.NewFlow(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, logger)
	if err != nil {
		return nil, fmt.Errorf("%w%s", err, oauthSetupHint())
	}
	return flow, nil
}

// buildAggregator wires the credential store, token manager, and
// aggregator together. The returned aggregator refreshes tokens as
// needed via the manager.
func buildAggregator(s *store.Store) (*unified.Aggregator, error) {
	flow, err := newFlow()
	if err != nil {
		return nil, err
	}
	manager := oauth.NewManager(flow.Config(), s, logger,
		oauth.WithRateLimit(float64(cfg.Fetch.RateLimitQPS)),
		oauth.WithConcurrency(cfg.Fetch.Concurrency),
	)
	return unified.New(s, manager, logger,
		unified.WithConcurrency(cfg.Fetch.Concurrency),
	), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.unimail/config.toml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "home directory (overrides UNIMAIL_HOME)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
