// Package main implements the unichat CLI: a unified message store fed by
// web-scraping clients for the supported chat services.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/njavet/unichat/internal/browser"
	"github.com/njavet/unichat/internal/config"
	"github.com/njavet/unichat/internal/logging"
	"github.com/njavet/unichat/internal/scraper"
	"github.com/njavet/unichat/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string
	service    string

	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "unichat",
	Short: "unichat - unified chat message aggregator",
	Long: `unichat aggregates chat messages from multiple web services into one
local contact-centric message store.

Service clients drive a shared headless browser session; messages are
normalized, deduplicated and persisted in SQLite keyed by local contacts
rather than per-service identities.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			// Fall back to a stderr-only logger so the error is visible.
			logger, _ = logging.New("", verbose)
			return err
		}
		logger, err = logging.New(cfg.LogsDir(), verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// app bundles the shared runtime pieces a command needs.
type app struct {
	cfg *config.Provider
	st  *store.Store
	sm  *browser.SessionManager

	stopWatch func()
}

// newApp loads config, opens the store and prepares (but does not start)
// the browser session manager. Commands that never touch the browser just
// don't call sm.Start.
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	provider := config.NewProvider(cfg)
	stopWatch, err := provider.Watch(configPath, logger)
	if err != nil {
		logger.Warn("config watch unavailable", zap.Error(err))
		stopWatch = func() {}
	}
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		stopWatch()
		return nil, err
	}
	sm := browser.NewSessionManager(cfg.Browser, cfg.BrowserUserDataDir(), cfg.TabStorePath(), logger)
	return &app{cfg: provider, st: st, sm: sm, stopWatch: stopWatch}, nil
}

func (a *app) close() {
	a.stopWatch()
	if err := a.sm.Shutdown(); err != nil {
		logger.Debug("browser shutdown", zap.Error(err))
	}
	if err := a.st.Close(); err != nil {
		logger.Warn("closing store failed", zap.Error(err))
	}
}

// client returns the scraper for the --service flag.
func (a *app) client() (scraper.Client, error) {
	switch service {
	case scraper.ServiceWhatsApp:
		return scraper.NewWhatsApp(a.sm, a.st, a.cfg, logger), nil
	case scraper.ServiceInstagram:
		return scraper.NewInstagram(a.sm, a.st, a.cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown service %q", service)
	}
}

// startSession brings the browser up and verifies the service is logged
// in, prompting through the login flow when it isn't.
func (a *app) startSession(ctx context.Context, c scraper.Client) error {
	if err := a.sm.Start(ctx); err != nil {
		return err
	}
	logged, err := c.IsLoggedIn(ctx)
	if err != nil {
		return err
	}
	if logged {
		return nil
	}
	return runLoginFlow(ctx, a, c)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.ConfigPath(), "config file path")
	rootCmd.PersistentFlags().StringVarP(&service, "service", "s", scraper.ServiceWhatsApp, "chat service (whatsapp, instagram)")

	rootCmd.AddCommand(contactCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(chatsCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error("command failed", zap.Error(err))
			_ = logger.Sync()
		}
		os.Exit(1)
	}
}

// operationTimeout bounds the interactive commands; watch runs without
// one.
const operationTimeout = 5 * time.Minute

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), operationTimeout)
}
