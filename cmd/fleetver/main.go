package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fleetver/fleetver/internal/buildinfo"
	"github.com/fleetver/fleetver/internal/config"
	"github.com/fleetver/fleetver/internal/httputil"
	"github.com/fleetver/fleetver/internal/log"
	"github.com/fleetver/fleetver/internal/release"
	"github.com/fleetver/fleetver/internal/report"
	"github.com/fleetver/fleetver/internal/server"
)

var (
	configPath string
	verbose    bool
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "fleetver",
	Short: "Update-availability service for a deployed device fleet",
	Long: `fleetver answers "what is the next version after X, and where/how do
I fetch and verify it?" for a fleet of deployed devices, caching the
upstream release metadata so many device requests share few upstream
API calls.`,
	Version: buildinfo.Version(),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetDefault(newLogger())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the update API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "log errors only")

	serveCmd.Flags().String("listen", "", "listen address (overrides config)")
	serveCmd.Flags().String("owner", "", "release repository owner (overrides config)")
	serveCmd.Flags().String("repo", "", "release repository name (overrides config)")
	serveCmd.Flags().String("changelog-url", "", "changelog document URL (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(latestCmd)
}

// newLogger builds the process logger: human-readable text on a
// terminal, JSON otherwise.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if quiet {
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return log.New(handler)
}

// loadConfig merges the config file, environment, and any flags set on
// cmd. Flags win.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("listen") {
		cfg.Listen, _ = cmd.Flags().GetString("listen")
	}
	if cmd.Flags().Changed("owner") {
		cfg.Repo.Owner, _ = cmd.Flags().GetString("owner")
	}
	if cmd.Flags().Changed("repo") {
		cfg.Repo.Name, _ = cmd.Flags().GetString("repo")
	}
	if cmd.Flags().Changed("changelog-url") {
		cfg.ChangelogURL, _ = cmd.Flags().GetString("changelog-url")
	}
	return cfg, nil
}

// buildCore wires the release-metadata core from configuration.
func buildCore(cfg *config.Config, logger log.Logger) (*release.Cache, *release.Resolver, *release.HashLookup, *release.Changelog) {
	fetcher := release.NewGitHubFetcher(cfg.Repo.Owner, cfg.Repo.Name, cfg.Repo.Token, cfg.APITimeout.Duration)
	cache := release.NewCache(fetcher, cfg.CacheTTL.Duration, release.WithCacheLogger(logger.With("component", "cache")))

	docClient := httputil.NewClient(httputil.ClientOptions{Timeout: cfg.DocumentTimeout.Duration})
	resolver := release.NewResolver(cache, logger.With("component", "resolver"))
	hashes := release.NewHashLookup(cache, docClient, logger.With("component", "hashes"))
	changelog := release.NewChangelog(cache, docClient, logger.With("component", "changelog"))
	return cache, resolver, hashes, changelog
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := log.Default()
	cache, resolver, hashes, changelog := buildCore(cfg, logger)

	var sink report.Sink
	if cfg.ReportEnabled() {
		sinkClient := httputil.NewClient(httputil.ClientOptions{Timeout: cfg.DocumentTimeout.Duration})
		sink = report.NewTelegramSink(cfg.Telegram.Token, cfg.Telegram.ChatID, sinkClient)
	} else {
		logger.Warn("telegram credentials not configured, /report disabled")
	}

	srv := server.New(server.Options{
		Resolver:     resolver,
		Hashes:       hashes,
		Changelog:    changelog,
		Cache:        cache,
		Sink:         sink,
		ChangelogURL: cfg.ChangelogURL,
		HashSuffix:   cfg.HashSuffix,
		RateRPS:      cfg.RateLimit.RPS,
		RateBurst:    cfg.RateLimit.Burst,
		Logger:       logger.With("component", "http"),
	})

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving fleet update API",
			"listen", cfg.Listen,
			"repo", cfg.Repo.Owner+"/"+cfg.Repo.Name,
			"cache_ttl", cfg.CacheTTL.Duration)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
