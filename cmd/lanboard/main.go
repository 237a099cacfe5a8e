// lanboard is a passphrase-protected realtime message board for local networks.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lanboard/lanboard/internal/board"
	"github.com/lanboard/lanboard/internal/config"
	"github.com/lanboard/lanboard/internal/history"
	"github.com/lanboard/lanboard/internal/hub"
	"github.com/lanboard/lanboard/internal/metrics"
	"github.com/lanboard/lanboard/internal/server"
	"github.com/lanboard/lanboard/internal/store"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lanboard",
		Short: "LanBoard - realtime LAN message board",
		Long: `LanBoard runs a passphrase-protected message board on your local network.

Any device on the network can open the board page, post text and files, and
see everyone else's posts instantly. History survives restarts; uploaded
files are swept after a configurable retention period.

QUICK START:

  # Start with defaults (config.yaml is created on first run):
  lanboard serve

  # Then open the printed address (or scan the QR code on the page)
  # from any device on your network.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the board server",
		RunE:  runServe,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("lanboard %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	setupLogging()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := server.SelfCheck(cfg.DataDir, cfg.ListenAddr()); err != nil {
		return fmt.Errorf("self-check failed: %w", err)
	}

	st, err := store.New(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("open attachment store: %w", err)
	}

	hist := history.New(filepath.Join(cfg.DataDir, "history.jsonl"), cfg.HistoryLimit)
	if err := hist.Load(); err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	log.Info().Int("messages", hist.Len()).Msg("history loaded")

	m := metrics.New()
	svc := board.NewService(cfg.Passphrase, cfg.MaxFileBytes(), hist, st, hub.New(), m)
	srv := server.New(cfg, svc, st, m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := board.NewSweeper(st, cfg.RetentionAge(), cfg.SweepEvery(), m)
	go sweeper.Run(ctx)

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", cfg.ListenAddr()).Str("board", srv.BoardURL()).Msg("lanboard serving")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
