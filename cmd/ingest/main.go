package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tickfeed/internal/config"
	_ "github.com/JonMunkholm/tickfeed/internal/core/feeds" // Register built-in feeds
	"github.com/JonMunkholm/tickfeed/internal/logging"
)

func main() {
	// A .env file is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:   "ingest",
		Short: "Decode and ingest market data feed files",
		Long: `Decode comma-separated market data files through a registered feed
layout, apply filters, and optionally store accepted observations in
PostgreSQL (DATABASE_URL).

Examples:
  ingest feeds
  ingest run --feed daily_bars bars-2024-01.csv bars-2024-02.csv
  ingest run --feed ric_quotes --symbols VOD,BARC --store quotes.csv
  cat trades.csv | ingest run --feed intraday_trades -`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newFeedsCmd())
	root.AddCommand(newRunCmd(cfg))
	return root
}
