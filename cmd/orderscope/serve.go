package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/orderscope/internal/dataset"
	"github.com/scrypster/orderscope/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the console API server",
	Long: `Serves the paged dataset, remote search, the query language and resolved
views over HTTP, plus a debounced search stream over WebSocket. The cache
warmer runs on its cron schedule while the server is up. With the dir chunk
source, chunk files rewritten on disk are dropped from the cache.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: host and port from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, appLog)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Warmer.Enabled {
		warmer, err := dataset.NewWarmer(a.service, cfg.Warmer.Schedule, appLog)
		if err != nil {
			return err
		}
		warmer.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			warmer.Stop(stopCtx)
		}()
	}

	watcher, err := a.watchChunks()
	if err != nil {
		return err
	}
	if watcher != nil {
		defer watcher.Stop()
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Addr()
	}
	srv := server.New(a.service, a.search, a.views, server.Options{
		Addr:      addr,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
		Debounce:  cfg.Search.Debounce.D(),
		Logger:    appLog,
	})
	bound, err := srv.Start(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("orderscope running at http://%s\n", bound)

	<-ctx.Done()
	appLog.Info("shutting down")
	return nil
}
