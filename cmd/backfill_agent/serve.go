package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/shift-backfill/internal/backfill"
	"github.com/jonathan/shift-backfill/internal/server"
	"github.com/jonathan/shift-backfill/internal/server/ratelimit"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, signal consumer and deadline sweeper",
	Long: `Start an HTTP server exposing shift cancellation, response and webhook endpoints. When
REDIS_ADDR is set, signals are consumed from Redis Streams; otherwise they are handled inline.
A cron sweeper escalates runs whose deadline passed.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	port := a.cfg.Port
	if servePort > 0 {
		port = servePort
	}
	deps := server.Deps{
		Store:     a.store,
		Emitter:   a.emitter,
		Canceller: a.canceller,
		Audit:     a.audit,
		Log:       a.log,
		Metrics:   promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
	}
	if a.db != nil {
		deps.Ping = a.db.Ping
	}
	srv := server.New(server.Config{
		Port:              port,
		VapiWebhookSecret: a.cfg.Vapi.WebhookSecret,
		RateLimit: ratelimit.Config{
			Enabled:      a.cfg.RateLimit.Enabled,
			DefaultLimit: a.cfg.RateLimit.PerMinute * 5,
			Rules:        ratelimit.DefaultRules(a.cfg.RateLimit.PerMinute),
		},
	}, deps)

	sweeper := backfill.NewSweeper(a.store, a.controller, a.orch, a.cfg.Backfill.SweepInterval, a.log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return sweeper.Start(gctx) })
	if a.bus != nil {
		g.Go(func() error { return a.bus.Run(gctx, a.orch) })
	}
	return g.Wait()
}

// cmdContext returns the command's context or Background when run outside Execute.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
