package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"medqa/internal/config"
	"medqa/internal/httpapi"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(opts *options) *cobra.Command {
	var warm bool
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the HTTP API",
		Example: "  medqa serve --addr :8080 --assets-dir ~/.medqa\n  medqa serve --config medqa.yaml --warm",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, warm)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.flags.Addr, "addr", "", "HTTP listen address (default :8080)")
	f.BoolVar(&opts.flags.CORSEnabled, "cors", false, "Enable CORS")
	f.StringSliceVar(&opts.flags.CORSOrigins, "cors-origins", nil, "Allowed CORS origins")
	f.Int64Var(&opts.flags.GenerateTimeoutSeconds, "generate-timeout", 0, "Per-request generation timeout in seconds (0 = none)")
	f.Int64Var(&opts.flags.AssetWaitSeconds, "asset-wait", 0, "Seconds to wait for missing assets during init (default 600)")
	f.Int64Var(&opts.flags.MaxBodyBytes, "max-body", 0, "Maximum request body in bytes (default 1MiB)")
	f.BoolVar(&warm, "warm", false, "Start loading the model immediately")
	return cmd
}

// configureHTTP pushes cfg into the httpapi package settings.
func configureHTTP(cfg config.Config) {
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetGenerateTimeoutSeconds(cfg.GenerateTimeoutSeconds)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins, nil, nil)
	if envStr("MEDQA_HTTP_LOG_LEVEL") == "" {
		httpapi.SetDefaultLogLevel(cfg.LogLevel)
	}
}

func runServe(ctx context.Context, cfg config.Config, warm bool) error {
	log := newLogger(cfg.LogLevel)
	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}()

	httpapi.SetLogger(log)
	httpapi.SetBaseContext(ctx)
	configureHTTP(cfg)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(a.svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if warm {
		a.svc.EnsureInit()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("assets_dir", cfg.AssetsDir).Msg("medqa listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.svc.Cancel()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	err = g.Wait()
	log.Info().Msg("medqa stopped")
	return err
}
