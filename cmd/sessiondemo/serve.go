package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fyerfyer/fyer-session/internal/config"
	"github.com/fyerfyer/fyer-session/internal/demo"
	"github.com/fyerfyer/fyer-session/logger"
	"github.com/fyerfyer/fyer-session/session"
	"github.com/fyerfyer/fyer-session/session/cookiepropagator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and the expiry sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := config.OpenStore(ctx, cfg, config.StoreOptions{
		Logger:     log,
		Registerer: reg,
		Tracing:    true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close session store", logger.FieldError(err))
		}
	}()

	opts := append(cfg.ManagerOptions(), session.WithLogger(log))
	manager, err := session.NewManager(store, opts...)
	if err != nil {
		return err
	}
	if len(cfg.Secrets) == 0 {
		log.Warn("SESSION_SECRET is not set, session cookies are not signed")
	}
	prop := cookiepropagator.NewCookiePropagator(manager.CookieName(), cookiepropagator.WithSecrets(cfg.Secrets...))

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: demo.NewRouter(demo.Options{
			Manager:    manager,
			Propagator: prop,
			Logger:     log,
			Registry:   reg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	sweeper := session.NewSweeper(store,
		session.WithInterval(cfg.SweepInterval),
		session.WithSweeperLogger(log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", logger.String("addr", srv.Addr), logger.String("backend", cfg.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
