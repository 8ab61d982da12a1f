package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/thalesfsp/ho/v2"
	"github.com/thalesfsp/ho/v2/internal/config"
	"github.com/thalesfsp/ho/v2/internal/logging"
	"github.com/thalesfsp/ho/v2/internal/metrics"
	"github.com/thalesfsp/ho/v2/internal/rest"
	"github.com/thalesfsp/ho/v2/internal/store"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the experiment API over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, flush, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer flush()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	observer, err := metrics.NewObserver(reg)
	if err != nil {
		return err
	}

	labOpts := []ho.LabOption{
		ho.WithLabLogger(log.WithName("lab")),
		ho.WithLabObserver(observer),
	}

	if cfg.Store.Dir != "" {
		s, err := store.New(cfg.Store.Dir, time.Now())
		if err != nil {
			return err
		}

		log.Info("Persisting experiments", "dir", s.Dir(), "writeFrequency", cfg.Store.WriteFrequency)

		labOpts = append(labOpts, ho.WithLabPersister(s, cfg.Store.WriteFrequency))
	}

	lab := ho.NewLab(labOpts...)
	handlers := rest.NewHandlers(lab, cfg.Optimizer.OptimizationConfig, cfg.Server.BodyLimit, log.WithName("rest"),
		rest.WithMaxBatch(cfg.Server.MaxBatch))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           rest.NewRouter(handlers, reg),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info("Listening", "addr", cfg.Server.Addr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)

	if err := lab.PersistAll(shutdownCtx); err != nil {
		log.Error(err, "Failed to persist experiments")

		return errors.Join(shutdownErr, err)
	}

	return shutdownErr
}
