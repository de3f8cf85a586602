package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"elementd/internal/config"
	"elementd/internal/httpapi"
	"elementd/internal/registry"
	"elementd/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	defaultAddr := ""
	if v := os.Getenv("ELEMENTD_ADDR"); v != "" {
		defaultAddr = v
	}
	serveCmd.Flags().String("addr", defaultAddr, "HTTP listen address, e.g. :8080")
	serveCmd.Flags().String("elements-dir", "", "Directory of *.yaml/*.json element files to seed")
	serveCmd.Flags().Int64("max-body-bytes", 0, "Maximum request body size in bytes")
	serveCmd.Flags().Int("max-batch-events", 0, "Maximum events per batch request")
	serveCmd.Flags().Bool("cors", false, "Enable CORS")
	serveCmd.Flags().String("cors-origins", "", "Comma-separated allowed origins")
	serveCmd.Flags().Duration("shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")
}

// loadConfig reads --config when set and applies flag overrides on top.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		c, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	flags := cmd.Flags()
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if flags.Lookup("addr") != nil {
		if v, _ := flags.GetString("addr"); v != "" {
			cfg.Addr = v
		}
	}
	if flags.Changed("elements-dir") {
		cfg.ElementsDir, _ = flags.GetString("elements-dir")
	}
	if flags.Changed("max-body-bytes") {
		cfg.MaxBodyBytes, _ = flags.GetInt64("max-body-bytes")
	}
	if flags.Changed("cors") {
		cfg.CORS.Enabled, _ = flags.GetBool("cors")
	}
	if flags.Changed("cors-origins") {
		v, _ := flags.GetString("cors-origins")
		cfg.CORS.AllowedOrigins = splitCSV(v)
	}
	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	lm, err := httpapi.NewLifecycleMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register lifecycle metrics: %w", err)
	}
	scfg := service.ConfigFrom(cfg, &logger)
	scfg.Publisher = lm
	svc := service.New(scfg)
	defer svc.Close()
	prometheus.MustRegister(httpapi.NewStatusCollector(svc.Status))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.ElementsDir != "" {
		els, err := registry.LoadDir(cfg.ElementsDir)
		if err != nil {
			return fmt.Errorf("load elements: %w", err)
		}
		if err := svc.Seed(ctx, els); err != nil {
			return fmt.Errorf("seed elements: %w", err)
		}
	} else {
		svc.MarkReady()
	}

	httpapi.SetLogger(logger)
	httpapi.SetDefaultLogLevel(cfg.LogLevel)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	if n, _ := cmd.Flags().GetInt("max-batch-events"); n > 0 {
		httpapi.SetMaxBatchEvents(n)
	}
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders)
	httpapi.SetBaseContext(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("elements_dir", cfg.ElementsDir).Msg("elementd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	timeout, _ := cmd.Flags().GetDuration("shutdown-timeout")
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	logger.Info().Msg("shutting down")
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	return nil
}
