package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	httpx "github.com/splax/peephost/internal/http"
	"github.com/splax/peephost/internal/repository/filestore"
	"github.com/splax/peephost/internal/ws"
	"github.com/splax/peephost/pkg/logger"
)

func (c *cli) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API with live registry updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = c.cfg.DashboardAddr
			}
			return c.serve(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from dashboard_addr)")
	return cmd
}

func (c *cli) serve(ctx context.Context, addr string) error {
	if strings.TrimSpace(c.cfg.JWTSecret) == "" {
		return errors.New("jwt_secret must be configured to serve the dashboard")
	}
	log := logger.New("peephost-dashboard", logger.ParseLevel(c.cfg.LogLevel))
	c.log = log

	a, err := c.newApp(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.Close()

	watcher, err := filestore.NewWatcher(c.cfg.RegistryPath, 200*time.Millisecond, log)
	if err != nil {
		return err
	}
	changes, err := watcher.Start()
	if err != nil {
		return err
	}
	defer watcher.Stop()

	hub := ws.NewHub()
	defer hub.Close()

	limiter := httpx.NewMemoryRateLimiter()
	if redisAddr := strings.TrimSpace(c.cfg.RedisAddr); redisAddr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(redisAddr, c.cfg.RedisPassword, c.cfg.RedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	health := map[string]httpx.HealthCheck{
		"registry": func(ctx context.Context) error {
			_, err := a.store.List(ctx)
			return err
		},
	}
	if a.docker != nil {
		health["docker"] = a.docker.Ping
	}

	router := httpx.NewRouter(httpx.Options{
		Logger:     log,
		Projects:   a.projects,
		Hub:        hub,
		Limiter:    limiter,
		Rate:       httpx.RateConfig{Requests: c.cfg.RateLimitRequests, Window: c.cfg.RateLimitWindow},
		Secret:     c.cfg.JWTSecret,
		Registerer: prometheus.DefaultRegisterer,
		Gatherer:   prometheus.DefaultGatherer,
		Health:     health,
	})
	defer router.Close()

	go ws.Feed(ctx, hub, ws.TopicProjects, changes, router.Snapshot, log)

	// Provisioning requests run package installs and certbot, so writes
	// get a long deadline.
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Minute,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("dashboard starting", "addr", addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("dashboard stopped")
		return nil
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
