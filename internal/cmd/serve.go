package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/nexus/internal/config"
	"github.com/dativo-io/nexus/internal/proactive"
	"github.com/dativo-io/nexus/internal/server"
)

var (
	servePort      int
	serveProactive bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the proactive scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP server port")
	serveCmd.Flags().BoolVar(&serveProactive, "proactive", true, "run the proactive outreach scheduler")
	rootCmd.AddCommand(serveCmd)
}

// parseAPIKeys returns a map of key -> tenant_id from NEXUS_API_KEYS
// (comma-separated key:tenant_id entries). Entries without a tenant are
// skipped: every key must be bound to one tenant.
func parseAPIKeys(env string) map[string]string {
	m := make(map[string]string)
	for _, part := range strings.Split(env, ",") {
		part = strings.TrimSpace(part)
		idx := strings.Index(part, ":")
		if idx <= 0 {
			if part != "" {
				log.Warn().Msg("NEXUS_API_KEYS entry without tenant ignored")
			}
			continue
		}
		key, tenantID := strings.TrimSpace(part[:idx]), strings.TrimSpace(part[idx+1:])
		if key == "" || tenantID == "" {
			continue
		}
		m[key] = tenantID
	}
	return m
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.reloader != nil {
		go func() {
			if err := rt.reloader.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("guardian_reloader_stopped")
			}
		}()
	}

	jobs := proactive.NewRegistry()
	consent := proactive.NewConsentStore()
	scheduler := proactive.NewScheduler(jobs, consent)
	if serveProactive {
		if err := scheduler.Start(cfg.ProactiveCron); err != nil {
			return fmt.Errorf("starting proactive scheduler: %w", err)
		}
		defer scheduler.Stop()
	}

	apiKeys := parseAPIKeys(os.Getenv("NEXUS_API_KEYS"))
	if len(apiKeys) == 0 {
		log.Warn().Msg("NEXUS_API_KEYS not set; /v1 endpoints accept any tenant_id. Set for production.")
	}

	srv := server.NewServer(rt.pipeline, rt.audit, rt.audit,
		server.WithAPIKeys(apiKeys),
		server.WithProactive(jobs, consent),
		server.WithCORSOrigins([]string{"*"}),
	)

	addr := fmt.Sprintf(":%d", servePort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Str("config_root", cfg.ConfigRoot).
		Str("completion_mode", cfg.CompletionMode).
		Bool("guardian_hot_reload", rt.reloader != nil).
		Bool("redis_turns", cfg.RedisAddr != "").
		Int("cron_entries", scheduler.Entries()).
		Msg("nexus_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
