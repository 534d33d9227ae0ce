package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/tara-call/backend/internal/config"
	"github.com/zhouzirui/tara-call/backend/internal/handler"
	"github.com/zhouzirui/tara-call/backend/internal/metrics"
	"github.com/zhouzirui/tara-call/backend/internal/model/agent"
	"github.com/zhouzirui/tara-call/backend/internal/service/credentials"
	feedbackservice "github.com/zhouzirui/tara-call/backend/internal/service/feedback"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "api",
		Short:         "Tara voice-call backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file
			envErr := godotenv.Load()

			loaded, err := config.Load()
			if err != nil {
				return err
			}
			setupLogger(loaded.Log)
			if envErr != nil {
				log.Debug().Err(envErr).Msg("no .env file, continuing with system environment variables only")
			}
			cfg = loaded
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply feedback table migrations for the postgres or sqlite store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context(), cfg.Storage)
		},
	})

	return root
}

func serve(ctx context.Context, cfg *config.Config) error {
	recorder, err := metrics.New(ctx, cfg.Metrics)
	if err != nil {
		log.Warn().Err(err).Msg("metrics exporter unavailable, continuing without metrics")
		recorder = metrics.Noop()
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := recorder.Close(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics shutdown failed")
		}
	}()

	store, err := openFeedbackStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("feedback store close failed")
		}
	}()

	agents := agent.NewMemoryStore(agent.Seed())
	if cfg.LiveKit.URL == "" || cfg.LiveKit.APIKey == "" || cfg.LiveKit.APISecret == "" {
		log.Warn().Msg("LiveKit 凭证未配置完整，/api/connection-details 将返回 500")
	}

	router := handler.NewRouter(handler.Deps{
		Agents:      agents,
		Credentials: credentials.NewService(cfg.LiveKit, agents, recorder),
		Feedback: feedbackservice.NewService(store, feedbackservice.Options{
			Agent:   cfg.Storage.Agent,
			Timeout: cfg.Storage.Timeout,
			Metrics: recorder,
		}),
		Call:    cfg.Call,
		Metrics: recorder,
	})

	return startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Tara backend listening")
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
