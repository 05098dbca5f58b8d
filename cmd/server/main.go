package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/middleware"
	"github.com/tendant/simple-files/pkg/filestore/api"
	"github.com/tendant/simple-files/pkg/filestore/config"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("Server exited with error", "err", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine; the environment may be set directly
	_ = godotenv.Load()

	serverConfig, err := config.Load(config.WithEnv())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := serverConfig.SetupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := serverConfig.Build(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("Failed to release resources", "err", err)
		}
	}()

	routerConfig := api.RouterConfig{
		Service:        rt.Service,
		Logger:         logger,
		Ready:          rt.Ready,
		IdleTimeout:    serverConfig.StreamIdleTimeout,
		MaxUploadBytes: serverConfig.MaxUploadBytes,
	}
	if serverConfig.APIKeySHA256 != "" {
		apiKeyMiddleware, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
			APIKeys: map[string]string{
				"key1": serverConfig.APIKeySHA256,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to initialize API key middleware: %w", err)
		}
		routerConfig.Auth = apiKeyMiddleware
	}

	httpServer := &http.Server{
		Addr:              ":" + serverConfig.Port,
		Handler:           api.NewRouter(routerConfig),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("File server starting",
			"port", serverConfig.Port,
			"environment", serverConfig.Environment)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		rt.Sweeper.Start(gctx)
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		rt.Sweeper.Stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server exiting")
	return nil
}
