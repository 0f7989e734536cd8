// Command interceptd runs the interception engine's management surface.
//
// Configuration is taken from the environment:
//
//	INTERCEPTD_CONFIG      path to the root options file (default interceptd.json)
//	INTERCEPTD_ADDR        control API listen address (default :8897)
//	INTERCEPTD_LOG_LEVEL   debug, info, warn, error (default info)
//	INTERCEPTD_LOG_FORMAT  text or json (default text)
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getmockd/interceptd/pkg/config"
	"github.com/getmockd/interceptd/pkg/control"
	"github.com/getmockd/interceptd/pkg/engine"
	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/token"
)

const shutdownTimeout = 5 * time.Second

func main() {
	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(envOr("INTERCEPTD_LOG_LEVEL", "info")),
		Format: logging.Format(envOr("INTERCEPTD_LOG_FORMAT", "text")),
	})

	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := envOr("INTERCEPTD_CONFIG", "interceptd.json")
	addr := envOr("INTERCEPTD_ADDR", ":8897")

	store := config.NewStore(configPath, logging.Component(log, "config"))
	defer store.Close()

	eng := engine.New(store, log)
	if err := eng.Start(ctx); err != nil {
		return err
	}

	issuer, err := token.NewIssuer()
	if err != nil {
		return err
	}

	api := control.New(eng, issuer, logging.Component(log, "control"))
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("control API listening", "addr", addr, "config", configPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
