// Demo application for the login-flow smoke test.
//
// Serves the application under test on :8080 and its identity provider on
// :8081. Run the smoke test against it:
//
//	go run ./cmd/demo-app -require-login -password s3cret
//	AUTH_USERNAME=cypress@pessu.net AUTH_PASSWORD=s3cret go run ./cmd/smoke run
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pessu/auth0-smoke/cmd/demo-app/server"
)

func main() {
	def := server.DefaultConfig()
	addr := flag.String("addr", ":8080", "App listen address")
	idpAddr := flag.String("idp-addr", ":8081", "Identity provider listen address")
	requireLogin := flag.Bool("require-login", false, "Put the app behind the identity provider")
	username := flag.String("username", def.Username, "Identity provider account")
	password := flag.String("password", os.Getenv("AUTH_PASSWORD"), "Identity provider password")
	verbose := flag.Bool("verbose", false, "Log at debug level")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := def
	cfg.Addr = *addr
	cfg.IdPAddr = *idpAddr
	cfg.RequireLogin = *requireLogin
	cfg.Username = *username
	cfg.Password = *password
	cfg.Logger = logger

	srv, err := server.NewServer(cfg)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}
	if _, err := srv.Start(); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}
