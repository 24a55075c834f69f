// Command approvebot runs the webhook daemon that auto-approves pull
// requests carrying an auto-approve reason.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/approvebot/pkg/approve"
	"github.com/codeGROOVE-dev/approvebot/pkg/approve/github"
	"github.com/codeGROOVE-dev/approvebot/pkg/config"
	"github.com/codeGROOVE-dev/approvebot/pkg/webhook"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Debug)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	clientOpts := []github.Option{
		github.WithLogger(logger),
		github.WithApprovalComment(cfg.Engine.ApprovalComment),
	}
	if cfg.GitHub.APIBaseURL != "" {
		clientOpts = append(clientOpts, github.WithBaseURL(cfg.GitHub.APIBaseURL))
	}
	client := github.NewClient(cfg.GitHub.Token, clientOpts...)

	engine := approve.NewEngine(client,
		approve.WithLogger(logger),
		approve.WithBotLogin(cfg.Engine.BotLogin),
		approve.WithBlocklist(cfg.Engine.Blocklist),
		approve.WithApplyLabels(cfg.Engine.ApplyLabels),
	)

	if cfg.GitHub.WebhookSecret == "" {
		logger.Warn("webhook secret not configured, signature checks disabled")
	}
	handler := webhook.NewHandler(engine, cfg.GitHub.WebhookSecret, logger)

	server := &http.Server{
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
		Addr:              cfg.HTTP.ListenAddress,
		Handler:           handler.Router(),
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server started",
			"address", server.Addr, "bot", cfg.Engine.BotLogin)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server.ListenAndServe: %w", err)
		}
		logger.Info("http server stopped listening")
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("http server is shutting down", "timeout", cfg.HTTP.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server.Shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("g.Wait: %w", err)
	}
	return nil
}

// newLogger picks a human-readable handler for debug runs and JSON
// otherwise.
func newLogger(debug bool) *slog.Logger {
	if debug {
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
