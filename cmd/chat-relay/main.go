package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/orchestra-mcp/chat-relay/config"
	"github.com/orchestra-mcp/chat-relay/providers"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chat-relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine; the environment still applies.
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := cfg.NewLogger(os.Stderr)

	server, err := providers.NewChatServer(cfg, log)
	if err != nil {
		return err
	}
	if err := server.Activate(); err != nil {
		return fmt.Errorf("activate: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errChan:
		_ = server.Deactivate()
		return fmt.Errorf("serve: %w", err)
	}

	if err := server.Deactivate(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("stopped")
	return nil
}
