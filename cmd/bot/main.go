// Command bot is the gridward control-plane entrypoint: loads
// configuration, wires the engine, and runs until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"gridward/internal/config"
	"gridward/internal/engine"
	"gridward/internal/logging"
	"gridward/internal/notify"
)

func main() {
	log := logging.New(zerolog.InfoLevel)

	cfg, err := config.Load(".env", "users.yaml", "strategies.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	fmt.Printf("gridward: %d users configured\n", len(cfg.Users))

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Secrets.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.Secrets.TelegramToken, cfg.Secrets.TelegramChatID, log)
		if err != nil {
			log.Warn().Err(err).Msg("telegram notifier unavailable, falling back to no-op")
		} else {
			notifier = tg
		}
	}

	ring := logging.NewRing(5000, "gridward.log")

	e := engine.New(cfg, log, ring, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := e.Bootstrap(ctx); err != nil {
		log.Fatal().Err(err).Msg("bootstrap failed")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	log.Info().Msg("starting main loop")
	e.Run(ctx)
}
