package main

import (
	"context"
	"os"

	"cortex/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

const version = "0.1.0"

func main() {
	// Load .env file if any
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("Warning: failed to load .env file")
		}
	}
	log.Logger = logger.Get()

	cmd := &cli.Command{
		Name:    "cortex",
		Usage:   "Personal assistant backbone: orchestrator, proxy, ledger and contacts services",
		Version: version,
		Commands: []*cli.Command{
			NewStartCommand(),
			NewReviewCommand(),
			NewDedupCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
