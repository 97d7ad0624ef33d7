package main

import (
	"context"
	"fmt"

	"cortex/common"
	"cortex/ledger"
	"cortex/llm"
	"cortex/proxy"
	"cortex/srv/sqlite"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

func NewReviewCommand() *cli.Command {
	return &cli.Command{
		Name:  "review",
		Usage: "Review untagged conversation history into topics and memories",
		Description: "Runs the log review over every recently active user: untagged messages " +
			"are grouped into topics and distilled into memories. Uses its own in-process " +
			"dispatcher, so no other cortex services need to be running.",
		Action: handleReviewCommand,
	}
}

func handleReviewCommand(ctx context.Context, cmd *cli.Command) error {
	config, err := common.GetConfig(common.GetDefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	storage, err := sqlite.NewStorageFromPaths(config.DB.Path, config.DB.KVPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer storage.Close()

	dispatcher := llm.NewProviderDispatcher(config.Providers)
	proxyService := proxy.NewService(dispatcher, proxy.Options{})
	proxyService.Start(ctx)
	defer proxyService.Stop()

	service := ledger.NewService(storage, proxyService, config)

	reviewCtx, cancel := context.WithTimeout(ctx, config.DedupTimeout())
	defer cancel()
	if err := service.ReviewLog(reviewCtx); err != nil {
		return fmt.Errorf("review failed: %w", err)
	}
	log.Info().Msg("Review finished")
	return nil
}
