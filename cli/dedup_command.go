package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"cortex/common"
	"cortex/embedding"
	"cortex/llm"
	"cortex/memory"
	"cortex/proxy"
	"cortex/srv/sqlite"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

func NewDedupCommand() *cli.Command {
	return &cli.Command{
		Name:  "dedup",
		Usage: "Deduplicate a user's memories and topics",
		Description: "Runs the memory maintenance passes for one user. By default all three " +
			"passes run (keyword overlap, semantic clusters, topic merges); use flags to run " +
			"a subset. --preview prints the planned work without changing anything.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "User id to deduplicate",
				Required: true,
			},
			&cli.BoolFlag{
				Name:    "keywords",
				Aliases: []string{"k"},
				Usage:   "Run the keyword-overlap pass",
			},
			&cli.BoolFlag{
				Name:    "semantic",
				Aliases: []string{"s"},
				Usage:   "Run the semantic-cluster pass",
			},
			&cli.BoolFlag{
				Name:    "topics",
				Aliases: []string{"t"},
				Usage:   "Run the topic-merge pass",
			},
			&cli.BoolFlag{
				Name:  "preview",
				Usage: "Print the planned work instead of applying it",
			},
		},
		Action: handleDedupCommand,
	}
}

func handleDedupCommand(ctx context.Context, cmd *cli.Command) error {
	userId := cmd.String("user")
	keywords := cmd.Bool("keywords")
	semantic := cmd.Bool("semantic")
	topics := cmd.Bool("topics")
	preview := cmd.Bool("preview")

	if !keywords && !semantic && !topics {
		keywords, semantic, topics = true, true, true
	}

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

	embedder, err := embedding.NewEmbedder(config)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	cached := embedding.NewCachedEmbedder(embedder, embeddingCache(storage), config.Embedding.Model)
	engine := memory.NewEngine(storage, cached, proxyService, config)

	dedupCtx, cancel := context.WithTimeout(ctx, config.DedupTimeout())
	defer cancel()

	if keywords {
		if preview {
			groups, err := engine.PreviewKeywordDedup(dedupCtx, userId)
			if err != nil {
				return err
			}
			printPlan("keyword groups", groups)
		} else if err := engine.RunKeywordDedup(dedupCtx, userId); err != nil {
			return fmt.Errorf("keyword dedup failed: %w", err)
		}
	}

	if semantic {
		if preview {
			clusters, err := engine.PreviewSemanticDedup(dedupCtx, userId)
			if err != nil {
				return err
			}
			printPlan("semantic clusters", clusters)
		} else if err := engine.RunSemanticDedup(dedupCtx, userId); err != nil {
			return fmt.Errorf("semantic dedup failed: %w", err)
		}
	}

	if topics {
		if preview {
			merges, err := engine.PreviewTopicDedup(dedupCtx, userId)
			if err != nil {
				return err
			}
			printPlan("topic merges", merges)
		} else if err := engine.RunTopicDedup(dedupCtx, userId); err != nil {
			return fmt.Errorf("topic dedup failed: %w", err)
		}
	}

	if !preview {
		log.Info().Str("userId", userId).Msg("Dedup finished")
	}
	return nil
}

func printPlan(label string, plan any) {
	fmt.Fprintf(os.Stdout, "%s:\n", label)
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(plan); err != nil {
		log.Error().Err(err).Msg("Failed to print plan")
	}
}
