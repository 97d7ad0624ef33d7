package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cortex/brain"
	"cortex/common"
	"cortex/contacts"
	"cortex/embedding"
	"cortex/fflag"
	"cortex/ledger"
	"cortex/llm"
	"cortex/memory"
	"cortex/nats"
	"cortex/proxy"
	"cortex/schedule"
	"cortex/srv"
	"cortex/srv/jetstream"
	"cortex/srv/redis"
	"cortex/srv/sqlite"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func NewStartCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Start the cortex services",
		Description: "Starts the cortex service constellation. By default every service runs " +
			"in this process; use flags to run only a subset and point the rest at remote " +
			"instances via BRAIN_PORT, PROXY_PORT, LEDGER_PORT and CONTACTS_PORT.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "brain",
				Aliases: []string{"b"},
				Usage:   "Enable the orchestrator service",
			},
			&cli.BoolFlag{
				Name:    "proxy",
				Aliases: []string{"p"},
				Usage:   "Enable the LLM proxy service",
			},
			&cli.BoolFlag{
				Name:    "ledger",
				Aliases: []string{"l"},
				Usage:   "Enable the conversation ledger service (includes the scheduler)",
			},
			&cli.BoolFlag{
				Name:    "contacts",
				Aliases: []string{"c"},
				Usage:   "Enable the contacts service",
			},
			&cli.BoolFlag{
				Name:    "nats",
				Aliases: []string{"n"},
				Usage:   "Enable the embedded NATS server",
			},
		},
		Action: handleStartCommand,
	}
}

func handleStartCommand(cliCtx context.Context, cmd *cli.Command) error {
	runBrain := cmd.Bool("brain")
	runProxy := cmd.Bool("proxy")
	runLedger := cmd.Bool("ledger")
	runContacts := cmd.Bool("contacts")
	runNats := cmd.Bool("nats")

	// no services specified: run everything
	if !runBrain && !runProxy && !runLedger && !runContacts && !runNats {
		runBrain, runProxy, runLedger, runContacts, runNats = true, true, true, true, true
	}

	config, err := common.GetConfig(common.GetDefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	flags, err := fflag.NewFFlag(config.FlagsPath)
	if err != nil {
		return fmt.Errorf("failed to initialize feature flags: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(ctx)

	var storage srv.Storage
	if runBrain || runLedger || runContacts {
		sqliteStorage, err := sqlite.NewStorageFromPaths(config.DB.Path, config.DB.KVPath)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer sqliteStorage.Close()
		storage = sqliteStorage
	}

	if runNats {
		natsServer, err := nats.GetOrNewServer()
		if err != nil {
			return fmt.Errorf("failed to create NATS server: %w", err)
		}
		if err := natsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start NATS server: %w", err)
		}
		group.Go(func() error {
			<-ctx.Done()
			log.Info().Msg("Stopping NATS server...")
			return natsServer.Stop()
		})
	}

	// the proxy handle is either the in-process service or an HTTP client
	// pointed at a remote proxy
	var llmProxy brain.Proxy
	if runProxy {
		dispatcher := llm.NewProviderDispatcher(config.Providers)
		proxyService := proxy.NewService(dispatcher, proxy.Options{})
		proxyService.Start(ctx)
		proxySrv := proxy.RunServer(proxyService, config)
		log.Info().Int("port", common.GetProxyPort()).Msg("Proxy service started")

		group.Go(func() error {
			<-ctx.Done()
			log.Info().Msg("Stopping proxy service...")
			proxyService.Stop()
			return shutdownServer(proxySrv)
		})
		llmProxy = proxyService
	} else {
		llmProxy = proxy.NewClient(localURL(common.GetProxyPort()), config.Timeout())
	}

	var ledgerHandle ledger.Ledger
	if runLedger {
		ledgerService := ledger.NewService(storage, llmProxy, config)
		ledgerSrv := ledger.RunServer(ledgerService)
		log.Info().Int("port", common.GetLedgerPort()).Msg("Ledger service started")

		embedder, err := embedding.NewEmbedder(config)
		if err != nil {
			return fmt.Errorf("failed to create embedder: %w", err)
		}
		cached := embedding.NewCachedEmbedder(embedder, embeddingCache(storage), config.Embedding.Model)
		engine := memory.NewEngine(storage, cached, llmProxy, config)

		scheduler := schedule.NewScheduler(ledgerService, engine, storage, config, flags)
		group.Go(func() error {
			scheduler.Run(ctx)
			return nil
		})
		group.Go(func() error {
			<-ctx.Done()
			log.Info().Msg("Stopping ledger service...")
			return shutdownServer(ledgerSrv)
		})
		ledgerHandle = ledgerService
	} else {
		ledgerHandle = ledger.NewClient(localURL(common.GetLedgerPort()), config.Timeout())
	}

	var contactsHandle contacts.Contacts
	if runContacts {
		contactsService := contacts.NewService(storage)
		contactsSrv := contacts.RunServer(contactsService)
		log.Info().Int("port", common.GetContactsPort()).Msg("Contacts service started")

		group.Go(func() error {
			<-ctx.Done()
			log.Info().Msg("Stopping contacts service...")
			return shutdownServer(contactsSrv)
		})
		contactsHandle = contactsService
	} else {
		contactsHandle = contacts.NewClient(localURL(common.GetContactsPort()), config.Timeout())
	}

	if runBrain {
		embedder, err := embedding.NewEmbedder(config)
		if err != nil {
			return fmt.Errorf("failed to create embedder: %w", err)
		}
		cached := embedding.NewCachedEmbedder(embedder, embeddingCache(storage), config.Embedding.Model)
		engine := memory.NewEngine(storage, cached, llmProxy, config)

		streamer := connectStreamer()
		mode := brain.NewMode(config)
		orchestrator := brain.NewOrchestrator(brain.OrchestratorParams{
			Config:    config,
			Contacts:  contactsHandle,
			Ledger:    ledgerHandle,
			Memories:  &brain.EngineMemoryStore{Storage: storage, Engine: engine},
			Proxy:     llmProxy,
			Mode:      mode,
			Streamer:  streamer,
			Brainlets: brain.NewBrainletRunner(config, llmProxy, flags),
		})

		ollama := llm.NewOllamaAdapter(config.Provider("ollama"))
		ctrl := brain.NewController(orchestrator, ollama, streamer, config)
		brainSrv := brain.RunServer(ctrl)
		log.Info().Int("port", common.GetBrainPort()).Msg("Brain service started")

		group.Go(func() error {
			<-ctx.Done()
			log.Info().Msg("Stopping brain service...")
			return shutdownServer(brainSrv)
		})
	}

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received...")
	if err := group.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Shut down gracefully")
	return nil
}

// connectStreamer wires the turn-event stream over NATS. A missing NATS
// server degrades to no event stream rather than blocking startup.
func connectStreamer() srv.Streamer {
	conn, err := nats.GetConnection()
	if err != nil {
		log.Warn().Err(err).Msg("NATS unavailable, turn events disabled")
		return nil
	}
	streamer, err := jetstream.NewStreamer(conn)
	if err != nil {
		log.Warn().Err(err).Msg("JetStream unavailable, turn events disabled")
		return nil
	}
	return streamer
}

// embeddingCache picks the kv backend for cached embedding vectors. A shared
// redis instance lets several processes reuse one cache; otherwise vectors
// land in the sqlite kv database.
func embeddingCache(storage srv.Storage) common.KeyValueStorage {
	if os.Getenv("REDIS_ADDRESS") != "" {
		return redis.NewStorage()
	}
	return storage
}

func localURL(port int) string {
	host := os.Getenv("CORTEX_SERVICE_HOST")
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

func shutdownServer(server *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
