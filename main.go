package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"communitychat/chat"
	"communitychat/companion"
	"communitychat/config"
	"communitychat/database"
	"communitychat/handlers"
	"communitychat/realtime"
	"communitychat/restapi"
)

func main() {
	boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	// Load environment variables
	if err := config.LoadDotEnv(); err != nil {
		boot.Info().Msg("⚠️  No .env file found, using environment variables")
	}

	cfg, err := config.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := boot.Level(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("chat client failed")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	api := restapi.NewClient(cfg.APIBaseURL, cfg.Token, nil, cfg.HTTPTimeout)

	session := chat.NewSession(logger)
	manager := realtime.New(
		cfg.Manager(),
		realtime.WebsocketDialer{HandshakeTimeout: cfg.HTTPTimeout},
		realtime.SystemScheduler{},
		session,
		logger,
	)
	session.Bind(manager)

	mentions := chat.NewMentionResolver(api, realtime.SystemScheduler{}, cfg.MentionDebounce, logger)
	composer := chat.NewComposer(session, mentions)
	poller := companion.NewPoller(api, session, cfg.PollInterval, cfg.HistoryLimit, logger)

	hub := handlers.NewHub(logger)
	composer.OnSuggestions(hub.PublishSuggestions)
	observers := []func(chat.Change){hub.Publish}

	var workers sync.WaitGroup
	if cfg.ArchivePath != "" {
		store, err := database.Open(cfg.ArchivePath)
		if err != nil {
			return err
		}
		defer store.Close()

		// show the last transcript until the socket delivers history
		if archived, err := store.Recent(cfg.HistoryLimit); err != nil {
			logger.Error().Err(err).Msg("read archive")
		} else if len(archived) > 0 {
			session.SeedHistory(archived)
		}

		recorder := database.NewRecorder(store, logger)
		observers = append(observers, recorder.Observe)
		workers.Add(1)
		go func() {
			defer workers.Done()
			recorder.Run(ctx)
		}()
		logger.Info().Str("path", cfg.ArchivePath).Msg("📼 Transcript archive enabled")
	}
	session.SetObserver(func(c chat.Change) {
		for _, observe := range observers {
			observe(c)
		}
	})

	go hub.Run(ctx)
	go poller.Run(ctx)

	bridge := handlers.NewBridge(session, composer, mentions, poller, hub, logger)
	srv := &http.Server{
		Addr:              cfg.BridgeAddr,
		Handler:           bridge.Router(cfg.BridgeToken),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Msgf("🚀 Chat bridge listening on http://%s", cfg.BridgeAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if cfg.Token == "" {
		logger.Warn().Msg("no CHAT_TOKEN set, realtime stays idle")
	}
	manager.SetToken(cfg.Token)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}

	logger.Info().Msg("👋 Shutting down")
	manager.Disconnect()
	mentions.Cancel()

	shutdownCtx, stopShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("bridge shutdown")
	}

	// let the recorder drain before the archive closes
	cancel()
	workers.Wait()
	return runErr
}
