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

	"github.com/travelmate/chat/internal/auth"
	"github.com/travelmate/chat/internal/chat"
	"github.com/travelmate/chat/internal/config"
	"github.com/travelmate/chat/internal/directory"
	"github.com/travelmate/chat/internal/events"
	"github.com/travelmate/chat/internal/handler"
	"github.com/travelmate/chat/internal/logger"
	"github.com/travelmate/chat/internal/repository"
	"github.com/travelmate/chat/internal/startup"
	"github.com/travelmate/chat/internal/storage"
	"github.com/travelmate/chat/internal/storage/memory"
	"github.com/travelmate/chat/internal/ws"
	"github.com/travelmate/chat/migrations"
)

// stores is what main needs from a storage backend.
type stores struct {
	convs    chat.ConversationStore
	messages chat.MessageStore
	dir      chat.Directory
	ready    func(ctx context.Context) error
	closers  []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func main() {
	logger.SetPrefix("api")
	migrateOnly := flag.Bool("migrate", false, "apply database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	inmem := flag.Bool("inmem", false, "keep everything in memory; no database, no redis")
	seedPath := flag.String("seed", "", "YAML file with users and trips for -inmem mode")
	flag.Parse()

	cfg := config.Load()
	logger.Configure(cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()
	logger.Info("starting chat API")
	if problems := cfg.Validate(); len(problems) > 0 {
		for _, p := range problems {
			logger.Errorf("config: %s", p)
		}
		os.Exit(1)
	}

	var st *stores
	var err error
	if *inmem {
		st, err = memoryStores(*seedPath)
	} else {
		st, err = postgresStores(cfg, *dev, *migrateOnly)
	}
	if err != nil {
		logger.Errorf("storage: %v", err)
		os.Exit(1)
	}
	defer st.close()
	if *migrateOnly && !*inmem {
		return
	}

	publisher := events.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer publisher.Close()
	logger.Infof("events publisher: %s", events.Mode(publisher))

	registry := chat.NewRegistry(st.convs, st.messages, st.dir, publisher, cfg.StoreTimeout)
	messages := chat.NewMessages(st.convs, st.messages, st.dir, publisher, cfg.StoreTimeout, cfg.HistoryLimit)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(registry, messages, ws.Options{
		MaxConns:       cfg.MaxWSConnections,
		SendBuffer:     cfg.WSSendBufferSize,
		MaxMessageSize: cfg.WSMaxMessageSize,
	})
	go hub.Run(hubCtx)

	tokens := auth.NewManager(cfg.JWTSecret, 0)
	if *inmem || *dev {
		logDevTokens(tokens, st.dir)
	}

	srv := &http.Server{
		Addr: cfg.ServerAddr,
		Handler: handler.NewRouter(handler.Deps{
			Config:   cfg,
			Registry: registry,
			Messages: messages,
			Hub:      hub,
			Verifier: tokens,
			Ready:    st.ready,
		}),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server error: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	select {
	case <-hub.Done():
		logger.Info("hub stopped")
	case <-shutdownCtx.Done():
		logger.Error("hub shutdown timed out")
	}
	srvWg.Wait()
}

func postgresStores(cfg *config.Config, dev, migrateOnly bool) (*stores, error) {
	st := &stores{}
	if dev {
		db, url, err := startup.StartEmbeddedPostgres()
		if err != nil {
			return nil, err
		}
		cfg.Database.URL = url
		st.closers = append(st.closers, func() {
			logger.Info("stopping embedded postgres...")
			if err := db.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		})
	}

	ctx := context.Background()
	pool, err := startup.ConnectDB(ctx, cfg.Database.URL, cfg.DBMaxConnections(), 60*time.Second)
	if err != nil {
		st.close()
		return nil, err
	}
	st.closers = append(st.closers, pool.Close)

	if err := migrations.Up(cfg.Database.URL); err != nil {
		st.close()
		return nil, err
	}
	if migrateOnly {
		return st, nil
	}
	logger.Info("database connected, migrations applied")

	var cache storage.DirectoryCache
	if cfg.RedisURL != "" {
		rc, err := startup.ConnectRedis(ctx, cfg.RedisURL, cfg.Cache.TTL, 30*time.Second)
		if err != nil {
			st.close()
			return nil, err
		}
		cache = rc
		logger.Infof("directory cache: redis, ttl %v", cfg.Cache.TTL)
	} else {
		cache = memory.New(cfg.Cache.TTL)
		logger.Infof("directory cache: in-process, ttl %v", cfg.Cache.TTL)
	}
	st.closers = append(st.closers, func() { _ = cache.Close() })

	st.convs = repository.NewConversationRepository(pool)
	st.messages = repository.NewMessageRepository(pool)
	st.dir = directory.New(repository.NewUserRepository(pool), repository.NewTripRepository(pool), cache)
	st.ready = pool.Ping
	return st, nil
}

func memoryStores(seedPath string) (*stores, error) {
	dir := memory.NewDirectory()
	seed, err := loadSeed(seedPath)
	if err != nil {
		return nil, err
	}
	seed.apply(dir)
	logger.Infof("in-memory mode: %d users, %d trips seeded", len(seed.Users), len(seed.Trips))
	return &stores{
		convs:    memory.NewConversations(),
		messages: memory.NewMessages(),
		dir:      dir,
	}, nil
}
