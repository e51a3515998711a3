package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"pulsechat/internal/infrastructure/config"
	"pulsechat/internal/infrastructure/database"
	"pulsechat/internal/infrastructure/logger"
	"pulsechat/internal/infrastructure/metrics"
	mirroradapter "pulsechat/internal/infrastructure/mirror/adapter"
	mport "pulsechat/internal/infrastructure/mirror/port"
	qadapter "pulsechat/internal/infrastructure/queue/adapter"
	"pulsechat/internal/infrastructure/realtime"
	"pulsechat/internal/pkg/chat/application/fanout"
	"pulsechat/internal/pkg/chat/application/gateway"
	"pulsechat/internal/pkg/chat/application/presence"
	"pulsechat/internal/pkg/chat/application/retention"
	"pulsechat/internal/pkg/chat/application/task"
	"pulsechat/internal/pkg/chat/application/typing"
	"pulsechat/internal/pkg/chat/application/usecase"
	repoAdapter "pulsechat/internal/pkg/chat/persistence/repository/adapter"
	repository "pulsechat/internal/pkg/chat/persistence/repository/port"
	httpHandler "pulsechat/internal/pkg/chat/presentation/http"
)

// drainTimeout bounds how long close waits for socket handlers and queue workers.
const drainTimeout = 10 * time.Second

// app holds every long-lived component of one process.
type app struct {
	cfg       config.Config
	log       *zap.Logger
	promReg   *prometheus.Registry
	metrics   *metrics.Metrics
	store     repository.ChatRepository
	mirror    mport.Mirror
	registry  *realtime.Registry
	typing    *typing.Coordinator
	retention *retention.Scheduler
	queue     *qadapter.AsynqClient
	worker    *qadapter.AsynqServer
	deps      httpHandler.Deps
}

func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

// openStore connects the configured backend and makes sure its schema exists.
func openStore(ctx context.Context, cfg config.Config) (repository.ChatRepository, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := database.Connect(ctx, cfg.DatabaseURL, database.PoolOptions{
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			ConnectTimeout:  cfg.Postgres.ConnectTimeout,
			MaxConnIdleTime: cfg.Postgres.MaxConnIdleTime,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return nil, err
		}
		repo := repoAdapter.NewPgChatRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = repo.Close()
			return nil, err
		}
		return repo, nil
	case config.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		repo := repoAdapter.NewSqliteChatRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = repo.Close()
			return nil, err
		}
		return repo, nil
	case config.DriverMemory:
		return repoAdapter.NewMemoryChatRepository(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// openMirror returns the Redis mirror when REDIS_URL is set and a no-op otherwise.
func openMirror(ctx context.Context, cfg config.Config) (mport.Mirror, error) {
	if cfg.RedisURL == "" {
		return mirroradapter.NoopMirror{}, nil
	}
	client, err := mirroradapter.Dial(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return mirroradapter.NewRedisMirror(client, cfg.MirrorKeyTTL), nil
}

func newApp(ctx context.Context, cfg config.Config, log *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, promReg: prometheus.NewRegistry()}
	a.promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.promReg)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = store

	m, err := openMirror(ctx, cfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open mirror: %w", err)
	}
	a.mirror = m

	a.registry = realtime.NewRegistry(log, a.metrics)
	roster := usecase.NewListParticipantsUseCase(store)
	out := fanout.New(a.registry, roster, a.metrics, log)
	a.typing = typing.New(out, typing.Options{QuietInterval: cfg.TypingQuietInterval, Mirror: m, Logger: log})
	tracker := presence.New(store, m, log)
	gw := gateway.New(a.registry, tracker, a.typing, usecase.NewJoinConversationUseCase(roster), a.metrics, log)

	a.retention = retention.New(store, m, retention.Config{
		MessageTTL:       cfg.Retention.MessageTTL,
		InactivityTTL:    cfg.Retention.InactivityTTL,
		MessageCron:      cfg.Retention.MessageCron,
		ConversationCron: cfg.Retention.ConversationCron,
		BatchSize:        cfg.Retention.BatchSize,
	}, a.metrics, log)

	send := usecase.NewSendMessageUseCase(store, m, out, log)

	if cfg.RedisURL != "" {
		if a.queue, err = qadapter.NewAsynqClient(cfg.RedisURL); err != nil {
			a.close()
			return nil, fmt.Errorf("queue client: %w", err)
		}
		a.worker, err = qadapter.NewAsynqServer(cfg.RedisURL, qadapter.ServerOptions{
			Concurrency: cfg.Queue.Concurrency,
			Queues:      cfg.Queue.QueueWeights(),
			Logger:      log,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("queue server: %w", err)
		}
		task.RegisterSendMessageTask(a.worker, send)
	}

	a.deps = httpHandler.Deps{
		CreateChat:    usecase.NewCreateChatUseCase(store),
		ListChats:     usecase.NewListChatsUseCase(store),
		GetMessages:   usecase.NewGetMessageUseCase(store),
		SendMessage:   send,
		DeleteMessage: usecase.NewDeleteMessageUseCase(store, m, log),
		PublicUsers:   usecase.NewListPublicUsersUseCase(store),
		SetVisibility: usecase.NewSetVisibilityUseCase(store),
		ListContacts:  usecase.NewListContactsUseCase(store),
		AddContact:    usecase.NewAddContactUseCase(store),
		Gateway:       gw,
		Retention:     a.retention,
		Log:           log,
	}
	// A nil *AsynqClient must stay a nil interface for the async endpoint.
	if a.queue != nil {
		a.deps.Queue = a.queue
	}
	return a, nil
}

// close releases everything newApp opened, in reverse order. Socket handlers
// and queue workers are drained before the store goes away.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	var errs []error
	if a.registry != nil {
		a.registry.Close()
		if err := a.registry.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain sockets: %w", err))
		}
	}
	if a.typing != nil {
		a.typing.Close()
	}
	if a.worker != nil {
		errs = append(errs, a.worker.Stop(ctx))
	}
	if a.queue != nil {
		errs = append(errs, a.queue.Close())
	}
	if a.mirror != nil {
		errs = append(errs, a.mirror.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("shutdown_close_failed", zap.Error(err))
	}
}
