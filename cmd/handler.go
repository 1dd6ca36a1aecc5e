package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/agency-studio/content-pipeline/internal/annotation"
	"github.com/agency-studio/content-pipeline/internal/cache"
	"github.com/agency-studio/content-pipeline/internal/channels"
	"github.com/agency-studio/content-pipeline/internal/config"
	"github.com/agency-studio/content-pipeline/internal/database"
	"github.com/agency-studio/content-pipeline/internal/focusgroup"
	"github.com/agency-studio/content-pipeline/internal/handler"
	"github.com/agency-studio/content-pipeline/internal/llm"
	"github.com/agency-studio/content-pipeline/internal/notify"
	"github.com/agency-studio/content-pipeline/internal/pipeline"
	"github.com/agency-studio/content-pipeline/internal/publisher"
	"github.com/agency-studio/content-pipeline/internal/worker"
)

// sessionRetention is how long finished pipeline sessions stay readable.
const sessionRetention = 24 * time.Hour

var handlerModule = fx.Module("handler",
	fx.Provide(
		newRepositories,
		newCache,
		llm.NewClient,
		newEvaluator,
		newAnnotationService,
		channels.NewRegistry,
		notify.New,
		newPublisher,
		newMachine,
		pipeline.NewRegistry,
		newHandler,
		newDispatchWorker,
	),
	fx.Invoke(registerHandlerRoutes),
)

type repositories struct {
	fx.Out

	Annotations  database.AnnotationRepository
	ContentItems database.ContentItemRepository
}

// newRepositories opens the configured store. The postgres pool is closed on shutdown.
func newRepositories(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (repositories, error) {
	if cfg.UsesMemoryStore() {
		logger.Warn("Using in-memory store, data is lost on restart")
		return repositories{
			Annotations:  database.NewMemoryAnnotationRepository(),
			ContentItems: database.NewMemoryContentItemRepository(),
		}, nil
	}

	store, err := database.NewPostgresStore(cfg, logger)
	if err != nil {
		return repositories{}, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			store.Close()
			return nil
		},
	})
	return repositories{
		Annotations:  store.Annotations(),
		ContentItems: store.ContentItems(),
	}, nil
}

// newCache connects to Redis next to the postgres store. The memory store needs no cache.
func newCache(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (cache.Cache, error) {
	if cfg.UsesMemoryStore() {
		return cache.NopCache{}, nil
	}

	c, err := cache.NewRedisCache(cfg, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return c.Close()
		},
	})
	return c, nil
}

func newEvaluator(cfg *config.Config, client *llm.Client, logger *zap.Logger) (*focusgroup.Evaluator, error) {
	panel, err := focusgroup.LoadPanel(cfg.PersonasFile)
	if err != nil {
		return nil, err
	}
	logger.Info("Focus group panel loaded",
		zap.Int("personas", len(panel)),
		zap.Float64("threshold", cfg.FocusGroupThreshold),
	)
	return focusgroup.NewEvaluator(client, logger,
		focusgroup.WithPanel(panel),
		focusgroup.WithThreshold(cfg.FocusGroupThreshold),
	), nil
}

func newAnnotationService(repo database.AnnotationRepository, c cache.Cache, logger *zap.Logger) *annotation.Service {
	return annotation.NewService(repo, c, logger)
}

func newPublisher(cfg *config.Config, repo database.ContentItemRepository, senders *channels.Registry, notifier notify.Notifier, logger *zap.Logger) *publisher.Service {
	return publisher.NewService(repo, senders, notifier, logger, publisher.WithSendTimeout(cfg.DispatchTimeout))
}

func newMachine(client *llm.Client, evaluator *focusgroup.Evaluator, annotations *annotation.Service, pub *publisher.Service, logger *zap.Logger) *pipeline.Machine {
	return pipeline.NewMachine(client, evaluator, annotations, pub, logger)
}

func newHandler(machine *pipeline.Machine, sessions *pipeline.Registry, annotations *annotation.Service, pub *publisher.Service, logger *zap.Logger) *handler.Handler {
	return handler.NewHandler(machine, sessions, annotations, pub, logger)
}

// newDispatchWorker runs the scheduled dispatch loop alongside the server.
func newDispatchWorker(lc fx.Lifecycle, cfg *config.Config, pub *publisher.Service, sessions *pipeline.Registry, logger *zap.Logger) *worker.DispatchWorker {
	w := worker.NewDispatchWorker(pub, sessions, cfg.DispatchInterval, sessionRetention, logger.Named("dispatch"))
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			w.Start()
			return nil
		},
		OnStop: w.Stop,
	})
	return w
}

func registerHandlerRoutes(engine *gin.Engine, h *handler.Handler, _ *worker.DispatchWorker, logger *zap.Logger) {
	engine.GET("/health", h.Health)
	h.RegisterRoutes(engine.Group("/api/v1"))
	logger.Info("Handler routes registered")
}
