package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/candidate-intel-backend/internal/data/db"
	"github.com/yungbote/candidate-intel-backend/internal/data/graph"
	"github.com/yungbote/candidate-intel-backend/internal/data/repos"
	apphttp "github.com/yungbote/candidate-intel-backend/internal/http"
	httpH "github.com/yungbote/candidate-intel-backend/internal/http/handlers"
	httpMW "github.com/yungbote/candidate-intel-backend/internal/http/middleware"
	jobhandlers "github.com/yungbote/candidate-intel-backend/internal/jobs/handlers"
	"github.com/yungbote/candidate-intel-backend/internal/jobs/runtime"
	"github.com/yungbote/candidate-intel-backend/internal/jobs/worker"
	"github.com/yungbote/candidate-intel-backend/internal/observability"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
	"github.com/yungbote/candidate-intel-backend/internal/platform/neo4jdb"
	"github.com/yungbote/candidate-intel-backend/internal/platform/openai"
	"github.com/yungbote/candidate-intel-backend/internal/platform/vectorstore"
	"github.com/yungbote/candidate-intel-backend/internal/realtime"
	"github.com/yungbote/candidate-intel-backend/internal/realtime/bus"
	"github.com/yungbote/candidate-intel-backend/internal/services"
	"github.com/yungbote/candidate-intel-backend/internal/services/prompts"
)

// newAIClient is swapped in tests so wiring can run without a provider key.
var newAIClient = openai.NewClient

type App struct {
	Log     *logger.Logger
	Cfg     Config
	DB      *gorm.DB
	Hub     *realtime.SSEHub
	Server  *apphttp.Server
	Worker  *worker.Worker
	Metrics *observability.Metrics
	Vectors vectorstore.VectorStore

	bus          bus.Bus
	graph        *neo4jdb.Client
	closeVectors func()
	otelShutdown func(context.Context) error
}

// New builds every dependency from cfg. On error anything already opened is
// released before returning.
func New(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	a := &App{Log: log, Cfg: cfg, closeVectors: func() {}}
	built := false
	defer func() {
		if !built {
			a.Close()
		}
	}()

	var err error

	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	a.Metrics = observability.Init(log)

	if a.DB, err = openDatabase(log, cfg); err != nil {
		return nil, err
	}
	if err = db.AutoMigrateAll(a.DB); err != nil {
		return nil, err
	}

	catalog, err := prompts.Load(cfg.PromptsPath)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	ai, err := newAIClient(log)
	if err != nil {
		return nil, fmt.Errorf("init openai client: %w", err)
	}

	a.Vectors, a.closeVectors, err = resolveVectorStore(ctx, log, cfg)
	if err != nil {
		return nil, err
	}
	summaryRepo := repos.NewSummaryRepo(a.DB, log)
	// The memory index lives only in this process, so it is rebuilt from the
	// stored embeddings on every start.
	if cfg.VectorProvider == VectorProviderMemory {
		if err = reloadMemoryIndex(ctx, log, a.Vectors, summaryRepo, cfg.EmbeddingDim); err != nil {
			return nil, err
		}
	}

	a.graph, err = neo4jdb.NewFromEnv(ctx, log)
	if err != nil {
		return nil, err
	}
	var skills services.SkillProjector
	if g := graph.NewSkillGraph(a.graph, log); g != nil {
		skills = g
	}

	a.Hub = realtime.NewSSEHub(log)
	var emitter services.SSEEmitter = &services.HubEmitter{Hub: a.Hub}
	if cfg.RedisAddr != "" {
		a.bus, err = bus.NewRedisBus(ctx, log, bus.RedisConfig{Addr: cfg.RedisAddr, Channel: cfg.RedisChannel})
		if err != nil {
			return nil, fmt.Errorf("init redis bus: %w", err)
		}
		emitter = &services.RedisEmitter{Bus: a.bus, Fallback: a.Hub, Log: log}
	}

	// Repos
	messageRepo := repos.NewChatMessageRepo(a.DB, log)
	jobRepo := repos.NewJobRunRepo(a.DB, log)

	// Services
	notify := services.NewJobNotifier(emitter)
	jobService := services.NewJobService(log, jobRepo, notify)
	identity := services.NewIdentityResolver(log, cfg.JWTSecretKey)
	generator := services.NewSummaryGenerator(log, ai, summaryRepo, a.Vectors, catalog, skills, services.SummaryGeneratorConfig{
		EmbeddingDim: cfg.EmbeddingDim,
	})
	search := services.NewCandidateSearch(log, ai, a.Vectors, services.CandidateSearchConfig{
		TopK:         cfg.SearchTopK,
		PoolSize:     cfg.SearchCandidatePool,
		EmbeddingDim: cfg.EmbeddingDim,
	})
	summaries := services.NewCandidateSummaries(log, summaryRepo)
	chat := services.NewRecruiterChat(log, ai, summaryRepo, messageRepo, catalog, services.RecruiterChatConfig{
		HistoryWindow: cfg.ChatHistoryWindow,
	})

	// Jobs
	registry := runtime.NewRegistry()
	if err = registry.Register(jobhandlers.NewSummaryGenerate(log, generator)); err != nil {
		return nil, err
	}
	a.Worker = worker.NewWorker(a.DB, log, jobRepo, registry, notify, cfg.Worker)

	// HTTP
	sqlDB, err := a.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("sql pool: %w", err)
	}
	a.Server = apphttp.NewServer(apphttp.RouterConfig{
		Log:             log,
		ServiceName:     cfg.ServiceName,
		CORSOrigins:     cfg.CORSOrigins,
		Metrics:         a.Metrics,
		AuthMiddleware:  httpMW.NewAuthMiddleware(log, identity),
		HealthHandler:   httpH.NewHealthHandler(sqlDB),
		ProfileHandler:  httpH.NewProfileHandler(jobService),
		JobHandler:      httpH.NewJobHandler(jobService),
		SearchHandler:   httpH.NewSearchHandler(search, summaries),
		ChatHandler:     httpH.NewChatHandler(log, chat),
		RealtimeHandler: httpH.NewRealtimeHandler(log, a.Hub),
	})
	built = true
	return a, nil
}

func openDatabase(log *logger.Logger, cfg Config) (*gorm.DB, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return db.OpenSQLite(log, cfg.SQLitePath)
	default:
		pg, err := db.NewPostgresService(log, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return pg.DB(), nil
	}
}

// Run serves HTTP and drains the job queue until ctx is cancelled or one of
// them fails. Both stop within Cfg.ShutdownTimeout of cancellation.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)

	if a.bus != nil {
		if err := a.bus.StartForwarder(gctx, a.Hub.Broadcast); err != nil {
			return fmt.Errorf("start redis forwarder: %w", err)
		}
	}

	a.Metrics.StartServer(gctx, a.Log, a.Cfg.MetricsAddr)
	a.Metrics.StartDBCollector(gctx, a.Log, a.DB)
	a.Metrics.StartJobQueueCollector(gctx, a.Log, a.DB, "job_run")
	if a.Cfg.RedisAddr != "" {
		a.Metrics.StartRedisCollector(gctx, a.Log, a.Cfg.RedisAddr)
	}

	g.Go(func() error {
		a.Log.Info("HTTP server listening", "port", a.Cfg.Port)
		return a.Server.Run(gctx, ":"+a.Cfg.Port, a.Cfg.ShutdownTimeout)
	})
	g.Go(func() error {
		return a.Worker.Run(gctx)
	})
	return g.Wait()
}

// Close releases external connections. Safe on a partially built App.
func (a *App) Close() {
	if a == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.Log.Warn("redis bus close failed", "error", err)
		}
	}
	if a.graph != nil {
		if err := a.graph.Close(shutdownCtx); err != nil {
			a.Log.Warn("neo4j close failed", "error", err)
		}
	}
	if a.closeVectors != nil {
		a.closeVectors()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(shutdownCtx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}

func (a *App) shutdownTimeout() time.Duration {
	if a.Cfg.ShutdownTimeout > 0 {
		return a.Cfg.ShutdownTimeout
	}
	return 10 * time.Second
}
