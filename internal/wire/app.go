// Package wire 组装各进程的依赖
package wire

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"z-genstudio-api/internal/application/conversation"
	"z-genstudio-api/internal/application/credit"
	"z-genstudio-api/internal/application/generation"
	"z-genstudio-api/internal/application/params"
	"z-genstudio-api/internal/application/usage"
	"z-genstudio-api/internal/config"
	"z-genstudio-api/internal/domain/entity"
	"z-genstudio-api/internal/domain/service"
	"z-genstudio-api/internal/infrastructure/llm"
	"z-genstudio-api/internal/infrastructure/messaging"
	"z-genstudio-api/internal/infrastructure/persistence/postgres"
	"z-genstudio-api/internal/infrastructure/persistence/redis"
	"z-genstudio-api/internal/infrastructure/provider"
	"z-genstudio-api/internal/infrastructure/wallet"
	"z-genstudio-api/internal/interfaces/http/handler"
	"z-genstudio-api/internal/interfaces/http/router"
	"z-genstudio-api/pkg/logger"
)

// DataLayer 数据层依赖容器
type DataLayer struct {
	PgClient    *postgres.Client
	TxManager   *postgres.TxManager
	WalletRepo  *postgres.WalletRepository
	UsageRepo   *postgres.GenerationUsageEventRepository
	RedisClient *redis.Client
	Cache       *redis.Cache
	RateLimiter *redis.RateLimiter
}

// PostgresOnlyDataLayer 仅包含 PostgreSQL 的数据层（用于 bootstrap）
type PostgresOnlyDataLayer struct {
	PgClient   *postgres.Client
	TxManager  *postgres.TxManager
	WalletRepo *postgres.WalletRepository
}

// App 网关进程
type App struct {
	router   *router.Router
	registry *conversation.Registry
}

// Engine 返回 Gin Engine
func (a *App) Engine() *gin.Engine { return a.router.Engine() }

// Registry 会话表
func (a *App) Registry() *conversation.Registry { return a.registry }

// InitializePostgresOnly 仅初始化 PostgreSQL 数据层
func InitializePostgresOnly(ctx context.Context, cfg *config.Config) (*PostgresOnlyDataLayer, func(), error) {
	pg, cleanup, err := ProvidePostgresClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return &PostgresOnlyDataLayer{
		PgClient:   pg,
		TxManager:  postgres.NewTxManager(pg),
		WalletRepo: postgres.NewWalletRepository(pg),
	}, cleanup, nil
}

// InitializeDataLayer 初始化数据层
func InitializeDataLayer(ctx context.Context, cfg *config.Config) (*DataLayer, func(), error) {
	pg, cleanupPg, err := ProvidePostgresClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	rc, cleanupRedis, err := ProvideRedisClient(cfg)
	if err != nil {
		cleanupPg()
		return nil, nil, err
	}

	dl := &DataLayer{
		PgClient:    pg,
		TxManager:   postgres.NewTxManager(pg),
		WalletRepo:  postgres.NewWalletRepository(pg),
		UsageRepo:   postgres.NewGenerationUsageEventRepository(pg),
		RedisClient: rc,
		Cache:       redis.NewCache(rc),
		RateLimiter: redis.NewRateLimiter(rc),
	}
	return dl, func() {
		cleanupRedis()
		cleanupPg()
	}, nil
}

// InitializeApp 初始化网关（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	dl, cleanupData, err := InitializeDataLayer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	executor, err := ProvideExecutor(cfg)
	if err != nil {
		cleanupData()
		return nil, nil, err
	}

	llm.InitCallbacks()
	factory := llm.NewEinoFactory(&cfg.LLM)
	interpreter := llm.NewInterpreter(factory, cfg.LLM.DefaultProvider)
	walletSvc := wallet.NewService(dl.WalletRepo, dl.Cache, cfg.Wallet.BalanceCacheTTL)
	resolver := params.NewResolver(params.DefaultCatalog())

	var publisher service.UsagePublisher
	if cfg.Messaging.RedisStream.Enabled {
		publisher = ProvideMessagingProducer(dl.RedisClient, cfg)
	}

	registry := conversation.NewRegistry(ProvideOrchestratorFactory(cfg, OrchestratorDeps{
		Interpreter: interpreter,
		Executor:    executor,
		Wallet:      walletSvc,
		Resolver:    resolver,
		Publisher:   publisher,
		ModelID:     factory.DefaultModel(),
	}))

	r := router.NewWithDeps(cfg, router.RouterHandlers{
		Health:  handler.NewHealthHandler(cfg.App.Version, dl.PgClient, dl.RedisClient),
		Session: handler.NewSessionHandler(registry),
		Catalog: handler.NewCatalogHandler(resolver),
		Usage:   handler.NewUsageHandler(usage.NewRecorder(dl.UsageRepo)),
	}, dl.RateLimiter, redis.BuildRateLimitKey)

	return &App{router: r, registry: registry}, func() {
		registry.CloseAll()
		cleanupData()
	}, nil
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	return messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
}

// ProvideExecutor 三类生成服务共用一个执行器
func ProvideExecutor(cfg *config.Config) (*generation.Executor, error) {
	httpClient := &http.Client{}
	clients := make(map[entity.ActionType]*provider.Client, 3)
	for typ, ep := range map[entity.ActionType]config.GenerationEndpointConfig{
		entity.ActionGenerateImage: cfg.Generation.Image,
		entity.ActionGenerateVideo: cfg.Generation.Video,
		entity.ActionGenerateMusic: cfg.Generation.Music,
	} {
		c, err := provider.NewClient(typ, ep, httpClient)
		if err != nil {
			return nil, fmt.Errorf("%s generator: %w", typ.Short(), err)
		}
		clients[typ] = c
	}
	return generation.NewExecutor(
		clients[entity.ActionGenerateImage],
		clients[entity.ActionGenerateVideo],
		clients[entity.ActionGenerateMusic],
		cfg.Generation.Timeout,
	), nil
}

// OrchestratorDeps 所有会话共享的依赖
type OrchestratorDeps struct {
	Interpreter service.Interpreter
	Executor    *generation.Executor
	Wallet      *wallet.Service
	Resolver    *params.Resolver
	Publisher   service.UsagePublisher
	ModelID     string
}

// ProvideOrchestratorFactory 新会话先从钱包取初始余额，再构造编排器
func ProvideOrchestratorFactory(cfg *config.Config, deps OrchestratorDeps) conversation.Factory {
	occfg := conversation.Config{
		InterpretTimeout:  cfg.LLM.InterpretTimeout,
		HistoryTurns:      cfg.LLM.HistoryTurns,
		ModelID:           deps.ModelID,
		MaxAttachments:    cfg.Attachments.MaxFiles,
		MaxAttachmentSize: cfg.Attachments.MaxFileSize,
	}

	return func(ctx context.Context, id string, session service.Session) (*conversation.Orchestrator, error) {
		walletID := session.Identifier()
		balance, err := deps.Wallet.Bootstrap(ctx, walletID)
		if err != nil {
			return nil, err
		}

		s := service.StaticSession{User: session.UserID(), WalletID: walletID, Credits: balance}
		o := conversation.New(id, occfg, conversation.Deps{
			Session:     s,
			Interpreter: deps.Interpreter,
			Executor:    deps.Executor,
			Ledger:      credit.NewLedgerSync(credit.NewStore(balance), deps.Wallet, walletID),
			Resolver:    deps.Resolver,
			Publisher:   deps.Publisher,
		})
		logger.Debug(ctx, "orchestrator created", "session_id", id, "balance", balance)
		return o, nil
	}
}
