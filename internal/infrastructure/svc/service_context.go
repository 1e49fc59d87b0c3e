package svc

import (
	"context"
	"fmt"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"tradesim/internal/application/port"
	"tradesim/internal/application/service"
	domainservice "tradesim/internal/domain/service"
	"tradesim/internal/infrastructure/config"
	"tradesim/internal/infrastructure/quote"
	"tradesim/internal/infrastructure/storage"
	"tradesim/internal/infrastructure/storage/composite"
	"tradesim/internal/infrastructure/storage/postgres"
	redisrepo "tradesim/internal/infrastructure/storage/redis"
	sqliterepo "tradesim/internal/infrastructure/storage/sqlite"
	"tradesim/internal/infrastructure/websocket"
	"tradesim/internal/interfaces/console"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 基础设施层（第一层初始化）
	ledger      port.LedgerStore
	quotes      port.QuoteProvider // cached, for display paths
	liveQuotes  port.QuoteProvider // uncached, for trades
	redisRepo   *redisrepo.Repo
	hub         *websocket.Hub
	events      *composite.Publisher

	// 应用服务
	Portfolio *service.PortfolioService
	Trades    *service.TradeService
	Accounts  *service.AccountService

	// 资源管理
	closerChain []func() error
}

// New 创建并初始化 ServiceContext
// 这是应用启动的唯一入口点，所有依赖初始化都在这里完成
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		closerChain: make([]func() error, 0),
	}
	if err := sc.initializeComponents(); err != nil {
		// 清理已初始化的资源
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

// initializeComponents 按依赖顺序初始化：存储 → 报价 → 事件 → 服务
func (sc *ServiceContext) initializeComponents() error {
	if sc.Config.Redis.Enabled {
		if err := sc.initRedis(); err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
	}
	if err := sc.initLedger(); err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	if err := sc.initQuotes(); err != nil {
		return fmt.Errorf("quote initialization failed: %w", err)
	}
	sc.initEvents()

	cfg := sc.Config
	sc.Portfolio = service.NewPortfolioService(sc.ledger, sc.quotes, cfg.Quote.Concurrency)
	sc.Trades = service.NewTradeService(service.TradeServiceDeps{
		Ledger:      sc.ledger,
		Quotes:      sc.liveQuotes,
		Events:      sc.events,
		Locks:       domainservice.NewUserLocks(),
		LockTimeout: cfg.LockTimeout(),
	})
	sc.Accounts = service.NewAccountService(sc.ledger, sc.quotes, cfg.StartingCash(), cfg.App.BcryptCost)

	log.Info().
		Str("driver", cfg.Storage.Driver).
		Str("quotes", sc.quotes.Name()).
		Int("publishers", sc.events.Len()).
		Msg("✓ All components initialized")
	return nil
}

// initRedis 初始化 Redis 连接（报价缓存 + 成交事件流）
func (sc *ServiceContext) initRedis() error {
	rcfg := sc.Config.Redis
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     rcfg.Addr,
		Password: rcfg.Password,
		DB:       rcfg.DB,
	})

	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	sc.redisRepo = redisrepo.New(
		rdb,
		rcfg.Prefix,
		time.Duration(rcfg.QuoteTTLSec)*time.Second,
		rcfg.EventStream,
		rcfg.EventChannel,
	)
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", rcfg.Addr).
		Int("db", rcfg.DB).
		Msg("✓ Redis initialized")
	return nil
}

// initLedger 按 storage.driver 选择账本实现
func (sc *ServiceContext) initLedger() error {
	cfg := sc.Config
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		repo, err := sqliterepo.New(cfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("sqlite repo creation failed: %w", err)
		}
		sc.ledger = repo
		log.Info().Str("path", cfg.SQLite.Path).Msg("✓ SQLite initialized")

	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(sc.Ctx, 10*time.Second)
		defer cancel()
		repo, err := postgres.New(ctx, postgres.Options{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.MaxConns,
			MinConns: cfg.Postgres.MinConns,
		})
		if err != nil {
			return fmt.Errorf("postgres repo creation failed: %w", err)
		}
		sc.ledger = repo
		log.Info().Int("max_conns", cfg.Postgres.MaxConns).Msg("✓ Postgres initialized")

	case config.DriverMemory:
		sc.ledger = storage.NewMemory()
		log.Warn().Msg("memory ledger in use, data is lost on exit")

	default:
		return fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Storage.Driver)
	}

	ledger := sc.ledger
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Str("driver", cfg.Storage.Driver).Msg("closing ledger")
		return ledger.Close()
	})
	return nil
}

// initQuotes 构建报价链：provider → cache（Redis 优先，其次进程内）
// 成交只走未缓存的 provider，记录的价格必须是成交时的报价
func (sc *ServiceContext) initQuotes() error {
	cfg := sc.Config
	var provider port.QuoteProvider
	switch cfg.Quote.Provider {
	case config.ProviderIEX:
		provider = quote.NewIEX(cfg.Quote.BaseURL, cfg.Quote.APIKey, cfg.QuoteTimeout())
	case config.ProviderStatic:
		provider = quote.NewStatic(cfg.StaticQuotes()...)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Quote.Provider)
	}

	sc.liveQuotes = provider

	switch {
	case sc.redisRepo != nil:
		provider = quote.NewCached(provider, sc.redisRepo)
	case cfg.QuoteCacheTTL() > 0:
		provider = quote.NewCached(provider, quote.NewMemoryCache(cfg.QuoteCacheTTL()))
	}
	sc.quotes = provider

	log.Info().Str("provider", provider.Name()).Msg("✓ Quote provider initialized")
	return nil
}

// initEvents 成交事件同时推送到 WebSocket、Redis 和终端
func (sc *ServiceContext) initEvents() {
	sc.hub = websocket.NewHub()
	hub := sc.hub
	sc.closerChain = append(sc.closerChain, hub.Close)

	var pubs []port.EventPublisher
	pubs = append(pubs, hub)
	if sc.redisRepo != nil {
		pubs = append(pubs, sc.redisRepo)
	}
	if sc.Config.App.PrintTrades {
		pubs = append(pubs, console.NewSink(sc.Config.App.Currency))
	}
	sc.events = composite.New(pubs...)
}

// Hub 获取成交推送中心
func (sc *ServiceContext) Hub() *websocket.Hub {
	return sc.hub
}

// Ledger 获取账本存储
func (sc *ServiceContext) Ledger() port.LedgerStore {
	return sc.ledger
}

// Close 关闭所有资源
func (sc *ServiceContext) Close() error {
	// 按照相反的顺序关闭所有资源
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	sc.closerChain = nil
	return nil
}
