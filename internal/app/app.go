// Package app 按配置装配存储、锁、事件出站与各业务服务，供 HTTP 服务与命令行共用。
package app

import (
	"context"
	"fmt"

	"apartel/internal/database"
	"apartel/internal/events"
	"apartel/internal/handlers"
	"apartel/internal/services"
	"apartel/internal/store"
	"apartel/internal/store/memory"
	"apartel/pkg/config"
	"apartel/pkg/lock"
	"apartel/pkg/logger"
	"apartel/pkg/queue"
)

// App 已装配的运行时依赖
type App struct {
	Config *config.Config
	Store  store.Store
	Locker lock.Locker

	Bookings     *services.BookingService
	Channels     *services.ChannelService
	Transactions *services.TransactionService
	Portfolio    *services.PortfolioService

	health    map[string]handlers.HealthCheck
	publisher events.Publisher
	closers   []func() error
}

// New 初始化存储（含迁移）及全部服务
func New(cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, health: map[string]handlers.HealthCheck{}}

	if err := a.initStore(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initLocker(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initPublisher(); err != nil {
		a.Close()
		return nil, err
	}

	a.Bookings = services.NewBookingService(a.Store, a.Locker, a.publisher)
	a.Channels = services.NewChannelService(a.Store, a.Locker, cfg.Channel.ExportBaseURL)
	a.Transactions = services.NewTransactionService(a.Store, a.Locker, cfg.Ledger.DefaultCurrency)
	a.Portfolio = services.NewPortfolioService(a.Store)
	return a, nil
}

func (a *App) initStore() error {
	switch a.Config.Server.Store {
	case "memory":
		logger.GetLogger().Warn("Using in-memory store, data is lost on restart")
		a.Store = memory.New()
	case "gorm", "":
		if err := database.Initialize(a.Config); err != nil {
			return fmt.Errorf("初始化数据库失败: %w", err)
		}
		a.closers = append(a.closers, database.Close)
		if err := database.Migrate(); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
		a.Store = store.NewGormStore(database.GetDB())
		a.health["database"] = func(ctx context.Context) error {
			sqlDB, err := database.GetDB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	default:
		return fmt.Errorf("不支持的存储类型: %s", a.Config.Server.Store)
	}
	return nil
}

func (a *App) redis() *queue.RedisQueue {
	if _, ok := a.health["redis"]; !ok {
		q := database.GetRedisQueue()
		a.health["redis"] = q.Ping
		a.closers = append(a.closers, database.CloseRedisQueue)
	}
	return database.GetRedisQueue()
}

func (a *App) initLocker() error {
	switch a.Config.Lock.Backend {
	case "local", "":
		a.Locker = lock.NewKeyedMutex()
	case "redis":
		q := a.redis()
		a.Locker = lock.NewRedisLocker(q.GetClient(), q.Prefix(), a.Config.Lock.TTL)
	default:
		return fmt.Errorf("不支持的锁类型: %s", a.Config.Lock.Backend)
	}
	return nil
}

func (a *App) initPublisher() error {
	var sink events.Sink
	switch a.Config.Events.Backend {
	case "log", "":
		sink = events.LogSink{}
	case "kafka":
		sink = events.NewKafkaSink(queue.NewKafkaProducer(a.Config.Kafka.Brokers, a.Config.Kafka.Topic))
	case "redis":
		sink = events.NewRedisSink(a.redis(), a.Config.Events.RedisChan)
	case "none":
		a.publisher = events.Nop{}
		return nil
	default:
		return fmt.Errorf("不支持的事件出站类型: %s", a.Config.Events.Backend)
	}

	publisher := events.NewAsyncPublisher(sink, a.Config.Events.Buffer, a.Config.Events.Workers)
	a.publisher = publisher
	// 先于存储关闭，保证缓冲中的事件投递完成
	a.closers = append([]func() error{publisher.Close}, a.closers...)
	return nil
}

// FeedFetcher 按配置返回日历拉取实现
func (a *App) FeedFetcher() services.FeedFetcher {
	if a.Config.Channel.FetchMode == "http" {
		return services.NewHTTPFeedFetcher(a.Config.Channel.FetchTimeout)
	}
	return services.MockFeedFetcher{}
}

// ICalSyncScheduler 创建日历同步调度器
func (a *App) ICalSyncScheduler() *services.ICalSyncScheduler {
	ch := a.Config.Channel
	return services.NewICalSyncScheduler(a.Store, a.FeedFetcher(), ch.ICalSyncCron, ch.SyncWorkers, ch.FetchTimeout)
}

// ChannelReconcileScheduler 创建渠道对账调度器
func (a *App) ChannelReconcileScheduler() *services.ChannelReconcileScheduler {
	return services.NewChannelReconcileScheduler(a.Store, a.Channels, a.Config.Channel.ReconcileCron)
}

// SystemHandler 健康检查处理器，包含已启用的外部依赖
func (a *App) SystemHandler() *handlers.SystemHandler {
	return handlers.NewSystemHandler(a.health)
}

// Close 按注册顺序释放资源
func (a *App) Close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			logger.GetLogger().Errorf("Failed to release resource: %v", err)
		}
	}
	a.closers = nil
}
