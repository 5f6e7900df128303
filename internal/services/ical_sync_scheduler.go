package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"apartel/internal/store"
	apperrors "apartel/pkg/errors"
	"apartel/pkg/logger"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// LastSyncLayout 最近同步时间格式（UTC，毫秒）
const LastSyncLayout = "2006-01-02T15:04:05.000Z"

// ICalSyncStores 日历同步依赖的持久化协作方
type ICalSyncStores interface {
	store.TenantStore
	store.ChannelStore
}

// SyncReport 一次同步的汇总
type SyncReport struct {
	Tenants       int      `json:"tenants"`
	Synced        int      `json:"synced"`
	Failed        int      `json:"failed"`
	Skipped       int      `json:"skipped"`
	FailedTenants []string `json:"failedTenants,omitempty"`
}

// ICalSyncScheduler 定时拉取所有租户的外部日历
type ICalSyncScheduler struct {
	stores        ICalSyncStores
	fetcher       FeedFetcher
	spec          string
	workers       int
	tenantTimeout time.Duration
	now           func() time.Time

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewICalSyncScheduler 创建日历同步调度器，spec 为带秒的 cron 表达式
func NewICalSyncScheduler(stores ICalSyncStores, fetcher FeedFetcher, spec string, workers int, tenantTimeout time.Duration) *ICalSyncScheduler {
	if fetcher == nil {
		fetcher = MockFeedFetcher{}
	}
	if workers <= 0 {
		workers = 1
	}
	if tenantTimeout <= 0 {
		tenantTimeout = 20 * time.Second
	}
	return &ICalSyncScheduler{
		stores:        stores,
		fetcher:       fetcher,
		spec:          spec,
		workers:       workers,
		tenantTimeout: tenantTimeout,
		now:           time.Now,
		cron:          cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
}

// Start 启动调度器
func (s *ICalSyncScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("调度器已经在运行")
	}

	if _, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			logger.GetLogger().Errorf("日历同步失败: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("添加日历同步任务失败: %v", err)
	}

	s.cron.Start()
	s.running = true
	logger.GetLogger().Infof("日历同步调度器启动成功，cron: %s", s.spec)
	return nil
}

// Stop 停止调度器，等待正在执行的任务结束
func (s *ICalSyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	logger.GetLogger().Info("停止日历同步调度器")
	<-s.cron.Stop().Done()
	s.running = false
}

// RunOnce 对所有租户执行一次同步；单个租户失败不影响其他租户
func (s *ICalSyncScheduler) RunOnce(ctx context.Context) (*SyncReport, error) {
	tenantIDs, err := s.stores.ListTenantIDs(ctx)
	if err != nil {
		return nil, storeError(err, "Tenant not found.")
	}

	report := &SyncReport{Tenants: len(tenantIDs)}
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.workers)
	)

	for _, tenantID := range tenantIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(tenantID string) {
			defer wg.Done()
			defer func() { <-sem }()

			tctx, cancel := context.WithTimeout(ctx, s.tenantTimeout)
			defer cancel()

			synced, failed, skipped, err := s.syncTenant(tctx, tenantID)

			mu.Lock()
			defer mu.Unlock()
			report.Synced += synced
			report.Failed += failed
			report.Skipped += skipped
			if err != nil {
				report.FailedTenants = append(report.FailedTenants, tenantID)
				logger.GetLogger().WithField("tenant_id", tenantID).Errorf("租户日历同步失败: %v", err)
			}
		}(tenantID)
	}
	wg.Wait()

	logger.GetLogger().WithFields(logrus.Fields{
		"tenants": report.Tenants,
		"synced":  report.Synced,
		"failed":  report.Failed,
		"skipped": report.Skipped,
	}).Info("日历同步完成")
	return report, nil
}

func (s *ICalSyncScheduler) syncTenant(ctx context.Context, tenantID string) (synced, failed, skipped int, err error) {
	feeds, err := s.stores.ListFeeds(ctx, tenantID)
	if err != nil {
		return 0, 0, 0, err
	}

	for i, feed := range feeds {
		if ctx.Err() != nil {
			// 超时后剩余的待拉取连接记为失败
			for _, rest := range feeds[i:] {
				if rest.ImportURL == "" {
					skipped++
				} else {
					failed++
				}
			}
			return synced, failed, skipped, ctx.Err()
		}
		if feed.ImportURL == "" {
			skipped++
			continue
		}

		log := logger.GetLogger().WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"unit_id":   feed.UnitID,
			"feed_id":   feed.ID,
		})

		if err := s.fetcher.Fetch(ctx, feed); err != nil {
			if apperrors.KindOf(err) == "" {
				err = apperrors.Wrap(apperrors.KindExternalFetchFailed, "Failed to fetch calendar.", err)
			}
			log.Warnf("日历拉取失败: %v", err)
			failed++
			continue
		}

		stamp := s.now().UTC().Format(LastSyncLayout)
		if err := s.stores.TouchFeedSync(ctx, tenantID, feed.ID, stamp); err != nil {
			log.Errorf("更新同步时间失败: %v", err)
			failed++
			continue
		}
		synced++
	}
	return synced, failed, skipped, nil
}
