package services

import (
	"context"
	"fmt"
	"sync"

	"apartel/internal/store"
	"apartel/pkg/logger"

	"github.com/robfig/cron/v3"
)

// ChannelReconcileScheduler 定时对所有租户执行渠道对账
type ChannelReconcileScheduler struct {
	tenants store.TenantStore
	channel *ChannelService
	spec    string

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewChannelReconcileScheduler 创建渠道对账调度器
func NewChannelReconcileScheduler(tenants store.TenantStore, channel *ChannelService, spec string) *ChannelReconcileScheduler {
	return &ChannelReconcileScheduler{
		tenants: tenants,
		channel: channel,
		spec:    spec,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
}

// Start 启动调度器
func (s *ChannelReconcileScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("调度器已经在运行")
	}
	if _, err := s.cron.AddFunc(s.spec, func() {
		s.RunOnce(context.Background())
	}); err != nil {
		return fmt.Errorf("添加渠道对账任务失败: %v", err)
	}

	s.cron.Start()
	s.running = true
	logger.GetLogger().Infof("渠道对账调度器启动成功，cron: %s", s.spec)
	return nil
}

// Stop 停止调度器
func (s *ChannelReconcileScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	logger.GetLogger().Info("停止渠道对账调度器")
	<-s.cron.Stop().Done()
	s.running = false
}

// RunOnce 依次对账所有租户，返回成功的租户数
func (s *ChannelReconcileScheduler) RunOnce(ctx context.Context) int {
	tenantIDs, err := s.tenants.ListTenantIDs(ctx)
	if err != nil {
		logger.GetLogger().Errorf("加载租户列表失败: %v", err)
		return 0
	}

	ok := 0
	for _, tenantID := range tenantIDs {
		if _, err := s.channel.Reconcile(ctx, tenantID); err != nil {
			logger.GetLogger().WithField("tenant_id", tenantID).Errorf("渠道对账失败: %v", err)
			continue
		}
		ok++
	}
	return ok
}
