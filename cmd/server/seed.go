package main

import (
	"context"
	"errors"
	"fmt"

	"apartel/internal/app"
	"apartel/internal/models"
	"apartel/internal/store"
	"apartel/pkg/jwt"
	"apartel/pkg/logger"

	"github.com/shopspring/decimal"
)

const defaultTenantID = "default"

// seedData 初始化种子数据
func seedData(ctx context.Context, a *app.App, manager *jwt.JWTManager) error {
	appLogger := logger.GetLogger()
	appLogger.Info("Starting seed data initialization...")

	// 1. 创建默认租户
	created, err := createDefaultTenant(ctx, a.Store, a.Config.Ledger.DefaultCurrency)
	if err != nil {
		return fmt.Errorf("创建默认租户失败: %v", err)
	}

	// 2. 创建示例房源
	if created {
		if err := createSamplePortfolio(ctx, a.Store); err != nil {
			return fmt.Errorf("创建示例房源失败: %v", err)
		}
		if _, err := a.Channels.Reconcile(ctx, defaultTenantID); err != nil {
			return fmt.Errorf("初始化渠道映射失败: %v", err)
		}
	}

	// 3. 开发模式下输出访问令牌
	if a.Config.Server.Mode == "debug" {
		token, err := manager.GenerateToken("admin", defaultTenantID, "admin")
		if err != nil {
			return fmt.Errorf("生成开发令牌失败: %v", err)
		}
		appLogger.Infof("Development token for tenant %q: %s", defaultTenantID, token)
	}

	appLogger.Info("Seed data initialization completed successfully")
	return nil
}

// createDefaultTenant 创建默认租户，已存在时返回 false
func createDefaultTenant(ctx context.Context, st store.TenantStore, currency string) (bool, error) {
	if _, err := st.GetTenant(ctx, defaultTenantID); err == nil {
		logger.GetLogger().Info("默认租户已存在，跳过创建")
		return false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}

	tenant := &models.Tenant{
		ID:       defaultTenantID,
		Name:     "默认租户",
		Status:   models.TenantStatusActive,
		Currency: currency,
	}
	if err := st.CreateTenant(ctx, tenant); err != nil {
		return false, err
	}
	logger.GetLogger().Infof("默认租户创建成功: %s", tenant.ID)
	return true, nil
}

// createSamplePortfolio 一个分组两个单元
func createSamplePortfolio(ctx context.Context, st store.PortfolioStore) error {
	return st.SaveGroups(ctx, defaultTenantID, []models.PortfolioGroup{{
		TenantModel: models.TenantModel{ID: "g-sample"},
		Name:        "Sample Building",
		Expanded:    true,
		Units: []models.Unit{
			{
				TenantModel: models.TenantModel{ID: "u-sample-1"},
				Name:        "Studio 1",
				BasePrice:   decimal.NewFromInt(80),
				CleaningFee: decimal.NewFromInt(20),
				Status:      models.UnitStatusActive,
			},
			{
				TenantModel: models.TenantModel{ID: "u-sample-2"},
				Name:        "Loft 2",
				BasePrice:   decimal.NewFromInt(120),
				CleaningFee: decimal.NewFromInt(30),
				Status:      models.UnitStatusActive,
			},
		},
	}})
}
