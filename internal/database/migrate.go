package database

import (
	"apartel/internal/models"
	"apartel/pkg/logger"
)

// uniqueIndex AutoMigrate 之外补建的租户内唯一索引
type uniqueIndex struct {
	model   interface{}
	name    string
	table   string
	columns string
}

var uniqueIndexes = []uniqueIndex{
	// 收入流水与预订一一对应
	{&models.Transaction{}, "idx_transactions_tenant_unit_booking", "transactions", "tenant_id, unit_id, booking_id"},
	// 每个单元只有一条渠道映射和一条日历连接
	{&models.ChannelMapping{}, "idx_channel_mappings_tenant_unit", "channel_mappings", "tenant_id, unit_id"},
	{&models.ICalConnection{}, "idx_ical_connections_tenant_unit", "ical_connections", "tenant_id, unit_id"},
}

// Migrate 执行数据库迁移
func Migrate() error {
	appLogger := logger.GetLogger()
	appLogger.Info("Starting database migration...")

	err := DB.AutoMigrate(
		&models.Tenant{},
		&models.PortfolioGroup{},
		&models.Unit{},
		&models.Booking{},
		&models.ChannelMapping{},
		&models.ICalConnection{},
		&models.Transaction{},
		&models.TransactionCategory{},
		&models.TransactionSubCategory{},
	)
	if err != nil {
		appLogger.Errorf("Database migration failed: %v", err)
		return err
	}

	for _, idx := range uniqueIndexes {
		if DB.Migrator().HasIndex(idx.model, idx.name) {
			continue
		}
		if err := DB.Exec("CREATE UNIQUE INDEX " + idx.name + " ON " + idx.table + " (" + idx.columns + ")").Error; err != nil {
			appLogger.Errorf("Failed to create index %s: %v", idx.name, err)
			return err
		}
	}

	appLogger.Info("Database migration completed successfully")
	return nil
}
