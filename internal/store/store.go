// Package store 持久化协作方接口。所有读写都以 tenantID 作为范围，
// gorm 实现见 gorm_store.go，内存实现见 memory 子包。
package store

import (
	"context"
	"errors"
	"time"

	"apartel/internal/models"

	"gorm.io/datatypes"
)

// ErrNotFound 记录不存在（或不属于该租户）
var ErrNotFound = errors.New("record not found")

// ErrDuplicate 主键或唯一索引冲突
var ErrDuplicate = errors.New("duplicate record")

// RosterReader 单元名册只读视图
type RosterReader interface {
	ListActiveUnits(ctx context.Context, tenantID string) ([]models.RosterUnit, error)
}

// PortfolioStore 房源分组与单元
type PortfolioStore interface {
	RosterReader
	ListGroups(ctx context.Context, tenantID string) ([]models.PortfolioGroup, error)
	SaveGroups(ctx context.Context, tenantID string, groups []models.PortfolioGroup) error
	GetUnit(ctx context.Context, tenantID, unitID string) (*models.Unit, error)
	// DeleteUnitCascade 删除单元及其预订、渠道映射、日历连接；合并分组被清空时一并删除
	DeleteUnitCascade(ctx context.Context, tenantID, unitID string) error
}

// BookingFilter 预订查询条件，零值字段不参与过滤
type BookingFilter struct {
	UnitID string
	Status string
	From   *time.Time // EndDate > From
	To     *time.Time // StartDate < To
}

// BookingStore 预订
type BookingStore interface {
	GetBooking(ctx context.Context, tenantID, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, tenantID string, filter BookingFilter) ([]models.Booking, error)
	// FindOverlap 返回与 [start, end) 相交的第一条未取消预订，excludeID 为自身ID（新建时为空）
	FindOverlap(ctx context.Context, tenantID, unitID string, start, end time.Time, excludeID string) (*models.Booking, error)
	CreateBooking(ctx context.Context, booking *models.Booking) error
	SaveBooking(ctx context.Context, booking *models.Booking) error
	// WithUnitLock 在单元级排他区间内执行 fn（数据库实现为事务 + 单元行锁）
	WithUnitLock(ctx context.Context, tenantID string, unitIDs []string, fn func(tx BookingStore) error) error
}

// ChannelStore 渠道映射与日历连接
type ChannelStore interface {
	ListMappings(ctx context.Context, tenantID string) ([]models.ChannelMapping, error)
	CreateMapping(ctx context.Context, mapping *models.ChannelMapping) error
	UpdateMappingNames(ctx context.Context, tenantID, id, unitName, groupName string) error
	UpsertMappings(ctx context.Context, tenantID string, mappings []models.ChannelMapping) error

	ListFeeds(ctx context.Context, tenantID string) ([]models.ICalConnection, error)
	CreateFeed(ctx context.Context, feed *models.ICalConnection) error
	UpdateFeedName(ctx context.Context, tenantID, id, unitName string) error
	UpsertFeeds(ctx context.Context, tenantID string, feeds []models.ICalConnection) error
	TouchFeedSync(ctx context.Context, tenantID, id, lastSync string) error
}

// TransactionFilter 流水查询条件
type TransactionFilter struct {
	UnitID     string
	Type       string
	LinkedOnly bool // 仅返回关联了预订的流水
}

// TransactionStore 账本流水与分类
type TransactionStore interface {
	ListTransactions(ctx context.Context, tenantID string, filter TransactionFilter) ([]models.Transaction, error)
	CreateTransaction(ctx context.Context, tx *models.Transaction) error

	ListCategories(ctx context.Context, tenantID string) ([]models.TransactionCategory, error)
	GetCategory(ctx context.Context, tenantID, id string) (*models.TransactionCategory, error)
	CreateCategory(ctx context.Context, category *models.TransactionCategory) error
	UpdateCategory(ctx context.Context, category *models.TransactionCategory) error
	DeleteCategory(ctx context.Context, tenantID, id string) error

	GetSubCategory(ctx context.Context, tenantID, id string) (*models.TransactionSubCategory, error)
	CreateSubCategory(ctx context.Context, sub *models.TransactionSubCategory) error
	UpdateSubCategory(ctx context.Context, sub *models.TransactionSubCategory) error
	DeleteSubCategory(ctx context.Context, tenantID, id string) error
}

// TenantStore 租户
type TenantStore interface {
	// ListTenantIDs 全部租户（不区分状态），供定时任务遍历
	ListTenantIDs(ctx context.Context) ([]string, error)
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	SaveOtaConfigs(ctx context.Context, id string, configs datatypes.JSON) error
}

// Store 聚合接口
type Store interface {
	PortfolioStore
	BookingStore
	ChannelStore
	TransactionStore
	TenantStore
}
