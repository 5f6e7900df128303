package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"apartel/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 基于 gorm 的持久化实现
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建 gorm 持久化实现
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

var _ Store = (*GormStore)(nil)

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// notFound 将 gorm 的记录不存在转换为 ErrNotFound
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// translate 转换 gorm 的通用错误，需开启 gorm.Config.TranslateError
func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

// upsert 按主键 (tenant_id, id) 插入或整行更新
func upsert(db *gorm.DB, value interface{}) error {
	return translate(db.Clauses(clause.OnConflict{UpdateAll: true}).Create(value).Error)
}

// ========== 单元名册 ==========

func (s *GormStore) ListActiveUnits(ctx context.Context, tenantID string) ([]models.RosterUnit, error) {
	var rows []models.RosterUnit
	err := s.conn(ctx).
		Table("units AS u").
		Select("u.id AS id, u.name AS name, g.name AS group_name").
		Joins("JOIN portfolio_groups g ON g.tenant_id = u.tenant_id AND g.id = u.group_id").
		Where("u.tenant_id = ?", tenantID).
		Order("g.name, u.name, u.id").
		Scan(&rows).Error
	return rows, err
}

func (s *GormStore) ListGroups(ctx context.Context, tenantID string) ([]models.PortfolioGroup, error) {
	var groups []models.PortfolioGroup
	err := s.conn(ctx).
		Where("tenant_id = ?", tenantID).
		Preload("Units", func(db *gorm.DB) *gorm.DB {
			return db.Order("name, id")
		}).
		Order("name, id").
		Find(&groups).Error
	return groups, err
}

func (s *GormStore) SaveGroups(ctx context.Context, tenantID string, groups []models.PortfolioGroup) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range groups {
			group := groups[i]
			group.TenantID = tenantID
			units := group.Units
			group.Units = nil

			if err := upsert(tx.Omit("Units"), &group); err != nil {
				return err
			}

			for j := range units {
				unit := units[j]
				unit.TenantID = tenantID
				unit.GroupID = group.ID
				if err := upsert(tx, &unit); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *GormStore) GetUnit(ctx context.Context, tenantID, unitID string) (*models.Unit, error) {
	var unit models.Unit
	err := s.conn(ctx).Where("tenant_id = ? AND id = ?", tenantID, unitID).Take(&unit).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &unit, nil
}

func (s *GormStore) DeleteUnitCascade(ctx context.Context, tenantID, unitID string) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var unit models.Unit
		if err := tx.Where("tenant_id = ? AND id = ?", tenantID, unitID).Take(&unit).Error; err != nil {
			return notFound(err)
		}

		scope := tx.Where("tenant_id = ? AND unit_id = ?", tenantID, unitID)
		if err := scope.Session(&gorm.Session{}).Delete(&models.Booking{}).Error; err != nil {
			return err
		}
		if err := scope.Session(&gorm.Session{}).Delete(&models.ChannelMapping{}).Error; err != nil {
			return err
		}
		if err := scope.Session(&gorm.Session{}).Delete(&models.ICalConnection{}).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ? AND id = ?", tenantID, unitID).Delete(&models.Unit{}).Error; err != nil {
			return err
		}

		// 合并分组清空后删除
		var group models.PortfolioGroup
		err := tx.Where("tenant_id = ? AND id = ?", tenantID, unit.GroupID).Take(&group).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if !group.IsMerge {
			return nil
		}
		var remaining int64
		if err := tx.Model(&models.Unit{}).Where("tenant_id = ? AND group_id = ?", tenantID, group.ID).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			return tx.Where("tenant_id = ? AND id = ?", tenantID, group.ID).Delete(&models.PortfolioGroup{}).Error
		}
		return nil
	})
}

// ========== 预订 ==========

func (s *GormStore) GetBooking(ctx context.Context, tenantID, id string) (*models.Booking, error) {
	var booking models.Booking
	err := s.conn(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).Take(&booking).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &booking, nil
}

func (s *GormStore) ListBookings(ctx context.Context, tenantID string, filter BookingFilter) ([]models.Booking, error) {
	query := s.conn(ctx).Where("tenant_id = ?", tenantID)
	if filter.UnitID != "" {
		query = query.Where("unit_id = ?", filter.UnitID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		query = query.Where("end_date > ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("start_date < ?", *filter.To)
	}

	var bookings []models.Booking
	err := query.Order("start_date, id").Find(&bookings).Error
	return bookings, err
}

func (s *GormStore) FindOverlap(ctx context.Context, tenantID, unitID string, start, end time.Time, excludeID string) (*models.Booking, error) {
	query := s.conn(ctx).
		Where("tenant_id = ? AND unit_id = ?", tenantID, unitID).
		Where("status <> ?", models.BookingStatusCancelled).
		Where("start_date < ? AND end_date > ?", end, start)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var booking models.Booking
	err := query.Order("start_date").Take(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &booking, nil
}

func (s *GormStore) CreateBooking(ctx context.Context, booking *models.Booking) error {
	return translate(s.conn(ctx).Create(booking).Error)
}

func (s *GormStore) SaveBooking(ctx context.Context, booking *models.Booking) error {
	return s.conn(ctx).Save(booking).Error
}

// WithUnitLock 事务内对单元行加 FOR UPDATE 锁，多实例部署下同样串行化同一单元的冲突检查
func (s *GormStore) WithUnitLock(ctx context.Context, tenantID string, unitIDs []string, fn func(tx BookingStore) error) error {
	ids := append([]string(nil), unitIDs...)
	sort.Strings(ids)

	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		for _, unitID := range ids {
			var unit models.Unit
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Select("tenant_id", "id").
				Where("tenant_id = ? AND id = ?", tenantID, unitID).
				Take(&unit).Error
			if err != nil {
				return notFound(err)
			}
		}
		return fn(&GormStore{db: tx})
	})
}

// ========== 渠道映射 / 日历连接 ==========

func (s *GormStore) ListMappings(ctx context.Context, tenantID string) ([]models.ChannelMapping, error) {
	var mappings []models.ChannelMapping
	err := s.conn(ctx).Where("tenant_id = ?", tenantID).Order("unit_name, id").Find(&mappings).Error
	return mappings, err
}

func (s *GormStore) CreateMapping(ctx context.Context, mapping *models.ChannelMapping) error {
	return translate(s.conn(ctx).Create(mapping).Error)
}

func (s *GormStore) UpdateMappingNames(ctx context.Context, tenantID, id, unitName, groupName string) error {
	result := s.conn(ctx).Model(&models.ChannelMapping{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]interface{}{
			"unit_name":  unitName,
			"group_name": groupName,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) UpsertMappings(ctx context.Context, tenantID string, mappings []models.ChannelMapping) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range mappings {
			m := mappings[i]
			m.TenantID = tenantID
			if err := upsert(tx, &m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) ListFeeds(ctx context.Context, tenantID string) ([]models.ICalConnection, error) {
	var feeds []models.ICalConnection
	err := s.conn(ctx).Where("tenant_id = ?", tenantID).Order("unit_name, id").Find(&feeds).Error
	return feeds, err
}

func (s *GormStore) CreateFeed(ctx context.Context, feed *models.ICalConnection) error {
	return translate(s.conn(ctx).Create(feed).Error)
}

func (s *GormStore) UpdateFeedName(ctx context.Context, tenantID, id, unitName string) error {
	result := s.conn(ctx).Model(&models.ICalConnection{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Update("unit_name", unitName)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) UpsertFeeds(ctx context.Context, tenantID string, feeds []models.ICalConnection) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range feeds {
			f := feeds[i]
			f.TenantID = tenantID
			if err := upsert(tx, &f); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) TouchFeedSync(ctx context.Context, tenantID, id, lastSync string) error {
	return s.conn(ctx).Model(&models.ICalConnection{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Update("last_sync", lastSync).Error
}

// ========== 流水 ==========

func (s *GormStore) ListTransactions(ctx context.Context, tenantID string, filter TransactionFilter) ([]models.Transaction, error) {
	query := s.conn(ctx).Where("tenant_id = ?", tenantID)
	if filter.UnitID != "" {
		query = query.Where("unit_id = ?", filter.UnitID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.LinkedOnly {
		query = query.Where("booking_id IS NOT NULL")
	}

	var txs []models.Transaction
	err := query.Order("date DESC, id").Find(&txs).Error
	return txs, err
}

func (s *GormStore) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	return translate(s.conn(ctx).Create(tx).Error)
}

func (s *GormStore) ListCategories(ctx context.Context, tenantID string) ([]models.TransactionCategory, error) {
	var categories []models.TransactionCategory
	err := s.conn(ctx).
		Where("tenant_id = ?", tenantID).
		Preload("SubCategories", func(db *gorm.DB) *gorm.DB {
			return db.Order("name")
		}).
		Order("name").
		Find(&categories).Error
	return categories, err
}

func (s *GormStore) GetCategory(ctx context.Context, tenantID, id string) (*models.TransactionCategory, error) {
	var category models.TransactionCategory
	err := s.conn(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Preload("SubCategories").
		Take(&category).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &category, nil
}

func (s *GormStore) CreateCategory(ctx context.Context, category *models.TransactionCategory) error {
	return translate(s.conn(ctx).Omit("SubCategories").Create(category).Error)
}

func (s *GormStore) UpdateCategory(ctx context.Context, category *models.TransactionCategory) error {
	return s.conn(ctx).Model(&models.TransactionCategory{}).
		Where("tenant_id = ? AND id = ?", category.TenantID, category.ID).
		Updates(map[string]interface{}{"name": category.Name, "type": category.Type}).Error
}

func (s *GormStore) DeleteCategory(ctx context.Context, tenantID, id string) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ? AND category_id = ?", tenantID, id).Delete(&models.TransactionSubCategory{}).Error; err != nil {
			return err
		}
		result := tx.Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&models.TransactionCategory{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *GormStore) GetSubCategory(ctx context.Context, tenantID, id string) (*models.TransactionSubCategory, error) {
	var sub models.TransactionSubCategory
	err := s.conn(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).Take(&sub).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *GormStore) CreateSubCategory(ctx context.Context, sub *models.TransactionSubCategory) error {
	return translate(s.conn(ctx).Create(sub).Error)
}

func (s *GormStore) UpdateSubCategory(ctx context.Context, sub *models.TransactionSubCategory) error {
	return s.conn(ctx).Model(&models.TransactionSubCategory{}).
		Where("tenant_id = ? AND id = ?", sub.TenantID, sub.ID).
		Update("name", sub.Name).Error
}

func (s *GormStore) DeleteSubCategory(ctx context.Context, tenantID, id string) error {
	result := s.conn(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&models.TransactionSubCategory{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ========== 租户 ==========

func (s *GormStore) ListTenantIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.conn(ctx).Model(&models.Tenant{}).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

func (s *GormStore) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := s.conn(ctx).Where("id = ?", id).Take(&tenant).Error; err != nil {
		return nil, notFound(err)
	}
	return &tenant, nil
}

func (s *GormStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	return translate(s.conn(ctx).Create(tenant).Error)
}

func (s *GormStore) SaveOtaConfigs(ctx context.Context, id string, configs datatypes.JSON) error {
	result := s.conn(ctx).Model(&models.Tenant{}).Where("id = ?", id).Update("ota_configs", configs)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
