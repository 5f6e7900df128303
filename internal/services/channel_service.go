package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"apartel/internal/models"
	"apartel/internal/store"
	apperrors "apartel/pkg/errors"
	"apartel/pkg/lock"
	"apartel/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// ChannelStores 渠道对账依赖的持久化协作方
type ChannelStores interface {
	store.RosterReader
	store.ChannelStore
	store.TenantStore
}

// ReconcileResult 对账结果，每个名册单元对应一条映射和一条日历连接
type ReconcileResult struct {
	Mappings        []models.ChannelMapping `json:"mappings"`
	Feeds           []models.ICalConnection `json:"icalConnections"`
	MappingsCreated int                     `json:"mappingsCreated"`
	MappingsUpdated int                     `json:"mappingsUpdated"`
	FeedsCreated    int                     `json:"feedsCreated"`
	FeedsUpdated    int                     `json:"feedsUpdated"`
}

// Writes 本次对账写入的记录数
func (r *ReconcileResult) Writes() int {
	return r.MappingsCreated + r.MappingsUpdated + r.FeedsCreated + r.FeedsUpdated
}

// ChannelService 渠道映射与日历连接的对账
type ChannelService struct {
	stores        ChannelStores
	locker        lock.Locker
	exportBaseURL string
}

// NewChannelService 创建渠道服务
func NewChannelService(stores ChannelStores, locker lock.Locker, exportBaseURL string) *ChannelService {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	return &ChannelService{
		stores:        stores,
		locker:        locker,
		exportBaseURL: strings.TrimRight(exportBaseURL, "/"),
	}
}

// reconcilePlan 对账差量
type reconcilePlan struct {
	createMappings []models.ChannelMapping
	renameMappings []models.ChannelMapping
	createFeeds    []models.ICalConnection
	renameFeeds    []models.ICalConnection

	// 按名册顺序排列的最终视图
	mappings []models.ChannelMapping
	feeds    []models.ICalConnection
}

// planReconcile 计算名册与现有记录的差量，不删除孤儿记录
func planReconcile(tenantID, exportBaseURL string, roster []models.RosterUnit, mappings []models.ChannelMapping, feeds []models.ICalConnection) reconcilePlan {
	mappingByUnit := make(map[string]models.ChannelMapping, len(mappings))
	for _, m := range mappings {
		if _, seen := mappingByUnit[m.UnitID]; !seen {
			mappingByUnit[m.UnitID] = m
		}
	}
	feedByUnit := make(map[string]models.ICalConnection, len(feeds))
	for _, f := range feeds {
		if _, seen := feedByUnit[f.UnitID]; !seen {
			feedByUnit[f.UnitID] = f
		}
	}

	var plan reconcilePlan
	for _, unit := range roster {
		m, ok := mappingByUnit[unit.ID]
		switch {
		case !ok:
			m = models.ChannelMapping{
				TenantModel: models.TenantModel{TenantID: tenantID, ID: models.MappingIDPrefix + unit.ID},
				UnitID:      unit.ID,
				UnitName:    unit.Name,
				GroupName:   unit.GroupName,
				Markup:      decimal.Zero,
				IsMapped:    false,
				Status:      models.MappingStatusInactive,
			}
			plan.createMappings = append(plan.createMappings, m)
			mappingByUnit[unit.ID] = m
		case m.UnitName != unit.Name || m.GroupName != unit.GroupName:
			m.UnitName = unit.Name
			m.GroupName = unit.GroupName
			plan.renameMappings = append(plan.renameMappings, m)
		}
		plan.mappings = append(plan.mappings, m)

		f, ok := feedByUnit[unit.ID]
		switch {
		case !ok:
			f = models.ICalConnection{
				TenantModel: models.TenantModel{TenantID: tenantID, ID: models.ICalIDPrefix + unit.ID},
				UnitID:      unit.ID,
				UnitName:    unit.Name,
				ImportURL:   "",
				ExportURL:   exportURL(exportBaseURL, tenantID, unit.ID),
				LastSync:    models.LastSyncNever,
			}
			plan.createFeeds = append(plan.createFeeds, f)
			feedByUnit[unit.ID] = f
		case f.UnitName != unit.Name:
			f.UnitName = unit.Name
			plan.renameFeeds = append(plan.renameFeeds, f)
		}
		plan.feeds = append(plan.feeds, f)
	}
	return plan
}

func exportURL(base, tenantID, unitID string) string {
	return fmt.Sprintf("%s/cal/%s/%s.ics", base, tenantID, unitID)
}

// lockTenant 对账与手工编辑共用同一把租户锁
func (s *ChannelService) lockTenant(ctx context.Context, tenantID string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, "reconcile:"+tenantID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindPersistence, "Failed to acquire reconcile lock.", err)
	}
	return unlock, nil
}

// sharedUnit 返回被两个不同ID占用的单元；existing 为现有 ID→单元，claims 按顺序覆盖
func sharedUnit(existing map[string]string, claims [][2]string) string {
	holders := make(map[string]string, len(existing))
	for id, unitID := range existing {
		holders[unitID] = id
	}
	for _, c := range claims {
		id, unitID := c[0], c[1]
		if prev, ok := existing[id]; ok && holders[prev] == id {
			delete(holders, prev)
		}
		if holder, ok := holders[unitID]; ok && holder != id {
			return unitID
		}
		holders[unitID] = id
		existing[id] = unitID
	}
	return ""
}

// Reconcile 使租户的渠道映射和日历连接与单元名册保持一致
func (s *ChannelService) Reconcile(ctx context.Context, tenantID string) (*ReconcileResult, error) {
	unlock, err := s.lockTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	roster, err := s.stores.ListActiveUnits(ctx, tenantID)
	if err != nil {
		return nil, storeError(err, msgUnitNotFound)
	}
	mappings, err := s.stores.ListMappings(ctx, tenantID)
	if err != nil {
		return nil, storeError(err, "Channel mapping not found.")
	}
	feeds, err := s.stores.ListFeeds(ctx, tenantID)
	if err != nil {
		return nil, storeError(err, "Calendar connection not found.")
	}

	plan := planReconcile(tenantID, s.exportBaseURL, roster, mappings, feeds)

	for i := range plan.createMappings {
		if err := s.stores.CreateMapping(ctx, &plan.createMappings[i]); err != nil {
			return nil, storeError(err, "Channel mapping not found.")
		}
	}
	for _, m := range plan.renameMappings {
		if err := s.stores.UpdateMappingNames(ctx, tenantID, m.ID, m.UnitName, m.GroupName); err != nil {
			return nil, storeError(err, "Channel mapping not found.")
		}
	}
	for i := range plan.createFeeds {
		if err := s.stores.CreateFeed(ctx, &plan.createFeeds[i]); err != nil {
			return nil, storeError(err, "Calendar connection not found.")
		}
	}
	for _, f := range plan.renameFeeds {
		if err := s.stores.UpdateFeedName(ctx, tenantID, f.ID, f.UnitName); err != nil {
			return nil, storeError(err, "Calendar connection not found.")
		}
	}

	result := &ReconcileResult{
		Mappings:        plan.mappings,
		Feeds:           plan.feeds,
		MappingsCreated: len(plan.createMappings),
		MappingsUpdated: len(plan.renameMappings),
		FeedsCreated:    len(plan.createFeeds),
		FeedsUpdated:    len(plan.renameFeeds),
	}
	if result.Mappings == nil {
		result.Mappings = []models.ChannelMapping{}
	}
	if result.Feeds == nil {
		result.Feeds = []models.ICalConnection{}
	}

	logger.GetLogger().WithFields(logrus.Fields{
		"tenant_id":        tenantID,
		"units":            len(roster),
		"mappings_created": result.MappingsCreated,
		"mappings_updated": result.MappingsUpdated,
		"feeds_created":    result.FeedsCreated,
		"feeds_updated":    result.FeedsUpdated,
	}).Info("渠道对账完成")

	return result, nil
}

// ========== 手工维护 ==========

// MappingInput 渠道映射编辑请求
type MappingInput struct {
	ID           string          `json:"id" validate:"required,max=64"`
	UnitID       string          `json:"unitId" validate:"required,max=64"`
	UnitName     string          `json:"unitName" validate:"max=200"`
	GroupName    string          `json:"groupName" validate:"max=200"`
	AirbnbID     string          `json:"airbnbId" validate:"max=100"`
	BookingComID string          `json:"bookingId" validate:"max=100"`
	Markup       decimal.Decimal `json:"markup"`
	IsMapped     bool            `json:"isMapped"`
	Status       string          `json:"status" validate:"omitempty,oneof=Active Inactive"`
}

// FeedInput 日历连接编辑请求
type FeedInput struct {
	ID        string `json:"id" validate:"required,max=64"`
	UnitID    string `json:"unitId" validate:"required,max=64"`
	UnitName  string `json:"unitName" validate:"max=200"`
	ImportURL string `json:"importUrl" validate:"omitempty,url,max=1000"`
	ExportURL string `json:"exportUrl" validate:"omitempty,url,max=1000"`
	LastSync  string `json:"lastSync" validate:"max=40"`
}

// ListMappings 租户的全部渠道映射（含孤儿记录）
func (s *ChannelService) ListMappings(ctx context.Context, tenantID string) ([]models.ChannelMapping, error) {
	mappings, err := s.stores.ListMappings(ctx, tenantID)
	if err != nil {
		return nil, storeError(err, "Channel mapping not found.")
	}
	if mappings == nil {
		mappings = []models.ChannelMapping{}
	}
	return mappings, nil
}

// SaveMappings 按ID插入或覆盖渠道映射
func (s *ChannelService) SaveMappings(ctx context.Context, tenantID string, inputs []MappingInput) ([]models.ChannelMapping, error) {
	rows := make([]models.ChannelMapping, 0, len(inputs))
	for _, in := range inputs {
		if err := validate.Struct(in); err != nil {
			return nil, validationError(err)
		}
		status := in.Status
		if status == "" {
			status = models.MappingStatusInactive
		}
		rows = append(rows, models.ChannelMapping{
			TenantModel:  models.TenantModel{TenantID: tenantID, ID: in.ID},
			UnitID:       in.UnitID,
			UnitName:     in.UnitName,
			GroupName:    in.GroupName,
			AirbnbID:     in.AirbnbID,
			BookingComID: in.BookingComID,
			Markup:       in.Markup,
			IsMapped:     in.IsMapped,
			Status:       status,
		})
	}

	unlock, err := s.lockTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.stores.ListMappings(ctx, tenantID)
	if err != nil {
		return nil, storeError(err, "Channel mapping not found.")
	}
	existing := make(map[string]string, len(current))
	for _, m := range current {
		existing[m.ID] = m.UnitID
	}
	claims := make([][2]string, 0, len(rows))
	for _, m := range rows {
		claims = append(claims, [2]string{m.ID, m.UnitID})
	}
	if unitID := sharedUnit(existing, claims); unitID != "" {
		return nil, apperrors.New(apperrors.KindConflict, fmt.Sprintf("Unit %s already has a channel mapping.", unitID))
	}

	if err := s.stores.UpsertMappings(ctx, tenantID, rows); err != nil {
		return nil, storeError(err, "Channel mapping not found.")
	}
	return s.ListMappings(ctx, tenantID)
}

// ListFeeds 租户的全部日历连接
func (s *ChannelService) ListFeeds(ctx context.Context, tenantID string) ([]models.ICalConnection, error) {
	feeds, err := s.stores.ListFeeds(ctx, tenantID)
	if err != nil {
		return nil, storeError(err, "Calendar connection not found.")
	}
	if feeds == nil {
		feeds = []models.ICalConnection{}
	}
	return feeds, nil
}

// SaveFeeds 按ID插入或覆盖日历连接
func (s *ChannelService) SaveFeeds(ctx context.Context, tenantID string, inputs []FeedInput) ([]models.ICalConnection, error) {
	rows := make([]models.ICalConnection, 0, len(inputs))
	for _, in := range inputs {
		if err := validate.Struct(in); err != nil {
			return nil, validationError(err)
		}
		lastSync := in.LastSync
		if lastSync == "" {
			lastSync = models.LastSyncNever
		}
		export := in.ExportURL
		if export == "" {
			export = exportURL(s.exportBaseURL, tenantID, in.UnitID)
		}
		rows = append(rows, models.ICalConnection{
			TenantModel: models.TenantModel{TenantID: tenantID, ID: in.ID},
			UnitID:      in.UnitID,
			UnitName:    in.UnitName,
			ImportURL:   strings.TrimSpace(in.ImportURL),
			ExportURL:   export,
			LastSync:    lastSync,
		})
	}

	unlock, err := s.lockTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.stores.ListFeeds(ctx, tenantID)
	if err != nil {
		return nil, storeError(err, "Calendar connection not found.")
	}
	existing := make(map[string]string, len(current))
	for _, f := range current {
		existing[f.ID] = f.UnitID
	}
	claims := make([][2]string, 0, len(rows))
	for _, f := range rows {
		claims = append(claims, [2]string{f.ID, f.UnitID})
	}
	if unitID := sharedUnit(existing, claims); unitID != "" {
		return nil, apperrors.New(apperrors.KindConflict, fmt.Sprintf("Unit %s already has a calendar connection.", unitID))
	}

	if err := s.stores.UpsertFeeds(ctx, tenantID, rows); err != nil {
		return nil, storeError(err, "Calendar connection not found.")
	}
	return s.ListFeeds(ctx, tenantID)
}

// GetOtaConfigs 读取租户的 OTA 配置
func (s *ChannelService) GetOtaConfigs(ctx context.Context, tenantID string) (map[string]interface{}, error) {
	tenant, err := s.stores.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, storeError(err, "Tenant not found.")
	}
	return decodeOtaConfigs(tenant.OtaConfigs)
}

// MergeOtaConfigs 按顶层键合并 OTA 配置，值为 null 的键被移除
func (s *ChannelService) MergeOtaConfigs(ctx context.Context, tenantID string, patch map[string]interface{}) (map[string]interface{}, error) {
	tenant, err := s.stores.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, storeError(err, "Tenant not found.")
	}

	configs, err := decodeOtaConfigs(tenant.OtaConfigs)
	if err != nil {
		return nil, err
	}
	for k, v := range patch {
		if v == nil {
			delete(configs, k)
			continue
		}
		configs[k] = v
	}

	data, err := json.Marshal(configs)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidParam, "Invalid OTA configuration.", err)
	}
	if err := s.stores.SaveOtaConfigs(ctx, tenantID, datatypes.JSON(data)); err != nil {
		return nil, storeError(err, "Tenant not found.")
	}
	return configs, nil
}

func decodeOtaConfigs(raw datatypes.JSON) (map[string]interface{}, error) {
	configs := map[string]interface{}{}
	if len(raw) == 0 || string(raw) == "null" {
		return configs, nil
	}
	if err := json.Unmarshal(raw, &configs); err != nil {
		return nil, apperrors.Wrap(apperrors.KindPersistence, "Stored OTA configuration is corrupt.", err)
	}
	return configs, nil
}
