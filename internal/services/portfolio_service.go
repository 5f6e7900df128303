package services

import (
	"context"
	"strings"

	"apartel/internal/models"
	"apartel/internal/store"
	apperrors "apartel/pkg/errors"
	"apartel/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// UnitInput 单元编辑请求
type UnitInput struct {
	ID                string          `json:"id" validate:"max=64"`
	Name              string          `json:"name" validate:"required,max=200"`
	InternalName      string          `json:"internalName" validate:"max=200"`
	OfficialAddress   string          `json:"officialAddress" validate:"max=500"`
	BasePrice         decimal.Decimal `json:"basePrice"`
	CleaningFee       decimal.Decimal `json:"cleaningFee"`
	WifiSSID          string          `json:"wifiSsid" validate:"max=100"`
	WifiPassword      string          `json:"wifiPassword" validate:"max=100"`
	AccessCodes       string          `json:"accessCodes" validate:"max=500"`
	Status            string          `json:"status" validate:"omitempty,oneof=Active Maintenance"`
	AssignedCleanerID string          `json:"assignedCleanerId" validate:"max=64"`
}

// GroupInput 分组编辑请求
type GroupInput struct {
	ID       string      `json:"id" validate:"max=64"`
	Name     string      `json:"name" validate:"required,max=200"`
	Expanded *bool       `json:"expanded"`
	IsMerge  bool        `json:"isMerge"`
	Units    []UnitInput `json:"units" validate:"dive"`
}

// PortfolioService 房源分组与单元，同时作为对账使用的单元名册
type PortfolioService struct {
	store store.PortfolioStore
}

// NewPortfolioService 创建房源服务
func NewPortfolioService(st store.PortfolioStore) *PortfolioService {
	return &PortfolioService{store: st}
}

// ListActiveUnits 按分组展开的当前单元
func (s *PortfolioService) ListActiveUnits(ctx context.Context, tenantID string) ([]models.RosterUnit, error) {
	roster, err := s.store.ListActiveUnits(ctx, tenantID)
	if err != nil {
		return nil, storeError(err, msgUnitNotFound)
	}
	if roster == nil {
		roster = []models.RosterUnit{}
	}
	return roster, nil
}

// ListGroups 分组及其单元
func (s *PortfolioService) ListGroups(ctx context.Context, tenantID string) ([]models.PortfolioGroup, error) {
	groups, err := s.store.ListGroups(ctx, tenantID)
	if err != nil {
		return nil, storeError(err, "Group not found.")
	}
	if groups == nil {
		groups = []models.PortfolioGroup{}
	}
	return groups, nil
}

// SaveGroups 插入或更新分组与单元，不删除请求中缺失的记录
func (s *PortfolioService) SaveGroups(ctx context.Context, tenantID string, inputs []GroupInput) ([]models.PortfolioGroup, error) {
	groups := make([]models.PortfolioGroup, 0, len(inputs))
	for _, in := range inputs {
		if err := validate.Struct(in); err != nil {
			return nil, validationError(err)
		}

		group := models.PortfolioGroup{
			TenantModel: models.TenantModel{TenantID: tenantID, ID: in.ID},
			Name:        strings.TrimSpace(in.Name),
			Expanded:    true,
			IsMerge:     in.IsMerge,
		}
		if group.ID == "" {
			group.ID = "g-" + uuid.NewString()
		}
		if in.Expanded != nil {
			group.Expanded = *in.Expanded
		}

		for _, u := range in.Units {
			if u.BasePrice.IsNegative() || u.CleaningFee.IsNegative() {
				return nil, apperrors.New(apperrors.KindInvalidParam, "Prices must not be negative.")
			}
			unit := models.Unit{
				TenantModel:       models.TenantModel{TenantID: tenantID, ID: u.ID},
				GroupID:           group.ID,
				Name:              strings.TrimSpace(u.Name),
				InternalName:      u.InternalName,
				OfficialAddress:   u.OfficialAddress,
				BasePrice:         u.BasePrice,
				CleaningFee:       u.CleaningFee,
				WifiSSID:          u.WifiSSID,
				WifiPassword:      u.WifiPassword,
				AccessCodes:       u.AccessCodes,
				Status:            u.Status,
				AssignedCleanerID: u.AssignedCleanerID,
			}
			if unit.ID == "" {
				unit.ID = "u-" + uuid.NewString()
			}
			if unit.Status == "" {
				unit.Status = models.UnitStatusActive
			}
			group.Units = append(group.Units, unit)
		}
		groups = append(groups, group)
	}

	if err := s.store.SaveGroups(ctx, tenantID, groups); err != nil {
		return nil, storeError(err, "Group not found.")
	}
	return s.ListGroups(ctx, tenantID)
}

// RemoveUnit 删除单元及其预订、渠道映射、日历连接；账本流水保留
func (s *PortfolioService) RemoveUnit(ctx context.Context, tenantID, unitID string) error {
	if err := s.store.DeleteUnitCascade(ctx, tenantID, unitID); err != nil {
		return storeError(err, msgUnitNotFound)
	}
	logger.GetLogger().WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"unit_id":   unitID,
	}).Info("单元已删除")
	return nil
}
