package models

import (
	"github.com/shopspring/decimal"
)

// PortfolioGroup 房源分组
type PortfolioGroup struct {
	TenantModel
	Name     string `json:"name" gorm:"not null;size:200"`
	Expanded bool   `json:"expanded" gorm:"default:true"`
	IsMerge  bool   `json:"isMerge" gorm:"default:false"` // 合并分组，清空后自动删除

	Units []Unit `json:"units" gorm:"foreignKey:TenantID,GroupID;references:TenantID,ID"`
}

// TableName 表名
func (PortfolioGroup) TableName() string {
	return "portfolio_groups"
}

// Unit 可出租单元
type Unit struct {
	TenantModel
	GroupID           string          `json:"groupId" gorm:"size:64;not null;index:idx_units_group"`
	Name              string          `json:"name" gorm:"size:200;not null"`
	InternalName      string          `json:"internalName" gorm:"size:200"`
	OfficialAddress   string          `json:"officialAddress" gorm:"size:500"`
	BasePrice         decimal.Decimal `json:"basePrice" gorm:"type:decimal(14,2);not null;default:0"`
	CleaningFee       decimal.Decimal `json:"cleaningFee" gorm:"type:decimal(14,2);not null;default:0"`
	WifiSSID          string          `json:"wifiSsid" gorm:"size:100"`
	WifiPassword      string          `json:"wifiPassword" gorm:"size:100"`
	AccessCodes       string          `json:"accessCodes" gorm:"size:500"`
	Status            string          `json:"status" gorm:"size:20;default:'Active'"`
	AssignedCleanerID string          `json:"assignedCleanerId,omitempty" gorm:"size:64"`
}

// TableName 表名
func (Unit) TableName() string {
	return "units"
}

// 单元状态常量
const (
	UnitStatusActive      = "Active"
	UnitStatusMaintenance = "Maintenance"
)

// RosterUnit 渠道对账与收入同步读取的单元视图
type RosterUnit struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	GroupName string `json:"groupName"`
}
