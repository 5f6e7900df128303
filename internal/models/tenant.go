package models

import (
	"time"

	"gorm.io/datatypes"
)

// Tenant 租户模型 - 贫血模型，只包含数据结构
type Tenant struct {
	ID         string         `json:"id" gorm:"primaryKey;size:64"`
	Name       string         `json:"name" gorm:"not null;size:100"`
	Status     string         `json:"status" gorm:"default:'active';size:20"`
	Currency   string         `json:"currency" gorm:"size:3;default:'USD'"` // 账本默认币种
	OtaConfigs datatypes.JSON `json:"otaConfigs"`                           // 各OTA渠道的凭据与开关
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// TableName 表名
func (t *Tenant) TableName() string {
	return "tenants"
}

// 租户状态常量
const (
	TenantStatusActive   = "active"
	TenantStatusInactive = "inactive"
)
