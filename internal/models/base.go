package models

import (
	"time"
)

// TenantModel 租户隔离的基础模型，主键为 (tenant_id, id)，不同租户间的业务ID允许重复
type TenantModel struct {
	TenantID  string    `json:"tenantId" gorm:"primaryKey;size:64"`
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
