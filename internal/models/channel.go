package models

import (
	"github.com/shopspring/decimal"
)

// ChannelMapping 单元与外部渠道房源的映射，每个单元一条
type ChannelMapping struct {
	TenantModel
	UnitID       string          `json:"unitId" gorm:"size:64;not null;index"`
	UnitName     string          `json:"unitName" gorm:"size:200"`
	GroupName    string          `json:"groupName" gorm:"size:200"`
	AirbnbID     string          `json:"airbnbId" gorm:"size:100"`
	BookingComID string          `json:"bookingId" gorm:"column:booking_com_id;size:100"`
	Markup       decimal.Decimal `json:"markup" gorm:"type:decimal(8,2);not null;default:0"`
	IsMapped     bool            `json:"isMapped" gorm:"default:false"`
	Status       string          `json:"status" gorm:"size:20;default:'Inactive'"`
}

// TableName 表名
func (ChannelMapping) TableName() string {
	return "channel_mappings"
}

// 映射状态常量
const (
	MappingStatusActive   = "Active"
	MappingStatusInactive = "Inactive"
)

// ICalConnection 单元的日历订阅连接，每个单元一条
type ICalConnection struct {
	TenantModel
	UnitID    string `json:"unitId" gorm:"size:64;not null;index"`
	UnitName  string `json:"unitName" gorm:"size:200"`
	ImportURL string `json:"importUrl" gorm:"size:1000"`
	ExportURL string `json:"exportUrl" gorm:"size:1000"`
	LastSync  string `json:"lastSync" gorm:"size:40;default:'Never'"` // ISO 时间或 "Never"
}

// TableName 表名
func (ICalConnection) TableName() string {
	return "ical_connections"
}

// LastSyncNever 从未同步
const LastSyncNever = "Never"

// 渠道侧记录ID前缀
const (
	MappingIDPrefix = "cm-"
	ICalIDPrefix    = "ical-"
)
