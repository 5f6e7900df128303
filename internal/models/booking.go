package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Booking 预订，日期区间为左闭右开 [StartDate, EndDate)
type Booking struct {
	TenantModel
	UnitID            string          `json:"unitId" gorm:"size:64;not null;index:idx_bookings_unit_range,priority:1"`
	GuestName         string          `json:"guestName" gorm:"size:200"`
	GuestPhone        string          `json:"guestPhone,omitempty" gorm:"size:50"`
	StartDate         time.Time       `json:"startDate" gorm:"not null;index:idx_bookings_unit_range,priority:2"`
	EndDate           time.Time       `json:"endDate" gorm:"not null"`
	Source            string          `json:"source" gorm:"size:20;not null;default:'direct'"`
	Status            string          `json:"status" gorm:"size:20;not null;default:'confirmed'"`
	Price             decimal.Decimal `json:"price" gorm:"type:decimal(14,2);not null;default:0"`
	Description       string          `json:"description,omitempty" gorm:"size:1000"`
	AssignedCleanerID string          `json:"assignedCleanerId,omitempty" gorm:"size:64"`
}

// TableName 表名
func (Booking) TableName() string {
	return "bookings"
}

// Overlaps 左闭右开区间相交判断，首尾相接不算冲突
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartDate.Before(end) && b.EndDate.After(start)
}

// BlocksCalendar 取消的预订不占用日期
func (b *Booking) BlocksCalendar() bool {
	return b.Status != BookingStatusCancelled
}

// 预订状态常量
const (
	BookingStatusConfirmed = "confirmed"
	BookingStatusPending   = "pending"
	BookingStatusCancelled = "cancelled"
)

// 预订来源常量
const (
	BookingSourceAirbnb  = "airbnb"
	BookingSourceBooking = "booking"
	BookingSourceExpedia = "expedia"
	BookingSourceDirect  = "direct"
	BookingSourceBlocked = "blocked"
)
