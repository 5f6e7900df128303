package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction 账本流水
type Transaction struct {
	TenantModel
	Date        time.Time       `json:"date" gorm:"not null;index"`
	Property    string          `json:"property" gorm:"size:200"`
	Category    string          `json:"category" gorm:"size:100"`
	SubCategory string          `json:"subCategory" gorm:"size:100"`
	Description string          `json:"description" gorm:"size:1000"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(14,2);not null;default:0"`
	Currency    string          `json:"currency" gorm:"size:3;default:'USD'"`
	Type        string          `json:"type" gorm:"size:20;not null"`
	UnitID      *string         `json:"unitId,omitempty" gorm:"size:64;index"`
	BookingID   *string         `json:"bookingId,omitempty" gorm:"size:64"`
}

// TableName 表名
func (Transaction) TableName() string {
	return "transactions"
}

// 流水类型常量
const (
	TransactionTypeIncome  = "income"
	TransactionTypeExpense = "expense"
)

// CategoryRentalIncome 预订收入分类
const CategoryRentalIncome = "Rental Income"

// TransactionCategory 流水分类
type TransactionCategory struct {
	TenantModel
	Name string `json:"name" gorm:"size:100;not null"`
	Type string `json:"type" gorm:"size:20;not null"`

	SubCategories []TransactionSubCategory `json:"subCategories" gorm:"foreignKey:TenantID,CategoryID;references:TenantID,ID"`
}

// TableName 表名
func (TransactionCategory) TableName() string {
	return "transaction_categories"
}

// TransactionSubCategory 流水子分类
type TransactionSubCategory struct {
	TenantModel
	CategoryID string `json:"categoryId" gorm:"size:64;not null;index"`
	Name       string `json:"name" gorm:"size:100;not null"`
}

// TableName 表名
func (TransactionSubCategory) TableName() string {
	return "transaction_sub_categories"
}
