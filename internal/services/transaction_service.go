package services

import (
	"context"
	"fmt"
	"strings"

	"apartel/internal/models"
	"apartel/internal/store"
	apperrors "apartel/pkg/errors"
	"apartel/pkg/lock"
	"apartel/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// 收入流水固定字段
const (
	incomeProperty       = "Unit Specific"
	msgCategoryNotFound  = "Category not found."
	msgSubCategoryAbsent = "Sub-category not found."
)

// TransactionStores 流水服务依赖的持久化协作方
type TransactionStores interface {
	store.BookingStore
	store.TransactionStore
	store.TenantStore
	GetUnit(ctx context.Context, tenantID, unitID string) (*models.Unit, error)
}

// IncomeSyncOptions 收入同步参数，Currency 为空时使用租户账本币种
type IncomeSyncOptions struct {
	Currency string `json:"currency"`
}

// IncomeSyncResult 收入同步结果
type IncomeSyncResult struct {
	SyncedCount  int                  `json:"syncedCount"`
	Failed       int                  `json:"failed"`
	Transactions []models.Transaction `json:"transactions"`
}

// TransactionService 账本流水
type TransactionService struct {
	stores          TransactionStores
	locker          lock.Locker
	defaultCurrency string
}

// NewTransactionService 创建流水服务
func NewTransactionService(stores TransactionStores, locker lock.Locker, defaultCurrency string) *TransactionService {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return &TransactionService{
		stores:          stores,
		locker:          locker,
		defaultCurrency: strings.ToUpper(defaultCurrency),
	}
}

// resolveCurrency 请求参数 > 租户账本币种 > 默认币种
func (s *TransactionService) resolveCurrency(ctx context.Context, tenantID, requested string) (string, error) {
	if requested != "" {
		return normalizeCurrency(requested)
	}
	tenant, err := s.stores.GetTenant(ctx, tenantID)
	if err == nil && tenant.Currency != "" {
		if code, err := normalizeCurrency(tenant.Currency); err == nil {
			return code, nil
		}
	}
	return s.defaultCurrency, nil
}

// SyncUnitIncome 为单元的每条已确认预订补齐一条收入流水
func (s *TransactionService) SyncUnitIncome(ctx context.Context, tenantID, unitID string, opts IncomeSyncOptions) (*IncomeSyncResult, error) {
	currency, err := s.resolveCurrency(ctx, tenantID, opts.Currency)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, "income:"+tenantID+":"+unitID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindPersistence, "Failed to acquire income lock.", err)
	}
	defer unlock()

	if _, err := s.stores.GetUnit(ctx, tenantID, unitID); err != nil {
		return nil, storeError(err, msgUnitNotFound)
	}

	bookings, err := s.stores.ListBookings(ctx, tenantID, store.BookingFilter{
		UnitID: unitID,
		Status: models.BookingStatusConfirmed,
	})
	if err != nil {
		return nil, storeError(err, msgUnitNotFound)
	}
	existing, err := s.stores.ListTransactions(ctx, tenantID, store.TransactionFilter{
		UnitID:     unitID,
		LinkedOnly: true,
	})
	if err != nil {
		return nil, storeError(err, msgUnitNotFound)
	}

	recorded := make(map[string]struct{}, len(existing))
	for _, tx := range existing {
		if tx.BookingID != nil {
			recorded[*tx.BookingID] = struct{}{}
		}
	}

	result := &IncomeSyncResult{Transactions: []models.Transaction{}}
	for _, b := range bookings {
		if _, ok := recorded[b.ID]; ok {
			continue
		}

		tx := incomeTransaction(tenantID, unitID, b, currency)
		log := logger.GetLogger().WithFields(logrus.Fields{
			"tenant_id":  tenantID,
			"unit_id":    unitID,
			"booking_id": b.ID,
		})
		if err := s.stores.CreateTransaction(ctx, &tx); err != nil {
			log.Errorf("收入流水写入失败: %v", err)
			result.Failed++
			continue
		}
		log.Infof("收入流水已写入: %s", displayAmount(tx.Amount, tx.Currency))
		recorded[b.ID] = struct{}{}
		result.SyncedCount++
		result.Transactions = append(result.Transactions, tx)
	}

	return result, nil
}

func incomeTransaction(tenantID, unitID string, b models.Booking, currency string) models.Transaction {
	unit := unitID
	bookingID := b.ID
	return models.Transaction{
		TenantModel: models.TenantModel{TenantID: tenantID, ID: "tx-" + uuid.NewString()},
		Date:        b.StartDate,
		Property:    incomeProperty,
		Category:    models.CategoryRentalIncome,
		SubCategory: b.Source,
		Description: fmt.Sprintf("Booking Income: %s (%s)", b.GuestName, b.Source),
		Amount:      b.Price,
		Currency:    currency,
		Type:        models.TransactionTypeIncome,
		UnitID:      &unit,
		BookingID:   &bookingID,
	}
}

// ========== 手工流水 ==========

// TransactionInput 手工录入流水
type TransactionInput struct {
	Date        string          `json:"date"`
	Property    string          `json:"property" validate:"max=200"`
	Category    string          `json:"category" validate:"max=100"`
	SubCategory string          `json:"subCategory" validate:"max=100"`
	Description string          `json:"description" validate:"max=1000"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Type        string          `json:"type" validate:"required,oneof=income expense"`
	UnitID      *string         `json:"unitId" validate:"omitempty,max=64"`
	BookingID   *string         `json:"bookingId" validate:"omitempty,max=64"`
}

// Create 手工录入流水
func (s *TransactionService) Create(ctx context.Context, tenantID string, in TransactionInput) (*models.Transaction, error) {
	date, ok := parseDate(in.Date)
	if !ok {
		return nil, apperrors.New(apperrors.KindInvalidDate, "Invalid transaction date format.")
	}
	if err := validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	currency, err := s.resolveCurrency(ctx, tenantID, in.Currency)
	if err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		TenantModel: models.TenantModel{TenantID: tenantID, ID: "tx-" + uuid.NewString()},
		Date:        date,
		Property:    in.Property,
		Category:    in.Category,
		SubCategory: in.SubCategory,
		Description: in.Description,
		Amount:      in.Amount,
		Currency:    currency,
		Type:        in.Type,
		UnitID:      in.UnitID,
		BookingID:   in.BookingID,
	}
	if err := s.stores.CreateTransaction(ctx, tx); err != nil {
		if apperrors.KindOf(storeError(err, "")) == apperrors.KindConflict {
			return nil, apperrors.Wrap(apperrors.KindConflict, "A transaction is already recorded for this booking.", err)
		}
		return nil, storeError(err, msgUnitNotFound)
	}
	return tx, nil
}

// List 查询流水，按日期倒序
func (s *TransactionService) List(ctx context.Context, tenantID string, filter store.TransactionFilter) ([]models.Transaction, error) {
	txs, err := s.stores.ListTransactions(ctx, tenantID, filter)
	if err != nil {
		return nil, storeError(err, msgUnitNotFound)
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	return txs, nil
}

// ========== 分类 ==========

// CategoryInput 分类请求
type CategoryInput struct {
	Name string `json:"name" validate:"required,max=100"`
	Type string `json:"type" validate:"required,oneof=income expense"`
}

// SubCategoryInput 子分类请求
type SubCategoryInput struct {
	CategoryID string `json:"categoryId" validate:"required,max=64"`
	Name       string `json:"name" validate:"required,max=100"`
}

// ListCategories 分类及其子分类
func (s *TransactionService) ListCategories(ctx context.Context, tenantID string) ([]models.TransactionCategory, error) {
	categories, err := s.stores.ListCategories(ctx, tenantID)
	if err != nil {
		return nil, storeError(err, msgCategoryNotFound)
	}
	if categories == nil {
		categories = []models.TransactionCategory{}
	}
	return categories, nil
}

// CreateCategory 新建分类
func (s *TransactionService) CreateCategory(ctx context.Context, tenantID string, in CategoryInput) (*models.TransactionCategory, error) {
	if err := validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	category := &models.TransactionCategory{
		TenantModel: models.TenantModel{TenantID: tenantID, ID: uuid.NewString()},
		Name:        strings.TrimSpace(in.Name),
		Type:        in.Type,
	}
	if err := s.stores.CreateCategory(ctx, category); err != nil {
		return nil, storeError(err, msgCategoryNotFound)
	}
	category.SubCategories = []models.TransactionSubCategory{}
	return category, nil
}

// UpdateCategory 修改分类，仅限本租户
func (s *TransactionService) UpdateCategory(ctx context.Context, tenantID, id string, in CategoryInput) (*models.TransactionCategory, error) {
	if err := validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	category, err := s.stores.GetCategory(ctx, tenantID, id)
	if err != nil {
		return nil, storeError(err, msgCategoryNotFound)
	}
	category.Name = strings.TrimSpace(in.Name)
	category.Type = in.Type
	if err := s.stores.UpdateCategory(ctx, category); err != nil {
		return nil, storeError(err, msgCategoryNotFound)
	}
	return category, nil
}

// DeleteCategory 删除分类及其子分类
func (s *TransactionService) DeleteCategory(ctx context.Context, tenantID, id string) error {
	return storeError(s.stores.DeleteCategory(ctx, tenantID, id), msgCategoryNotFound)
}

// CreateSubCategory 新建子分类，父分类须属于本租户
func (s *TransactionService) CreateSubCategory(ctx context.Context, tenantID string, in SubCategoryInput) (*models.TransactionSubCategory, error) {
	if err := validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	if _, err := s.stores.GetCategory(ctx, tenantID, in.CategoryID); err != nil {
		return nil, storeError(err, msgCategoryNotFound)
	}
	sub := &models.TransactionSubCategory{
		TenantModel: models.TenantModel{TenantID: tenantID, ID: uuid.NewString()},
		CategoryID:  in.CategoryID,
		Name:        strings.TrimSpace(in.Name),
	}
	if err := s.stores.CreateSubCategory(ctx, sub); err != nil {
		return nil, storeError(err, msgSubCategoryAbsent)
	}
	return sub, nil
}

// UpdateSubCategory 重命名子分类
func (s *TransactionService) UpdateSubCategory(ctx context.Context, tenantID, id, name string) (*models.TransactionSubCategory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.New(apperrors.KindInvalidParam, "Invalid name.")
	}
	sub, err := s.stores.GetSubCategory(ctx, tenantID, id)
	if err != nil {
		return nil, storeError(err, msgSubCategoryAbsent)
	}
	sub.Name = name
	if err := s.stores.UpdateSubCategory(ctx, sub); err != nil {
		return nil, storeError(err, msgSubCategoryAbsent)
	}
	return sub, nil
}

// DeleteSubCategory 删除子分类
func (s *TransactionService) DeleteSubCategory(ctx context.Context, tenantID, id string) error {
	return storeError(s.stores.DeleteSubCategory(ctx, tenantID, id), msgSubCategoryAbsent)
}
