package services

import (
	"context"
	"errors"
	"testing"

	"apartel/internal/models"
	"apartel/internal/store"
	"apartel/internal/store/memory"
	apperrors "apartel/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBookings(t *testing.T, st *memory.Store, tenantID string, bookings ...models.Booking) {
	t.Helper()
	for i := range bookings {
		b := bookings[i]
		b.TenantID = tenantID
		require.NoError(t, st.CreateBooking(context.Background(), &b))
	}
}

func confirmed(id, unitID, start, end string, price int64) models.Booking {
	return models.Booking{
		TenantModel: models.TenantModel{ID: id},
		UnitID:      unitID,
		GuestName:   "Guest " + id,
		StartDate:   day(start),
		EndDate:     day(end),
		Status:      models.BookingStatusConfirmed,
		Source:      models.BookingSourceAirbnb,
		Price:       decimal.NewFromInt(price),
	}
}

func TestSyncUnitIncomeCompletenessAndIdempotence(t *testing.T) {
	st := newSeededStore(t)
	seedBookings(t, st, "t1",
		confirmed("b1", "u1", "2024-01-01", "2024-01-05", 400),
		confirmed("b2", "u1", "2024-01-05", "2024-01-08", 300),
		confirmed("b3", "u1", "2024-02-01", "2024-02-03", 200),
	)
	pending := confirmed("b4", "u1", "2024-03-01", "2024-03-03", 100)
	pending.Status = models.BookingStatusPending
	seedBookings(t, st, "t1", pending, confirmed("b5", "u2", "2024-01-01", "2024-01-02", 50))

	svc := NewTransactionService(st, nil, "USD")
	ctx := context.Background()

	first, err := svc.SyncUnitIncome(ctx, "t1", "u1", IncomeSyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, first.SyncedCount)
	assert.Equal(t, 0, first.Failed)

	second, err := svc.SyncUnitIncome(ctx, "t1", "u1", IncomeSyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.SyncedCount)

	txs, err := svc.List(ctx, "t1", store.TransactionFilter{UnitID: "u1"})
	require.NoError(t, err)
	require.Len(t, txs, 3)

	linked := map[string]models.Transaction{}
	for _, tx := range txs {
		require.NotNil(t, tx.BookingID)
		linked[*tx.BookingID] = tx
	}
	require.Contains(t, linked, "b1")
	tx := linked["b1"]
	assert.Equal(t, day("2024-01-01"), tx.Date)
	assert.Equal(t, "Rental Income", tx.Category)
	assert.Equal(t, "airbnb", tx.SubCategory)
	assert.Equal(t, "Unit Specific", tx.Property)
	assert.Equal(t, "Booking Income: Guest b1 (airbnb)", tx.Description)
	assert.Equal(t, "income", tx.Type)
	assert.Equal(t, "USD", tx.Currency)
	assert.True(t, decimal.NewFromInt(400).Equal(tx.Amount))
	assert.Equal(t, "u1", *tx.UnitID)

	// 新增预订后再次同步只补差量
	seedBookings(t, st, "t1", confirmed("b6", "u1", "2024-04-01", "2024-04-02", 90))
	third, err := svc.SyncUnitIncome(ctx, "t1", "u1", IncomeSyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, third.SyncedCount)
	assert.Equal(t, "b6", *third.Transactions[0].BookingID)
}

func TestSyncUnitIncomeCurrency(t *testing.T) {
	st := newSeededStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateTenant(ctx, &models.Tenant{ID: "eu", Status: models.TenantStatusActive, Currency: "eur"}))
	require.NoError(t, st.SaveGroups(ctx, "eu", []models.PortfolioGroup{{
		TenantModel: models.TenantModel{ID: "g"}, Name: "G",
		Units: []models.Unit{{TenantModel: models.TenantModel{ID: "u1"}, Name: "A"}},
	}}))
	seedBookings(t, st, "eu", confirmed("b1", "u1", "2024-01-01", "2024-01-02", 10))
	seedBookings(t, st, "eu", confirmed("b2", "u1", "2024-01-02", "2024-01-03", 10))

	svc := NewTransactionService(st, nil, "USD")

	_, err := svc.SyncUnitIncome(ctx, "eu", "u1", IncomeSyncOptions{Currency: "XYZ"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidParam))

	res, err := svc.SyncUnitIncome(ctx, "eu", "u1", IncomeSyncOptions{})
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)
	assert.Equal(t, "EUR", res.Transactions[0].Currency)
}

func TestSyncUnitIncomeExplicitCurrencyWins(t *testing.T) {
	st := newSeededStore(t)
	seedBookings(t, st, "t1", confirmed("b1", "u1", "2024-01-01", "2024-01-02", 10))

	svc := NewTransactionService(st, nil, "USD")
	res, err := svc.SyncUnitIncome(context.Background(), "t1", "u1", IncomeSyncOptions{Currency: "gbp"})
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, "GBP", res.Transactions[0].Currency)
}

func TestSyncUnitIncomePartialFailure(t *testing.T) {
	st := newSeededStore(t)
	seedBookings(t, st, "t1",
		confirmed("b1", "u1", "2024-01-01", "2024-01-05", 400),
		confirmed("b2", "u1", "2024-01-05", "2024-01-08", 300),
		confirmed("b3", "u1", "2024-02-01", "2024-02-03", 200),
	)
	st.FailTransaction = func(tx *models.Transaction) error {
		if tx.BookingID != nil && *tx.BookingID == "b2" {
			return errors.New("deadlock detected")
		}
		return nil
	}

	svc := NewTransactionService(st, nil, "USD")
	ctx := context.Background()

	res, err := svc.SyncUnitIncome(ctx, "t1", "u1", IncomeSyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SyncedCount)
	assert.Equal(t, 1, res.Failed)

	st.FailTransaction = nil
	retry, err := svc.SyncUnitIncome(ctx, "t1", "u1", IncomeSyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, retry.SyncedCount)
	assert.Equal(t, "b2", *retry.Transactions[0].BookingID)
}

func TestSyncUnitIncomeTenantIsolation(t *testing.T) {
	st := newSeededStore(t)
	seedBookings(t, st, "t1", confirmed("b1", "u1", "2024-01-01", "2024-01-05", 400))
	seedBookings(t, st, "t2", confirmed("b1", "u1", "2024-01-01", "2024-01-05", 999))

	svc := NewTransactionService(st, nil, "USD")
	ctx := context.Background()

	res, err := svc.SyncUnitIncome(ctx, "t1", "u1", IncomeSyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SyncedCount)

	t2, err := svc.List(ctx, "t2", store.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, t2)

	res, err = svc.SyncUnitIncome(ctx, "t2", "u1", IncomeSyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SyncedCount)
	assert.True(t, decimal.NewFromInt(999).Equal(res.Transactions[0].Amount))
}

func TestSyncUnitIncomeUnknownUnit(t *testing.T) {
	st := newSeededStore(t)
	svc := NewTransactionService(st, nil, "USD")
	ctx := context.Background()

	res, err := svc.SyncUnitIncome(ctx, "t1", "nope", IncomeSyncOptions{})
	assert.Nil(t, res)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	// 删除后的单元同样不存在
	require.NoError(t, st.DeleteUnitCascade(ctx, "t1", "u2"))
	_, err = svc.SyncUnitIncome(ctx, "t1", "u2", IncomeSyncOptions{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	txs, err := svc.List(ctx, "t1", store.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestCreateTransaction(t *testing.T) {
	svc := NewTransactionService(newSeededStore(t), nil, "USD")
	ctx := context.Background()

	_, err := svc.Create(ctx, "t1", TransactionInput{Date: "yesterday", Type: "expense"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidDate))

	_, err = svc.Create(ctx, "t1", TransactionInput{Date: "2024-01-01", Type: "refund"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidParam))

	_, err = svc.Create(ctx, "t1", TransactionInput{Date: "2024-01-01", Type: "expense", Currency: "ABC"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidParam))

	tx, err := svc.Create(ctx, "t1", TransactionInput{
		Date: "2024-01-01", Type: "expense", Category: "Cleaning", Amount: decimal.NewFromInt(35),
	})
	require.NoError(t, err)
	assert.Equal(t, "USD", tx.Currency)
	assert.Nil(t, tx.BookingID)

	unit, booking := "u1", "b1"
	_, err = svc.Create(ctx, "t1", TransactionInput{Date: "2024-01-01", Type: "income", UnitID: &unit, BookingID: &booking})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "t1", TransactionInput{Date: "2024-01-02", Type: "income", UnitID: &unit, BookingID: &booking})
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
}

func TestCategoryOwnership(t *testing.T) {
	svc := NewTransactionService(newSeededStore(t), nil, "USD")
	ctx := context.Background()

	cat, err := svc.CreateCategory(ctx, "t1", CategoryInput{Name: "Utilities", Type: "expense"})
	require.NoError(t, err)
	sub, err := svc.CreateSubCategory(ctx, "t1", SubCategoryInput{CategoryID: cat.ID, Name: "Water"})
	require.NoError(t, err)

	_, err = svc.UpdateCategory(ctx, "t2", cat.ID, CategoryInput{Name: "Hijack", Type: "expense"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	_, err = svc.CreateSubCategory(ctx, "t2", SubCategoryInput{CategoryID: cat.ID, Name: "Gas"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	assert.True(t, apperrors.IsKind(svc.DeleteSubCategory(ctx, "t2", sub.ID), apperrors.KindNotFound))

	renamed, err := svc.UpdateSubCategory(ctx, "t1", sub.ID, "Water & Sewage")
	require.NoError(t, err)
	assert.Equal(t, "Water & Sewage", renamed.Name)

	list, err := svc.ListCategories(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, list[0].SubCategories, 1)

	require.NoError(t, svc.DeleteCategory(ctx, "t1", cat.ID))
	list, err = svc.ListCategories(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.True(t, apperrors.IsKind(svc.DeleteSubCategory(ctx, "t1", sub.ID), apperrors.KindNotFound))
}
