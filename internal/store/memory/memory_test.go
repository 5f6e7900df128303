package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"apartel/internal/models"
	"apartel/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func seedPortfolio(t *testing.T, s *Store, tenantID string) {
	t.Helper()
	require.NoError(t, s.SaveGroups(context.Background(), tenantID, []models.PortfolioGroup{
		{
			TenantModel: models.TenantModel{ID: "g1"},
			Name:        "Seaside",
			Units: []models.Unit{
				{TenantModel: models.TenantModel{ID: "u1"}, Name: "Apt 1"},
				{TenantModel: models.TenantModel{ID: "u2"}, Name: "Apt 2"},
			},
		},
		{
			TenantModel: models.TenantModel{ID: "m1"},
			Name:        "Merged",
			IsMerge:     true,
			Units:       []models.Unit{{TenantModel: models.TenantModel{ID: "u3"}, Name: "Loft"}},
		},
	}))
}

func TestRosterIsTenantScoped(t *testing.T) {
	s := New()
	seedPortfolio(t, s, "t1")

	roster, err := s.ListActiveUnits(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, roster, 3)
	assert.Equal(t, "Merged", roster[0].GroupName)

	other, err := s.ListActiveUnits(context.Background(), "t2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestFindOverlapSkipsCancelledAndSelf(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedPortfolio(t, s, "t1")

	require.NoError(t, s.CreateBooking(ctx, &models.Booking{
		TenantModel: models.TenantModel{TenantID: "t1", ID: "b1"},
		UnitID:      "u1", StartDate: day("2024-05-01"), EndDate: day("2024-05-05"),
		Status: models.BookingStatusConfirmed,
	}))
	require.NoError(t, s.CreateBooking(ctx, &models.Booking{
		TenantModel: models.TenantModel{TenantID: "t1", ID: "b2"},
		UnitID:      "u1", StartDate: day("2024-05-10"), EndDate: day("2024-05-12"),
		Status: models.BookingStatusCancelled,
	}))

	hit, err := s.FindOverlap(ctx, "t1", "u1", day("2024-05-03"), day("2024-05-04"), "")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "b1", hit.ID)

	hit, err = s.FindOverlap(ctx, "t1", "u1", day("2024-05-03"), day("2024-05-04"), "b1")
	require.NoError(t, err)
	assert.Nil(t, hit)

	hit, err = s.FindOverlap(ctx, "t1", "u1", day("2024-05-10"), day("2024-05-11"), "")
	require.NoError(t, err)
	assert.Nil(t, hit)

	hit, err = s.FindOverlap(ctx, "t2", "u1", day("2024-05-03"), day("2024-05-04"), "")
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestDeleteUnitCascadeRemovesEmptyMergeGroup(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedPortfolio(t, s, "t1")

	require.NoError(t, s.CreateBooking(ctx, &models.Booking{
		TenantModel: models.TenantModel{TenantID: "t1", ID: "b1"},
		UnitID:      "u3", StartDate: day("2024-05-01"), EndDate: day("2024-05-05"),
	}))
	require.NoError(t, s.CreateMapping(ctx, &models.ChannelMapping{
		TenantModel: models.TenantModel{TenantID: "t1", ID: "cm-u3"}, UnitID: "u3",
	}))
	require.NoError(t, s.CreateFeed(ctx, &models.ICalConnection{
		TenantModel: models.TenantModel{TenantID: "t1", ID: "ical-u3"}, UnitID: "u3",
	}))

	require.NoError(t, s.DeleteUnitCascade(ctx, "t1", "u3"))

	bookings, _ := s.ListBookings(ctx, "t1", store.BookingFilter{})
	assert.Empty(t, bookings)
	mappings, _ := s.ListMappings(ctx, "t1")
	assert.Empty(t, mappings)
	feeds, _ := s.ListFeeds(ctx, "t1")
	assert.Empty(t, feeds)

	groups, _ := s.ListGroups(ctx, "t1")
	require.Len(t, groups, 1)
	assert.Equal(t, "g1", groups[0].ID)

	assert.ErrorIs(t, s.DeleteUnitCascade(ctx, "t1", "u3"), store.ErrNotFound)
}

func TestDeleteUnitKeepsNonMergeGroup(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedPortfolio(t, s, "t1")

	require.NoError(t, s.DeleteUnitCascade(ctx, "t1", "u1"))
	require.NoError(t, s.DeleteUnitCascade(ctx, "t1", "u2"))

	groups, _ := s.ListGroups(ctx, "t1")
	var ids []string
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	assert.Contains(t, ids, "g1")
}

func TestCreateTransactionRejectsDuplicateBookingLink(t *testing.T) {
	ctx := context.Background()
	s := New()
	unit, booking := "u1", "b1"

	require.NoError(t, s.CreateTransaction(ctx, &models.Transaction{
		TenantModel: models.TenantModel{TenantID: "t1", ID: "tx-1"}, UnitID: &unit, BookingID: &booking,
	}))
	err := s.CreateTransaction(ctx, &models.Transaction{
		TenantModel: models.TenantModel{TenantID: "t1", ID: "tx-2"}, UnitID: &unit, BookingID: &booking,
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	// 其他租户同一对 ID 不冲突
	require.NoError(t, s.CreateTransaction(ctx, &models.Transaction{
		TenantModel: models.TenantModel{TenantID: "t2", ID: "tx-1"}, UnitID: &unit, BookingID: &booking,
	}))
}

func TestWithUnitLockSerializesSameUnit(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedPortfolio(t, s, "t1")

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithUnitLock(ctx, "t1", []string{"u1"}, func(tx store.BookingStore) error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()

				time.Sleep(2 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestWithUnitLockUnknownUnit(t *testing.T) {
	s := New()
	err := s.WithUnitLock(context.Background(), "t1", []string{"nope"}, func(tx store.BookingStore) error {
		return nil
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteUnitCascadeWaitsForUnitLock(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedPortfolio(t, s, "t1")

	entered := make(chan struct{})
	proceed := make(chan struct{})
	locked := make(chan error, 1)
	go func() {
		locked <- s.WithUnitLock(ctx, "t1", []string{"u1"}, func(tx store.BookingStore) error {
			close(entered)
			<-proceed
			return tx.CreateBooking(ctx, &models.Booking{
				TenantModel: models.TenantModel{TenantID: "t1", ID: "b-late"},
				UnitID:      "u1",
				StartDate:   day("2024-03-01"),
				EndDate:     day("2024-03-05"),
				Status:      models.BookingStatusConfirmed,
			})
		})
	}()
	<-entered

	deleted := make(chan error, 1)
	go func() { deleted <- s.DeleteUnitCascade(ctx, "t1", "u1") }()

	select {
	case <-deleted:
		t.Fatal("cascade must wait for the unit lock")
	case <-time.After(20 * time.Millisecond):
	}

	close(proceed)
	require.NoError(t, <-locked)
	require.NoError(t, <-deleted)

	// 级联在写入之后执行，不留下孤儿预订
	_, err := s.GetBooking(ctx, "t1", "b-late")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.WithUnitLock(ctx, "t1", []string{"u1"}, func(tx store.BookingStore) error { return nil })
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestChannelRowsAreUniquePerUnit(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedPortfolio(t, s, "t1")

	require.NoError(t, s.CreateMapping(ctx, &models.ChannelMapping{TenantModel: models.TenantModel{TenantID: "t1", ID: "cm-u1"}, UnitID: "u1"}))
	assert.ErrorIs(t, s.CreateMapping(ctx, &models.ChannelMapping{TenantModel: models.TenantModel{TenantID: "t1", ID: "other"}, UnitID: "u1"}), store.ErrDuplicate)
	assert.ErrorIs(t, s.UpsertMappings(ctx, "t1", []models.ChannelMapping{{TenantModel: models.TenantModel{ID: "other"}, UnitID: "u1"}}), store.ErrDuplicate)

	require.NoError(t, s.CreateFeed(ctx, &models.ICalConnection{TenantModel: models.TenantModel{TenantID: "t1", ID: "ical-u1"}, UnitID: "u1"}))
	assert.ErrorIs(t, s.UpsertFeeds(ctx, "t1", []models.ICalConnection{{TenantModel: models.TenantModel{ID: "f2"}, UnitID: "u1"}}), store.ErrDuplicate)

	// 另一租户的同一单元不受影响
	require.NoError(t, s.UpsertMappings(ctx, "t2", []models.ChannelMapping{{TenantModel: models.TenantModel{ID: "other"}, UnitID: "u1"}}))

	mappings, err := s.ListMappings(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, mappings, 1)
}

func TestListTenantIDsIncludesInactive(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateTenant(ctx, &models.Tenant{ID: "t2", Status: models.TenantStatusInactive}))
	require.NoError(t, s.CreateTenant(ctx, &models.Tenant{ID: "t1", Status: models.TenantStatusActive}))

	ids, err := s.ListTenantIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, ids)
}
