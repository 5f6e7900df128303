package services

import (
	"context"
	"errors"
	"time"

	"apartel/internal/events"
	"apartel/internal/models"
	"apartel/internal/store"
	apperrors "apartel/pkg/errors"
	"apartel/pkg/lock"
	"apartel/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// 预订错误信息
const (
	msgInvalidStartDate = "Invalid start date format."
	msgInvalidEndDate   = "Invalid end date format."
	msgInvalidRange     = "End date must be after check-in date."
	msgDatesUnavailable = "Selected dates are unavailable for this unit."
	msgBookingNotFound  = "Booking not found."
	msgUnitNotFound     = "Unit not found."
)

// maxUpdateAttempts 预订被并发移动到其他单元时的重试上限
const maxUpdateAttempts = 3

var errBookingMoved = errors.New("booking moved to another unit")

// BookingDraft 新建预订请求
type BookingDraft struct {
	ID                string           `json:"id" validate:"max=64"`
	UnitID            string           `json:"unitId" validate:"required,max=64"`
	GuestName         string           `json:"guestName" validate:"max=200"`
	GuestPhone        string           `json:"guestPhone" validate:"max=50"`
	StartDate         string           `json:"startDate"`
	EndDate           string           `json:"endDate"`
	Status            string           `json:"status" validate:"omitempty,oneof=confirmed pending cancelled"`
	Source            string           `json:"source" validate:"omitempty,oneof=airbnb booking expedia direct blocked"`
	Price             *decimal.Decimal `json:"price"`
	Description       string           `json:"description" validate:"max=1000"`
	AssignedCleanerID string           `json:"assignedCleanerId" validate:"max=64"`
}

// BookingPatch 部分更新，nil 字段保持原值
type BookingPatch struct {
	UnitID            *string          `json:"unitId" validate:"omitempty,min=1,max=64"`
	GuestName         *string          `json:"guestName" validate:"omitempty,max=200"`
	GuestPhone        *string          `json:"guestPhone" validate:"omitempty,max=50"`
	StartDate         *string          `json:"startDate"`
	EndDate           *string          `json:"endDate"`
	Status            *string          `json:"status" validate:"omitempty,oneof=confirmed pending cancelled"`
	Source            *string          `json:"source" validate:"omitempty,oneof=airbnb booking expedia direct blocked"`
	Price             *decimal.Decimal `json:"price"`
	Description       *string          `json:"description" validate:"omitempty,max=1000"`
	AssignedCleanerID *string          `json:"assignedCleanerId" validate:"omitempty,max=64"`
}

// BookingService 预订台账，保证同一单元的未取消预订两两不相交
type BookingService struct {
	store  store.BookingStore
	locker lock.Locker
	events events.Publisher
	now    func() time.Time
}

// NewBookingService 创建预订服务；locker 为 nil 时使用进程内锁
func NewBookingService(st store.BookingStore, locker lock.Locker, publisher events.Publisher) *BookingService {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &BookingService{
		store:  st,
		locker: locker,
		events: publisher,
		now:    time.Now,
	}
}

func bookingLockKey(tenantID, unitID string) string {
	return "booking:" + tenantID + ":" + unitID
}

// Create 新建预订
func (s *BookingService) Create(ctx context.Context, tenantID string, draft BookingDraft) (*models.Booking, error) {
	start, ok := parseDate(draft.StartDate)
	if !ok {
		return nil, apperrors.New(apperrors.KindInvalidDate, msgInvalidStartDate)
	}
	end, ok := parseDate(draft.EndDate)
	if !ok {
		return nil, apperrors.New(apperrors.KindInvalidDate, msgInvalidEndDate)
	}
	if !start.Before(end) {
		return nil, apperrors.New(apperrors.KindInvalidRange, msgInvalidRange)
	}
	if err := validate.Struct(draft); err != nil {
		return nil, validationError(err)
	}
	if draft.Price != nil && draft.Price.IsNegative() {
		return nil, apperrors.New(apperrors.KindInvalidParam, "Price must not be negative.")
	}

	booking := &models.Booking{
		TenantModel:       models.TenantModel{TenantID: tenantID, ID: draft.ID},
		UnitID:            draft.UnitID,
		GuestName:         draft.GuestName,
		GuestPhone:        draft.GuestPhone,
		StartDate:         start,
		EndDate:           end,
		Status:            draft.Status,
		Source:            draft.Source,
		Description:       draft.Description,
		AssignedCleanerID: draft.AssignedCleanerID,
	}
	if booking.ID == "" {
		booking.ID = "b-" + uuid.NewString()
	}
	if booking.Status == "" {
		booking.Status = models.BookingStatusConfirmed
	}
	if booking.Source == "" {
		booking.Source = models.BookingSourceDirect
	}
	if draft.Price != nil {
		booking.Price = *draft.Price
	}

	unlock, err := s.locker.Lock(ctx, bookingLockKey(tenantID, booking.UnitID))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindPersistence, "Failed to acquire unit lock.", err)
	}
	defer unlock()

	err = s.store.WithUnitLock(ctx, tenantID, []string{booking.UnitID}, func(tx store.BookingStore) error {
		if booking.BlocksCalendar() {
			conflict, err := tx.FindOverlap(ctx, tenantID, booking.UnitID, start, end, "")
			if err != nil {
				return err
			}
			if conflict != nil {
				return apperrors.New(apperrors.KindOverlap, msgDatesUnavailable)
			}
		}
		return tx.CreateBooking(ctx, booking)
	})
	if err != nil {
		return nil, storeError(err, msgUnitNotFound)
	}

	logger.GetLogger().WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"unit_id":    booking.UnitID,
		"booking_id": booking.ID,
	}).Info("预订已创建")

	s.events.Publish(events.BookingEvent{
		Type:       events.TypeBookingCreated,
		TenantID:   tenantID,
		Booking:    *booking,
		OccurredAt: s.now().UTC(),
	})
	return booking, nil
}

// Update 部分更新预订，冲突检查排除自身
func (s *BookingService) Update(ctx context.Context, tenantID, id string, patch BookingPatch) (*models.Booking, error) {
	if err := validate.Struct(patch); err != nil {
		return nil, validationError(err)
	}
	if patch.Price != nil && patch.Price.IsNegative() {
		return nil, apperrors.New(apperrors.KindInvalidParam, "Price must not be negative.")
	}

	var start, end *time.Time
	if patch.StartDate != nil {
		t, ok := parseDate(*patch.StartDate)
		if !ok {
			return nil, apperrors.New(apperrors.KindInvalidDate, msgInvalidStartDate)
		}
		start = &t
	}
	if patch.EndDate != nil {
		t, ok := parseDate(*patch.EndDate)
		if !ok {
			return nil, apperrors.New(apperrors.KindInvalidDate, msgInvalidEndDate)
		}
		end = &t
	}

	var updated *models.Booking
	for attempt := 0; ; attempt++ {
		b, err := s.updateOnce(ctx, tenantID, id, patch, start, end)
		if errors.Is(err, errBookingMoved) {
			if attempt+1 < maxUpdateAttempts {
				continue
			}
			return nil, apperrors.New(apperrors.KindConflict, "Booking was modified concurrently, please retry.")
		}
		if err != nil {
			return nil, err
		}
		updated = b
		break
	}

	logger.GetLogger().WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"unit_id":    updated.UnitID,
		"booking_id": updated.ID,
	}).Info("预订已更新")

	s.events.Publish(events.BookingEvent{
		Type:       events.TypeBookingUpdated,
		TenantID:   tenantID,
		Booking:    *updated,
		OccurredAt: s.now().UTC(),
	})
	return updated, nil
}

// updateOnce 锁定预订当前所在单元（及目标单元）后应用补丁。
// 加锁前读取的单元可能已被并发更新改变，锁内发现不一致时返回 errBookingMoved。
func (s *BookingService) updateOnce(ctx context.Context, tenantID, id string, patch BookingPatch, start, end *time.Time) (*models.Booking, error) {
	existing, err := s.store.GetBooking(ctx, tenantID, id)
	if err != nil {
		return nil, storeError(err, msgBookingNotFound)
	}

	units := []string{existing.UnitID}
	if patch.UnitID != nil && *patch.UnitID != existing.UnitID {
		units = append(units, *patch.UnitID)
	}
	keys := make([]string, 0, len(units))
	for _, u := range units {
		keys = append(keys, bookingLockKey(tenantID, u))
	}

	release, err := lock.LockAll(ctx, s.locker, keys...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindPersistence, "Failed to acquire unit lock.", err)
	}
	defer release()

	var updated *models.Booking
	err = s.store.WithUnitLock(ctx, tenantID, units, func(tx store.BookingStore) error {
		current, err := tx.GetBooking(ctx, tenantID, id)
		if err != nil {
			return storeError(err, msgBookingNotFound)
		}
		if current.UnitID != existing.UnitID {
			return errBookingMoved
		}

		applyPatch(current, patch, start, end)
		if !current.StartDate.Before(current.EndDate) {
			return apperrors.New(apperrors.KindInvalidRange, msgInvalidRange)
		}

		if current.BlocksCalendar() {
			conflict, err := tx.FindOverlap(ctx, tenantID, current.UnitID, current.StartDate, current.EndDate, current.ID)
			if err != nil {
				return err
			}
			if conflict != nil {
				return apperrors.New(apperrors.KindOverlap, msgDatesUnavailable)
			}
		}

		if err := tx.SaveBooking(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if errors.Is(err, errBookingMoved) {
		return nil, err
	}
	if err != nil {
		return nil, storeError(err, msgUnitNotFound)
	}
	return updated, nil
}

func applyPatch(b *models.Booking, p BookingPatch, start, end *time.Time) {
	if p.UnitID != nil {
		b.UnitID = *p.UnitID
	}
	if p.GuestName != nil {
		b.GuestName = *p.GuestName
	}
	if p.GuestPhone != nil {
		b.GuestPhone = *p.GuestPhone
	}
	if start != nil {
		b.StartDate = *start
	}
	if end != nil {
		b.EndDate = *end
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.Source != nil {
		b.Source = *p.Source
	}
	if p.Price != nil {
		b.Price = *p.Price
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.AssignedCleanerID != nil {
		b.AssignedCleanerID = *p.AssignedCleanerID
	}
}

// Get 获取单条预订
func (s *BookingService) Get(ctx context.Context, tenantID, id string) (*models.Booking, error) {
	booking, err := s.store.GetBooking(ctx, tenantID, id)
	if err != nil {
		return nil, storeError(err, msgBookingNotFound)
	}
	return booking, nil
}

// List 查询预订
func (s *BookingService) List(ctx context.Context, tenantID string, filter store.BookingFilter) ([]models.Booking, error) {
	bookings, err := s.store.ListBookings(ctx, tenantID, filter)
	if err != nil {
		return nil, storeError(err, msgBookingNotFound)
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	return bookings, nil
}
