package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestBookingOverlapsHalfOpen(t *testing.T) {
	b := Booking{StartDate: day("2024-03-01"), EndDate: day("2024-03-10")}

	assert.True(t, b.Overlaps(day("2024-03-05"), day("2024-03-07")))
	assert.True(t, b.Overlaps(day("2024-02-20"), day("2024-03-02")))
	assert.True(t, b.Overlaps(day("2024-02-01"), day("2024-04-01")))
	assert.False(t, b.Overlaps(day("2024-03-10"), day("2024-03-12")), "checkout day is free")
	assert.False(t, b.Overlaps(day("2024-02-25"), day("2024-03-01")), "checkin day of next guest is free")
}

func TestCancelledBookingDoesNotBlock(t *testing.T) {
	assert.True(t, (&Booking{Status: BookingStatusConfirmed}).BlocksCalendar())
	assert.True(t, (&Booking{Status: BookingStatusPending}).BlocksCalendar())
	assert.False(t, (&Booking{Status: BookingStatusCancelled}).BlocksCalendar())
}
