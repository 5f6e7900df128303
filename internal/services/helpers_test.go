package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"apartel/internal/events"
	"apartel/internal/models"
	"apartel/internal/store/memory"

	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.BookingEvent
}

func (p *recordingPublisher) Publish(e events.BookingEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) snapshot() []events.BookingEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.BookingEvent(nil), p.events...)
}

// newSeededStore 两个租户，各有一个分组和两个单元；单元ID在租户间重复
func newSeededStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.New()

	for _, tenantID := range []string{"t1", "t2"} {
		require.NoError(t, s.CreateTenant(ctx, &models.Tenant{ID: tenantID, Name: tenantID, Status: models.TenantStatusActive}))
		require.NoError(t, s.SaveGroups(ctx, tenantID, []models.PortfolioGroup{{
			TenantModel: models.TenantModel{ID: "g1"},
			Name:        "Old Town",
			Units: []models.Unit{
				{TenantModel: models.TenantModel{ID: "u1"}, Name: "Apt 1", Status: models.UnitStatusActive},
				{TenantModel: models.TenantModel{ID: "u2"}, Name: "Apt 2", Status: models.UnitStatusActive},
			},
		}}))
	}
	return s
}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func strPtr(s string) *string { return &s }
