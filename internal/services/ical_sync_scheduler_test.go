package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"apartel/internal/models"
	"apartel/internal/store/memory"
	apperrors "apartel/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenFeeds 指定租户的日历连接读取失败
type brokenFeeds struct {
	*memory.Store
	tenant string
}

func (b *brokenFeeds) ListFeeds(ctx context.Context, tenantID string) ([]models.ICalConnection, error) {
	if tenantID == b.tenant {
		return nil, errors.New("connection reset")
	}
	return b.Store.ListFeeds(ctx, tenantID)
}

func seedFeeds(t *testing.T, st *memory.Store, tenantID string) {
	t.Helper()
	require.NoError(t, st.UpsertFeeds(context.Background(), tenantID, []models.ICalConnection{
		{TenantModel: models.TenantModel{ID: "ical-u1"}, UnitID: "u1", ImportURL: "https://cal.example.test/u1.ics", LastSync: models.LastSyncNever},
		{TenantModel: models.TenantModel{ID: "ical-u2"}, UnitID: "u2", LastSync: models.LastSyncNever},
	}))
}

func TestICalSyncStampsImportedFeeds(t *testing.T) {
	st := newSeededStore(t)
	seedFeeds(t, st, "t1")

	sched := NewICalSyncScheduler(st, MockFeedFetcher{}, "0 */15 * * * *", 2, time.Second)
	fixed := time.Date(2024, 5, 1, 10, 15, 0, 123000000, time.FixedZone("CEST", 2*3600))
	sched.now = func() time.Time { return fixed }

	report, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Tenants)
	assert.Equal(t, 1, report.Synced)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)

	feeds, err := st.ListFeeds(context.Background(), "t1")
	require.NoError(t, err)
	for _, f := range feeds {
		switch f.ID {
		case "ical-u1":
			assert.Equal(t, "2024-05-01T08:15:00.123Z", f.LastSync)
		case "ical-u2":
			assert.Equal(t, models.LastSyncNever, f.LastSync)
		}
	}
}

func TestICalSyncFailingTenantDoesNotAbortOthers(t *testing.T) {
	st := newSeededStore(t)
	seedFeeds(t, st, "t1")
	seedFeeds(t, st, "t2")

	sched := NewICalSyncScheduler(&brokenFeeds{Store: st, tenant: "t1"}, MockFeedFetcher{}, "0 */15 * * * *", 1, time.Second)

	report, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, report.FailedTenants)
	assert.Equal(t, 1, report.Synced)

	feeds, err := st.ListFeeds(context.Background(), "t2")
	require.NoError(t, err)
	for _, f := range feeds {
		if f.ID == "ical-u1" {
			assert.NotEqual(t, models.LastSyncNever, f.LastSync)
		}
	}
}

func TestICalSyncFetchFailureLeavesLastSync(t *testing.T) {
	st := newSeededStore(t)
	seedFeeds(t, st, "t1")

	failing := FeedFetcherFunc(func(ctx context.Context, feed models.ICalConnection) error {
		return errors.New("dial tcp: timeout")
	})
	sched := NewICalSyncScheduler(st, failing, "0 */15 * * * *", 2, time.Second)

	report, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Synced)
	assert.Empty(t, report.FailedTenants)

	feeds, _ := st.ListFeeds(context.Background(), "t1")
	for _, f := range feeds {
		assert.Equal(t, models.LastSyncNever, f.LastSync)
	}
}

func TestICalSyncTenantTimeout(t *testing.T) {
	st := newSeededStore(t)
	seedFeeds(t, st, "t1")

	slow := FeedFetcherFunc(func(ctx context.Context, feed models.ICalConnection) error {
		<-ctx.Done()
		return ctx.Err()
	})
	sched := NewICalSyncScheduler(st, slow, "0 */15 * * * *", 2, 20*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		report, err := sched.RunOnce(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 1, report.Failed)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tenant timeout was not applied")
	}
}

func TestICalSyncSchedulerStartStop(t *testing.T) {
	sched := NewICalSyncScheduler(newSeededStore(t), nil, "0 */15 * * * *", 1, time.Second)
	require.NoError(t, sched.Start())
	assert.Error(t, sched.Start())
	sched.Stop()
	sched.Stop()

	bad := NewICalSyncScheduler(newSeededStore(t), nil, "every quarter hour", 1, time.Second)
	assert.Error(t, bad.Start())
}

func TestHTTPFeedFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.ics":
			w.Header().Set("Content-Type", "text/calendar")
			_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR\r\n"))
		case "/html":
			_, _ = w.Write([]byte("<html>login</html>"))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	f := NewHTTPFeedFetcher(time.Second)
	ctx := context.Background()

	assert.NoError(t, f.Fetch(ctx, models.ICalConnection{ImportURL: srv.URL + "/ok.ics"}))

	err := f.Fetch(ctx, models.ICalConnection{ImportURL: srv.URL + "/html"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindExternalFetchFailed))

	err = f.Fetch(ctx, models.ICalConnection{ImportURL: srv.URL + "/missing"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindExternalFetchFailed))

	err = f.Fetch(ctx, models.ICalConnection{ImportURL: "::not-a-url"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindExternalFetchFailed))
}
