package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"apartel/internal/handlers"
	"apartel/internal/middleware"
	"apartel/internal/models"
	"apartel/internal/services"
	"apartel/internal/store/memory"
	"apartel/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Kind    string          `json:"kind"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	engine *gin.Engine
	tokens map[string]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	st := memory.New()
	for _, id := range []string{"t1", "t2"} {
		require.NoError(t, st.CreateTenant(ctx, &models.Tenant{ID: id, Name: id, Status: models.TenantStatusActive}))
		require.NoError(t, st.SaveGroups(ctx, id, []models.PortfolioGroup{{
			TenantModel: models.TenantModel{ID: "g1"},
			Name:        "Old Town",
			Units:       []models.Unit{{TenantModel: models.TenantModel{ID: "u1"}, Name: "Apt 1"}},
		}}))
	}

	manager := jwt.NewJWTManager("router-test-secret", time.Hour)
	tokens := map[string]string{}
	for _, id := range []string{"t1", "t2"} {
		token, err := manager.GenerateToken("user-"+id, id, "owner")
		require.NoError(t, err)
		tokens[id] = token
	}

	h := &Handlers{
		Auth:        middleware.NewAuthMiddleware(manager),
		Booking:     handlers.NewBookingHandler(services.NewBookingService(st, nil, nil)),
		Channel:     handlers.NewChannelHandler(services.NewChannelService(st, nil, "https://cal.test")),
		Transaction: handlers.NewTransactionHandler(services.NewTransactionService(st, nil, "USD")),
		Portfolio:   handlers.NewPortfolioHandler(services.NewPortfolioService(st)),
		System: handlers.NewSystemHandler(map[string]handlers.HealthCheck{
			"store": func(ctx context.Context) error { return nil },
		}),
	}
	return &testServer{engine: SetupRouter(h), tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, tenant string, body interface{}) envelope {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[tenant])
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	env := s.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, 200, env.Code)
}

func TestTenantRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	env := s.do(t, http.MethodGet, "/api/v1/bookings", "", nil)
	assert.Equal(t, 401, env.Code)
}

func TestBookingFlow(t *testing.T) {
	s := newTestServer(t)

	created := s.do(t, http.MethodPost, "/api/v1/bookings", "t1", map[string]interface{}{
		"unitId": "u1", "guestName": "Ana", "startDate": "2024-03-01", "endDate": "2024-03-10", "price": 450,
	})
	require.Equal(t, 200, created.Code, created.Message)
	var booking models.Booking
	require.NoError(t, json.Unmarshal(created.Data, &booking))
	assert.Equal(t, "confirmed", booking.Status)

	overlap := s.do(t, http.MethodPost, "/api/v1/bookings", "t1", map[string]interface{}{
		"unitId": "u1", "startDate": "2024-03-05", "endDate": "2024-03-07",
	})
	assert.Equal(t, 409, overlap.Code)
	assert.Equal(t, "overlap", overlap.Kind)
	assert.Equal(t, "Selected dates are unavailable for this unit.", overlap.Message)

	badDate := s.do(t, http.MethodPost, "/api/v1/bookings", "t1", map[string]interface{}{
		"unitId": "u1", "startDate": "03/05/2024", "endDate": "2024-03-07",
	})
	assert.Equal(t, 400, badDate.Code)
	assert.Equal(t, "invalid_date", badDate.Kind)

	patched := s.do(t, http.MethodPatch, "/api/v1/bookings/"+booking.ID, "t1", map[string]interface{}{"endDate": "2024-03-12"})
	assert.Equal(t, 200, patched.Code, patched.Message)

	missing := s.do(t, http.MethodPatch, "/api/v1/bookings/b-missing", "t1", map[string]interface{}{"guestName": "x"})
	assert.Equal(t, 404, missing.Code)

	foreign := s.do(t, http.MethodGet, "/api/v1/bookings/"+booking.ID, "t2", nil)
	assert.Equal(t, 404, foreign.Code)

	list := s.do(t, http.MethodGet, "/api/v1/bookings?unitId=u1", "t1", nil)
	var bookings []models.Booking
	require.NoError(t, json.Unmarshal(list.Data, &bookings))
	assert.Len(t, bookings, 1)
}

func TestChannelSyncAndIncome(t *testing.T) {
	s := newTestServer(t)

	sync := s.do(t, http.MethodPost, "/api/v1/channels/sync", "t1", nil)
	require.Equal(t, 200, sync.Code, sync.Message)
	var result services.ReconcileResult
	require.NoError(t, json.Unmarshal(sync.Data, &result))
	assert.Equal(t, 1, result.MappingsCreated)
	require.Len(t, result.Feeds, 1)
	assert.Equal(t, "https://cal.test/cal/t1/u1.ics", result.Feeds[0].ExportURL)

	s.do(t, http.MethodPost, "/api/v1/bookings", "t1", map[string]interface{}{
		"unitId": "u1", "guestName": "Ana", "startDate": "2024-03-01", "endDate": "2024-03-10", "price": 450,
	})
	income := s.do(t, http.MethodPost, "/api/v1/transactions/sync-unit-income/u1", "t1", nil)
	require.Equal(t, 200, income.Code, income.Message)
	var synced services.IncomeSyncResult
	require.NoError(t, json.Unmarshal(income.Data, &synced))
	assert.Equal(t, 1, synced.SyncedCount)

	again := s.do(t, http.MethodPost, "/api/v1/transactions/sync-unit-income/u1", "t1", nil)
	require.NoError(t, json.Unmarshal(again.Data, &synced))
	assert.Equal(t, 0, synced.SyncedCount)

	badCurrency := s.do(t, http.MethodPost, "/api/v1/transactions/sync-unit-income/u1?currency=ZZZ", "t1", nil)
	assert.Equal(t, 400, badCurrency.Code)
}

func TestPortfolioRemoveUnit(t *testing.T) {
	s := newTestServer(t)

	env := s.do(t, http.MethodDelete, "/api/v1/portfolio/units/u1", "t1", nil)
	assert.Equal(t, 200, env.Code)

	env = s.do(t, http.MethodDelete, "/api/v1/portfolio/units/u1", "t1", nil)
	assert.Equal(t, 404, env.Code)

	// t2 的同名单元不受影响
	env = s.do(t, http.MethodGet, "/api/v1/portfolio", "t2", nil)
	var groups []models.PortfolioGroup
	require.NoError(t, json.Unmarshal(env.Data, &groups))
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Units, 1)
}
