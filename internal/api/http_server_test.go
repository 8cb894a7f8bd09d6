package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"recolha/internal/config"
	"recolha/internal/domain"
	"recolha/internal/models"
	"recolha/internal/municipality"
	"recolha/internal/repository"
	"recolha/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Tuesday.
var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

const mondayBody = `{"date":"2026-03-16","approxTimeSlot":"10:00","items":[{"name":"Mattress","description":"Old king-size mattress"},{"name":"Sofa"}],"municipality":"Aveiro"}`

type testEnv struct {
	handler http.Handler
	service *service.BookingService
	store   *repository.MemoryBookingStore
}

func newTestEnv(t *testing.T, cfg config.APIConfig) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	store := repository.NewMemoryBookingStore()
	dir := municipality.NewDirectory(municipality.StaticSource{"Aveiro", "Porto", "Lisboa"}, nil, time.Hour, &logger)
	svc := service.NewBookingService(store, dir, nil, service.Options{
		Denylist: []string{"Lisboa"},
		Now:      func() time.Time { return fixedNow },
	}, &logger)
	srv := NewHTTPServer(cfg, svc, dir, &logger)
	return &testEnv{handler: srv.Handler(), service: svc, store: store}
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func book(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(h, http.MethodPost, "/api/bookings", mondayBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp bookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decodeSnapshots(t *testing.T, rec *httptest.ResponseRecorder) []models.BookingSnapshot {
	t.Helper()
	var out []models.BookingSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestBookAndCheck(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	token := book(t, env.handler)

	rec := do(env.handler, http.MethodGet, "/api/bookings/"+token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap models.BookingSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, token, snap.Token)
	assert.Equal(t, "2026-03-16", snap.Date)
	assert.Equal(t, "10:00", snap.ApproxTimeSlot.String())
	assert.Equal(t, "Aveiro", snap.Municipality)
	assert.Equal(t, models.StatusReceived, snap.CurrentStatus.Status)
	assert.Empty(t, snap.StatusHistory)
	assert.Len(t, snap.Items, 2)
}

func TestCheckUnknownToken(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	rec := do(env.handler, http.MethodGet, "/api/bookings/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookRejections(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{"date":`, "invalid JSON body"},
		{"missing date", `{"approxTimeSlot":"10:00","items":[{"name":"Sofa"}],"municipality":"Aveiro"}`, "date is required"},
		{"bad date", `{"date":"16/03/2026","approxTimeSlot":"10:00","items":[{"name":"Sofa"}],"municipality":"Aveiro"}`, "date must be a date in YYYY-MM-DD format"},
		{"bad time", `{"date":"2026-03-16","approxTimeSlot":"ten","items":[{"name":"Sofa"}],"municipality":"Aveiro"}`, "approxTimeSlot must be a time in HH:MM format"},
		{"time with seconds", `{"date":"2026-03-16","approxTimeSlot":"10:00:30","items":[{"name":"Sofa"}],"municipality":"Aveiro"}`, "approxTimeSlot must be a time in HH:MM format"},
		{"no items", `{"date":"2026-03-16","approxTimeSlot":"10:00","items":[],"municipality":"Aveiro"}`, "items must contain at least 1 entry"},
		{"blank item name", `{"date":"2026-03-16","approxTimeSlot":"10:00","items":[{"name":" "}],"municipality":"Aveiro"}`, "items[0].name is required"},
		{"blank municipality", `{"date":"2026-03-16","approxTimeSlot":"10:00","items":[{"name":"Sofa"}],"municipality":"  "}`, "municipality is required"},
		{"past date", `{"date":"2026-03-09","approxTimeSlot":"10:00","items":[{"name":"Sofa"}],"municipality":"Aveiro"}`, models.ErrPastDate.Reason},
		{"weekend", `{"date":"2026-03-14","approxTimeSlot":"10:00","items":[{"name":"Sofa"}],"municipality":"Aveiro"}`, models.ErrWeekendDate.Reason},
		{"outside hours", `{"date":"2026-03-16","approxTimeSlot":"18:00","items":[{"name":"Sofa"}],"municipality":"Aveiro"}`, models.ErrOutsideHours.Reason},
		{"denylisted", `{"date":"2026-03-16","approxTimeSlot":"10:00","items":[{"name":"Sofa"}],"municipality":"Lisboa"}`, models.ErrMunicipalityDenied.Reason},
		{"unknown municipality", `{"date":"2026-03-16","approxTimeSlot":"10:00","items":[{"name":"Sofa"}],"municipality":"Atlantis"}`, models.ErrUnknownMunicipality.Reason},
	}

	env := newTestEnv(t, config.APIConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(env.handler, http.MethodPost, "/api/bookings", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body["error"])
		})
	}

	all, err := env.store.FindAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestBookTooManyItems(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	items := make([]string, 0, models.MaxItemsPerBooking+1)
	for i := 0; i <= models.MaxItemsPerBooking; i++ {
		items = append(items, fmt.Sprintf(`{"name":"item %d"}`, i))
	}
	body := fmt.Sprintf(`{"date":"2026-03-16","approxTimeSlot":"10:00","items":[%s],"municipality":"Aveiro"}`,
		strings.Join(items, ","))
	rec := do(env.handler, http.MethodPost, "/api/bookings", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = fmt.Sprintf(`{"date":"2026-03-16","approxTimeSlot":"10:00","items":[%s],"municipality":"Aveiro"}`,
		strings.Join(items[:models.MaxItemsPerBooking], ","))
	rec = do(env.handler, http.MethodPost, "/api/bookings", body)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestBookCapacity(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	for i := 0; i < models.SlotCapacity; i++ {
		book(t, env.handler)
	}

	rec := do(env.handler, http.MethodPost, "/api/bookings", mondayBody)
	assert.Equal(t, http.StatusConflict, rec.Code)

	other := strings.Replace(mondayBody, "10:00", "11:00", 1)
	rec = do(env.handler, http.MethodPost, "/api/bookings", other)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	token := book(t, env.handler)

	assert.Equal(t, http.StatusNoContent, do(env.handler, http.MethodDelete, "/api/bookings/"+token, "").Code)
	assert.Equal(t, http.StatusNotFound, do(env.handler, http.MethodDelete, "/api/bookings/"+token, "").Code)
	assert.Equal(t, http.StatusNotFound, do(env.handler, http.MethodDelete, "/api/bookings/unknown", "").Code)

	booking, err := env.service.Check(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, booking.Status())
}

func TestChangeState(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	token := book(t, env.handler)
	path := "/api/bookings/" + token + "/state"

	rec := do(env.handler, http.MethodPatch, path, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	booking, err := env.service.Check(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, booking.Status())

	assert.Equal(t, http.StatusBadRequest, do(env.handler, http.MethodPatch, path, `{"state":"LOST"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(env.handler, http.MethodPatch, path, `{"state":"RECEIVED"}`).Code)
	assert.Equal(t, http.StatusNoContent, do(env.handler, http.MethodPatch, path, `{"state":"in_progress"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(env.handler, http.MethodPatch, "/api/bookings/unknown/state", "").Code)

	booking, err = env.service.Check(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, booking.Status())
	assert.Len(t, booking.StatusHistory(), 2)
}

func TestListings(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	first := book(t, env.handler)
	book(t, env.handler)
	porto := strings.Replace(mondayBody, "Aveiro", "Porto", 1)
	require.Equal(t, http.StatusCreated, do(env.handler, http.MethodPost, "/api/bookings", porto).Code)
	require.Equal(t, http.StatusNoContent, do(env.handler, http.MethodDelete, "/api/staff/bookings/"+first, "").Code)

	all := decodeSnapshots(t, do(env.handler, http.MethodGet, "/api/staff/bookings", ""))
	assert.Len(t, all, 3)

	removed := decodeSnapshots(t, do(env.handler, http.MethodGet, "/api/bookings/state/removed", ""))
	require.Len(t, removed, 1)
	assert.Equal(t, first, removed[0].Token)

	received := decodeSnapshots(t, do(env.handler, http.MethodGet, "/api/bookings/state/RECEIVED", ""))
	assert.Len(t, received, 2)

	rec := do(env.handler, http.MethodGet, "/api/bookings/state/unknown", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	aveiro := decodeSnapshots(t, do(env.handler, http.MethodGet, "/api/municipalities/Aveiro", ""))
	assert.Len(t, aveiro, 2)

	empty := do(env.handler, http.MethodGet, "/api/municipalities/Braga", "")
	assert.Equal(t, http.StatusOK, empty.Code)
	assert.JSONEq(t, `[]`, empty.Body.String())
}

func TestMunicipalities(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	rec := do(env.handler, http.MethodGet, "/api/municipalities", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["Aveiro","Porto","Lisboa"]`, rec.Body.String())
}

func TestExport(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	book(t, env.handler)

	rec := do(env.handler, http.MethodGet, "/api/staff/bookings/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "bookings.xlsx")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"), "xlsx is a zip archive")
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	rec := do(env.handler, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealthzFailing(t *testing.T) {
	logger := zerolog.Nop()
	dir := municipality.NewDirectory(municipality.StaticSource{"Aveiro"}, nil, time.Hour, &logger)
	srv := NewHTTPServer(config.APIConfig{}, new(mockService), dir, &logger)
	srv.SetHealthCheck(func(context.Context) error { return errors.New("database is locked") })

	rec := do(srv.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	rec := do(env.handler, http.MethodOptions, "/api/bookings", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	env = newTestEnv(t, config.APIConfig{CORS: config.APICORSConfig{AllowOrigin: "https://recolha.example"}})
	rec = do(env.handler, http.MethodGet, "/healthz", "")
	assert.Equal(t, "https://recolha.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 2}})

	assert.Equal(t, http.StatusOK, do(env.handler, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(env.handler, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(env.handler, http.MethodGet, "/healthz", "").Code)
}

type mockService struct {
	mock.Mock
}

func (m *mockService) Book(ctx context.Context, date time.Time, slot *models.TimeOfDay, items []models.Item, name string) (string, error) {
	args := m.Called(ctx, date, slot, items, name)
	return args.String(0), args.Error(1)
}

func (m *mockService) Cancel(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

func (m *mockService) Remove(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

func (m *mockService) Check(ctx context.Context, token string) (*models.Booking, error) {
	args := m.Called(ctx, token)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockService) ChangeState(ctx context.Context, token string, status models.BookingStatus) (bool, error) {
	args := m.Called(ctx, token, status)
	return args.Bool(0), args.Error(1)
}

func (m *mockService) GetAllBookings(ctx context.Context) ([]*models.Booking, error) {
	args := m.Called(ctx)
	b, _ := args.Get(0).([]*models.Booking)
	return b, args.Error(1)
}

func (m *mockService) GetBookingsByStatus(ctx context.Context, status models.BookingStatus) ([]*models.Booking, error) {
	args := m.Called(ctx, status)
	b, _ := args.Get(0).([]*models.Booking)
	return b, args.Error(1)
}

func (m *mockService) GetBookingsByMunicipality(ctx context.Context, name string) ([]*models.Booking, error) {
	args := m.Called(ctx, name)
	b, _ := args.Get(0).([]*models.Booking)
	return b, args.Error(1)
}

func TestServiceUnavailable(t *testing.T) {
	logger := zerolog.Nop()
	svc := new(mockService)
	down := fmt.Errorf("%w: save booking: disk I/O error", domain.ErrServiceUnavailable)
	svc.On("Book", mock.Anything, mock.Anything, mock.Anything, mock.Anything, "Aveiro").Return("", down)
	svc.On("Check", mock.Anything, "tok").Return(nil, down)
	svc.On("GetAllBookings", mock.Anything).Return(nil, down)

	dir := municipality.NewDirectory(municipality.StaticSource{"Aveiro"}, nil, time.Hour, &logger)
	h := NewHTTPServer(config.APIConfig{}, svc, dir, &logger).Handler()

	assert.Equal(t, http.StatusServiceUnavailable, do(h, http.MethodPost, "/api/bookings", mondayBody).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(h, http.MethodGet, "/api/bookings/tok", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(h, http.MethodGet, "/api/staff/bookings", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(h, http.MethodGet, "/api/staff/bookings/export", "").Code)
	svc.AssertExpectations(t)
}

func TestBookPassesParsedRequest(t *testing.T) {
	logger := zerolog.Nop()
	svc := new(mockService)
	slot := models.MustTimeOfDay("10:00")
	items := []models.Item{
		{Name: "Mattress", Description: "Old king-size mattress"},
		{Name: "Sofa"},
	}
	svc.On("Book", mock.Anything, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), &slot, items, "Aveiro").
		Return("ABC123TOKEN", nil)

	dir := municipality.NewDirectory(municipality.StaticSource{"Aveiro"}, nil, time.Hour, &logger)
	h := NewHTTPServer(config.APIConfig{}, svc, dir, &logger).Handler()

	rec := do(h, http.MethodPost, "/api/bookings", mondayBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"token":"ABC123TOKEN","message":"Booking created successfully"}`, rec.Body.String())
	svc.AssertExpectations(t)
}
