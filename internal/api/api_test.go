package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"televet/internal/booking"
	"televet/internal/docstore"
	"televet/internal/export"
	"televet/internal/maintenance"
	"televet/internal/model"
	"televet/internal/repository"
	"televet/internal/scheduling"
	"televet/internal/settings"
	"televet/internal/templates"
)

const testAPIKey = "valid-key"

// Monday 2026-03-09, 09:40 UTC.
var fixedNow = time.Date(2026, 3, 9, 9, 40, 0, 0, time.UTC)

type testServer struct {
	handler   http.Handler
	schedules *repository.ScheduleRepository
	registry  *scheduling.Registry
}

func setupTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	store := docstore.NewMemoryStore()
	schedules := repository.NewScheduleRepository(store)
	settingsRepo := repository.NewSettingsRepository(store)
	logger := zerolog.New(io.Discard)
	now := func() time.Time { return fixedNow }

	reg := scheduling.NewRegistry(scheduling.Deps{
		Schedules:    schedules,
		Settings:     settingsRepo,
		Maintainer:   maintenance.New(schedules, now, &logger),
		Now:          now,
		MaxRangeDays: 90,
		Logger:       &logger,
	})
	t.Cleanup(reg.Close)

	opts.Now = now
	srv := NewServer(Services{
		Templates: templates.NewService(repository.NewTemplateRepository(store), &logger),
		Sessions:  reg,
		Settings:  settings.NewService(settingsRepo, reg, &logger),
		Booking:   booking.NewService(schedules, repository.NewAppointmentRepository(store), settingsRepo, now, &logger),
		Export:    export.NewExporter(schedules, now, &logger),
	}, opts, &logger)

	return &testServer{handler: srv.Routes(), schedules: schedules, registry: reg}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, testAPIKey)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func (ts *testServer) put(t *testing.T, day model.DaySchedule) {
	t.Helper()
	require.NoError(t, ts.schedules.Put(context.Background(), "vet1", day))
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func TestTemplates_CRUD(t *testing.T) {
	ts := setupTestServer(t, Options{})

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantError  string
	}{
		{
			name:       "unknown type",
			body:       map[string]any{"name": "x", "type": "month"},
			wantStatus: http.StatusBadRequest,
			wantError:  "type must be one of: week day",
		},
		{
			name:       "missing name",
			body:       map[string]any{"type": "day", "slots": []map[string]string{{"start": "09:00", "end": "10:00"}}},
			wantStatus: http.StatusBadRequest,
			wantError:  "Please enter a template name.",
		},
		{
			name:       "unknown field",
			body:       map[string]any{"name": "x", "type": "day", "color": "red"},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid JSON body",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/vets/vet1/templates", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantError, decodeBody[errorResponse](t, w).Error)
		})
	}

	w := ts.do(t, http.MethodPost, "/vets/vet1/templates", map[string]any{
		"name": " Mornings ", "type": "day", "slots": []map[string]string{{"start": "9:00", "end": "10:00"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody[model.AvailabilityTemplate](t, w)
	assert.Equal(t, "Mornings", created.Name)
	assert.Equal(t, "09:00", created.Slots[0].Start)

	w = ts.do(t, http.MethodGet, "/vets/vet1/templates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[map[string][]model.AvailabilityTemplate](t, w)
	assert.Len(t, list["templates"], 1)

	w = ts.do(t, http.MethodPut, "/vets/vet1/templates/"+created.ID, map[string]any{
		"name": "Late mornings", "type": "day", "slots": []map[string]string{{"start": "10:00", "end": "11:00"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Late mornings", decodeBody[model.AvailabilityTemplate](t, w).Name)

	w = ts.do(t, http.MethodDelete, "/vets/vet1/templates/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, "/vets/vet1/templates/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeBody[errorResponse](t, w).Code)
}

func TestTemplates_CopyDay(t *testing.T) {
	ts := setupTestServer(t, Options{})
	w := ts.do(t, http.MethodPost, "/vets/vet1/templates", map[string]any{
		"name": "Week", "type": "week",
		"days": map[string]any{"monday": []map[string]string{{"start": "09:00", "end": "10:00"}}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decodeBody[model.AvailabilityTemplate](t, w).ID

	w = ts.do(t, http.MethodPost, "/vets/vet1/templates/"+id+"/copy-day", map[string]string{"from": "monday", "to": "tuesday"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decodeBody[model.AvailabilityTemplate](t, w).Days[model.Tuesday], 1)

	w = ts.do(t, http.MethodPost, "/vets/vet1/templates/"+id+"/copy-day", map[string]string{"from": "sunday", "to": "tuesday"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApplyTemplate_Conflicts(t *testing.T) {
	ts := setupTestServer(t, Options{})
	w := ts.do(t, http.MethodPost, "/vets/vet1/templates", map[string]any{
		"name": "Mondays", "type": "week",
		"days": map[string]any{"monday": []map[string]string{{"start": "09:00", "end": "10:00"}}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decodeBody[model.AvailabilityTemplate](t, w).ID

	ts.put(t, model.DaySchedule{Date: "2026-03-16", Slots: []model.ScheduleSlot{
		{Start: "09:00", End: "09:30", Status: model.StatusBooked, AppointmentID: "a1"},
	}})
	ts.put(t, model.DaySchedule{Date: "2026-03-23", Slots: []model.ScheduleSlot{
		{Start: "09:30", End: "10:30", Status: model.StatusAvailable},
	}})

	t.Run("analyze", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/vets/vet1/templates/"+id+"/analyze",
			map[string]string{"start_date": "2026-03-10", "end_date": "2026-03-31"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		got := decodeBody[scheduling.Analysis](t, w)
		assert.Equal(t, []string{"2026-03-16"}, got.Case3)
		assert.Equal(t, []string{"2026-03-23"}, got.Case2)
		assert.Equal(t, []string{"2026-03-30"}, got.Case1)
	})

	t.Run("booked overlap", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/vets/vet1/templates/"+id+"/apply",
			map[string]string{"start_date": "2026-03-10", "end_date": "2026-03-17"})
		assert.Equal(t, http.StatusConflict, w.Code)
		resp := decodeBody[errorResponse](t, w)
		assert.Equal(t, "hard_conflict", resp.Code)
		assert.Equal(t, []string{"2026-03-16"}, resp.Dates)
	})

	t.Run("decision required", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/vets/vet1/templates/"+id+"/apply",
			map[string]string{"start_date": "2026-03-20", "end_date": "2026-03-24"})
		assert.Equal(t, http.StatusConflict, w.Code)
		resp := decodeBody[errorResponse](t, w)
		assert.Equal(t, "decision_required", resp.Code)
		assert.Equal(t, []string{"2026-03-23"}, resp.Dates)
	})

	t.Run("replace", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/vets/vet1/templates/"+id+"/apply", map[string]any{
			"start_date": "2026-03-20", "end_date": "2026-03-24", "replace_dates": []string{"2026-03-23"},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeBody[applyResponse](t, w)
		assert.Equal(t, []string{"2026-03-23"}, resp.AppliedDates)
		assert.Equal(t, 1, resp.Applied)
	})

	t.Run("start in past", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/vets/vet1/templates/"+id+"/apply",
			map[string]string{"start_date": "2026-03-01", "end_date": "2026-03-10"})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("bad date", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/vets/vet1/templates/"+id+"/apply",
			map[string]string{"start_date": "10-03-2026", "end_date": "2026-03-10"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "start_date must be a date in YYYY-MM-DD format", decodeBody[errorResponse](t, w).Error)
	})
}

func TestSchedules_FilterAndEdit(t *testing.T) {
	ts := setupTestServer(t, Options{})
	ts.put(t, model.DaySchedule{Date: "2026-03-10", Slots: []model.ScheduleSlot{
		{Start: "09:00", End: "09:30", Status: model.StatusAvailable},
	}})
	ts.put(t, model.DaySchedule{Date: "2026-03-18", Slots: []model.ScheduleSlot{
		{Start: "11:00", End: "11:30", Status: model.StatusAvailable},
	}})

	type listResp struct {
		Schedules []dayView `json:"schedules"`
	}

	tests := []struct {
		query     string
		wantCode  int
		wantDates []string
	}{
		{"", http.StatusOK, []string{"2026-03-10", "2026-03-18"}},
		{"?filter=date&date=2026-03-18", http.StatusOK, []string{"2026-03-18"}},
		{"?filter=range&from=2026-03-01&to=2026-03-12", http.StatusOK, []string{"2026-03-10"}},
		{"?filter=week&week=next", http.StatusOK, []string{"2026-03-18"}},
		{"?filter=today", http.StatusOK, []string{}},
		{"?filter=date&date=tomorrow", http.StatusBadRequest, nil},
		{"?filter=month", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := ts.do(t, http.MethodGet, "/vets/vet1/schedules"+tt.query, nil)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}
			dates := []string{}
			for _, d := range decodeBody[listResp](t, w).Schedules {
				dates = append(dates, d.Date)
			}
			assert.Equal(t, tt.wantDates, dates)
		})
	}

	w := ts.do(t, http.MethodPut, "/vets/vet1/schedules/2026-03-10", map[string]any{
		"slots": []map[string]string{{"start": "09:00", "end": "09:30"}, {"start": "13:00", "end": "13:30"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	edited := decodeBody[editDayResponse](t, w)
	require.Len(t, edited.Day.Slots, 2)
	assert.Equal(t, "1:00 PM - 1:30 PM", edited.Day.Slots[1].Display)
	assert.Equal(t, model.StatusAvailable, edited.Day.Slots[1].Status)

	w = ts.do(t, http.MethodPut, "/vets/vet1/schedules/2026-03-10", map[string]any{
		"slots": []map[string]string{{"start": "10:00", "end": "09:00"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBlockedDates(t *testing.T) {
	ts := setupTestServer(t, Options{})
	ts.put(t, model.DaySchedule{Date: "2026-03-16", Slots: []model.ScheduleSlot{
		{Start: "09:00", End: "09:30", Status: model.StatusBooked, AppointmentID: "a1"},
	}})

	w := ts.do(t, http.MethodPost, "/vets/vet1/blocked-dates", map[string]any{"dates": []string{"2026-03-25"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/vets/vet1/blocked-dates", map[string]any{"dates": []string{"2026-03-16"}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, "/vets/vet1/blocked-dates", map[string]any{"dates": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "dates must have at least 1 entries", decodeBody[errorResponse](t, w).Error)

	w = ts.do(t, http.MethodGet, "/vets/vet1/blocked-dates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"2026-03-25"}, decodeBody[map[string][]string](t, w)["dates"])

	w = ts.do(t, http.MethodDelete, "/vets/vet1/blocked-dates/2026-03-25", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, "/vets/vet1/blocked-dates", nil)
	assert.Empty(t, decodeBody[map[string][]string](t, w)["dates"])
}

func TestMaintenance(t *testing.T) {
	ts := setupTestServer(t, Options{})
	ts.put(t, model.DaySchedule{Date: "2026-03-09", Slots: []model.ScheduleSlot{
		{Start: "09:00", End: "09:30", Status: model.StatusAvailable, ExpiryTime: fixedNow.Add(-time.Hour).UnixMilli()},
	}})

	w := ts.do(t, http.MethodPost, "/vets/vet1/maintenance/sweep", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	// opening the session already swept the date
	assert.Equal(t, 0, decodeBody[map[string]int](t, w)["expired"])

	w = ts.do(t, http.MethodPost, "/vets/vet1/maintenance/purge", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decodeBody[map[string]int](t, w)["purged"])
}

func TestSettings(t *testing.T) {
	ts := setupTestServer(t, Options{})

	w := ts.do(t, http.MethodGet, "/vets/vet1/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, settingsResponse{MinAdvanceBookingMinutes: 30, Display: "30 minutes"}, decodeBody[settingsResponse](t, w))

	w = ts.do(t, http.MethodPut, "/vets/vet1/settings", map[string]any{"value": 2, "unit": "hours"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, settingsResponse{MinAdvanceBookingMinutes: 120, Display: "2 hours"}, decodeBody[settingsResponse](t, w))

	w = ts.do(t, http.MethodPut, "/vets/vet1/settings", map[string]any{"value": 25, "unit": "hours"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, settings.ErrInvalidAdvance.Error(), decodeBody[errorResponse](t, w).Error)
}

func TestBookingFlow(t *testing.T) {
	ts := setupTestServer(t, Options{})
	ts.put(t, model.DaySchedule{Date: "2026-03-10", Slots: []model.ScheduleSlot{
		{Start: "09:00", End: "09:30", Status: model.StatusAvailable},
	}})

	w := ts.do(t, http.MethodGet, "/vets/vet1/bookable-slots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	avail := decodeBody[booking.Availability](t, w)
	assert.Equal(t, []string{"2026-03-10"}, avail.Dates)

	w = ts.do(t, http.MethodGet, "/vets/vet1/availability?date=2026-03-10&start=09:00", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody[map[string]any](t, w)["available"])

	w = ts.do(t, http.MethodGet, "/vets/vet1/availability?date=2026-03-10", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := map[string]string{
		"owner_id": "owner1", "pet_id": "pet1", "pet_name": "Rex", "vet_id": "vet1", "vet_name": "Dr. Smith",
		"date": "2026-03-10", "start": "09:00", "reason": "Checkup",
	}
	w = ts.do(t, http.MethodPost, "/appointments", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	appt := decodeBody[model.Appointment](t, w)
	assert.Equal(t, model.AppointmentPending, appt.Status)

	w = ts.do(t, http.MethodPost, "/appointments", req)
	assert.Equal(t, http.StatusConflict, w.Code)

	req["reason"] = ""
	w = ts.do(t, http.MethodPost, "/appointments", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, booking.ErrInvalidRequest.Error(), decodeBody[errorResponse](t, w).Error)

	w = ts.do(t, http.MethodGet, "/owners/owner1/appointments?upcoming=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[map[string][]model.Appointment](t, w)["appointments"], 1)
}

func TestExportSchedules(t *testing.T) {
	ts := setupTestServer(t, Options{})
	ts.put(t, model.DaySchedule{Date: "2026-03-10", Slots: []model.ScheduleSlot{
		{Start: "09:00", End: "09:30", Status: model.StatusAvailable},
	}})

	w := ts.do(t, http.MethodGet, "/vets/vet1/schedules/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "schedule-vet1.xlsx")
	assert.NotZero(t, w.Body.Len())
}

func TestAPIAuthMiddleware(t *testing.T) {
	ts := setupTestServer(t, Options{APIKey: testAPIKey})

	tests := []struct {
		name           string
		apiKey         string
		expectedStatus int
	}{
		{"valid api key", testAPIKey, http.StatusOK},
		{"missing api key", "", http.StatusUnauthorized},
		{"invalid api key", "invalid-key", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/vets/vet1/settings", http.NoBody)
			if tt.apiKey != "" {
				req.Header.Set("x-api-key", tt.apiKey)
			}
			w := httptest.NewRecorder()
			ts.handler.ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.NotEmpty(t, w.Header().Get(requestIDHeader))
		})
	}
}

func TestRateLimit(t *testing.T) {
	ts := setupTestServer(t, Options{RPS: 1, Burst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, ts.do(t, http.MethodGet, "/vets/vet1/settings", nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRequestIDPassthrough(t *testing.T) {
	ts := setupTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/nowhere", http.NoBody)
	req.Header.Set(requestIDHeader, "req-123")
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(requestIDHeader))
}

func TestReleaseSession(t *testing.T) {
	ts := setupTestServer(t, Options{})

	w := ts.do(t, http.MethodGet, "/vets/vet1/schedules", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodDelete, "/vets/vet1/session", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, ts.registry.Release("vet1"), "session already closed")

	w = ts.do(t, http.MethodDelete, "/vets/vet1/session", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, "/vets/vet1/schedules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, ts.registry.Release("vet1"), "a fresh session was opened")
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	logger := zerolog.New(io.Discard)
	handler := NewServer(Services{}, Options{}, &logger).Routes()

	req := httptest.NewRequest(http.MethodGet, "/vets/vet1/templates", http.NoBody)
	w := httptest.NewRecorder()
	assert.NotPanics(t, func() { handler.ServeHTTP(w, req) })
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestLimiterStore_EvictsIdleClients(t *testing.T) {
	clock := fixedNow
	store := newLimiterStore(1, 1, func() time.Time { return clock })

	store.get("10.0.0.1")
	clock = clock.Add(5 * time.Minute)
	store.get("10.0.0.2")
	assert.Equal(t, 2, store.size())

	clock = clock.Add(6 * time.Minute)
	store.get("10.0.0.2")
	assert.Equal(t, 1, store.size(), "idle client dropped")

	clock = clock.Add(limiterIdleTTL)
	store.get("10.0.0.3")
	assert.Equal(t, 1, store.size())
}
