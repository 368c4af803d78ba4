package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"trip-tracker/internal/backend"
	"trip-tracker/internal/model"
	"trip-tracker/internal/trip"
)

type stubBackend struct {
	mu       sync.Mutex
	startErr error
	calls    []string
}

func (b *stubBackend) record(op string) {
	b.mu.Lock()
	b.calls = append(b.calls, op)
	b.mu.Unlock()
}

func (b *stubBackend) StartRide(context.Context, string) error {
	b.record("start_ride")
	return b.startErr
}

func (b *stubBackend) StartRequest(context.Context, string) error {
	b.record("start_request")
	return nil
}

func (b *stubBackend) CompleteRequest(context.Context, string) error {
	b.record("complete_request")
	return nil
}

func (b *stubBackend) CompleteRide(context.Context, string) error {
	b.record("complete_ride")
	return nil
}

func (b *stubBackend) CancelRequest(context.Context, string) error {
	b.record("cancel_request")
	return nil
}

const ridePayload = `{
  "ride_id": "ride-9",
  "request_id": "req-9",
  "status": "confirmed",
  "start_location": {"lat": 38.5, "lng": -120.2},
  "end_location": {"lat": 43.252, "lng": -126.453},
  "polyline": "_p~iF~ps|U_ulLnnqC_mqNvxq` + "`" + `@"
}`

func newTestServer(be *stubBackend) *Server {
	return NewServer(func(ctx context.Context, d trip.Details) (*trip.Session, error) {
		return trip.Begin(ctx, trip.Config{}, trip.Deps{Backend: be}, d, model.RoleDriver)
	}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tracker_active_sessions 1\n"))
	}))
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestSessionLifecycle(t *testing.T) {
	be := &stubBackend{}
	srv := newTestServer(be)
	h := srv.Routes()
	defer srv.SetSession(nil)

	require.Equal(t, http.StatusNotFound, do(t, h, "GET", "/session", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, h, "GET", "/map", "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/session", `{"status":"confirmed"}`).Code)

	rec := do(t, h, "POST", "/session", ridePayload)
	require.Equal(t, http.StatusCreated, rec.Code)
	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, "ride-9", snap.TripID)
	require.Equal(t, model.PhaseToPickup, snap.Phase)

	require.Equal(t, http.StatusConflict, do(t, h, "POST", "/session", ridePayload).Code)

	rec = do(t, h, "GET", "/map", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view trip.MapView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, "ride-9", view.TripID)
	require.NotEmpty(t, view.Markers)

	be.startErr = &backend.APIError{Status: 400, ID: backend.ErrIDTooFarFromPickup}
	rec = do(t, h, "POST", "/session/pickup", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	var errResp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.False(t, errResp.Retry)
	require.Contains(t, errResp.Error, "pickup")

	be.startErr = nil
	rec = do(t, h, "POST", "/session/pickup", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, model.PhaseToDropoff, snap.Phase)

	rec = do(t, h, "POST", "/session/complete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, model.PhaseCompleted, snap.Phase)

	// a finished trip can be replaced
	require.Equal(t, http.StatusCreated, do(t, h, "POST", "/session", ridePayload).Code)
	rec = do(t, h, "POST", "/session/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSimulationWithoutSimulator(t *testing.T) {
	srv := newTestServer(&stubBackend{})
	h := srv.Routes()
	defer srv.SetSession(nil)

	require.Equal(t, http.StatusCreated, do(t, h, "POST", "/session", ridePayload).Code)
	rec := do(t, h, "POST", "/session/simulation", "")
	require.NotEqual(t, http.StatusOK, rec.Code)
	require.Equal(t, http.StatusOK, do(t, h, "DELETE", "/session/simulation", "").Code)
}

func TestMetricsRoute(t *testing.T) {
	h := newTestServer(&stubBackend{}).Routes()
	rec := do(t, h, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "tracker_active_sessions")
}
