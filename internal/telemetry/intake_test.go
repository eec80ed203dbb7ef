package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/tabledelivery/control-core/internal/bus"
	"github.com/tabledelivery/control-core/internal/cache"
	"github.com/tabledelivery/control-core/internal/dispatch"
	"github.com/tabledelivery/control-core/internal/protocol"
	"github.com/tabledelivery/control-core/internal/store"
)

func newTestIntake() (*Intake, *store.Store) {
	st := store.New()
	audit := cache.New("not-a-valid-url", zap.NewNop())
	d := dispatch.New(st, bus.New(zap.NewNop()), audit, zap.NewNop())
	return New(st, d, "test-key", zap.NewNop()), st
}

func TestHandleStateRejectsWrongKey(t *testing.T) {
	i, _ := newTestIntake()
	req := httptest.NewRequest(http.MethodPost, "/table/state", strings.NewReader(`{}`))
	req.Header.Set("X-Api-Key", "wrong-key")
	rec := httptest.NewRecorder()

	i.HandleState(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleStateUpdatesTelemetry(t *testing.T) {
	i, st := newTestIntake()
	body := `{"systemHealth":"OK","batteryLevel":90,"driveMode":"IDLE","cargoStatus":"EMPTY","currentPosition":"A1"}`
	req := httptest.NewRequest(http.MethodPost, "/table/state", strings.NewReader(body))
	req.Header.Set("X-Api-Key", "test-key")
	rec := httptest.NewRecorder()

	i.HandleState(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	tel := st.Telemetry()
	if tel == nil || tel.BatteryLevel != 90 {
		t.Fatalf("expected telemetry to be stored, got %+v", tel)
	}
}

func TestHandleStateClearsCompletedRoute(t *testing.T) {
	i, st := newTestIntake()
	st.SetTelemetry(protocol.Telemetry{DriveMode: "NAVIGATING"})
	route := store.QueuedRoute{ID: "r1", Start: "a", Destination: "b", AddedBy: "Ada"}
	st.SetActiveRouteLocked(&route)

	body := `{"systemHealth":"OK","batteryLevel":50,"driveMode":"IDLE","cargoStatus":"EMPTY","currentPosition":"b"}`
	req := httptest.NewRequest(http.MethodPost, "/table/state", strings.NewReader(body))
	req.Header.Set("X-Api-Key", "test-key")
	rec := httptest.NewRecorder()

	i.HandleState(rec, req)

	if st.ActiveRoute() != nil {
		t.Fatal("expected the active route to be cleared on IDLE completion")
	}
}
