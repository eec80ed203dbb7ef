// Package telemetry implements the telemetry intake (C7): the two HTTP
// endpoints the robot posts to, authenticated by a constant-time comparison
// of the configured API key. A "state" post overwrites the stored telemetry
// and, on completion of the active route, clears it and re-triggers
// dispatch. It is grounded in the reference gateway's safety/timeout_watchdog.go
// freshness-stamping idiom, generalized to also own the route-completion
// check the specification adds.
package telemetry

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/tabledelivery/control-core/internal/dispatch"
	"github.com/tabledelivery/control-core/internal/protocol"
	"github.com/tabledelivery/control-core/internal/store"
)

// Intake handles the robot's state/event posts.
type Intake struct {
	store      *store.Store
	dispatcher *dispatch.Dispatcher
	apiKey     string
	logger     *zap.Logger
}

func New(st *store.Store, d *dispatch.Dispatcher, apiKey string, logger *zap.Logger) *Intake {
	return &Intake{store: st, dispatcher: d, apiKey: apiKey, logger: logger}
}

func (i *Intake) authorized(r *http.Request) bool {
	got := r.Header.Get("X-Api-Key")
	return subtle.ConstantTimeCompare([]byte(got), []byte(i.apiKey)) == 1
}

// HandleState is POST /table/state. It overwrites telemetry, and if the
// active route just completed (driveMode returned to IDLE), clears it and
// lets the dispatcher try the next queue entry.
func (i *Intake) HandleState(w http.ResponseWriter, r *http.Request) {
	if !i.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var t protocol.Telemetry
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	i.store.SetTelemetry(t)

	if active := i.store.ActiveRoute(); active != nil && t.DriveMode == protocol.DriveModeIdle {
		i.store.ClearActiveRouteOnCompletion()
	}

	i.dispatcher.TryDispatch()

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// HandleEvent is POST /table/event. Events are logged, not stored; the
// specification treats them as a one-way notification channel distinct from
// the authoritative telemetry snapshot.
func (i *Intake) HandleEvent(w http.ResponseWriter, r *http.Request) {
	if !i.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var evt map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	if i.logger != nil {
		i.logger.Info("robot event", zap.Any("event", evt))
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
