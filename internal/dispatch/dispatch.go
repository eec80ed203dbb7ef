// Package dispatch implements the queue dispatcher (C4): the pure,
// idempotent procedure that decides whether the robot is free to start its
// next queued route, and the admin preemption protocol that lets an Admin
// jump the queue. It is grounded in the reference gateway's
// handler.go/fsm.go guard-clause pipeline style — a sequence of early
// returns over a shared state object — generalized from per-message
// handling to the store-wide transaction the specification requires. Every
// state transition it makes is also appended, best-effort, to the audit
// stream via internal/cache.KV.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tabledelivery/control-core/internal/bus"
	"github.com/tabledelivery/control-core/internal/cache"
	"github.com/tabledelivery/control-core/internal/protocol"
	"github.com/tabledelivery/control-core/internal/store"
)

// Dispatcher owns the store and bus references needed to evaluate and act
// on dispatch decisions. It holds no state of its own besides the audit
// sink, which it writes to, never reads from.
type Dispatcher struct {
	store  *store.Store
	bus    *bus.Bus
	audit  *cache.KV
	logger *zap.Logger
}

func New(st *store.Store, b *bus.Bus, audit *cache.KV, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{store: st, bus: b, audit: audit, logger: logger}
}

// TryDispatch implements the six-step procedure from the specification.
// The lock order {lock -> telemetry -> activeRoute -> queue} is fixed and
// held across the whole decision so that two concurrent callers cannot both
// pop the same queue head.
func (d *Dispatcher) TryDispatch() {
	d.store.LockMu().RLock()
	defer d.store.LockMu().RUnlock()

	d.store.TelemetryMu().RLock()
	defer d.store.TelemetryMu().RUnlock()

	d.store.ActiveRouteMu().Lock()
	defer d.store.ActiveRouteMu().Unlock()

	d.store.QueueMu().Lock()
	defer d.store.QueueMu().Unlock()

	if d.store.EffectiveLockLocked() != nil {
		return
	}
	if !d.store.RobotConnectedLocked() {
		return
	}
	tel := d.store.TelemetryLocked()
	if tel == nil || tel.DriveMode != protocol.DriveModeIdle {
		return
	}
	if d.store.ActiveRouteLocked() != nil {
		return
	}
	route, ok := d.store.PopFrontLocked()
	if !ok {
		return
	}

	d.bus.Publish(protocol.Navigate(route.Start, route.Destination))
	d.store.SetActiveRouteLocked(&route)

	d.audit.Audit(context.Background(), "route_dispatched", map[string]interface{}{
		"routeId":     route.ID,
		"start":       route.Start,
		"destination": route.Destination,
	})
}

// Preempt runs the admin preemption protocol: it revokes any effective lock
// not held by the admin, cancels and requeues the current active route if
// one exists, and installs the admin's new route as the active one. Callers
// must already have verified claims.Role.IsAdmin().
func (d *Dispatcher) Preempt(adminID, adminName, start, destination string) {
	d.store.LockMu().Lock()
	defer d.store.LockMu().Unlock()

	d.store.TelemetryMu().RLock()
	defer d.store.TelemetryMu().RUnlock()

	d.store.ActiveRouteMu().Lock()
	defer d.store.ActiveRouteMu().Unlock()

	d.store.QueueMu().Lock()
	defer d.store.QueueMu().Unlock()

	if held := d.store.EffectiveLockLocked(); held != nil && held.HolderID != adminID {
		d.store.ClearLockLocked()
		if d.logger != nil {
			d.logger.Info("admin preemption revoked manual-drive lock",
				zap.String("admin", adminName),
				zap.String("revoked_holder", held.HolderName))
		}
		d.audit.Audit(context.Background(), "lock_revoked", map[string]interface{}{
			"admin":         adminName,
			"revokedHolder": held.HolderName,
		})
	}

	if prior := d.store.ActiveRouteLocked(); prior != nil {
		d.bus.Publish(protocol.Cancel())
		d.store.PushFrontLocked(*prior)
		d.audit.Audit(context.Background(), "route_preempted", map[string]interface{}{
			"routeId": prior.ID,
			"admin":   adminName,
		})
	}

	next := store.QueuedRoute{
		ID:          uuid.NewString(),
		Start:       start,
		Destination: destination,
		AddedAt:     time.Now().UTC(),
		AddedBy:     adminName,
	}
	d.bus.Publish(protocol.Navigate(start, destination))
	d.store.SetActiveRouteLocked(&next)

	d.audit.Audit(context.Background(), "route_admin_dispatched", map[string]interface{}{
		"routeId":     next.ID,
		"start":       next.Start,
		"destination": next.Destination,
		"admin":       adminName,
	})
}
