// Package lock implements the manual-drive lock manager (C5): role-gated
// acquire/release/renew over the store's single lock slot, plus the admin
// preemption and revocation rules the specification requires. It is adapted
// from the reference gateway's safety/operation_lock.go, which kept a
// map[string]*LockInfo keyed by robot id behind one mutex; with a single
// robot there is exactly one slot, already owned by the store, so this
// package holds no state of its own and instead composes store.Store. Every
// acquire and release is appended, best-effort, to the audit stream via
// internal/cache.KV.
package lock

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tabledelivery/control-core/internal/apperr"
	"github.com/tabledelivery/control-core/internal/auth"
	"github.com/tabledelivery/control-core/internal/cache"
	"github.com/tabledelivery/control-core/internal/dispatch"
	"github.com/tabledelivery/control-core/internal/store"
)

// Manager acquires, renews, and releases the manual-drive lock.
type Manager struct {
	store      *store.Store
	dispatcher *dispatch.Dispatcher
	audit      *cache.KV
	logger     *zap.Logger
}

func New(st *store.Store, d *dispatch.Dispatcher, audit *cache.KV, logger *zap.Logger) *Manager {
	return &Manager{store: st, dispatcher: d, audit: audit, logger: logger}
}

// Acquire implements the §4.2 contract. Re-acquisition by the same holder
// renews expiresAt; an Admin may revoke a different user's effective lock;
// any other conflict is a domain error, not a FORBIDDEN.
func (m *Manager) Acquire(claims *auth.Claims) error {
	if !claims.Role.CanOperate() {
		return apperr.Forbidden("operator role required to acquire the manual-drive lock")
	}

	if active := m.store.ActiveRoute(); active != nil && !claims.Role.IsAdmin() {
		return apperr.DomainConflict("cannot acquire the manual-drive lock while an automated route is active")
	}

	if current := m.store.EffectiveLock(); current != nil && current.HolderID != claims.Sub {
		if !claims.Role.IsAdmin() {
			return apperr.DomainConflict("lock is held by " + current.HolderName)
		}
		m.logger.Info("admin revoked manual-drive lock",
			zap.String("admin", claims.Name),
			zap.String("revoked_holder", current.HolderName))
	}

	m.store.SetLock(store.LockInfo{
		HolderID:   claims.Sub,
		HolderName: claims.Name,
		ExpiresAt:  time.Now().Add(store.LockTTL),
	})
	m.audit.Audit(context.Background(), "lock_acquired", map[string]interface{}{
		"holderId":   claims.Sub,
		"holderName": claims.Name,
	})
	return nil
}

// Release implements the §4.2 contract: only the current effective holder
// may release, regardless of role.
func (m *Manager) Release(claims *auth.Claims) error {
	current := m.store.EffectiveLock()
	if current == nil || current.HolderID != claims.Sub {
		return apperr.DomainConflict("lock is not held by this user")
	}
	m.store.ClearLock()
	m.audit.Audit(context.Background(), "lock_released", map[string]interface{}{
		"holderId":   claims.Sub,
		"holderName": claims.Name,
	})
	return nil
}

// ExpireSweep clears the lock if it has expired and, if it did, gives the
// dispatcher a chance to start the next queued route. Called only by C6.
func (m *Manager) ExpireSweep() {
	if m.store.ClearExpiredLock() {
		m.dispatcher.TryDispatch()
	}
}
