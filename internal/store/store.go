// Package store holds the single robot's authoritative state: telemetry,
// the manual-drive lock, the active route, the pending queue, the robot's
// discovered HTTP URL, and the cached node list. It is the C2 component.
//
// Every mutation is guarded by one of a fixed set of RWMutexes, always taken
// in the order {lock -> telemetry -> activeRoute -> queue -> robotUrl ->
// cachedNodes} so that no two goroutines can deadlock waiting on each other.
// This mirrors the reference gateway's robot/manager.go, which protected a
// map of robots behind a single RWMutex with a copy-on-read snapshot
// discipline (GetRobot/GetAllRobots returned struct copies, never pointers
// into the map); here the single robot is split into per-concern mutexes
// because C4/C5/C6/C7 each touch a different subset and coarser locking
// would serialize unrelated work.
package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tabledelivery/control-core/internal/protocol"
)

// StaleTimeout is how long telemetry may go unrefreshed before the robot is
// considered disconnected.
const StaleTimeout = 30 * time.Second

// LockTTL is how long a manual-drive lock remains effective without renewal.
const LockTTL = 30 * time.Second

// LockInfo describes the current manual-drive lock holder.
type LockInfo struct {
	HolderID   string
	HolderName string
	ExpiresAt  time.Time
}

// QueuedRoute is one pending or active navigation request.
type QueuedRoute struct {
	ID          string
	Start       string
	Destination string
	AddedAt     time.Time
	AddedBy     string
}

// Store is the single robot's authoritative, in-memory state. Zero value is
// not usable; construct with New.
type Store struct {
	lockMu sync.RWMutex
	lock   *LockInfo

	telemetryMu sync.RWMutex
	telemetry   *protocol.Telemetry
	lastUpdate  time.Time

	activeRouteMu sync.RWMutex
	activeRoute   *QueuedRoute

	queueMu sync.RWMutex
	queue   []QueuedRoute

	robotURLMu sync.RWMutex
	robotURL   string

	cachedNodesMu sync.RWMutex
	cachedNodes   []string
}

func New() *Store {
	return &Store{}
}

// --- Lock slot ---

// Lock returns a copy of the stored lock, regardless of effectiveness.
func (s *Store) Lock() *LockInfo {
	s.lockMu.RLock()
	defer s.lockMu.RUnlock()
	if s.lock == nil {
		return nil
	}
	l := *s.lock
	return &l
}

// EffectiveLock returns the lock only if it has not expired; it never
// mutates the slot (see ClearExpiredLock for that).
func (s *Store) EffectiveLock() *LockInfo {
	s.lockMu.RLock()
	defer s.lockMu.RUnlock()
	if s.lock == nil || !s.lock.ExpiresAt.After(time.Now()) {
		return nil
	}
	l := *s.lock
	return &l
}

// SetLock installs a new lock, replacing any prior one.
func (s *Store) SetLock(l LockInfo) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	cp := l
	s.lock = &cp
}

// ClearLock unconditionally removes the lock slot.
func (s *Store) ClearLock() {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	s.lock = nil
}

// ClearExpiredLock clears the lock iff it is present and non-effective,
// reporting whether it did so.
func (s *Store) ClearExpiredLock() bool {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if s.lock == nil || s.lock.ExpiresAt.After(time.Now()) {
		return false
	}
	s.lock = nil
	return true
}

// --- Telemetry slot ---

// Telemetry returns a copy of the last posted telemetry, or nil if none has
// ever arrived.
func (s *Store) Telemetry() *protocol.Telemetry {
	s.telemetryMu.RLock()
	defer s.telemetryMu.RUnlock()
	if s.telemetry == nil {
		return nil
	}
	t := *s.telemetry
	return &t
}

// SetTelemetry overwrites the stored telemetry wholesale and stamps
// lastUpdate.
func (s *Store) SetTelemetry(t protocol.Telemetry) {
	s.telemetryMu.Lock()
	defer s.telemetryMu.Unlock()
	s.telemetry = &t
	s.lastUpdate = time.Now()
}

// RobotConnected implements invariant #4: telemetry must exist and be fresh.
func (s *Store) RobotConnected() bool {
	s.telemetryMu.RLock()
	defer s.telemetryMu.RUnlock()
	return !s.lastUpdate.IsZero() && time.Since(s.lastUpdate) < StaleTimeout
}

// LastUpdate returns the time of the most recent telemetry post, or the
// zero time if none has arrived.
func (s *Store) LastUpdate() time.Time {
	s.telemetryMu.RLock()
	defer s.telemetryMu.RUnlock()
	return s.lastUpdate
}

// --- Active route slot ---

// ActiveRoute returns a copy of the active route, or nil.
func (s *Store) ActiveRoute() *QueuedRoute {
	s.activeRouteMu.RLock()
	defer s.activeRouteMu.RUnlock()
	if s.activeRoute == nil {
		return nil
	}
	r := *s.activeRoute
	return &r
}

func (s *Store) setActiveRoute(r *QueuedRoute) {
	s.activeRouteMu.Lock()
	defer s.activeRouteMu.Unlock()
	s.activeRoute = r
}

// ClearActiveRouteOnCompletion clears the active route slot. Telemetry
// intake calls this once it observes driveMode return to IDLE while a route
// is active.
func (s *Store) ClearActiveRouteOnCompletion() {
	s.setActiveRoute(nil)
}

// --- Queue slot ---

// Queue returns a copy of the pending queue, FIFO order, not including the
// active route.
func (s *Store) Queue() []QueuedRoute {
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	out := make([]QueuedRoute, len(s.queue))
	copy(out, s.queue)
	return out
}

// Enqueue appends a new route to the back of the queue and returns it.
func (s *Store) Enqueue(start, destination, addedBy string) QueuedRoute {
	r := QueuedRoute{
		ID:          uuid.NewString(),
		Start:       start,
		Destination: destination,
		AddedAt:     time.Now().UTC(),
		AddedBy:     addedBy,
	}
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	s.queue = append(s.queue, r)
	return r
}

// RemoveFromQueue deletes the entry with the given id from the pending
// queue (not the active route), reporting whether it was found.
func (s *Store) RemoveFromQueue(id string) bool {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	for i, r := range s.queue {
		if r.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true
		}
	}
	return false
}

// ReplaceQueue overwrites the queue in place with a reordered copy of the
// same entries, used by the route optimizer (POST /routes/optimize). It does not validate
// membership; callers must pass a permutation of the current queue.
func (s *Store) ReplaceQueue(reordered []QueuedRoute) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	s.queue = append(s.queue[:0], reordered...)
}

// PushFront reinserts a route at the head of the queue, taking queueMu
// itself. Admin preemption uses PushFrontLocked instead.
func (s *Store) PushFront(r QueuedRoute) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	s.queue = append([]QueuedRoute{r}, s.queue...)
}

// popFrontLocked removes and returns the queue head, or false if empty. Caller
// must already hold queueMu.
func (s *Store) popFrontLocked() (QueuedRoute, bool) {
	if len(s.queue) == 0 {
		return QueuedRoute{}, false
	}
	r := s.queue[0]
	s.queue = s.queue[1:]
	return r, true
}

// --- RobotURL slot ---

func (s *Store) RobotURL() string {
	s.robotURLMu.RLock()
	defer s.robotURLMu.RUnlock()
	return s.robotURL
}

func (s *Store) SetRobotURL(url string) {
	s.robotURLMu.Lock()
	defer s.robotURLMu.Unlock()
	s.robotURL = url
}

// --- Cached nodes slot ---

func (s *Store) CachedNodes() []string {
	s.cachedNodesMu.RLock()
	defer s.cachedNodesMu.RUnlock()
	if s.cachedNodes == nil {
		return nil
	}
	out := make([]string, len(s.cachedNodes))
	copy(out, s.cachedNodes)
	return out
}

func (s *Store) SetCachedNodes(nodes []string) {
	s.cachedNodesMu.Lock()
	defer s.cachedNodesMu.Unlock()
	s.cachedNodes = append([]string(nil), nodes...)
}

// LockMu, TelemetryMu, ActiveRouteMu and QueueMu expose the fixed acquisition order {lock -> telemetry ->
// activeRoute -> queue} to callers, such as the dispatcher, that must hold
// several slots across one logical transaction. Holding RLock/Lock directly
// on the returned mutexes in this order avoids deadlock; callers outside
// this package should prefer the higher-level helpers above and only reach
// for these when implementing a multi-slot procedure like TryDispatch.
func (s *Store) LockMu() *sync.RWMutex        { return &s.lockMu }
func (s *Store) TelemetryMu() *sync.RWMutex   { return &s.telemetryMu }
func (s *Store) ActiveRouteMu() *sync.RWMutex { return &s.activeRouteMu }
func (s *Store) QueueMu() *sync.RWMutex       { return &s.queueMu }

// PopFrontLocked and SetActiveRouteLocked are the lock-held primitives the
// dispatcher composes under its own multi-mutex critical section; they do
// not acquire locks themselves.
func (s *Store) PopFrontLocked() (QueuedRoute, bool) { return s.popFrontLocked() }
func (s *Store) SetActiveRouteLocked(r *QueuedRoute)  { s.activeRoute = r }
func (s *Store) ActiveRouteLocked() *QueuedRoute      { return s.activeRoute }
func (s *Store) EffectiveLockLocked() *LockInfo {
	if s.lock == nil || !s.lock.ExpiresAt.After(time.Now()) {
		return nil
	}
	l := *s.lock
	return &l
}
func (s *Store) RobotConnectedLocked() bool {
	return !s.lastUpdate.IsZero() && time.Since(s.lastUpdate) < StaleTimeout
}
func (s *Store) TelemetryLocked() *protocol.Telemetry {
	if s.telemetry == nil {
		return nil
	}
	t := *s.telemetry
	return &t
}
func (s *Store) ClearLockLocked()                 { s.lock = nil }
func (s *Store) PushFrontLocked(r QueuedRoute)     { s.queue = append([]QueuedRoute{r}, s.queue...) }
