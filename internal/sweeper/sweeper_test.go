package sweeper

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tabledelivery/control-core/internal/bus"
	"github.com/tabledelivery/control-core/internal/cache"
	"github.com/tabledelivery/control-core/internal/dispatch"
	"github.com/tabledelivery/control-core/internal/lock"
	"github.com/tabledelivery/control-core/internal/protocol"
	"github.com/tabledelivery/control-core/internal/store"
)

func TestStartStopsOnContextCancel(t *testing.T) {
	st := store.New()
	audit := cache.New("not-a-valid-url", zap.NewNop())
	d := dispatch.New(st, bus.New(zap.NewNop()), audit, zap.NewNop())
	lockMgr := lock.New(st, d, audit, zap.NewNop())
	s := New(lockMgr, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Start to return promptly once the context is canceled")
	}
}

func TestExpireSweepClearsExpiredLockAndDispatches(t *testing.T) {
	st := store.New()
	audit := cache.New("not-a-valid-url", zap.NewNop())
	d := dispatch.New(st, bus.New(zap.NewNop()), audit, zap.NewNop())
	lockMgr := lock.New(st, d, audit, zap.NewNop())
	s := New(lockMgr, zap.NewNop())

	st.SetLock(store.LockInfo{
		HolderID:   "u1",
		HolderName: "Ada",
		ExpiresAt:  time.Now().Add(-time.Second),
	})
	st.SetTelemetry(protocol.Telemetry{DriveMode: protocol.DriveModeIdle})
	route := st.Enqueue("a", "b", "Ada")

	s.lock.ExpireSweep()

	if held := st.Lock(); held != nil {
		t.Fatalf("expected the expired lock to be cleared, got %+v", held)
	}
	if active := st.ActiveRoute(); active == nil || active.ID != route.ID {
		t.Fatalf("expected the queued route to be dispatched after the sweep, got %+v", active)
	}
}
