package dispatch

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tabledelivery/control-core/internal/bus"
	"github.com/tabledelivery/control-core/internal/cache"
	"github.com/tabledelivery/control-core/internal/protocol"
	"github.com/tabledelivery/control-core/internal/store"
)

func newTestDispatcher() (*Dispatcher, *store.Store, *bus.Bus, *bus.Subscriber) {
	st := store.New()
	b := bus.New(zap.NewNop())
	audit := cache.New("not-a-valid-url", zap.NewNop())
	d := New(st, b, audit, zap.NewNop())
	sub := b.Subscribe()
	return d, st, b, sub
}

func requireCommand(t *testing.T, sub *bus.Subscriber) protocol.RobotCommand {
	t.Helper()
	select {
	case cmd := <-sub.C():
		return cmd
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a command on the bus")
		return protocol.RobotCommand{}
	}
}

func TestTryDispatchRequiresConnectedIdleRobot(t *testing.T) {
	d, st, _, _ := newTestDispatcher()
	st.Enqueue("a", "b", "Ada")

	d.TryDispatch()

	if st.ActiveRoute() != nil {
		t.Fatal("should not dispatch while the robot is disconnected")
	}
}

func TestTryDispatchPopsQueueAndEmitsNavigate(t *testing.T) {
	d, st, _, sub := newTestDispatcher()
	st.SetTelemetry(protocol.Telemetry{DriveMode: protocol.DriveModeIdle})
	route := st.Enqueue("a", "b", "Ada")

	d.TryDispatch()

	cmd := requireCommand(t, sub)
	if cmd.Kind != protocol.CommandNavigate || cmd.Start != "a" || cmd.Destination != "b" {
		t.Fatalf("unexpected command emitted: %+v", cmd)
	}
	active := st.ActiveRoute()
	if active == nil || active.ID != route.ID {
		t.Fatal("expected the popped route to become the active route")
	}
	if len(st.Queue()) != 0 {
		t.Fatal("expected queue to be empty after dispatch")
	}
}

func TestTryDispatchSkipsWhenLockEffective(t *testing.T) {
	d, st, _, _ := newTestDispatcher()
	st.SetTelemetry(protocol.Telemetry{DriveMode: protocol.DriveModeIdle})
	st.Enqueue("a", "b", "Ada")
	st.SetLock(store.LockInfo{HolderID: "u1", ExpiresAt: time.Now().Add(time.Minute)})

	d.TryDispatch()

	if st.ActiveRoute() != nil {
		t.Fatal("should not dispatch while a lock is effective")
	}
}

func TestPreemptCancelsAndRequeuesActiveRoute(t *testing.T) {
	d, st, _, sub := newTestDispatcher()
	st.SetTelemetry(protocol.Telemetry{DriveMode: protocol.DriveModeIdle})
	original := st.Enqueue("a", "b", "Ada")
	d.TryDispatch()
	requireCommand(t, sub) // drain the first Navigate

	d.Preempt("admin-1", "Root", "c", "d")

	cancel := requireCommand(t, sub)
	if cancel.Kind != protocol.CommandCancel {
		t.Fatalf("expected a Cancel to be emitted first, got %+v", cancel)
	}
	nav := requireCommand(t, sub)
	if nav.Kind != protocol.CommandNavigate || nav.Start != "c" {
		t.Fatalf("expected the admin's Navigate to be emitted, got %+v", nav)
	}

	active := st.ActiveRoute()
	if active == nil || active.Start != "c" {
		t.Fatal("expected the admin's route to become active")
	}
	queue := st.Queue()
	if len(queue) != 1 || queue[0].ID != original.ID {
		t.Fatal("expected the preempted route to be pushed back to the queue head")
	}
}
