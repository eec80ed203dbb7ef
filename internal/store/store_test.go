package store

import (
	"testing"
	"time"

	"github.com/tabledelivery/control-core/internal/protocol"
)

func TestRobotConnectedRequiresFreshTelemetry(t *testing.T) {
	s := New()
	if s.RobotConnected() {
		t.Fatal("expected disconnected before any telemetry")
	}
	s.SetTelemetry(protocol.Telemetry{DriveMode: protocol.DriveModeIdle})
	if !s.RobotConnected() {
		t.Fatal("expected connected right after a telemetry post")
	}
}

func TestEffectiveLockExpires(t *testing.T) {
	s := New()
	s.SetLock(LockInfo{HolderID: "u1", HolderName: "Ada", ExpiresAt: time.Now().Add(-time.Second)})

	if s.EffectiveLock() != nil {
		t.Fatal("expected an expired lock to be ineffective")
	}
	if l := s.Lock(); l == nil {
		t.Fatal("expired lock should still be present until swept")
	}
}

func TestClearExpiredLock(t *testing.T) {
	s := New()
	s.SetLock(LockInfo{HolderID: "u1", ExpiresAt: time.Now().Add(time.Second)})
	if s.ClearExpiredLock() {
		t.Fatal("should not clear a still-effective lock")
	}

	s.SetLock(LockInfo{HolderID: "u1", ExpiresAt: time.Now().Add(-time.Second)})
	if !s.ClearExpiredLock() {
		t.Fatal("should clear an expired lock")
	}
	if s.Lock() != nil {
		t.Fatal("lock slot should be empty after clearing")
	}
}

func TestQueueCopyOnRead(t *testing.T) {
	s := New()
	s.Enqueue("a", "b", "Ada")

	first := s.Queue()
	first[0].Start = "mutated"

	second := s.Queue()
	if second[0].Start != "a" {
		t.Fatalf("mutating a read snapshot should not affect the store, got %q", second[0].Start)
	}
}

func TestRemoveFromQueue(t *testing.T) {
	s := New()
	r := s.Enqueue("a", "b", "Ada")
	if !s.RemoveFromQueue(r.ID) {
		t.Fatal("expected removal to succeed")
	}
	if s.RemoveFromQueue(r.ID) {
		t.Fatal("expected second removal to fail")
	}
}
