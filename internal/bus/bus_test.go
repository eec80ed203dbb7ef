package bus

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tabledelivery/control-core/internal/protocol"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := New(zap.NewNop())
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()

	b.Publish(protocol.Cancel())

	for _, sub := range []*Subscriber{sub1, sub2} {
		select {
		case cmd := <-sub.C():
			if cmd.Kind != protocol.CommandCancel {
				t.Fatalf("unexpected command: %+v", cmd)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for a fanned-out command")
		}
	}
}

func TestPublishDropsWhenSubscriberBufferFull(t *testing.T) {
	b := New(zap.NewNop())
	sub := b.Subscribe()

	for i := 0; i < Capacity; i++ {
		b.Publish(protocol.Cancel())
	}
	// one more publish should be silently dropped rather than blocking
	done := make(chan struct{})
	go func() {
		b.Publish(protocol.Cancel())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked instead of dropping the frame")
	}

	_ = sub // drain not required for this test; buffer fullness is what's under test
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(zap.NewNop())
	sub := b.Subscribe()
	b.Unsubscribe(sub)

	b.Publish(protocol.Cancel())

	select {
	case <-sub.C():
		t.Fatal("unsubscribed subscriber should not receive further commands")
	case <-time.After(50 * time.Millisecond):
	}
}
