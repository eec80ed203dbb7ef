package optimizer

import (
	"testing"
	"time"

	"github.com/tabledelivery/control-core/internal/store"
)

func TestOptimizeShortQueuesUnchanged(t *testing.T) {
	routes := []store.QueuedRoute{{ID: "1", Start: "a", Destination: "b", AddedAt: time.Unix(0, 0)}}
	out := Optimize(routes, DefaultCost)
	if len(out) != 1 || out[0].ID != "1" {
		t.Fatalf("single-route queue should be returned as-is, got %+v", out)
	}
}

func TestOptimizeGroupsMatchingEndpoints(t *testing.T) {
	base := time.Unix(0, 0)
	routes := []store.QueuedRoute{
		{ID: "1", Start: "a", Destination: "x", AddedAt: base},
		{ID: "2", Start: "y", Destination: "b", AddedAt: base.Add(time.Second)},
		{ID: "3", Start: "x", Destination: "c", AddedAt: base.Add(2 * time.Second)},
	}

	out := Optimize(routes, DefaultCost)

	if len(out) != 3 {
		t.Fatalf("expected 3 routes out, got %d", len(out))
	}
	// route 1 ends at "x", which route 3 starts at for free (cost 0); the
	// nearest-neighbor construction should place them adjacently.
	found := false
	for i := 0; i < len(out)-1; i++ {
		if out[i].ID == "1" && out[i+1].ID == "3" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected route 3 to directly follow route 1, got order %v", ids(out))
	}
}

func ids(routes []store.QueuedRoute) []string {
	out := make([]string, len(routes))
	for i, r := range routes {
		out[i] = r.ID
	}
	return out
}
