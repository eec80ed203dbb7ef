package nodecache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/tabledelivery/control-core/internal/cache"
	"github.com/tabledelivery/control-core/internal/store"
)

func TestGetNodesErrorsWithoutRobotURL(t *testing.T) {
	st := store.New()
	kv := cache.New("not-a-valid-url", zap.NewNop())
	f := New(st, kv, zap.NewNop())

	_, err := f.GetNodes(context.Background())
	if err == nil {
		t.Fatal("expected an error when no robot url and no cache is known")
	}
}

func TestGetNodesReturnsInMemoryTier(t *testing.T) {
	st := store.New()
	st.SetCachedNodes([]string{"A1", "B2"})
	kv := cache.New("not-a-valid-url", zap.NewNop())
	f := New(st, kv, zap.NewNop())

	nodes, err := f.GetNodes(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 2 || nodes[0] != "A1" {
		t.Fatalf("unexpected nodes: %v", nodes)
	}
}

func TestGetNodesFetchesLiveAndWritesThrough(t *testing.T) {
	robot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"nodes":["A1","B2","C3"]}`))
	}))
	defer robot.Close()

	st := store.New()
	st.SetRobotURL(robot.URL)
	kv := cache.New("not-a-valid-url", zap.NewNop())
	f := New(st, kv, zap.NewNop())

	nodes, err := f.GetNodes(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %v", nodes)
	}
	if mem := st.CachedNodes(); mem == nil || len(mem) != 3 {
		t.Fatalf("expected the in-memory tier to be populated, got %v", mem)
	}
}

func TestGetNodesErrorsOnRobotFailure(t *testing.T) {
	robot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer robot.Close()

	st := store.New()
	st.SetRobotURL(robot.URL)
	kv := cache.New("not-a-valid-url", zap.NewNop())
	f := New(st, kv, zap.NewNop())

	if _, err := f.GetNodes(context.Background()); err == nil {
		t.Fatal("expected an error when the robot returns a non-200 status")
	}
}
