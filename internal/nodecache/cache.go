// Package nodecache implements the node cache fetcher (C9): a two-tier
// cache (opaque KV, then in-memory) in front of the robot's `/nodes`
// endpoint. It follows the copy-on-read discipline used throughout
// internal/store and reuses the shared outbound HTTP client convention the
// reference gateway applied to its robot adapters.
package nodecache

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tabledelivery/control-core/internal/apperr"
	"github.com/tabledelivery/control-core/internal/cache"
	"github.com/tabledelivery/control-core/internal/store"
)

// KVTTL is how long the node list lives in the KV tier before it must be
// refetched from the robot.
const KVTTL = 600 * time.Second

// KVKey is the fixed Redis key for the cached node list.
const KVKey = "robot:nodes"

// requestTimeout bounds the HTTP call to the robot's /nodes endpoint.
const requestTimeout = 10 * time.Second

type nodesResponse struct {
	Nodes []string `json:"nodes"`
}

// Fetcher resolves the node list, preferring cache over a live HTTP call.
type Fetcher struct {
	store  *store.Store
	kv     *cache.KV
	client *http.Client
	logger *zap.Logger
}

func New(st *store.Store, kv *cache.KV, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		store: st,
		kv:    kv,
		client: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
			},
		},
		logger: logger,
	}
}

// GetNodes returns the cached node list if present in either tier, else
// fetches from the robot, writing through both caches. It returns
// apperr.RobotUnavailable if the URL is unknown or the fetch fails.
func (f *Fetcher) GetNodes(ctx context.Context) ([]string, error) {
	var cached []string
	if err := f.kv.GetMsgpack(ctx, KVKey, &cached); err == nil && cached != nil {
		return cached, nil
	}

	if mem := f.store.CachedNodes(); mem != nil {
		return mem, nil
	}

	url := f.store.RobotURL()
	if url == "" {
		return nil, apperr.RobotUnavailable("robot url is not known")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/nodes", nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRobotUnavailable, "building nodes request", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRobotUnavailable, "fetching nodes", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.RobotUnavailable("robot returned non-200 for /nodes")
	}

	var decoded nodesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperr.Wrap(apperr.KindRobotUnavailable, "decoding nodes response", err)
	}

	f.store.SetCachedNodes(decoded.Nodes)
	if err := f.kv.SetMsgpack(ctx, KVKey, decoded.Nodes, KVTTL); err != nil && f.logger != nil {
		f.logger.Debug("nodecache: kv write-through failed", zap.Error(err))
	}

	return decoded.Nodes, nil
}
