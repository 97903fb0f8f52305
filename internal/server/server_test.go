package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peermap/internal/config"
	"peermap/internal/crawler"
	"peermap/internal/logging"
	"peermap/internal/model"
	"peermap/internal/rpc"
	"peermap/internal/store"
)

type fakeCrawler struct {
	mu      sync.Mutex
	running bool
	starts  int
	log     []model.LogEntry
}

func (f *fakeCrawler) Start(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return "", crawler.ErrAlreadyRunning
	}
	f.running = true
	f.starts++
	return fmt.Sprintf("run-%d", f.starts), nil
}

func (f *fakeCrawler) Wait() {}

func (f *fakeCrawler) Status() model.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return model.StatusDiscovering
	}
	return model.StatusIdle
}

func (f *fakeCrawler) Snapshot() model.Snapshot {
	return model.Snapshot{
		RunID:  "run-1",
		Status: f.Status(),
		Nodes:  map[string]model.Node{"A": {ID: "A", Moniker: "acme-validator"}},
		Edges:  []model.Edge{},
		Stats:  model.Stats{TotalNodes: 1},
	}
}

func (f *fakeCrawler) Log() []model.LogEntry { return f.log }

func (f *fakeCrawler) Tail(n int) []model.LogEntry {
	if n > 0 && len(f.log) > n {
		return f.log[len(f.log)-n:]
	}
	return f.log
}

type fakeHistory struct {
	runs []store.Summary
	err  error
}

func (h fakeHistory) List() ([]store.Summary, error) { return h.runs, h.err }

type closeCounter struct{ n int }

func (c *closeCounter) Close() error {
	c.n++
	return errors.New("close failed")
}

func newTestServer(t *testing.T, c Crawler, opts ...Option) *Server {
	t.Helper()
	logger := logging.Component(logging.NewTestLogger(t), "server")
	opts = append([]Option{WithGatherer(prometheus.NewRegistry())}, opts...)
	return New(config.ServerConfig{Listen: "127.0.0.1:0"}, c, logger, opts...)
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHandleStart_ConflictWhileRunning(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeCrawler{})

	rec := do(t, s, http.MethodPost, "/api/start")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var started startResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, "started", started.Status)
	assert.Equal(t, "run-1", started.RunID)

	rec = do(t, s, http.MethodGet, "/api/start")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"status":"already_running"}`, rec.Body.String())
}

func TestHandleNetwork(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeCrawler{})
	rec := do(t, s, http.MethodGet, "/api/network")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Contains(t, snap.Nodes, "A")
	assert.Equal(t, 1, snap.Stats.TotalNodes)
}

func TestHandleStatus_TailsLog(t *testing.T) {
	t.Parallel()

	c := &fakeCrawler{}
	for i := 0; i < 30; i++ {
		c.log = append(c.log, model.LogEntry{Time: time.Unix(int64(i), 0), Message: fmt.Sprintf("line %d", i)})
	}
	s := newTestServer(t, c)

	rec := do(t, s, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var st statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Len(t, st.Log, statusLogTail)
	assert.Equal(t, "line 29", st.Log[statusLogTail-1].Message)

	rec = do(t, s, http.MethodGet, "/api/log")
	var full map[string][]model.LogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &full))
	assert.Len(t, full["log"], 30)
}

func TestHandleHistory(t *testing.T) {
	t.Parallel()

	disabled := newTestServer(t, &fakeCrawler{})
	assert.Equal(t, http.StatusNotFound, do(t, disabled, http.MethodGet, "/api/history").Code)

	enabled := newTestServer(t, &fakeCrawler{}, WithHistory(fakeHistory{runs: []store.Summary{{RunID: "r1"}}}))
	rec := do(t, enabled, http.MethodGet, "/api/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_id":"r1"`)

	failing := newTestServer(t, &fakeCrawler{}, WithHistory(fakeHistory{err: errors.New("disk")}))
	assert.Equal(t, http.StatusInternalServerError, do(t, failing, http.MethodGet, "/api/history").Code)
}

func TestIndexAndMetrics(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeCrawler{})
	rec := do(t, s, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "d3")

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/metrics").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodDelete, "/api/network").Code)
}

func TestShutdown_ClosesResources(t *testing.T) {
	t.Parallel()

	closer := &closeCounter{}
	s := newTestServer(t, &fakeCrawler{}, WithCloser(closer))
	err := s.Shutdown(context.Background())
	assert.Equal(t, 1, closer.n)
	assert.EqualError(t, err, "close failed")
	assert.Error(t, s.runCtx.Err())
}

// newNodeServer answers like a single Tendermint node whose only peer sits
// on a private address.
func newNodeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"node_info":{"id":"seed1","moniker":"acme-seed","version":"0.34.28"},"sync_info":{"latest_block_height":"42"}}}`))
	})
	mux.HandleFunc("/net_info", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"peers":[{"node_info":{"id":"p1","moniker":"inner"},"remote_ip":"10.1.2.3"}]}}`))
	})
	mux.HandleFunc("/abci_info", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"response":{"version":"1.4.4"}}}`))
	})
	s := httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func TestServer_EndToEndRun(t *testing.T) {
	t.Parallel()

	node := newNodeServer(t)
	logger := logging.NewTestLogger(t)
	reg := prometheus.NewRegistry()
	engine := crawler.New(rpc.NewClient(time.Second), crawler.Options{
		Seeds: []config.Seed{{URL: node.URL}},
		Sweep: true,
	}, logging.Component(logger, "crawler"), crawler.WithMetrics(crawler.NewMetrics(reg)))

	s := New(config.ServerConfig{}, engine, logging.Component(logger, "server"), WithGatherer(reg))

	rec := do(t, s, http.MethodPost, "/api/start")
	require.Equal(t, http.StatusAccepted, rec.Code)
	engine.Wait()

	rec = do(t, s, http.MethodGet, "/api/network")
	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, model.StatusComplete, snap.Status)
	require.Len(t, snap.Nodes, 1)
	seed := snap.Nodes["seed1"]
	assert.True(t, seed.RPCAccessible)
	assert.Equal(t, model.RoleSeed, seed.Role)
	require.NotNil(t, seed.Height)
	assert.Equal(t, int64(42), *seed.Height)
	assert.Empty(t, snap.Edges)

	metrics := do(t, s, http.MethodGet, "/metrics").Body.String()
	assert.True(t, strings.Contains(metrics, "peermap_nodes 1"), metrics)

	require.NoError(t, s.Shutdown(context.Background()))
}
