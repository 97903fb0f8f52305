// Package crawler discovers network topology by breadth-first crawling of
// node peer lists.
//
// A run seeds the registry from the configured seed RPC addresses, then
// repeats level-synchronous iterations: every known node whose RPC address
// has not been queried yet gets one expansion task, tasks run on a bounded
// pool, and the next frontier is only computed once the whole batch has
// finished. The run completes on the first iteration with an empty frontier.
// An optional reachability sweep then queries every node not yet confirmed
// reachable.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"peermap/internal/addrutil"
	"peermap/internal/classify"
	"peermap/internal/config"
	"peermap/internal/model"
	"peermap/internal/rpc"
	"peermap/internal/topology"
)

// ErrAlreadyRunning is returned when a run is requested while another one
// is still discovering.
var ErrAlreadyRunning = errors.New("discovery already running")

const unknownValue = "unknown"

// Querier issues RPC queries against a node address. Any error means
// "no data now"; callers never retry.
type Querier interface {
	NetInfo(ctx context.Context, addr string) ([]rpc.Peer, error)
	Status(ctx context.Context, addr string) (rpc.Status, error)
	AppVersion(ctx context.Context, addr string) (string, error)
}

// Recorder receives the snapshot of every run that completes without
// being cancelled.
type Recorder interface {
	Record(snap model.Snapshot) error
}

// Options tune a discovery run.
type Options struct {
	Seeds         []config.Seed
	RPCPort       int
	P2PPort       int
	ExpandWorkers int
	SweepWorkers  int
	Sweep         bool
	LogSize       int
}

// OptionsFromConfig maps crawler config onto engine options.
func OptionsFromConfig(c config.CrawlerConfig) Options {
	return Options{
		Seeds:         c.Seeds,
		RPCPort:       c.RPCPort,
		P2PPort:       c.P2PPort,
		ExpandWorkers: c.ExpandWorkers,
		SweepWorkers:  c.SweepWorkers,
		Sweep:         c.SweepEnabled(),
		LogSize:       c.LogSize,
	}
}

func (o *Options) applyDefaults() {
	if o.RPCPort == 0 {
		o.RPCPort = config.DefaultRPCPort
	}
	if o.P2PPort == 0 {
		o.P2PPort = config.DefaultP2PPort
	}
	if o.ExpandWorkers < 1 {
		o.ExpandWorkers = config.DefaultExpandWorkers
	}
	if o.SweepWorkers < 1 {
		o.SweepWorkers = config.DefaultSweepWorkers
	}
	if o.LogSize < 1 {
		o.LogSize = config.DefaultLogSize
	}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithMetrics sets the prometheus collectors to update.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRecorder sets where completed snapshots are stored.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// Engine owns discovery runs. At most one run is discovering at a time.
type Engine struct {
	q        Querier
	opts     Options
	logger   *logrus.Entry
	clock    clock.Clock
	metrics  *Metrics
	recorder Recorder

	mu  sync.Mutex
	run *Run
	wg  sync.WaitGroup
}

// New creates an engine that queries nodes through q.
func New(q Querier, opts Options, logger *logrus.Entry, options ...Option) *Engine {
	opts.applyDefaults()
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	e := &Engine{
		q:      q,
		opts:   opts,
		logger: logger,
		clock:  clock.New(),
	}
	for _, o := range options {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	return e
}

// Start begins a new run in the background and returns its ID. The run
// stops early when ctx is cancelled.
func (e *Engine) Start(ctx context.Context) (string, error) {
	run, err := e.begin()
	if err != nil {
		return "", err
	}
	go func() {
		defer e.wg.Done()
		e.execute(ctx, run)
	}()
	return run.ID, nil
}

// Run performs a complete run and returns its final snapshot. When ctx is
// cancelled the partial snapshot is returned with ctx's error.
func (e *Engine) Run(ctx context.Context) (model.Snapshot, error) {
	run, err := e.begin()
	if err != nil {
		return model.Snapshot{}, err
	}
	defer e.wg.Done()
	e.execute(ctx, run)
	return run.Snapshot(), ctx.Err()
}

// Wait blocks until no run is in progress.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Status returns the state of the current run, or idle before the first.
func (e *Engine) Status() model.Status {
	if run := e.current(); run != nil {
		return run.Status()
	}
	return model.StatusIdle
}

// Snapshot returns the state of the current or most recent run.
func (e *Engine) Snapshot() model.Snapshot {
	if run := e.current(); run != nil {
		return run.Snapshot()
	}
	return emptySnapshot()
}

// Log returns the retained progress messages of the current run.
func (e *Engine) Log() []model.LogEntry {
	if run := e.current(); run != nil {
		return run.journal.Entries()
	}
	return []model.LogEntry{}
}

// Tail returns the newest n progress messages of the current run.
func (e *Engine) Tail(n int) []model.LogEntry {
	if run := e.current(); run != nil {
		return run.journal.Tail(n)
	}
	return []model.LogEntry{}
}

func (e *Engine) current() *Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run
}

func (e *Engine) begin() (*Run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.run != nil && e.run.Status() == model.StatusDiscovering {
		return nil, ErrAlreadyRunning
	}
	e.run = newRun(uuid.NewString(), e.opts.LogSize, e.clock.Now())
	e.wg.Add(1)
	return e.run, nil
}

func (e *Engine) execute(ctx context.Context, run *Run) {
	e.logf(run, "Starting peer discovery")

	e.seed(ctx, run)
	e.logf(run, "Found %d peers from seeds", run.nodes.Len())

	e.crawl(ctx, run)
	if e.opts.Sweep && ctx.Err() == nil {
		e.sweep(ctx, run)
	}

	run.finalize(e.clock.Now())
	e.updateGauges(run)

	snap := run.Snapshot()
	e.metrics.RunDuration.Observe(snap.FinishedAt.Sub(snap.StartedAt).Seconds())
	if err := ctx.Err(); err != nil {
		e.metrics.Runs.WithLabelValues("cancelled").Inc()
		e.logf(run, "Discovery cancelled: %v", err)
		return
	}
	e.metrics.Runs.WithLabelValues("complete").Inc()
	e.logf(run, "Discovery complete. %d nodes, %d connections", snap.Stats.TotalNodes, snap.Stats.TotalEdges)

	if e.recorder != nil {
		if err := e.recorder.Record(snap); err != nil {
			e.logger.WithError(err).WithField("run", run.ID).Warn("Recording snapshot failed")
		}
	}
}

// seed queries every configured seed and expands the ones that answer.
func (e *Engine) seed(ctx context.Context, run *Run) {
	var g errgroup.Group
	g.SetLimit(e.opts.ExpandWorkers)
	for _, s := range e.opts.Seeds {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			e.seedOne(ctx, run, s)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) seedOne(ctx context.Context, run *Run, s config.Seed) {
	addr := addrutil.NormalizeBaseURL(s.URL)
	label := s.Name
	if label == "" {
		label = addr
	}
	e.logf(run, "Querying seed: %s", label)

	st, err := e.status(ctx, addr)
	if err != nil {
		e.logf(run, "Seed %s did not answer: %v", label, err)
		return
	}

	moniker := firstNonEmpty(st.Moniker, s.Name, unknownValue)
	run.nodes.InsertIfAbsent(model.Node{
		ID:      st.ID,
		IP:      addrutil.HostFromURL(addr),
		Port:    e.opts.P2PPort,
		Moniker: moniker,
		Version: firstNonEmpty(st.Version, unknownValue),
		Role:    classify.Role(moniker),
		Org:     classify.Org(moniker),
		RPCURL:  addr,
	})

	u := topology.Update{Reachable: true, Height: st.Height}
	if v, err := e.appVersion(ctx, addr); err == nil {
		u.AppVersion = &v
	}
	run.nodes.MergeUpdate(st.ID, u)

	e.expand(ctx, run, st.ID, addr)
}

// crawl runs BFS iterations until the frontier is empty or ctx is done.
func (e *Engine) crawl(ctx context.Context, run *Run) {
	for iteration := 1; ctx.Err() == nil; iteration++ {
		frontier := e.frontier(run)
		if len(frontier) == 0 {
			e.logf(run, "Iteration %d: no new peers to query", iteration)
			return
		}
		e.logf(run, "Iteration %d: querying %d peers", iteration, len(frontier))

		var g errgroup.Group
		g.SetLimit(e.opts.ExpandWorkers)
		for _, n := range frontier {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				e.expand(ctx, run, n.ID, n.RPCURL)
				return nil
			})
		}
		_ = g.Wait()

		run.completeIteration()
		e.metrics.Iterations.Inc()
		e.updateGauges(run)
		e.logf(run, "Total peers: %d, edges: %d", run.nodes.Len(), run.edges.Len())
	}
}

// frontier returns one node per RPC address not yet visited.
func (e *Engine) frontier(run *Run) []model.Node {
	seen := make(map[string]struct{})
	return run.nodes.List(func(n model.Node) bool {
		if n.RPCURL == "" || run.visited.Contains(n.RPCURL) {
			return false
		}
		if _, dup := seen[n.RPCURL]; dup {
			return false
		}
		seen[n.RPCURL] = struct{}{}
		return true
	})
}

// expand queries the peer list at addr once per run and records the peers
// and connections it reports. It returns the number of new nodes.
func (e *Engine) expand(ctx context.Context, run *Run, sourceID, addr string) int {
	if !run.visited.MarkVisited(addr) {
		return 0
	}

	peers, err := e.netInfo(ctx, addr)
	if err != nil {
		e.logger.WithError(err).WithField("addr", addr).Debug("Peer list unavailable")
		return 0
	}

	added := 0
	for _, p := range peers {
		if p.ID == "" || !addrutil.Routable(p.RemoteIP) {
			continue
		}
		moniker := firstNonEmpty(p.Moniker, unknownValue)
		if run.nodes.InsertIfAbsent(model.Node{
			ID:      p.ID,
			IP:      p.RemoteIP,
			Port:    e.opts.P2PPort,
			Moniker: moniker,
			Version: firstNonEmpty(p.Version, unknownValue),
			Role:    classify.Role(moniker),
			Org:     classify.Org(moniker),
			RPCURL:  addrutil.RPCURL(p.RemoteIP, e.opts.RPCPort),
		}) {
			added++
		}
		run.edges.Add(sourceID, p.ID)
	}
	return added
}

// sweep confirms reachability of every node that has not answered a
// status query yet.
func (e *Engine) sweep(ctx context.Context, run *Run) {
	pending := run.nodes.Unreachable()
	e.logf(run, "Checking RPC accessibility of %d peers", len(pending))

	var g errgroup.Group
	g.SetLimit(e.opts.SweepWorkers)
	for _, n := range pending {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			e.probe(ctx, run, n)
			return nil
		})
	}
	_ = g.Wait()

	e.updateGauges(run)
	e.logf(run, "%d peers have accessible RPC", run.nodes.CountAccessible())
}

// probe marks n reachable when its RPC address answers a status query as
// n itself. Unlike a bare liveness check, an answer from a different node ID
// (a reused or shared IP) leaves n unreachable.
func (e *Engine) probe(ctx context.Context, run *Run, n model.Node) {
	st, err := e.status(ctx, n.RPCURL)
	if err != nil {
		return
	}
	if st.ID != n.ID {
		// Another node answers on this address; its reachability says
		// nothing about n.
		e.logger.WithFields(logrus.Fields{"addr": n.RPCURL, "want": n.ID, "got": st.ID}).Debug("Status identity mismatch")
		return
	}
	u := topology.Update{Reachable: true, Height: st.Height}
	if v, err := e.appVersion(ctx, n.RPCURL); err == nil {
		u.AppVersion = &v
	}
	run.nodes.MergeUpdate(n.ID, u)
}

func (e *Engine) netInfo(ctx context.Context, addr string) ([]rpc.Peer, error) {
	peers, err := e.q.NetInfo(ctx, addr)
	e.metrics.observeQuery(queryNetInfo, err)
	return peers, err
}

func (e *Engine) status(ctx context.Context, addr string) (rpc.Status, error) {
	st, err := e.q.Status(ctx, addr)
	e.metrics.observeQuery(queryStatus, err)
	if err == nil && st.ID == "" {
		err = rpc.ErrNoIdentity
	}
	return st, err
}

func (e *Engine) appVersion(ctx context.Context, addr string) (string, error) {
	v, err := e.q.AppVersion(ctx, addr)
	e.metrics.observeQuery(queryABCIInfo, err)
	return v, err
}

func (e *Engine) updateGauges(run *Run) {
	e.metrics.Nodes.Set(float64(run.nodes.Len()))
	e.metrics.Edges.Set(float64(run.edges.Len()))
	e.metrics.Accessible.Set(float64(run.nodes.CountAccessible()))
}

func (e *Engine) logf(run *Run, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	run.journal.Add(e.clock.Now(), msg)
	e.logger.WithField("run", shortID(run.ID)).Info(msg)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
