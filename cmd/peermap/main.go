package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"peermap/internal/addrutil"
	"peermap/internal/config"
	"peermap/internal/crawler"
	"peermap/internal/logging"
	"peermap/internal/report"
	"peermap/internal/rpc"
	"peermap/internal/server"
	"peermap/internal/store"
	"peermap/internal/stunutil"
)

const usage = `peermap - Tendermint network topology crawler

Usage:
  peermap init --config <path> --seeds <url,...>
  peermap crawl --config <path> [--seeds <url,...>] [--out network.json] [--no-sweep]
  peermap serve --config <path> [--listen :8080] [--start]
  peermap report --in network.json|nodes.csv [--limit 10]
  peermap export csv --in network.json --out nodes.csv
  peermap history --config <path> [--latest-out <file>]
  peermap doctor --config <path>
`

var defaultSTUNServers = []string{"stun.l.google.com:19302", "stun1.l.google.com:19302"}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "-h", "--help", "help":
		fmt.Print(usage)
	case "init":
		handleInit(os.Args[2:])
	case "crawl":
		handleCrawl(os.Args[2:])
	case "serve":
		handleServe(os.Args[2:])
	case "report":
		handleReport(os.Args[2:])
	case "export":
		handleExport(os.Args[2:])
	case "history":
		handleHistory(os.Args[2:])
	case "doctor":
		handleDoctor(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func handleInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	seedList := fs.String("seeds", "", "comma-separated seed RPC URLs")
	dataDir := fs.String("data-dir", "", "data directory for run history")
	_ = fs.Parse(args)

	if *configPath == "" {
		fatal(errors.New("--config is required"))
	}

	cfg := config.Config{
		Crawler: &config.CrawlerConfig{Seeds: seedsFromList(*seedList)},
		Server:  &config.ServerConfig{DataDir: *dataDir, History: *dataDir != ""},
	}
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}
	if err := config.Save(*configPath, cfg); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", *configPath)
}

func handleCrawl(args []string) {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	seedList := fs.String("seeds", "", "comma-separated seed RPC URLs (overrides config)")
	out := fs.String("out", "network.json", "export path (.json, .yaml or .yml)")
	noSweep := fs.Bool("no-sweep", false, "skip the reachability sweep")
	limit := fs.Int("limit", report.DefaultPeerLimit, "persistent peers to print")
	logLevel := fs.String("log-level", "", "log level override")
	_ = fs.Parse(args)

	cfg := crawlerConfig(*configPath, *seedList, *logLevel)
	if *noSweep {
		off := false
		cfg.Crawler.Sweep = &off
	}
	fatal(runCrawl(cfg, *out, *limit))
}

// runCrawl returns instead of exiting so the history database is closed on
// every path.
func runCrawl(cfg config.Config, out string, limit int) (err error) {
	logger := logging.New(cfg.LogLevel, os.Stderr)
	var opts []crawler.Option
	if cfg.Server != nil && cfg.Server.HistoryPath() != "" {
		history, openErr := store.OpenHistory(cfg.Server.HistoryPath(), logging.Component(logger, "store"))
		if openErr != nil {
			return openErr
		}
		defer func() { err = multierr.Append(err, history.Close()) }()
		opts = append(opts, crawler.WithRecorder(history))
	}

	engine := crawler.New(rpc.NewClient(cfg.Crawler.Timeout()), crawler.OptionsFromConfig(*cfg.Crawler),
		logging.Component(logger, "crawler"), opts...)

	ctx, cancel := signalContext()
	defer cancel()

	snap, runErr := engine.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if runErr != nil {
		logger.Warn("Discovery interrupted, reporting partial results")
	}

	if err := report.WriteText(os.Stdout, snap.Nodes, snap.Edges, limit); err != nil {
		return err
	}

	exp := store.FromSnapshot(snap)
	if err := store.SaveExport(out, &exp); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\nNetwork data saved to: %s\n", out)
	return nil
}

func handleServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	seedList := fs.String("seeds", "", "comma-separated seed RPC URLs (overrides config)")
	listen := fs.String("listen", "", "listen address")
	start := fs.Bool("start", false, "start a discovery run immediately")
	logLevel := fs.String("log-level", "", "log level override")
	_ = fs.Parse(args)

	cfg := crawlerConfig(*configPath, *seedList, *logLevel)
	if cfg.Server == nil {
		cfg.Server = &config.ServerConfig{}
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	config.ApplyDefaults(&cfg)

	logger := logging.New(cfg.LogLevel, os.Stderr)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engineOpts := []crawler.Option{crawler.WithMetrics(crawler.NewMetrics(reg))}
	serverOpts := []server.Option{server.WithGatherer(reg)}
	if path := cfg.Server.HistoryPath(); path != "" {
		history, err := store.OpenHistory(path, logging.Component(logger, "store"))
		if err != nil {
			fatal(err)
		}
		engineOpts = append(engineOpts, crawler.WithRecorder(history))
		serverOpts = append(serverOpts, server.WithHistory(history), server.WithCloser(history))
	}

	engine := crawler.New(rpc.NewClient(cfg.Crawler.Timeout()), crawler.OptionsFromConfig(*cfg.Crawler),
		logging.Component(logger, "crawler"), engineOpts...)
	srv := server.New(*cfg.Server, engine, logging.Component(logger, "server"), serverOpts...)

	ctx, cancel := signalContext()
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	if *start {
		if _, err := engine.Start(ctx); err != nil {
			logger.WithError(err).Warn("Initial discovery not started")
		}
	}

	select {
	case err := <-errCh:
		fatal(err)
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown")
	}
}

func handleReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	in := fs.String("in", "network.json", "export (.json, .yaml, .yml) or node table (.csv) to read")
	limit := fs.Int("limit", report.DefaultPeerLimit, "persistent peers to print")
	_ = fs.Parse(args)

	exp, err := loadReport(*in)
	if err != nil {
		fatal(err)
	}
	if err := report.WriteText(os.Stdout, exp.Nodes, exp.Edges, *limit); err != nil {
		fatal(err)
	}
	if !exp.ExportedAt.IsZero() {
		fmt.Fprintf(os.Stdout, "\nexported_at=%s\n", exp.ExportedAt.Format(time.RFC3339))
	}
}

// loadReport reads an export, or a node table when path ends in .csv. Node
// tables carry no connections.
func loadReport(path string) (*store.Export, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		nodes, err := report.ReadCSV(path)
		if err != nil {
			return nil, err
		}
		return &store.Export{Nodes: nodes}, nil
	}
	return store.LoadExport(path)
}

func handleExport(args []string) {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, "export subcommand required\n")
		os.Exit(2)
	}
	if args[0] != "csv" {
		fmt.Fprintf(os.Stderr, "unknown export format %q\n", args[0])
		os.Exit(2)
	}

	fs := flag.NewFlagSet("export csv", flag.ExitOnError)
	in := fs.String("in", "network.json", "export to read")
	out := fs.String("out", "", "output file")
	_ = fs.Parse(args[1:])

	if *out == "" {
		fatal(errors.New("--out is required"))
	}

	exp, err := store.LoadExport(*in)
	if err != nil {
		fatal(err)
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		fatal(err)
	}
	file, err := os.Create(*out)
	if err != nil {
		fatal(err)
	}
	if err := report.WriteCSV(file, exp.Nodes); err != nil {
		file.Close()
		fatal(err)
	}
	fatal(file.Close())
	fmt.Fprintf(os.Stdout, "exported %s\n", *out)
}

func handleHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	dataDir := fs.String("data-dir", "", "data directory override")
	latestOut := fs.String("latest-out", "", "write the latest run as an export")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	if cfg.Server == nil {
		cfg.Server = &config.ServerConfig{}
	}
	if *dataDir != "" {
		cfg.Server.DataDir = *dataDir
		cfg.Server.History = true
	}
	path := cfg.Server.HistoryPath()
	if path == "" {
		fatal(errors.New("history disabled: set server.history and server.data_dir"))
	}

	fatal(listHistory(cfg, path, *latestOut))
}

func listHistory(cfg config.Config, path, latestOut string) (err error) {
	logger := logging.New(cfg.LogLevel, os.Stderr)
	history, err := store.OpenHistory(path, logging.Component(logger, "store"))
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, history.Close()) }()

	runs, err := history.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stdout, "no runs")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-36s  %-20s  %-8s  %-8s  %-8s  %-10s\n", "RUN_ID", "FINISHED", "NODES", "EDGES", "RPC", "ITERATIONS")
	for _, r := range runs {
		fmt.Fprintf(os.Stdout, "%-36s  %-20s  %-8d  %-8d  %-8d  %-10d\n", r.RunID, r.FinishedAt.UTC().Format(time.RFC3339),
			r.Stats.TotalNodes, r.Stats.TotalEdges, r.Stats.AccessibleRPC, r.Stats.Iterations)
	}

	if latestOut == "" {
		return nil
	}
	snap, err := history.Latest()
	if err != nil {
		return err
	}
	exp := store.FromSnapshot(snap)
	exp.ExportedAt = snap.FinishedAt
	if err := store.SaveExport(latestOut, &exp); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "exported %s\n", latestOut)
	return nil
}

func handleDoctor(args []string) {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	seedList := fs.String("seeds", "", "comma-separated seed RPC URLs (overrides config)")
	stunList := fs.String("stun", "", "comma-separated STUN servers")
	_ = fs.Parse(args)

	cfg := crawlerConfig(*configPath, *seedList, "")
	servers := cfg.STUNServers
	if *stunList != "" {
		servers = splitList(*stunList)
	}
	if len(servers) == 0 {
		servers = defaultSTUNServers
	}

	ctx, cancel := signalContext()
	defer cancel()

	egress, err := stunutil.Probe(ctx, servers, cfg.Crawler.Timeout())
	if err != nil {
		fmt.Fprintf(os.Stdout, "egress error: %v\n", err)
	} else {
		fmt.Fprintf(os.Stdout, "egress_ip=%s mapped=%s mapping=%s servers=%d/%d\n",
			egress.IP, egress.Addr, egress.Mapping, egress.Answered, len(servers))
	}

	client := rpc.NewClient(cfg.Crawler.Timeout())
	fmt.Fprintf(os.Stdout, "%-40s  %-12s  %-24s  %-12s  %s\n", "SEED", "STATUS", "MONIKER", "HEIGHT", "APP_VERSION")
	for _, seed := range cfg.Crawler.Seeds {
		addr := addrutil.NormalizeBaseURL(seed.URL)
		st, err := client.Status(ctx, addr)
		if err != nil {
			fmt.Fprintf(os.Stdout, "%-40s  %-12s  %v\n", addr, "unreachable", err)
			continue
		}
		height := "N/A"
		if st.Height != nil {
			height = fmt.Sprint(*st.Height)
		}
		app, err := client.AppVersion(ctx, addr)
		if err != nil {
			app = "N/A"
		}
		fmt.Fprintf(os.Stdout, "%-40s  %-12s  %-24s  %-12s  %s\n", addr, "ok", st.Moniker, height, app)
	}
}

// crawlerConfig loads the config at path, applies CLI overrides and exits
// when no usable crawler section remains.
func crawlerConfig(path, seedList, logLevel string) config.Config {
	cfg, err := loadConfig(path)
	if err != nil {
		fatal(err)
	}
	if cfg.Crawler == nil {
		cfg.Crawler = &config.CrawlerConfig{}
	}
	if seedList != "" {
		cfg.Crawler.Seeds = seedsFromList(seedList)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}
	return cfg
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Config{}, nil
	}
	return config.Load(path)
}

func seedsFromList(value string) []config.Seed {
	urls := splitList(value)
	seeds := make([]config.Seed, 0, len(urls))
	for _, u := range urls {
		seeds = append(seeds, config.Seed{URL: u})
	}
	return seeds
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()
	return ctx, cancel
}

func fatal(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
