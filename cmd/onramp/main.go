// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	_ "modernc.org/sqlite"

	"onramp/pkg/api"
	"onramp/pkg/assignment"
	"onramp/pkg/audit"
	"onramp/pkg/config"
	"onramp/pkg/coordinator"
	"onramp/pkg/core"
	"onramp/pkg/mcpserver"
	"onramp/pkg/protocol"
	"onramp/pkg/provision"
	"onramp/pkg/resilience"
	"onramp/pkg/telemetry"
	"onramp/pkg/tracker"
)

const version = "dev"

type globalFlags struct {
	ConfigPath string
	Profile    string
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	cfg, err := config.LoadWithProfile(global.ConfigPath, global.Profile)
	if err != nil {
		fatal(err)
	}
	telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	switch args[0] {
	case "submit":
		runSubmit(ctx, global, cfg, args[1:])
	case "status":
		runStatus(ctx, global, cfg, args[1:])
	case "protocols":
		runProtocols(ctx, global, cfg, args[1:])
	case "serve":
		runServe(ctx, cfg)
	case "mcp":
		runMCP(cfg)
	case "version":
		fmt.Println(version)
	case "help":
		printUsage()
	default:
		fatal(fmt.Errorf("unknown command %q", args[0]))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{
		ConfigPath: getenv("ONRAMP_CONFIG", ""),
		Profile:    getenv("ONRAMP_PROFILE", ""),
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --config")
			}
			flags.ConfigPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			flags.ConfigPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--profile":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --profile")
			}
			flags.Profile = args[i+1]
			i++
		case strings.HasPrefix(arg, "--profile="):
			flags.Profile = strings.TrimPrefix(arg, "--profile=")
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

// buildCoordinator wires the stores, checker and workers declared in the
// configuration into a ready coordinator. The returned cleanup closes
// the database when a sqlite backend is in use.
func buildCoordinator(ctx context.Context, cfg *config.Config) (*coordinator.Coordinator, protocol.Store, func(), error) {
	cleanup := func() {}

	var (
		protocols protocol.Store
		missions  tracker.Tracker
		events    audit.Store
	)
	switch cfg.Store.Backend {
	case "", "memory":
		protocols = protocol.NewMemoryStore()
		missions = tracker.NewMemoryTracker()
		events = audit.NewMemoryStore()
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.Store.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open store: %w", err)
		}
		store, err := protocol.NewSQLiteStore(db)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		trk, err := tracker.NewSQLiteTracker(db)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		auditStore, err := audit.NewSQLiteStore(db)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		protocols = store
		missions = trk
		events = auditStore
		cleanup = func() { db.Close() }
	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if cfg.Protocols.SeedPath != "" {
		seeds, err := protocol.LoadFile(cfg.Protocols.SeedPath)
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("load protocol seeds: %w", err)
		}
		if err := protocol.Seed(ctx, protocols, seeds); err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("seed protocols: %w", err)
		}
	}

	rosters := map[string][]assignment.RosterEntry{}
	if cfg.Rosters.Path != "" {
		loaded, err := assignment.LoadRosters(cfg.Rosters.Path)
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("load rosters: %w", err)
		}
		rosters = loaded
	}
	checker := assignment.NewRosterChecker(rosters)

	retry := resilience.DefaultRetryConfig()
	if cfg.Worker.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.Worker.MaxAttempts
	}
	if cfg.Worker.InitialDelay > 0 {
		retry.InitialDelay = cfg.Worker.InitialDelay
	}
	if cfg.Worker.MaxDelay > 0 {
		retry.MaxDelay = cfg.Worker.MaxDelay
	}

	registry := provision.NewRegistry()
	registry.Register(core.StepKindAssignmentCheck, provision.NewAssignmentWorker(checker))
	registry.Register(core.StepKindChatProvision,
		provision.NewChatWorker(provision.SimulatedChatTransport{}, cfg.Chat.ServiceAccount))
	worker := provision.NewRetryingWorker(registry, retry, cfg.Worker.Timeout)

	metrics, err := telemetry.NewMissionMetrics()
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	coord := coordinator.New(protocols, checker, worker, missions,
		coordinator.WithMetrics(metrics),
		coordinator.WithEventEmitter(audit.NewEmitter(events)))
	return coord, protocols, cleanup, nil
}

func runSubmit(ctx context.Context, global globalFlags, cfg *config.Config, args []string) {
	if len(args) != 2 {
		fatal(fmt.Errorf("usage: onramp submit <employee-email> <project-id>"))
	}
	coord, _, cleanup, err := buildCoordinator(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	m, err := coord.Submit(ctx, args[0], args[1])
	if err != nil {
		fatal(err)
	}
	printMission(global, m)
	if m.Mode != core.ModeCompleted {
		os.Exit(1)
	}
}

func runStatus(ctx context.Context, global globalFlags, cfg *config.Config, args []string) {
	if len(args) != 1 {
		fatal(fmt.Errorf("usage: onramp status <mission-id>"))
	}
	coord, _, cleanup, err := buildCoordinator(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	m, err := coord.Status(ctx, args[0])
	if err != nil {
		fatal(err)
	}
	printMission(global, m)
}

func runProtocols(ctx context.Context, global globalFlags, cfg *config.Config, args []string) {
	if len(args) < 2 {
		fatal(fmt.Errorf("usage: onramp protocols get|create <project-id> [steps-file]"))
	}
	_, protocols, cleanup, err := buildCoordinator(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	var p core.Protocol
	switch args[0] {
	case "get":
		p, err = protocols.Get(ctx, args[1])
	case "create":
		steps := protocol.DefaultSteps()
		if len(args) > 2 {
			steps, err = stepsFromSeedFile(args[2], args[1])
			if err != nil {
				fatal(err)
			}
		}
		p, err = protocols.Create(ctx, args[1], steps)
	default:
		fatal(fmt.Errorf("usage: onramp protocols get|create <project-id> [steps-file]"))
	}
	if err != nil {
		fatal(err)
	}
	printProtocol(global, p)
}

// stepsFromSeedFile pulls one project's step list out of a seed file.
func stepsFromSeedFile(path, projectID string) ([]core.StepSpec, error) {
	seeds, err := protocol.LoadFile(path)
	if err != nil {
		return nil, err
	}
	for _, seed := range seeds {
		if seed.ProjectID == projectID {
			return seed.Steps, nil
		}
	}
	return nil, fmt.Errorf("no protocol for %s in %s", projectID, path)
}

func printProtocol(global globalFlags, p core.Protocol) {
	if global.JSON || !stdoutIsTTY() {
		printJSON(p)
		return
	}
	fmt.Printf("Protocol %s v%d (%d steps)\n", p.ProjectID, p.Version, len(p.Steps))
	w := newTabWriter()
	writeRow(w, "#", "KIND", "TARGET", "FATAL")
	for i, step := range p.Steps {
		writeRow(w, fmt.Sprintf("%d", i), step.Kind, step.TargetSystem, fmt.Sprintf("%t", step.FatalOnFailure))
	}
	w.Flush()
}

func runServe(ctx context.Context, cfg *config.Config) {
	shutdown, err := telemetry.InitWithConfig("onramp", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		fatal(err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	coord, protocols, cleanup, err := buildCoordinator(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	mux := http.NewServeMux()
	mux.Handle("/", api.New(coord, protocols))

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("onramp listening on %s\n", cfg.HTTP.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal(err)
	}
}

func runMCP(cfg *config.Config) {
	coord, protocols, cleanup, err := buildCoordinator(context.Background(), cfg)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	srv := mcpserver.NewServer("onramp", version, coord, protocols)
	if err := srv.ServeStdio(); err != nil {
		fatal(err)
	}
}

func printMission(global globalFlags, m core.Mission) {
	if global.JSON || !stdoutIsTTY() {
		printJSON(m)
		return
	}
	fmt.Printf("Mission %s: %s\n", m.ID, m.Mode)
	if m.Reason != "" {
		fmt.Printf("Reason: %s\n", m.Reason)
	}
	if m.Verdict != nil {
		fmt.Printf("Verdict: authorized=%t role=%s\n", m.Verdict.Authorized, m.Verdict.Role)
	}
	if len(m.StepResults) > 0 {
		w := newTabWriter()
		writeRow(w, "#", "STATUS", "DETAIL")
		for _, res := range m.StepResults {
			writeRow(w, fmt.Sprintf("%d", res.StepIndex), string(res.Status), res.Detail)
		}
		w.Flush()
	}
}

func stdoutIsTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

func printJSON(value any) {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(payload))
}

func newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
}

func writeRow(writer *tabwriter.Writer, cols ...string) {
	for i, col := range cols {
		col = strings.TrimSpace(col)
		if col == "" {
			col = "-"
		}
		cols[i] = col
	}
	fmt.Fprintln(writer, strings.Join(cols, "\t"))
}

func printUsage() {
	fmt.Println(`onramp - employee onboarding coordinator

Usage:
  onramp [global flags] <command> [args]

Global flags:
  --config <path>      Path to config.yaml
  --profile <name>     Overlay config.<name>.yaml from the config directory
  --json               JSON output

Commands:
  submit <employee-email> <project-id>
  status <mission-id>
  protocols get <project-id>
  protocols create <project-id> [steps-file]
  serve
  mcp
  version`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
