// Package main provides the weave CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/everydev1618/weave"
	"github.com/everydev1618/weave/directory"
	"github.com/everydev1618/weave/dsl"
	"github.com/everydev1618/weave/registry"
	"github.com/everydev1618/weave/render"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "run":
		runCmd(args)
	case "validate":
		validateCmd(args)
	case "history":
		historyCmd(args)
	case "agents":
		agentsCmd(args)
	case "version":
		fmt.Printf("weave %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Weave - workflow language and execution engine

Usage:
  weave <command> [options]

Commands:
  run       Compile and execute a workflow
  validate  Compile a workflow and run the static checks only
  history   Show recent runs from the registry database
  agents    Manage reusable agent definitions
  version   Print version information
  help      Show this help message

Examples:
  weave run 'plan -> [code || docs] -> @review (if approved)~> ship'
  weave run -f release.weave --yes --on-failure retry
  weave validate 'analyzer:"find bugs":found -> fixer:"fix {found}"'

Run 'weave <command> --help' for more information on a command.`)
}

func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// workflowText resolves the workflow source: -f file wins, otherwise the
// positional arguments are joined as inline syntax.
func workflowText(fs *flag.FlagSet, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read workflow: %w", err)
		}
		return string(data), nil
	}
	if fs.NArg() == 0 {
		return "", errors.New("no workflow given: pass syntax as an argument or use -f")
	}
	return strings.Join(fs.Args(), " "), nil
}

// buildDirectory assembles the agent directory from builtins, the agents
// file and the registry store.
func buildDirectory(cfg *Config, agentsFile string, store registry.Store) (*directory.Directory, error) {
	dir := directory.New()
	if agentsFile == "" {
		agentsFile = cfg.AgentsFile
	}
	if agentsFile != "" {
		if err := dir.LoadFile(agentsFile); err != nil {
			return nil, err
		}
	}
	defs, err := store.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	for _, def := range defs {
		dir.Define(directory.Definition{
			Name:        def.Name,
			Description: def.Description,
			Model:       def.Model,
			Prompt:      def.Prompt,
		})
	}
	return dir, nil
}

// applyModels copies per-agent model selections from the directory onto
// the compiled nodes so the backend sees them.
func applyModels(graph *weave.Graph, dir *directory.Directory) {
	for _, n := range graph.Nodes {
		if n.Model != "" {
			continue
		}
		if def, ok := dir.Definition(n.StepName); ok {
			n.Model = def.Model
		}
	}
}

func openStore(cfg *Config, path string) (registry.Store, error) {
	if path == "" {
		path = cfg.Registry
	}
	if path == "" {
		if err := EnsureHome(); err != nil {
			return nil, fmt.Errorf("create %s: %w", Home(), err)
		}
		path = DefaultDBPath()
	}
	return registry.NewSQLiteStore(path)
}

func failurePolicy(cfg *Config, action string, retries int) (weave.FailurePolicy, error) {
	if action == "" {
		action = cfg.OnFailure.Action
	}
	if retries == 0 {
		retries = cfg.OnFailure.MaxRetries
	}
	switch action {
	case "", "ask":
		return weave.FailurePolicy{Action: weave.FailAsk}, nil
	case "retry":
		if retries <= 0 {
			retries = 2
		}
		return weave.FailurePolicy{Action: weave.FailRetry, MaxRetries: retries}, nil
	case "skip":
		return weave.FailurePolicy{Action: weave.FailSkip}, nil
	case "abort":
		return weave.FailurePolicy{Action: weave.FailAbort}, nil
	default:
		return weave.FailurePolicy{}, fmt.Errorf("unknown failure action %q", action)
	}
}

func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	file := fs.String("f", "", "Read workflow syntax from a file")
	configPath := fs.String("config", "", "Config file (default "+DefaultConfigFile+")")
	agentsFile := fs.String("agents", "", "Agent definitions YAML file")
	dbPath := fs.String("db", "", "Registry database path (default ~/.weave/weave.db)")
	concurrency := fs.Int("concurrency", 0, "Parallel step ceiling")
	timeout := fs.Duration("timeout", 0, "Per-step deadline")
	onFailure := fs.String("on-failure", "", "Unattended failure action: ask, retry, skip, abort")
	retries := fs.Int("retries", 0, "Max retries for --on-failure retry")
	unattended := fs.Bool("yes", false, "Unattended: auto-release checkpoints, never prompt")
	dryRun := fs.Bool("dry-run", false, "Echo backend: every step succeeds without running anything")
	verbose := fs.Bool("verbose", false, "Debug logging")

	fs.Usage = func() {
		fmt.Println(`Usage: weave run [options] <workflow syntax>

Compile a workflow and execute it. Without --yes, checkpoints and failures
open an interactive steering menu.

Options:`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	setupLogging(*verbose)

	cfg := loadConfigOrDie(*configPath)
	text, err := workflowText(fs, *file)
	if err != nil {
		fatal(err)
	}

	store, err := openStore(cfg, *dbPath)
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	dir, err := buildDirectory(cfg, *agentsFile, store)
	if err != nil {
		fatal(err)
	}

	graph, err := dsl.Compile(text, dir)
	if err != nil {
		fatal(err)
	}
	applyModels(graph, dir)

	var backend weave.Backend
	switch {
	case *dryRun:
		backend = &EchoBackend{}
	case cfg.Backend.Command != "":
		backend = &CommandBackend{Command: cfg.Backend.Command}
	default:
		backend = &EchoBackend{}
		fmt.Fprintln(os.Stderr, "no backend.command configured, using dry-run backend")
	}

	policy, err := failurePolicy(cfg, *onFailure, *retries)
	if err != nil {
		fatal(err)
	}
	if *unattended && policy.Action == weave.FailAsk {
		// Unattended runs cannot ask; first failure ends the run.
		policy = weave.FailurePolicy{Action: weave.FailAbort}
	}

	opts := []weave.EngineOption{
		weave.WithFailurePolicy(policy),
		weave.WithRenderer(render.NewConsole(os.Stdout)),
	}
	if n := pick(*concurrency, cfg.Concurrency); n > 0 {
		opts = append(opts, weave.WithConcurrency(n))
	}
	if d := pickDuration(*timeout, time.Duration(cfg.NodeTimeout)); d > 0 {
		opts = append(opts, weave.WithNodeTimeout(d))
	}
	if !*unattended {
		steering := weave.NewSteering(NewTUIPrompter(),
			weave.WithRecompiler(func(text string) (*weave.Graph, error) {
				return dsl.Compile(text, dir)
			}),
			weave.WithTemporaryRegistrar(dir.AddTemporary),
		)
		opts = append(opts, weave.WithHandler(steering))
	}

	eng := weave.NewEngine(graph, backend, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	runErr := eng.Run(ctx)
	elapsed := time.Since(start)

	view := eng.State().View()
	fmt.Print(render.Summary(view, elapsed))

	recordRun(store, eng.State(), text, runErr, elapsed)

	if runErr != nil {
		fatal(runErr)
	}
}

func recordRun(store registry.Store, state *weave.ExecutionState, text string, runErr error, elapsed time.Duration) {
	counts := state.StatusCounts()
	status := "completed"
	if runErr != nil {
		status = "failed"
	}
	rec := registry.RunRecord{
		RunID:     state.RunID,
		Workflow:  strings.TrimSpace(text),
		Status:    status,
		Completed: counts[weave.StatusCompleted],
		Failed:    counts[weave.StatusFailed],
		Skipped:   counts[weave.StatusSkipped],
		StartedAt: state.StartedAt,
		Duration:  elapsed,
	}
	if err := store.RecordRun(context.Background(), rec); err != nil {
		slog.Warn("record run", "error", err)
	}
}

func validateCmd(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	file := fs.String("f", "", "Read workflow syntax from a file")
	configPath := fs.String("config", "", "Config file (default "+DefaultConfigFile+")")
	agentsFile := fs.String("agents", "", "Agent definitions YAML file")
	dbPath := fs.String("db", "", "Registry database path (default ~/.weave/weave.db)")

	fs.Usage = func() {
		fmt.Println(`Usage: weave validate [options] <workflow syntax>

Compile a workflow and run the static checks without executing anything.

Options:`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	setupLogging(false)

	cfg := loadConfigOrDie(*configPath)
	text, err := workflowText(fs, *file)
	if err != nil {
		fatal(err)
	}

	store, err := openStore(cfg, *dbPath)
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	dir, err := buildDirectory(cfg, *agentsFile, store)
	if err != nil {
		fatal(err)
	}

	graph, err := dsl.Compile(text, dir)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("ok: %d nodes, %d edges\n", len(graph.Nodes), len(graph.Edges))
}

func historyCmd(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (default "+DefaultConfigFile+")")
	dbPath := fs.String("db", "", "Registry database path (default ~/.weave/weave.db)")
	limit := fs.Int("n", 10, "How many runs to show")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	setupLogging(false)

	cfg := loadConfigOrDie(*configPath)
	store, err := openStore(cfg, *dbPath)
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	recs, err := store.RecentRuns(context.Background(), *limit)
	if err != nil {
		fatal(err)
	}
	if len(recs) == 0 {
		fmt.Println("no runs recorded")
		return
	}
	for _, rec := range recs {
		fmt.Printf("%s  %-9s  %3d ok %3d failed %3d skipped  %8s  %s\n",
			rec.StartedAt.Format("2006-01-02 15:04"),
			rec.Status, rec.Completed, rec.Failed, rec.Skipped,
			rec.Duration.Round(time.Millisecond), truncateText(rec.Workflow, 60))
	}
}

func loadConfigOrDie(path string) *Config {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	cfg, err := LoadConfig(path, explicit)
	if err != nil {
		fatal(err)
	}
	return cfg
}

func pick(flagVal, cfgVal int) int {
	if flagVal > 0 {
		return flagVal
	}
	return cfgVal
}

func pickDuration(flagVal, cfgVal time.Duration) time.Duration {
	if flagVal > 0 {
		return flagVal
	}
	return cfgVal
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
