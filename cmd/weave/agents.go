package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/everydev1618/weave/registry"
)

func agentsCmd(args []string) {
	if len(args) == 0 {
		agentsUsage()
		os.Exit(1)
	}
	switch args[0] {
	case "list":
		agentsListCmd(args[1:])
	case "add":
		agentsAddCmd(args[1:])
	case "rm":
		agentsRemoveCmd(args[1:])
	case "help", "-h", "--help":
		agentsUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown agents subcommand: %s\n\n", args[0])
		agentsUsage()
		os.Exit(1)
	}
}

func agentsUsage() {
	fmt.Println(`Usage: weave agents <subcommand> [options]

Manage reusable agent definitions in the registry database. Defined agents
resolve in workflows alongside the builtins.

Subcommands:
  list              Show builtin and defined agents
  add <name>        Save or update an agent definition
  rm <name>         Delete an agent definition

Examples:
  weave agents add triage -prompt 'You classify bug reports by severity.'
  weave agents list
  weave agents rm triage`)
}

func agentsListCmd(args []string) {
	fs := flag.NewFlagSet("agents list", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (default "+DefaultConfigFile+")")
	dbPath := fs.String("db", "", "Registry database path (default ~/.weave/weave.db)")
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

	dir, err := buildDirectory(cfg, "", store)
	if err != nil {
		fatal(err)
	}
	for _, name := range dir.Names() {
		res := dir.Resolve(name)
		fmt.Printf("  %-16s %s\n", name, res.Kind)
	}
}

func agentsAddCmd(args []string) {
	fs := flag.NewFlagSet("agents add", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (default "+DefaultConfigFile+")")
	dbPath := fs.String("db", "", "Registry database path (default ~/.weave/weave.db)")
	desc := fs.String("desc", "", "One-line description")
	model := fs.String("model", "", "Model to request from the backend")
	prompt := fs.String("prompt", "", "System prompt for the agent")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	setupLogging(false)

	if fs.NArg() != 1 {
		fatal(fmt.Errorf("agents add takes exactly one name, got %d", fs.NArg()))
	}
	name := fs.Arg(0)

	cfg := loadConfigOrDie(*configPath)
	store, err := openStore(cfg, *dbPath)
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	def := registry.StepDef{
		Name:        name,
		Description: *desc,
		Model:       *model,
		Prompt:      *prompt,
		CreatedAt:   time.Now(),
	}
	if err := store.Save(context.Background(), def); err != nil {
		fatal(err)
	}
	fmt.Printf("saved agent %q\n", name)
}

func agentsRemoveCmd(args []string) {
	fs := flag.NewFlagSet("agents rm", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (default "+DefaultConfigFile+")")
	dbPath := fs.String("db", "", "Registry database path (default ~/.weave/weave.db)")
	yes := fs.Bool("yes", false, "Skip confirmation prompt")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	setupLogging(false)

	if fs.NArg() != 1 {
		fatal(fmt.Errorf("agents rm takes exactly one name, got %d", fs.NArg()))
	}
	name := fs.Arg(0)

	if !*yes {
		fmt.Printf("Delete agent %q? [y/N] ", name)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Scan()
		answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
		if answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}

	cfg := loadConfigOrDie(*configPath)
	store, err := openStore(cfg, *dbPath)
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	if err := store.Delete(context.Background(), name); err != nil {
		fatal(err)
	}
	fmt.Printf("deleted agent %q\n", name)
}
