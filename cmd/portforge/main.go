// Command portforge resolves a port's dependency graph and builds it with a
// bounded, resource-aware pool of workers.
//
//	portforge [global flags] <command> [flags] [args]
//
// Commands:
//
//	build <port>     resolve and build a port and its dependencies
//	order <port>     print the build order
//	graph <port>     export the dependency graph as JSON or DOT
//	compact          rebuild the status file from the event log
//	status [port...] show the last known status of ports
//	version          print version information
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/kbukum/portforge/config"
	"github.com/kbukum/portforge/errors"
	"github.com/kbukum/portforge/logger"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// globalFlags override configuration for every command.
type globalFlags struct {
	configFile        string
	portsDir          string
	packageDB         string
	eventLog          string
	statusFile        string
	jobs              int
	logLevel          string
	dryRun            bool
	noUpgrade         bool
	includeTestDeps   bool
	skipInstalledRoot bool
}

func (g *globalFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&g.configFile, "config", "c", "", "config file (default: search ./portforge.yml, ./config, ~/.config/portforge, /etc/portforge)")
	fs.StringVar(&g.portsDir, "ports-dir", "", "port descriptor tree")
	fs.StringVar(&g.packageDB, "package-db", "", "installed package database")
	fs.StringVar(&g.eventLog, "event-log", "", "event log path")
	fs.StringVar(&g.statusFile, "status-file", "", "compacted status path")
	fs.IntVarP(&g.jobs, "jobs", "j", 0, "maximum concurrent builds")
	fs.StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.BoolVarP(&g.dryRun, "dry-run", "n", false, "record what would be built without building")
	fs.BoolVar(&g.noUpgrade, "no-upgrade", false, "fail instead of rebuilding installed ports that violate a constraint")
	fs.BoolVar(&g.includeTestDeps, "with-test-deps", false, "follow test dependencies")
	fs.BoolVar(&g.skipInstalledRoot, "skip-installed-root", false, "do not rebuild the requested port when already installed")
}

// apply copies flags the user set onto cfg.
func (g *globalFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	set := func(name string) bool { return fs.Changed(name) }
	if set("ports-dir") {
		cfg.Paths.PortsDir = g.portsDir
	}
	if set("package-db") {
		cfg.Paths.PackageDB = g.packageDB
	}
	if set("event-log") {
		cfg.Paths.EventLog = g.eventLog
	}
	if set("status-file") {
		cfg.Paths.StatusFile = g.statusFile
	}
	if set("jobs") {
		cfg.Scheduler.MaxConcurrency = g.jobs
	}
	if set("log-level") {
		cfg.Logging.Level = g.logLevel
	}
	if set("dry-run") {
		cfg.Scheduler.DryRun = g.dryRun
	}
	if set("no-upgrade") {
		cfg.Scheduler.NoUpgrade = g.noUpgrade
	}
	if set("with-test-deps") {
		cfg.Scheduler.IncludeTestDeps = g.includeTestDeps
	}
	if set("skip-installed-root") {
		cfg.Scheduler.SkipInstalledRoot = g.skipInstalledRoot
	}
}

// command is one subcommand.
type command struct {
	usage string
	short string
	flags func(fs *pflag.FlagSet)
	run   func(ctx context.Context, c *cli, args []string) error
	// raw commands need no configuration.
	raw bool
}

func commands() map[string]*command {
	return map[string]*command{
		"build":   buildCommand(),
		"order":   orderCommand(),
		"graph":   graphCommand(),
		"compact": compactCommand(),
		"status":  statusCommand(),
		"version": versionCommand(),
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := pflag.NewFlagSet("portforge", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.SetOutput(stderr)
	var g globalFlags
	g.register(global)
	global.Usage = func() { usage(stderr, global) }

	if err := global.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 2
	}
	if global.NArg() == 0 {
		usage(stderr, global)
		return 2
	}

	name := global.Arg(0)
	cmd, ok := commands()[name]
	if !ok {
		fmt.Fprintf(stderr, "portforge: unknown command %q\n", name)
		usage(stderr, global)
		return 2
	}

	fs := pflag.NewFlagSet("portforge "+name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	if cmd.flags != nil {
		cmd.flags(fs)
	}
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: portforge %s\n\n%s\n", cmd.usage, cmd.short)
		if fs.HasFlags() {
			fmt.Fprintf(stderr, "\nflags:\n%s", fs.FlagUsages())
		}
	}
	if err := fs.Parse(global.Args()[1:]); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 2
	}

	c := &cli{stdout: stdout, stderr: stderr}
	if !cmd.raw {
		cfg, err := loadConfig(&g, global)
		if err != nil {
			fmt.Fprintf(stderr, "portforge: %v\n", err)
			return 1
		}
		c.cfg = cfg
		logger.Init(&cfg.Logging)
		logger.RegisterDefaults(components...)
	}

	if err := cmd.run(ctx, c, fs.Args()); err != nil {
		fmt.Fprintf(stderr, "portforge %s: %v\n", name, err)
		return exitCode(err)
	}
	return 0
}

// components are the named loggers the packages look up.
var components = []string{
	"builder", "compactor", "dag", "engine", "eventlog", "metadata", "observability", "scheduler",
}

func loadConfig(g *globalFlags, fs *pflag.FlagSet) (*config.Config, error) {
	var opts []config.LoaderOption
	if g.configFile != "" {
		opts = append(opts, config.WithConfigFile(g.configFile))
	}
	cfg, err := config.Load("portforge", opts...)
	if err != nil {
		return nil, err
	}
	g.apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case errors.IsCode(err, errors.ErrCodeInvalidInput):
		return 2
	case errors.IsCode(err, errors.ErrCodeCycleDetected),
		errors.IsCode(err, errors.ErrCodeUnsatisfiedConstraint):
		return 3
	case errors.IsCode(err, errors.ErrCodeBuildFailed):
		return 4
	default:
		return 1
	}
}

func usage(w io.Writer, global *pflag.FlagSet) {
	fmt.Fprintln(w, "usage: portforge [global flags] <command> [flags] [args]")
	fmt.Fprintln(w, "\ncommands:")
	for _, name := range []string{"build", "order", "graph", "compact", "status", "version"} {
		cmd := commands()[name]
		fmt.Fprintf(w, "  %-28s %s\n", cmd.usage, cmd.short)
	}
	fmt.Fprintf(w, "\nglobal flags:\n%s", global.FlagUsages())
}
