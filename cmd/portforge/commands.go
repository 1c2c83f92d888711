package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/kbukum/portforge/bootstrap"
	"github.com/kbukum/portforge/builder"
	"github.com/kbukum/portforge/config"
	"github.com/kbukum/portforge/dag"
	"github.com/kbukum/portforge/engine"
	"github.com/kbukum/portforge/errors"
	"github.com/kbukum/portforge/eventlog"
	"github.com/kbukum/portforge/installed"
	"github.com/kbukum/portforge/logger"
	"github.com/kbukum/portforge/metadata"
	"github.com/kbukum/portforge/observability"
	"github.com/kbukum/portforge/probe"
	"github.com/kbukum/portforge/scheduler"
	"github.com/kbukum/portforge/version"
)

// cli carries what every command needs.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	cfg    *config.Config
}

// source opens the descriptor tree, cached when configured.
func (c *cli) source() (metadata.Source, error) {
	var src metadata.Source = metadata.NewFileSource(c.cfg.Paths.PortsDir)
	if c.cfg.Paths.DescriptorCache > 0 {
		cached, err := metadata.NewCachedSource(src, c.cfg.Paths.DescriptorCache)
		if err != nil {
			return nil, err
		}
		src = cached
	}
	return src, nil
}

// engine wires an Engine without a scheduler, enough to resolve plans.
func (c *cli) engine(sched *scheduler.Scheduler, options ...engine.Option) (*engine.Engine, error) {
	src, err := c.source()
	if err != nil {
		return nil, err
	}
	s := c.cfg.Scheduler
	return engine.New(src, installed.NewDirQuery(c.cfg.Paths.PackageDB), sched, engine.Options{
		NoUpgrade:         s.NoUpgrade,
		IncludeTestDeps:   s.IncludeTestDeps,
		SkipInstalledRoot: s.SkipInstalledRoot,
		DryRun:            s.DryRun,
	}, options...), nil
}

func onePort(args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.Validation("expected exactly one port")
	}
	return args[0], nil
}

// --- build ---

func buildCommand() *command {
	var logDir string
	return &command{
		usage: "build [flags] <port>",
		short: "Resolve and build a port and its dependencies.",
		flags: func(fs *pflag.FlagSet) {
			fs.StringVar(&logDir, "log-dir", "", "write each port's build output to <dir>/<port>.log")
		},
		run: func(ctx context.Context, c *cli, args []string) error {
			root, err := onePort(args)
			if err != nil {
				return err
			}
			app, err := bootstrap.NewApp(c.cfg)
			if err != nil {
				return err
			}
			if o := c.cfg.Observability; o.Enabled {
				shutdown := observability.Noop
				app.OnStart(func(ctx context.Context) error {
					fn, err := observability.Setup(ctx, observability.Options{
						ServiceName:    c.cfg.Name,
						ServiceVersion: app.Version,
						Environment:    c.cfg.Environment,
						Endpoint:       o.Endpoint,
						Insecure:       o.Insecure,
						SampleRate:     o.SampleRate,
						Interval:       o.Interval,
					})
					if err != nil {
						return err
					}
					shutdown = fn
					return nil
				})
				app.OnStop(func(ctx context.Context) error { return shutdown(ctx) })
			}
			return app.RunTask(ctx, func(ctx context.Context) error {
				return c.build(ctx, app, root, logDir)
			})
		},
	}
}

func (c *cli) build(ctx context.Context, app *bootstrap.App[*config.Config], root, logDir string) error {
	paths := c.cfg.Paths
	events, err := eventlog.Open(paths.EventLog)
	if err != nil {
		return err
	}
	compactor := eventlog.NewCompactor(paths.EventLog, paths.StatusFile)
	compactCtx, stopCompactor := context.WithCancel(context.WithoutCancel(ctx))
	go compactor.Run(compactCtx)
	app.OnStop(func(context.Context) error {
		stopCompactor()
		if err := events.Close(); err != nil {
			return err
		}
		return compactor.Compact()
	})
	sink := eventlog.WithCompaction(events, compactor)

	cmd, err := builder.New(c.cfg.Build, paths.PortsDir, builder.WithLogDir(logDir))
	if err != nil {
		return err
	}
	s := c.cfg.Scheduler
	options := append(gateOptions(probe.Supported(), logger.Get("scheduler")), scheduler.WithEventLog(sink))
	if c.cfg.Build.Artifact != "" {
		options = append(options, scheduler.WithArtifactCheck(builder.NewArtifact(paths.ArtifactDir, c.cfg.Build.Artifact).Present))
	}
	sched := scheduler.New(scheduler.Options{
		MaxConcurrency:   s.MaxConcurrency,
		MemoryFloorMB:    s.MemoryFloorMB(),
		MinFreeMemoryMB:  s.MinFreeMemoryMB(),
		LoadPerCPU:       s.LoadPerCPU,
		Retries:          s.Retries,
		BackoffBase:      s.BackoffBase,
		GatePollInterval: s.GatePollInterval,
	}, cmd.Build, options...)

	e, err := c.engine(sched, engine.WithEventLog(sink))
	if err != nil {
		return err
	}
	plan, res, err := e.Run(ctx, root)
	if plan != nil && res != nil {
		c.summary(plan, res)
	}
	return err
}

// gateOptions gates admission on host resources where the platform can be
// sampled. Elsewhere only the concurrency limit applies.
func gateOptions(supported bool, log *logger.Logger) []scheduler.Option {
	if !supported {
		log.Warn("resource probe unsupported on this platform, memory and load gating disabled")
		return nil
	}
	return []scheduler.Option{scheduler.WithProbe(probe.NewSystem())}
}

func (c *cli) summary(plan *engine.Plan, res *scheduler.Result) {
	verb := "built"
	count := len(res.Built)
	if c.cfg.Scheduler.DryRun {
		verb = "would build"
		count = len(res.Dispatched)
		for _, id := range res.Dispatched {
			fmt.Fprintln(c.stdout, id)
		}
	}
	fmt.Fprintf(c.stdout, "%s: %s %d, cached %d, satisfied %d, failed %d (run %s, %s)\n",
		plan.Root, verb, count, len(res.Cached), len(res.Satisfied), len(res.Failed),
		res.RunID, res.Duration.Round(time.Millisecond))
	for _, id := range res.Failed {
		fmt.Fprintf(c.stdout, "failed: %s\n", id)
	}
}

// --- order ---

func orderCommand() *command {
	var levels, pending bool
	return &command{
		usage: "order [flags] <port>",
		short: "Print the build order, dependencies first.",
		flags: func(fs *pflag.FlagSet) {
			fs.BoolVar(&levels, "levels", false, "group ports that can build in parallel")
			fs.BoolVar(&pending, "pending", false, "omit ports already installed at an acceptable version")
		},
		run: func(ctx context.Context, c *cli, args []string) error {
			root, err := onePort(args)
			if err != nil {
				return err
			}
			e, err := c.engine(nil)
			if err != nil {
				return err
			}
			if levels {
				g, _, err := e.Graph(ctx, root)
				if err != nil {
					return err
				}
				lv, err := dag.Levels(g)
				if err != nil {
					return err
				}
				for i, level := range lv {
					fmt.Fprintf(c.stdout, "%d: %s\n", i, strings.Join(level, " "))
				}
				return nil
			}

			plan, err := e.Resolve(ctx, root)
			if err != nil {
				return err
			}
			order := plan.Order
			if pending {
				order = plan.Pending()
			}
			for _, id := range order {
				fmt.Fprintln(c.stdout, id)
			}
			return nil
		},
	}
}

// --- graph ---

func graphCommand() *command {
	var format string
	return &command{
		usage: "graph [flags] <port>",
		short: "Export the dependency graph.",
		flags: func(fs *pflag.FlagSet) {
			fs.StringVarP(&format, "format", "f", "dot", "output format: dot or json")
		},
		run: func(ctx context.Context, c *cli, args []string) error {
			root, err := onePort(args)
			if err != nil {
				return err
			}
			e, err := c.engine(nil)
			if err != nil {
				return err
			}
			g, _, err := e.Graph(ctx, root)
			if err != nil {
				return err
			}
			ex := dag.Export(g)
			if err := c.declaredVersions(ctx, &ex); err != nil {
				return err
			}
			switch format {
			case "dot":
				return ex.WriteDOT(c.stdout)
			case "json":
				return ex.WriteJSON(c.stdout)
			default:
				return errors.Validation(fmt.Sprintf("unknown graph format %q", format))
			}
		},
	}
}

// declaredVersions fills in the version each port's descriptor declares.
func (c *cli) declaredVersions(ctx context.Context, ex *dag.GraphExport) error {
	src := metadata.NewFileSource(c.cfg.Paths.PortsDir)
	for i, n := range ex.Nodes {
		d, err := src.Descriptor(ctx, n.ID)
		if err != nil {
			return err
		}
		ex.Nodes[i].Version = d.Version
	}
	return nil
}

// --- compact ---

func compactCommand() *command {
	return &command{
		usage: "compact",
		short: "Rebuild the status file from the event log.",
		run: func(ctx context.Context, c *cli, args []string) error {
			if err := eventlog.NewCompactor(c.cfg.Paths.EventLog, c.cfg.Paths.StatusFile).Compact(); err != nil {
				return err
			}
			logger.Get("compactor").Info("status compacted", logger.Fields("path", c.cfg.Paths.StatusFile))
			return nil
		},
	}
}

// --- status ---

func statusCommand() *command {
	var asJSON, history bool
	return &command{
		usage: "status [flags] [port...]",
		short: "Show the last known status of ports from the status file.",
		flags: func(fs *pflag.FlagSet) {
			fs.BoolVar(&asJSON, "json", false, "print records as JSON")
			fs.BoolVar(&history, "history", false, "print every transition")
		},
		run: func(ctx context.Context, c *cli, args []string) error {
			sf, err := eventlog.LoadStatus(c.cfg.Paths.StatusFile)
			if err != nil {
				return err
			}
			ids := args
			if len(ids) == 0 {
				for id := range sf.Nodes {
					ids = append(ids, id)
				}
				slices.Sort(ids)
			}

			if asJSON {
				out := make(map[string]eventlog.Record, len(ids))
				for _, id := range ids {
					if r, ok := sf.Nodes[id]; ok {
						out[id] = r
					}
				}
				enc := json.NewEncoder(c.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
			for _, id := range ids {
				r, ok := sf.Nodes[id]
				if !ok {
					fmt.Fprintf(tw, "%s\tunknown\t\t\n", id)
					continue
				}
				entries := []eventlog.Entry{r.Last}
				if history {
					entries = r.History
				}
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, e.Status, e.Time.Format(time.RFC3339), e.Error)
				}
			}
			return tw.Flush()
		},
	}
}

// --- version ---

func versionCommand() *command {
	return &command{
		usage: "version",
		short: "Print version information.",
		raw:   true,
		run: func(ctx context.Context, c *cli, args []string) error {
			fmt.Fprintln(c.stdout, version.Build().String())
			return nil
		},
	}
}
