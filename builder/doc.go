// Package builder turns the configured build command template into a
// scheduler build callback.
//
// The placeholders {port} and {portdir} are substituted in every argument
// and in the working directory:
//
//	b, err := builder.New(cfg.Build, cfg.Paths.PortsDir, builder.WithLogDir("./var/log/portforge/build"))
//	sched := scheduler.New(opts, b.Build)
//
// Artifact checks the configured artifact path so already-built ports are
// skipped by the worker.
package builder
