package builder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kbukum/portforge/config"
	"github.com/kbukum/portforge/errors"
	"github.com/kbukum/portforge/logger"
	"github.com/kbukum/portforge/process"
)

// Command runs one external command per port.
type Command struct {
	cfg      config.BuildConfig
	portsDir string
	logDir   string
	output   io.Writer
	log      *logger.Logger
}

// Option configures a Command.
type Option func(*Command)

// WithLogDir writes each port's combined output to <dir>/<port>.log.
func WithLogDir(dir string) Option {
	return func(c *Command) { c.logDir = dir }
}

// WithOutput tees every build's output to w.
func WithOutput(w io.Writer) Option {
	return func(c *Command) { c.output = w }
}

// WithLogger overrides the component logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Command) { c.log = l }
}

// New creates a Command from the build configuration.
func New(cfg config.BuildConfig, portsDir string, opts ...Option) (*Command, error) {
	if len(cfg.Command) == 0 || strings.TrimSpace(cfg.Command[0]) == "" {
		return nil, errors.Validation("build command is empty")
	}
	c := &Command{
		cfg:      cfg,
		portsDir: portsDir,
		log:      logger.Get("builder"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Build runs the command for port id. It has the scheduler.BuildFunc signature.
func (c *Command) Build(ctx context.Context, id string) error {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	args := c.Expand(id)
	cmd := process.Command{
		Binary: args[0],
		Args:   args[1:],
		Dir:    c.expand(c.cfg.Dir, id),
		Env:    append(slices.Clone(c.cfg.Env), "PORTFORGE_PORT="+id),
		Output: c.output,
	}

	if c.logDir != "" {
		f, err := c.openLog(id)
		if err != nil {
			return err
		}
		defer f.Close()
		if cmd.Output != nil {
			cmd.Output = io.MultiWriter(cmd.Output, f)
		} else {
			cmd.Output = f
		}
	}

	c.log.Debug("running build command", logger.Fields(
		logger.FieldNode, id,
		"command", strings.Join(args, " "),
	))

	res, err := process.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("build %s: %w", id, err)
	}
	c.log.Debug("build command finished", logger.Fields(
		logger.FieldNode, id,
		logger.FieldDuration, res.Duration.Milliseconds(),
	))
	return nil
}

// Expand returns the command line for port id with placeholders substituted.
func (c *Command) Expand(id string) []string {
	out := make([]string, len(c.cfg.Command))
	for i, arg := range c.cfg.Command {
		out[i] = c.expand(arg, id)
	}
	return out
}

// PortDir is the descriptor directory of port id.
func (c *Command) PortDir(id string) string {
	return filepath.Join(c.portsDir, filepath.FromSlash(id))
}

func (c *Command) expand(s, id string) string {
	if s == "" {
		return ""
	}
	r := strings.NewReplacer("{port}", id, "{portdir}", c.PortDir(id))
	return r.Replace(s)
}

func (c *Command) openLog(id string) (*os.File, error) {
	path := filepath.Join(c.logDir, strings.ReplaceAll(id, "/", "_")+".log")
	if err := os.MkdirAll(c.logDir, 0o755); err != nil {
		return nil, errors.IOError("create", c.logDir, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.IOError("open", path, err)
	}
	return f, nil
}
