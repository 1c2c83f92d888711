package config

import (
	"runtime"
	"time"

	"github.com/kbukum/portforge/validation"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "PORTFORGE_"

// Config is the complete portforge configuration.
type Config struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Scheduler     SchedulerConfig     `yaml:"scheduler" mapstructure:"scheduler"`
	Paths         PathsConfig         `yaml:"paths" mapstructure:"paths"`
	Build         BuildConfig         `yaml:"build" mapstructure:"build"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

// SchedulerConfig controls admission, retries and the resource gate.
type SchedulerConfig struct {
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency" validate:"min=1"`
	// MemoryFloor is the free memory each running worker needs, e.g. "512m".
	MemoryFloor string `yaml:"memory_floor" mapstructure:"memory_floor" validate:"required"`
	// MinFreeMemory is an absolute free-memory ceiling applied on top of the
	// per-worker floor. Empty disables it.
	MinFreeMemory string `yaml:"min_free_memory" mapstructure:"min_free_memory"`
	// LoadPerCPU is the highest 1-minute load average per CPU that still admits work.
	LoadPerCPU       float64       `yaml:"load_per_cpu" mapstructure:"load_per_cpu" validate:"gt=0"`
	Retries          int           `yaml:"retries" mapstructure:"retries" validate:"min=0,max=20"`
	BackoffBase      time.Duration `yaml:"backoff_base" mapstructure:"backoff_base" validate:"gte=0"`
	GatePollInterval time.Duration `yaml:"gate_poll_interval" mapstructure:"gate_poll_interval" validate:"gt=0"`

	DryRun            bool `yaml:"dry_run" mapstructure:"dry_run"`
	NoUpgrade         bool `yaml:"no_upgrade" mapstructure:"no_upgrade"`
	IncludeTestDeps   bool `yaml:"include_test_deps" mapstructure:"include_test_deps"`
	SkipInstalledRoot bool `yaml:"skip_installed_root" mapstructure:"skip_installed_root"`
}

// MemoryFloorMB returns the per-worker floor in MiB.
func (c SchedulerConfig) MemoryFloorMB() uint64 {
	mb, err := ParseMemoryMB(c.MemoryFloor)
	if err != nil {
		return 0
	}
	return mb
}

// MinFreeMemoryMB returns the absolute free-memory ceiling in MiB, zero when unset.
func (c SchedulerConfig) MinFreeMemoryMB() uint64 {
	if c.MinFreeMemory == "" {
		return 0
	}
	mb, err := ParseMemoryMB(c.MinFreeMemory)
	if err != nil {
		return 0
	}
	return mb
}

// PathsConfig locates port descriptors, installed state and run output.
type PathsConfig struct {
	PortsDir    string `yaml:"ports_dir" mapstructure:"ports_dir" validate:"required"`
	PackageDB   string `yaml:"package_db" mapstructure:"package_db" validate:"required"`
	ArtifactDir string `yaml:"artifact_dir" mapstructure:"artifact_dir"`
	EventLog    string `yaml:"event_log" mapstructure:"event_log" validate:"required"`
	StatusFile  string `yaml:"status_file" mapstructure:"status_file" validate:"required"`
	// DescriptorCache is the number of parsed descriptors kept in memory.
	DescriptorCache int `yaml:"descriptor_cache" mapstructure:"descriptor_cache" validate:"min=0"`
}

// BuildConfig describes the external build command run for each port.
// The placeholders {port} and {portdir} are substituted in Command and Dir.
type BuildConfig struct {
	Command []string      `yaml:"command" mapstructure:"command" validate:"min=1"`
	Dir     string        `yaml:"dir" mapstructure:"dir"`
	Env     []string      `yaml:"env" mapstructure:"env"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
	// Artifact is the path, relative to paths.artifact_dir, whose presence
	// marks a port as already built.
	Artifact string `yaml:"artifact" mapstructure:"artifact"`
}

// ObservabilityConfig enables OTLP export of build metrics and spans.
type ObservabilityConfig struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string        `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,hostname_port"`
	Insecure   bool          `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64       `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	Interval   time.Duration `yaml:"interval" mapstructure:"interval" validate:"gte=0"`
}

// Default returns a Config with every default applied.
func Default() Config {
	cfg := baseline()
	cfg.ApplyDefaults()
	return cfg
}

// baseline holds the defaults a zero value cannot express. Load decodes on
// top of it so explicit zeros in files or env (retries: 0) are preserved.
// Slices stay nil here since decoding merges into existing slice elements.
func baseline() Config {
	workers := runtime.NumCPU()
	if workers > 4 {
		workers = 4
	}
	return Config{
		Scheduler: SchedulerConfig{
			MaxConcurrency:   workers,
			MemoryFloor:      "512m",
			LoadPerCPU:       1.5,
			Retries:          2,
			BackoffBase:      2 * time.Second,
			GatePollInterval: 2 * time.Second,
		},
		Paths: PathsConfig{
			PortsDir:        "./ports",
			PackageDB:       "./var/db/pkg",
			EventLog:        "./var/log/portforge/events.jsonl",
			StatusFile:      "./var/log/portforge/status.json",
			DescriptorCache: 256,
		},
		Observability: ObservabilityConfig{
			Endpoint:   "localhost:4318",
			Insecure:   true,
			SampleRate: 1.0,
			Interval:   15 * time.Second,
		},
	}
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	if c.Scheduler.MaxConcurrency == 0 {
		c.Scheduler.MaxConcurrency = 1
	}
	if c.Scheduler.MemoryFloor == "" {
		c.Scheduler.MemoryFloor = "512m"
	}
	if c.Scheduler.LoadPerCPU == 0 {
		c.Scheduler.LoadPerCPU = 1.5
	}
	if c.Scheduler.GatePollInterval == 0 {
		c.Scheduler.GatePollInterval = 2 * time.Second
	}
	if len(c.Build.Command) == 0 {
		c.Build.Command = []string{"make", "-C", "{portdir}", "install"}
	}
}

// Validate checks struct tags and the rules tags cannot express.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := validation.Validate(c); err != nil {
		return err
	}

	v := validation.New()
	if _, err := ParseMemory(c.Scheduler.MemoryFloor); err != nil {
		v.AddError("scheduler.memory_floor", err.Error())
	}
	if c.Scheduler.MinFreeMemory != "" {
		if _, err := ParseMemory(c.Scheduler.MinFreeMemory); err != nil {
			v.AddError("scheduler.min_free_memory", err.Error())
		}
	}
	v.Custom(!c.Observability.Enabled || c.Observability.Endpoint != "",
		"observability.endpoint", "is required when observability is enabled")
	v.Custom(c.Build.Artifact == "" || c.Paths.ArtifactDir != "",
		"build.artifact", "requires paths.artifact_dir")
	return v.Err()
}

// Load reads configuration for serviceName from the standard file locations
// and PORTFORGE_* environment variables, then applies defaults and validates.
func Load(serviceName string, opts ...LoaderOption) (*Config, error) {
	cfg := baseline()
	opts = append([]LoaderOption{WithEnvPrefix(EnvPrefix)}, opts...)
	if err := LoadConfig(serviceName, &cfg, opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
