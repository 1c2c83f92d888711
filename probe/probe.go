// Package probe samples the host resources the scheduler gates admission on.
package probe

import (
	"context"
	"sync"

	"github.com/kbukum/portforge/errors"
)

// Snapshot is one reading of host resources.
type Snapshot struct {
	FreeMemoryMB uint64  `json:"free_memory_mb"`
	LoadAvg1     float64 `json:"load_avg_1"`
	CPUCount     int     `json:"cpu_count"`
}

// LoadPerCPU is the 1-minute load average normalised by CPU count.
func (s Snapshot) LoadPerCPU() float64 {
	if s.CPUCount <= 0 {
		return s.LoadAvg1
	}
	return s.LoadAvg1 / float64(s.CPUCount)
}

// Probe samples host resources.
type Probe interface {
	Sample(ctx context.Context) (Snapshot, error)
}

// Func adapts a function to Probe.
type Func func(ctx context.Context) (Snapshot, error)

// Sample implements Probe.
func (f Func) Sample(ctx context.Context) (Snapshot, error) { return f(ctx) }

// Static returns the same snapshot until changed. Safe for concurrent use.
type Static struct {
	mu   sync.Mutex
	snap Snapshot
	err  error
}

// NewStatic creates a Static probe.
func NewStatic(s Snapshot) *Static { return &Static{snap: s} }

// Set replaces the snapshot and clears any error.
func (p *Static) Set(s Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap, p.err = s, nil
}

// Fail makes every Sample return err until Set is called.
func (p *Static) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Sample implements Probe.
func (p *Static) Sample(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return Snapshot{}, errors.ResourceUnavailable(p.err)
	}
	return p.snap, nil
}
