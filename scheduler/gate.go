package scheduler

import (
	"context"
	"fmt"

	"github.com/kbukum/portforge/probe"
)

// Gate reasons reported in logs and the gate.rejections metric.
const (
	ReasonMemory = "memory"
	ReasonLoad   = "load"
	ReasonProbe  = "probe"
)

// gate decides whether one more worker fits on the host.
type gate struct {
	probe      probe.Probe
	floorMB    uint64
	minFreeMB  uint64
	loadPerCPU float64
}

// verdict is the outcome of one gate evaluation.
type verdict struct {
	open   bool
	reason string
	detail string
	err    error
}

// check evaluates the gate for a prospective number of running workers.
// A probe failure closes the gate.
func (g gate) check(ctx context.Context, prospective int) verdict {
	if g.probe == nil {
		return verdict{open: true}
	}
	snap, err := g.probe.Sample(ctx)
	if err != nil {
		return verdict{reason: ReasonProbe, err: err}
	}

	need := g.floorMB * uint64(prospective)
	if snap.FreeMemoryMB < need {
		return verdict{reason: ReasonMemory,
			detail: fmt.Sprintf("free %dMB < floor %dMB x %d", snap.FreeMemoryMB, g.floorMB, prospective)}
	}
	if g.minFreeMB > 0 && snap.FreeMemoryMB < g.minFreeMB {
		return verdict{reason: ReasonMemory,
			detail: fmt.Sprintf("free %dMB < minimum %dMB", snap.FreeMemoryMB, g.minFreeMB)}
	}
	if g.loadPerCPU > 0 && snap.LoadPerCPU() > g.loadPerCPU {
		return verdict{reason: ReasonLoad,
			detail: fmt.Sprintf("load %.2f per cpu > %.2f", snap.LoadPerCPU(), g.loadPerCPU)}
	}
	return verdict{open: true}
}
