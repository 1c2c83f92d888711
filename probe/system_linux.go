//go:build linux

package probe

import (
	"context"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/kbukum/portforge/errors"
)

// sysinfo load averages are fixed point with 16 fractional bits.
const loadScale = 1 << 16

// System reads memory and load from sysinfo(2).
type System struct{}

// NewSystem returns the host probe.
func NewSystem() *System { return &System{} }

// Supported reports whether System can sample this host.
func Supported() bool { return true }

// Sample implements Probe. Buffer memory counts as free since the kernel
// reclaims it under pressure.
func (System) Sample(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return Snapshot{}, errors.ResourceUnavailable(err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	free := (uint64(info.Freeram) + uint64(info.Bufferram)) * unit
	return Snapshot{
		FreeMemoryMB: free / (1 << 20),
		LoadAvg1:     float64(info.Loads[0]) / loadScale,
		CPUCount:     runtime.NumCPU(),
	}, nil
}
