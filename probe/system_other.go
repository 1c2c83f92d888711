//go:build !linux

package probe

import (
	"context"
	"fmt"
	"runtime"

	"github.com/kbukum/portforge/errors"
)

// System reports resources as unavailable on platforms without sysinfo(2).
type System struct{}

// NewSystem returns the host probe.
func NewSystem() *System { return &System{} }

// Supported reports whether System can sample this host.
func Supported() bool { return false }

// Sample implements Probe.
func (System) Sample(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{}, errors.ResourceUnavailable(fmt.Errorf("resource probe not supported on %s", runtime.GOOS))
}
