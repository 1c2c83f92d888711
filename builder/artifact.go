package builder

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/kbukum/portforge/errors"
)

// Artifact reports whether a port's build output already exists.
type Artifact struct {
	dir     string
	pattern string
}

// NewArtifact checks for <dir>/<pattern>, with {port} substituted in pattern.
func NewArtifact(dir, pattern string) *Artifact {
	return &Artifact{dir: dir, pattern: pattern}
}

// Path returns the artifact path for port id.
func (a *Artifact) Path(id string) string {
	return filepath.Join(a.dir, filepath.FromSlash(strings.ReplaceAll(a.pattern, "{port}", id)))
}

// Present has the scheduler.ArtifactFunc signature.
func (a *Artifact) Present(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if a.pattern == "" {
		return false, nil
	}
	path := a.Path(id)
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, errors.IOError("stat", path, err)
	}
}
