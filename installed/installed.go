// Package installed answers whether a port is already installed and at
// which version.
package installed

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kbukum/portforge/errors"
)

// VersionFile is the file inside a package database entry holding the
// installed version.
const VersionFile = "VERSION"

// Query reports the installed state of a port. A port that is not installed
// returns false, "" and no error.
type Query interface {
	Lookup(ctx context.Context, id string) (installed bool, version string, err error)
}

// DirQuery reads a package database laid out as <db>/<id>/VERSION.
// An entry directory without a VERSION file is installed with an unknown
// (empty) version.
type DirQuery struct {
	root string
}

// NewDirQuery creates a DirQuery over the package database at root.
func NewDirQuery(root string) *DirQuery {
	return &DirQuery{root: root}
}

// Lookup implements Query.
func (q *DirQuery) Lookup(ctx context.Context, id string) (bool, string, error) {
	if err := ctx.Err(); err != nil {
		return false, "", err
	}
	if !filepath.IsLocal(id) {
		return false, "", errors.Validation(fmt.Sprintf("port id %q escapes the package database", id))
	}
	dir := filepath.Join(q.root, id)
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, "", nil
		}
		return false, "", errors.IOError("stat package entry", dir, err)
	}
	if !info.IsDir() {
		return false, "", nil
	}

	data, err := os.ReadFile(filepath.Join(dir, VersionFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, "", nil
		}
		return false, "", errors.IOError("read version", filepath.Join(dir, VersionFile), err)
	}
	return true, strings.TrimSpace(string(data)), nil
}

// StaticQuery serves installed versions from memory.
type StaticQuery struct {
	versions map[string]string
}

// NewStaticQuery creates a StaticQuery. Every key of versions is installed.
func NewStaticQuery(versions map[string]string) *StaticQuery {
	q := &StaticQuery{versions: make(map[string]string, len(versions))}
	for k, v := range versions {
		q.versions[k] = v
	}
	return q
}

// Lookup implements Query.
func (q *StaticQuery) Lookup(_ context.Context, id string) (bool, string, error) {
	v, ok := q.versions[id]
	return ok, v, nil
}
