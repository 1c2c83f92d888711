package metadata

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"go.yaml.in/yaml/v3"

	"github.com/kbukum/portforge/errors"
	"github.com/kbukum/portforge/logger"
)

// Descriptor file names, in lookup order.
const (
	YAMLDescriptor = "port.yaml"
	HCLDescriptor  = "port.hcl"
)

// Descriptor is the decoded content of a port descriptor.
type Descriptor struct {
	Version string `yaml:"version"`
	Depends Deps   `yaml:"depends"`
}

type hclDescriptor struct {
	Version string      `hcl:"version,optional"`
	Depends *hclDepends `hcl:"depends,block"`
	Remain  hcl.Body    `hcl:",remain"`
}

type hclDepends struct {
	Build []string `hcl:"build,optional"`
	Run   []string `hcl:"run,optional"`
	Test  []string `hcl:"test,optional"`
}

// FileSource reads descriptors from a ports tree.
type FileSource struct {
	root string
	log  *logger.Logger
}

// NewFileSource creates a FileSource rooted at the ports directory.
func NewFileSource(root string) *FileSource {
	return &FileSource{root: root, log: logger.Get("metadata")}
}

// Dependencies implements Source.
func (s *FileSource) Dependencies(ctx context.Context, id string) (Deps, error) {
	d, err := s.Descriptor(ctx, id)
	if err != nil {
		return Deps{}, err
	}
	return d.Depends, nil
}

// Descriptor loads the descriptor of id. A missing descriptor returns a zero
// Descriptor and no error.
func (s *FileSource) Descriptor(ctx context.Context, id string) (Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return Descriptor{}, err
	}
	if !filepath.IsLocal(id) {
		return Descriptor{}, errors.Validation(fmt.Sprintf("port id %q escapes the ports tree", id))
	}
	dir := filepath.Join(s.root, id)

	for _, name := range []string{YAMLDescriptor, HCLDescriptor} {
		descPath := filepath.Join(dir, name)
		data, err := os.ReadFile(descPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Descriptor{}, errors.IOError("read descriptor", descPath, err)
		}

		var d Descriptor
		if name == YAMLDescriptor {
			d, err = decodeYAML(data)
		} else {
			d, err = decodeHCL(data, descPath, id)
		}
		if err != nil {
			return Descriptor{}, errors.Validation(fmt.Sprintf("invalid descriptor %s", descPath)).WithCause(err)
		}
		s.log.Debug("descriptor loaded", logger.Fields(logger.FieldNode, id, "path", descPath))
		return d, nil
	}

	s.log.Debug("no descriptor, treating as leaf", logger.Fields(logger.FieldNode, id))
	return Descriptor{}, nil
}

func decodeYAML(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// decodeHCL decodes an HCL descriptor. Expressions may refer to port.name
// (the port id) and port.base (its last path element).
func decodeHCL(data []byte, filename, id string) (Descriptor, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return Descriptor{}, diags
	}
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"port": cty.ObjectVal(map[string]cty.Value{
				"name": cty.StringVal(id),
				"base": cty.StringVal(path.Base(id)),
			}),
		},
	}
	var raw hclDescriptor
	if diags := gohcl.DecodeBody(file.Body, evalCtx, &raw); diags.HasErrors() {
		return Descriptor{}, diags
	}
	d := Descriptor{Version: raw.Version}
	if raw.Depends != nil {
		d.Depends = Deps{Build: raw.Depends.Build, Run: raw.Depends.Run, Test: raw.Depends.Test}
	}
	return d, nil
}
