// Package workspace reads and writes the generated project's files.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/metalagman/anvil/internal/config"
	"github.com/metalagman/anvil/internal/model"
)

// Workspace resolves project paths against a root directory.
type Workspace struct {
	root     string
	project  string
	template string
	source   string
	schema   string
}

// New creates a workspace rooted at root. Relative paths in cfg are resolved against it.
func New(root string, cfg config.ProjectConfig) *Workspace {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(root, p)
	}
	return &Workspace{
		root:     root,
		project:  abs(cfg.Dir),
		template: abs(cfg.TemplatePath),
		source:   abs(cfg.SourcePath),
		schema:   abs(cfg.SchemaPath),
	}
}

// ProjectDir is where build and run commands execute.
func (w *Workspace) ProjectDir() string { return w.project }

// SourcePath is the file generated source is written to.
func (w *Workspace) SourcePath() string { return w.source }

// SchemaPath is the file the endpoint schema is written to.
func (w *Workspace) SchemaPath() string { return w.schema }

// ReadTemplate returns the code template handed to the initial generation.
func (w *Workspace) ReadTemplate() (string, error) {
	data, err := os.ReadFile(w.template)
	if err != nil {
		return "", fmt.Errorf("read code template: %w", err)
	}
	return string(data), nil
}

// WriteSource replaces the generated source file.
func (w *Workspace) WriteSource(source string) error {
	return writeFile(w.source, []byte(source))
}

// ReadSource returns the source as it exists on disk, which is what the build consumed.
func (w *Workspace) ReadSource() (string, error) {
	data, err := os.ReadFile(w.source)
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}
	return string(data), nil
}

// WriteSchema persists the decoded endpoint schema.
func (w *Workspace) WriteSchema(routes []model.RouteDescriptor) error {
	data, err := model.EncodeRoutes(routes)
	if err != nil {
		return err
	}
	return writeFile(w.schema, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
