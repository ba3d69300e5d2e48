// Package assets locates the on-disk files the service needs (generation
// model, embedding model, passage index) and waits for them to appear.
package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"medqa/internal/common/fsutil"
)

// Model is a *.gguf file found in the assets directory.
type Model struct {
	Name string
	Path string
	Size int64
}

// Discover scans dir for *.gguf files. Results are sorted by name.
func Discover(dir string) ([]Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		var size int64
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		models = append(models, Model{Name: name, Path: filepath.Join(abs, name), Size: size})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}

// Paths are the resolved asset locations.
type Paths struct {
	Model    string
	Embedder string
	Index    string
}

// List returns the non-empty paths in a fixed order.
func (p Paths) List() []string {
	var out []string
	for _, s := range []string{p.Model, p.Embedder, p.Index} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Missing returns the paths that are not yet present as regular files.
func (p Paths) Missing() []string {
	var out []string
	for _, s := range p.List() {
		if !fsutil.FileExists(s) {
			out = append(out, s)
		}
	}
	return out
}

// Resolve fills in asset paths relative to dir. Explicit paths win; an empty
// model path is filled from discovery, picking the first gguf whose name does
// not look like an embedding model, and likewise the embedder picks the
// first that does. Resolve does not require the files to exist yet unless
// discovery is needed to name them.
func Resolve(dir string, explicit Paths) (Paths, error) {
	var (
		out Paths
		err error
	)
	if out.Model, err = fsutil.ResolveUnder(dir, explicit.Model); err != nil {
		return Paths{}, err
	}
	if out.Embedder, err = fsutil.ResolveUnder(dir, explicit.Embedder); err != nil {
		return Paths{}, err
	}
	if out.Index, err = fsutil.ResolveUnder(dir, explicit.Index); err != nil {
		return Paths{}, err
	}
	if out.Model != "" && out.Embedder != "" {
		return out, nil
	}
	models, err := Discover(dir)
	if err != nil {
		return Paths{}, fmt.Errorf("discover models: %w", err)
	}
	for _, m := range models {
		embed := isEmbeddingModel(m.Name)
		if out.Model == "" && !embed {
			out.Model = m.Path
		}
		if out.Embedder == "" && embed {
			out.Embedder = m.Path
		}
	}
	if out.Model == "" {
		return Paths{}, fmt.Errorf("no generation model (*.gguf) found in %s", dir)
	}
	if out.Embedder == "" {
		return Paths{}, fmt.Errorf("no embedding model (*embed*.gguf) found in %s", dir)
	}
	return out, nil
}

func isEmbeddingModel(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "embed") || strings.Contains(n, "minilm") || strings.Contains(n, "bge")
}
