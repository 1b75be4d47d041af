// Package layout maps telemetry contexts and signal paths onto the Parquet
// directory tree and back.
//
// The tree is <root>/<group>/<id>/<path segments...>/*.parquet, for example
// /data/vessels/urn_mrn_imo_mmsi_368396230/navigation/position/2026-10-17T10.parquet.
package layout

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xtxerr/logbook/internal/errors"
	"github.com/xtxerr/logbook/internal/validation"
)

// FileExt is the extension of data files.
const FileExt = ".parquet"

// SelfID is the context id aliased to the configured self context.
const SelfID = "self"

// Layout resolves locations inside one Parquet tree.
type Layout struct {
	root string
	self *validation.Context
}

// New creates a layout rooted at root. selfContext, when non-empty, is the
// concrete context that "<group>.self" resolves to.
func New(root, selfContext string) (*Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	l := &Layout{root: filepath.Clean(abs)}

	if selfContext != "" {
		c, err := validation.ParseContext(selfContext)
		if err != nil {
			return nil, fmt.Errorf("self context: %w", err)
		}
		l.self = c
	}

	return l, nil
}

// Root returns the absolute tree root.
func (l *Layout) Root() string {
	return l.root
}

// ResolveContext validates ctx and applies the self alias.
func (l *Layout) ResolveContext(ctx string) (*validation.Context, error) {
	c, err := validation.ParseContext(ctx)
	if err != nil {
		return nil, err
	}
	if c.ID == SelfID && l.self != nil && l.self.Group == c.Group {
		return l.self, nil
	}
	return c, nil
}

// ContextDir returns the directory holding all paths of ctx.
func (l *Layout) ContextDir(ctx string) (string, error) {
	c, err := l.ResolveContext(ctx)
	if err != nil {
		return "", err
	}
	return l.contain(filepath.Join(l.root, c.Group, c.DirName()), errors.ErrInvalidContext)
}

// PathDir returns the directory holding the files of one signal path.
func (l *Layout) PathDir(ctx, path string) (string, error) {
	base, err := l.ContextDir(ctx)
	if err != nil {
		return "", err
	}

	segments, err := validation.ParseSignalPath(path)
	if err != nil {
		return "", err
	}

	return l.contain(filepath.Join(append([]string{base}, segments...)...), errors.ErrInvalidPath)
}

// contain rejects any location that does not resolve below the root.
func (l *Layout) contain(dir string, sentinel error) (string, error) {
	rel, err := filepath.Rel(l.root, dir)
	if err != nil {
		return "", fmt.Errorf("%s: %v: %w", dir, err, sentinel)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%s escapes data dir: %w", dir, sentinel)
	}
	return dir, nil
}

// Glob returns the file pattern matching the data files of dir.
func Glob(dir string) string {
	return filepath.Join(dir, "*"+FileExt)
}

// Files lists the data files directly inside dir, newest modification first.
// A missing directory yields no files and no error.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	type file struct {
		path string
		mod  int64
	}
	var files []file
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), FileExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{path: filepath.Join(dir, e.Name()), mod: info.ModTime().UnixNano()})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].mod != files[j].mod {
			return files[i].mod > files[j].mod
		}
		return files[i].path > files[j].path
	})

	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out, nil
}

// =============================================================================
// Discovery
// =============================================================================

// ContextEntry is a context directory found in the tree.
type ContextEntry struct {
	Context string
	Dir     string
}

// Contexts lists every <group>/<id> directory below the root, sorted by context.
// Directory names that are not valid identifiers are skipped.
func (l *Layout) Contexts() ([]ContextEntry, error) {
	groups, err := os.ReadDir(l.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []ContextEntry
	for _, g := range groups {
		if !g.IsDir() {
			continue
		}
		ids, err := os.ReadDir(filepath.Join(l.root, g.Name()))
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if !id.IsDir() {
				continue
			}
			ctx := g.Name() + "." + validation.ContextIDFromDirName(id.Name())
			if _, err := validation.ParseContext(ctx); err != nil {
				continue
			}
			out = append(out, ContextEntry{
				Context: ctx,
				Dir:     filepath.Join(l.root, g.Name(), id.Name()),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Context < out[j].Context })
	return out, nil
}

// PathEntry is a signal path directory holding data files.
type PathEntry struct {
	Path  string
	Dir   string
	Files []string
}

// Paths walks a context directory and returns every path directory that
// directly holds data files, sorted by path.
func Paths(contextDir string) ([]PathEntry, error) {
	var out []PathEntry

	err := filepath.WalkDir(contextDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == contextDir && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if !d.IsDir() || p == contextDir {
			return nil
		}

		rel, err := filepath.Rel(contextDir, p)
		if err != nil {
			return err
		}
		path := strings.ReplaceAll(filepath.ToSlash(rel), "/", ".")
		if _, err := validation.ParseSignalPath(path); err != nil {
			return filepath.SkipDir
		}

		files, err := Files(p)
		if err != nil {
			return err
		}
		if len(files) > 0 {
			out = append(out, PathEntry{Path: path, Dir: p, Files: files})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
