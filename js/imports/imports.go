// Package imports bundles room scripts with the shared library files they
// pull in through `// @import path` lines.
package imports

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/zond/juiceroom"
)

// Only lines starting with the directive count, so prose mentioning
// @import in a comment is left alone.
var directive = regexp.MustCompile(`(?m)^// @import\s+(\S+)\s*$`)

// File is a loaded library file.
type File struct {
	Text     string
	Modified time.Time
}

// LoadFunc loads the library file at a slash separated absolute path.
type LoadFunc func(ctx context.Context, p string) (*File, error)

// Dir loads library files below root. Paths can't escape root.
func Dir(root string) LoadFunc {
	return func(_ context.Context, p string) (*File, error) {
		full := filepath.Join(root, filepath.FromSlash(path.Clean("/"+p)))
		info, err := os.Stat(full)
		if err != nil {
			return nil, juiceroom.WithStack(err)
		}
		b, err := os.ReadFile(full)
		if err != nil {
			return nil, juiceroom.WithStack(err)
		}
		return &File{Text: string(b), Modified: info.ModTime()}, nil
	}
}

// Bundle is a script with its imports inlined, dependencies first.
type Bundle struct {
	Source string
	// Files lists the origin followed by every imported path, each once.
	Files    []string
	Modified time.Time
}

// Bundler caches loaded library files until told to forget them.
type Bundler struct {
	load  LoadFunc
	mu    sync.Mutex
	files map[string]*File
}

func NewBundler(load LoadFunc) *Bundler {
	return &Bundler{
		load:  load,
		files: map[string]*File{},
	}
}

func (b *Bundler) file(ctx context.Context, p string) (*File, error) {
	b.mu.Lock()
	f, found := b.files[p]
	b.mu.Unlock()
	if found {
		return f, nil
	}
	if b.load == nil {
		return nil, juiceroom.WithStack(fmt.Errorf("no library configured, can't load %s", p))
	}
	f, err := b.load(ctx, p)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.files[p] = f
	b.mu.Unlock()
	return f, nil
}

// Forget drops a cached file.
func (b *Bundler) Forget(p string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.files, p)
}

// ForgetAll drops every cached file, so the next bundle sees edits.
func (b *Bundler) ForgetAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files = map[string]*File{}
}

type walk struct {
	b        *Bundler
	active   map[string]bool
	done     map[string]bool
	out      strings.Builder
	files    []string
	modified time.Time
}

// Bundle inlines the imports of source, which lives at origin. Relative
// imports resolve against origin. A file imported along several paths is
// included once, import cycles fail.
func (b *Bundler) Bundle(ctx context.Context, origin, source string) (*Bundle, error) {
	w := &walk{
		b:      b,
		active: map[string]bool{},
		done:   map[string]bool{},
	}
	if err := w.visit(ctx, origin, &File{Text: source}); err != nil {
		return nil, err
	}
	return &Bundle{
		Source:   w.out.String(),
		Files:    w.files,
		Modified: w.modified,
	}, nil
}

func (w *walk) visit(ctx context.Context, p string, f *File) error {
	w.active[p] = true
	defer delete(w.active, p)
	w.files = append(w.files, p)
	if f.Modified.After(w.modified) {
		w.modified = f.Modified
	}
	for _, imp := range Imports(f.Text) {
		dep := Join(p, imp)
		if w.active[dep] {
			return juiceroom.WithStack(fmt.Errorf("import cycle: %s imports %s", p, dep))
		}
		if w.done[dep] {
			continue
		}
		depFile, err := w.b.file(ctx, dep)
		if err != nil {
			return juiceroom.WithStack(fmt.Errorf("%s: loading %s: %w", p, dep, err))
		}
		if err := w.visit(ctx, dep, depFile); err != nil {
			return err
		}
	}
	w.out.WriteString(Strip(f.Text))
	if !strings.HasSuffix(f.Text, "\n") {
		w.out.WriteString("\n")
	}
	w.done[p] = true
	return nil
}

// Imports returns the import paths of source in order.
func Imports(source string) []string {
	matches := directive.FindAllStringSubmatch(source, -1)
	result := make([]string, 0, len(matches))
	for _, match := range matches {
		result = append(result, match[1])
	}
	return result
}

// Strip removes the import lines of source.
func Strip(source string) string {
	return directive.ReplaceAllString(source, "")
}

// Join resolves imp relative to the file at from. Absolute imports are only cleaned.
func Join(from, imp string) string {
	if strings.HasPrefix(imp, "/") {
		return path.Clean(imp)
	}
	return path.Join(path.Dir(from), imp)
}
