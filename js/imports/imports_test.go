package imports

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestImports(t *testing.T) {
	for _, tc := range []struct {
		name   string
		source string
		want   []string
	}{
		{"none", "var x = 1;", []string{}},
		{"single", "// @import /lib/util.js\nvar x = 1;", []string{"/lib/util.js"}},
		{"several", "// @import /lib/util.js\n// @import ./math.js\nvar x = 1;", []string{"/lib/util.js", "./math.js"}},
		{"middle of file", "var x = 1;\n// @import ../lib/util.js\nvar y = 2;", []string{"../lib/util.js"}},
		{"prose", "// a note: @import is cool\nvar x = 1;", []string{}},
		{"indented", "  // @import /lib/util.js\nvar x = 1;", []string{}},
		{"trailing whitespace", "// @import /lib/util.js   \nvar x = 1;", []string{"/lib/util.js"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, Imports(tc.source)); diff != "" {
				t.Errorf("Imports: %v", diff)
			}
		})
	}
}

func TestJoin(t *testing.T) {
	for _, tc := range []struct {
		from, imp, want string
	}{
		{"/rooms/1.js", "/lib/util.js", "/lib/util.js"},
		{"/rooms/1.js", "./util.js", "/rooms/util.js"},
		{"/rooms/1.js", "../lib/util.js", "/lib/util.js"},
		{"/lib/a/b.js", "../../c.js", "/c.js"},
		{"/rooms/1.js", "/lib/../lib/x.js", "/lib/x.js"},
	} {
		if got := Join(tc.from, tc.imp); got != tc.want {
			t.Errorf("Join(%q, %q) = %q, want %q", tc.from, tc.imp, got, tc.want)
		}
	}
}

type library map[string]string

func (l library) load(loads *int) LoadFunc {
	return func(_ context.Context, p string) (*File, error) {
		*loads++
		text, found := l[p]
		if !found {
			return nil, fmt.Errorf("%s: %w", p, os.ErrNotExist)
		}
		return &File{Text: text, Modified: time.Unix(int64(len(text)), 0)}, nil
	}
}

func TestBundleOrder(t *testing.T) {
	loads := 0
	lib := library{
		"/lib/base.js":  "var base = 1;\n",
		"/lib/left.js":  "// @import ./base.js\nvar left = base + 1;\n",
		"/lib/right.js": "// @import /lib/base.js\nvar right = base + 2;\n",
	}
	b := NewBundler(lib.load(&loads))
	bundle, err := b.Bundle(context.Background(), "/rooms/1.js", "// @import /lib/left.js\n// @import /lib/right.js\nvar sum = left + right;")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(bundle.Source, "var base = 1;") != 1 {
		t.Errorf("diamond dependency included more than once:\n%s", bundle.Source)
	}
	order := []int{
		strings.Index(bundle.Source, "var base"),
		strings.Index(bundle.Source, "var left"),
		strings.Index(bundle.Source, "var right"),
		strings.Index(bundle.Source, "var sum"),
	}
	for i := 1; i < len(order); i++ {
		if order[i-1] < 0 || order[i-1] > order[i] {
			t.Errorf("wrong order %v in:\n%s", order, bundle.Source)
		}
	}
	if strings.Contains(bundle.Source, "@import") {
		t.Errorf("directives survived:\n%s", bundle.Source)
	}
	want := []string{"/rooms/1.js", "/lib/left.js", "/lib/base.js", "/lib/right.js"}
	if diff := cmp.Diff(want, bundle.Files); diff != "" {
		t.Errorf("files: %v", diff)
	}
	newest := max(len(lib["/lib/base.js"]), len(lib["/lib/left.js"]), len(lib["/lib/right.js"]))
	if !bundle.Modified.Equal(time.Unix(int64(newest), 0)) {
		t.Errorf("got modified %v", bundle.Modified)
	}
	if loads != 3 {
		t.Errorf("got %v loads, want 3", loads)
	}
	if _, err := b.Bundle(context.Background(), "/rooms/2.js", "// @import /lib/right.js\n"); err != nil {
		t.Fatal(err)
	}
	if loads != 3 {
		t.Errorf("cached files were loaded again, %v loads", loads)
	}
	b.ForgetAll()
	if _, err := b.Bundle(context.Background(), "/rooms/2.js", "// @import /lib/right.js\n"); err != nil {
		t.Fatal(err)
	}
	if loads != 5 {
		t.Errorf("got %v loads after ForgetAll, want 5", loads)
	}
}

func TestBundleErrors(t *testing.T) {
	loads := 0
	lib := library{
		"/lib/a.js": "// @import ./b.js\n",
		"/lib/b.js": "// @import ./a.js\n",
	}
	b := NewBundler(lib.load(&loads))
	if _, err := b.Bundle(context.Background(), "/rooms/1.js", "// @import /lib/a.js\n"); err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Errorf("got %v, want cycle error", err)
	}
	if _, err := b.Bundle(context.Background(), "/rooms/1.js", "// @import /lib/missing.js\n"); err == nil {
		t.Errorf("missing import succeeded")
	}
	if _, err := NewBundler(nil).Bundle(context.Background(), "/rooms/1.js", "// @import /lib/a.js\n"); err == nil {
		t.Errorf("import without library succeeded")
	}
	if bundle, err := NewBundler(nil).Bundle(context.Background(), "/rooms/1.js", "var x;"); err != nil || bundle.Source != "var x;\n" {
		t.Errorf("got %+v, %v", bundle, err)
	}
}

func TestDir(t *testing.T) {
	dir, err := os.MkdirTemp("", "juiceroom-imports-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	if err := os.MkdirAll(filepath.Join(dir, "lib"), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "lib", "util.js"), []byte("var util = 1;\n"), 0600); err != nil {
		t.Fatal(err)
	}
	load := Dir(dir)
	f, err := load(context.Background(), "/lib/util.js")
	if err != nil {
		t.Fatal(err)
	}
	if f.Text != "var util = 1;\n" || f.Modified.IsZero() {
		t.Errorf("got %+v", f)
	}
	if f, err := load(context.Background(), "/../lib/util.js"); err != nil || f.Text != "var util = 1;\n" {
		t.Errorf("escaping path not confined to root: %+v, %v", f, err)
	}
	if _, err := load(context.Background(), "/lib/missing.js"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, want %v", err, os.ErrNotExist)
	}
}
