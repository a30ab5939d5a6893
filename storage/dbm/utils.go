package dbm

import (
	"os"
	"path/filepath"
	"testing"
)

func withFile(t testing.TB, f func(string)) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)
	f(filepath.Join(tmpDir, "test"))
}

func WithHash(t testing.TB, f func(*Hash)) {
	t.Helper()
	withFile(t, func(path string) {
		h, err := OpenHash(path)
		if err != nil {
			t.Fatal(err)
		}
		defer h.Close()
		f(h)
	})
}

func WithTree(t testing.TB, f func(*Tree)) {
	t.Helper()
	withFile(t, func(path string) {
		tree, err := OpenTree(path)
		if err != nil {
			t.Fatal(err)
		}
		defer tree.Close()
		f(tree)
	})
}
