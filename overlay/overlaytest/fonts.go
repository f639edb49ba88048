// Package overlaytest provides font fixtures for tests that need a working
// overlay.
package overlaytest

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/algoverse/cartoonbooth/overlay"
)

// WriteFonts writes TrueType stand-ins for every font file named by
// overlay.DefaultLabels into a temporary directory and returns it.
func WriteFonts(t testing.TB) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string][]byte{
		"times.ttf":  goregular.TTF,
		"impact.ttf": gobold.TTF,
	}
	for _, l := range overlay.DefaultLabels {
		data, ok := files[l.FontFile]
		if !ok {
			data = goregular.TTF
		}
		if err := os.WriteFile(filepath.Join(dir, l.FontFile), data, 0o644); err != nil {
			t.Fatalf("write font %s: %v", l.FontFile, err)
		}
	}
	return dir
}

// Load returns an overlay with the default labels backed by WriteFonts.
func Load(t testing.TB) *overlay.Overlay {
	t.Helper()
	o, err := overlay.Load(WriteFonts(t), overlay.DefaultLabels)
	if err != nil {
		t.Fatalf("load overlay: %v", err)
	}
	return o
}
