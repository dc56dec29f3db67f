package liveimage

import (
	"image/png"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileMetadataReadsPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dot.png")
	writePNG(t, path)

	info, err := fileMetadata{}.ReadMetadata(path)
	if err != nil {
		t.Fatalf("ReadMetadata failed: %v", err)
	}
	if info.Width != 1 || info.Height != 1 {
		t.Errorf("dimensions = %dx%d, want 1x1", info.Width, info.Height)
	}
	if info.ByteSize == 0 {
		t.Error("ByteSize not populated")
	}
}

func TestFileMetadataMissingFile(t *testing.T) {
	if _, err := (fileMetadata{}).ReadMetadata(filepath.Join(t.TempDir(), "nope.png")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSvgMinifierCompacts(t *testing.T) {
	in := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10">
	<path d="M 0 0 L 10 10" />
</svg>`
	out, err := svgMinifier{}.Minify(in)
	if err != nil {
		t.Fatalf("Minify failed: %v", err)
	}
	if len(out) >= len(in) {
		t.Errorf("minified output not smaller: %d vs %d bytes", len(out), len(in))
	}
	if !strings.Contains(out, "<svg") {
		t.Errorf("minified output lost the svg root: %q", out)
	}
}

func TestInjectSvgBackground(t *testing.T) {
	got := injectSvgBackground(`<svg viewBox="0 0 5 5"><path d="z"/></svg>`, "#fff")
	if !strings.Contains(got, `<svg viewBox="0 0 5 5"><rect`) {
		t.Errorf("background rect not injected after svg tag: %q", got)
	}
	if !strings.Contains(got, `fill="#fff"`) {
		t.Errorf("background color missing: %q", got)
	}
}

func TestPngLevelMapping(t *testing.T) {
	if pngLevel(9) != png.BestCompression {
		t.Error("level 9 should map to BestCompression")
	}
	if pngLevel(0) != png.BestSpeed {
		t.Error("level 0 should map to BestSpeed")
	}
	if pngLevel(5) != png.DefaultCompression {
		t.Error("level 5 should map to DefaultCompression")
	}
}
