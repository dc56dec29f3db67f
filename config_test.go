package liveimage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.TagName != "Image" {
		t.Errorf("TagName = %q", opts.TagName)
	}
	if len(opts.Sizes) != len(opts.Breakpoints) {
		t.Errorf("default sizes (%d) and breakpoints (%d) differ in length", len(opts.Sizes), len(opts.Breakpoints))
	}
	if opts.Placeholder != PlaceholderBlur {
		t.Errorf("Placeholder = %q", opts.Placeholder)
	}
}

func TestLoadOptionsMissingFileReturnsDefaults(t *testing.T) {
	opts, err := LoadOptions(filepath.Join(t.TempDir(), ConfigFileName))
	if err != nil {
		t.Fatalf("LoadOptions failed: %v", err)
	}
	if opts.TagName != "Image" {
		t.Errorf("missing file did not yield defaults: %+v", opts)
	}
}

func TestLoadOptionsLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	content := `
tag_name: Picture
sizes: [320, 640]
breakpoints: [320, 640]
placeholder: trace
optimize_all: true
inline_below: 5000
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	opts, err := LoadOptions(path)
	if err != nil {
		t.Fatalf("LoadOptions failed: %v", err)
	}
	if opts.TagName != "Picture" {
		t.Errorf("TagName = %q, want Picture", opts.TagName)
	}
	if len(opts.Sizes) != 2 || opts.Sizes[0] != 320 {
		t.Errorf("Sizes = %v", opts.Sizes)
	}
	if opts.Placeholder != PlaceholderTrace {
		t.Errorf("Placeholder = %q", opts.Placeholder)
	}
	if opts.InlineBelow != 5000 {
		t.Errorf("InlineBelow = %d", opts.InlineBelow)
	}
	// Untouched fields keep their defaults.
	if opts.Quality != 70 {
		t.Errorf("Quality = %d, want default 70", opts.Quality)
	}
	if opts.FetchTimeout != 30*time.Second {
		t.Errorf("FetchTimeout = %v, want default", opts.FetchTimeout)
	}
}

func TestLoadOptionsRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte("sizes: [not-a-number"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOptions(path); err == nil {
		t.Fatal("LoadOptions accepted malformed YAML")
	}
}
