package liveimage

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// Test doubles for the backend capabilities. They avoid real image codecs so
// the pipeline tests can run on arbitrary fixture bytes, and they record
// calls so tests can assert on reuse behavior.

type stubMetadata struct {
	mu    sync.Mutex
	infos map[string]ImageInfo
	calls []string
}

func newStubMetadata() *stubMetadata {
	return &stubMetadata{infos: map[string]ImageInfo{}}
}

func (m *stubMetadata) set(path string, info ImageInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos[path] = info
}

func (m *stubMetadata) ReadMetadata(path string) (ImageInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, path)
	if info, ok := m.infos[path]; ok {
		return info, nil
	}
	st, err := os.Stat(path)
	if err != nil {
		return ImageInfo{}, err
	}
	// Derived files default to plausible metadata keyed off nothing; tests
	// that care register explicit entries.
	return ImageInfo{Width: 100, Height: 60, ByteSize: st.Size()}, nil
}

type stubRaster struct {
	natural ImageInfo

	mu      sync.Mutex
	derived []string
}

func (r *stubRaster) dims(width int) (int, int) {
	if r.natural.Width > 0 && width > r.natural.Width {
		width = r.natural.Width
	}
	height := width
	if r.natural.Width > 0 {
		height = width * r.natural.Height / r.natural.Width
	}
	return width, height
}

func (r *stubRaster) Derive(_ context.Context, src, dst string, width int, _ EncodeOptions) (Raster, error) {
	r.mu.Lock()
	r.derived = append(r.derived, dst)
	r.mu.Unlock()
	if err := os.WriteFile(dst, []byte("raster:"+src), 0o644); err != nil {
		return Raster{}, err
	}
	w, h := r.dims(width)
	return Raster{Path: dst, Width: w, Height: h}, nil
}

func (r *stubRaster) DeriveInline(_ context.Context, src string, width int, _ EncodeOptions) ([]byte, Raster, error) {
	w, h := r.dims(width)
	return []byte("inline:" + src), Raster{Width: w, Height: h}, nil
}

func (r *stubRaster) deriveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.derived)
}

type stubAltEncoder struct {
	fail bool

	mu      sync.Mutex
	encoded []string
}

func (e *stubAltEncoder) Ext() string { return "webp" }

func (e *stubAltEncoder) Encode(_ context.Context, src, dst string, _ AltFormatOptions) error {
	if e.fail {
		return fmt.Errorf("encode refused")
	}
	e.mu.Lock()
	e.encoded = append(e.encoded, dst)
	e.mu.Unlock()
	return os.WriteFile(dst, []byte("webp:"+src), 0o644)
}

type stubTracer struct{ svg string }

func (t stubTracer) Trace(string, TraceOptions) (string, error) {
	if t.svg == "" {
		return "<svg viewBox=\"0 0 10 10\"><path d=\"M0 0h10v10z\"/></svg>", nil
	}
	return t.svg, nil
}

type identityMinifier struct{}

func (identityMinifier) Minify(svg string) (string, error) { return svg, nil }

type stubDownloader struct {
	content     []byte
	contentType string
	err         error

	mu    sync.Mutex
	calls int
}

func (d *stubDownloader) Download(_ context.Context, url, destDir string) (string, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.err != nil {
		return "", d.err
	}
	if d.contentType != "" && d.contentType != "image/jpeg" && d.contentType != "image/png" {
		return "", nil
	}
	dst := filepath.Join(destDir, urlKey(url)+".jpg")
	return dst, os.WriteFile(dst, d.content, 0o644)
}

// testEnv is a throwaway project layout with a preprocessor wired to stub
// backends.
type testEnv struct {
	src      string
	public   string
	pre      *Preprocessor
	raster   *stubRaster
	metadata *stubMetadata
	alt      *stubAltEncoder
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newTestEnv builds an environment with one source image of the given
// natural dimensions at <src>/photo.jpg.
func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()

	root := t.TempDir()
	srcDir := filepath.Join(root, "src")
	publicDir := filepath.Join(root, "static")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		t.Fatal(err)
	}

	natural := ImageInfo{Width: 1000, Height: 600, ByteSize: 50000}
	photo := filepath.Join(srcDir, "photo.jpg")
	if err := os.WriteFile(photo, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := DefaultOptions()
	opts.SourceDir = srcDir
	opts.PublicDir = publicDir
	opts.DownloadDir = filepath.Join(root, "cache")
	opts.OptimizeAll = true
	opts.Logger = quietLogger()
	if mutate != nil {
		mutate(&opts)
	}

	metadata := newStubMetadata()
	metadata.set(photo, natural)
	raster := &stubRaster{natural: natural}
	alt := &stubAltEncoder{}

	pre, err := NewWithBackends(opts, Backends{
		Raster:     raster,
		AltFormat:  alt,
		Metadata:   metadata,
		Tracer:     stubTracer{},
		Minifier:   identityMinifier{},
		Downloader: &stubDownloader{content: []byte("remote"), contentType: "image/jpeg"},
	})
	if err != nil {
		t.Fatalf("NewWithBackends failed: %v", err)
	}
	t.Cleanup(func() { pre.Close() })

	return &testEnv{
		src:      srcDir,
		public:   publicDir,
		pre:      pre,
		raster:   raster,
		metadata: metadata,
		alt:      alt,
	}
}

// writePNG writes a real 1x1 PNG, for tests that exercise the default
// metadata reader.
func writePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatal(err)
	}
}
