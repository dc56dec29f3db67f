package liveimage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPDownloaderRejectsNonImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>not an image</html>"))
	}))
	defer srv.Close()

	dl := newHTTPDownloader(5 * time.Second)
	got, err := dl.Download(context.Background(), srv.URL+"/a.png", t.TempDir())
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if got != "" {
		t.Errorf("non-image response produced file %q", got)
	}
}

func TestHTTPDownloaderWritesImage(t *testing.T) {
	payload := []byte("fake-jpeg-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dl := newHTTPDownloader(5 * time.Second)
	got, err := dl.Download(context.Background(), srv.URL+"/a.jpg", dir)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if filepath.Ext(got) != ".jpg" {
		t.Errorf("extension = %q, want .jpg", filepath.Ext(got))
	}
	data, err := os.ReadFile(got)
	if err != nil || string(data) != string(payload) {
		t.Errorf("downloaded content mismatch: %v", err)
	}
}

func TestHTTPDownloaderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	dl := newHTTPDownloader(5 * time.Second)
	if _, err := dl.Download(context.Background(), srv.URL+"/a.jpg", t.TempDir()); err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestDownloadCacheReusesCompletedDownload(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cache := newDownloadCache(dir, newHTTPDownloader(5*time.Second), quietLogger())
	defer cache.Close()

	url := srv.URL + "/remote.png"
	first, err := cache.Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	second, err := cache.Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
	if first != second {
		t.Errorf("cache returned different paths: %q vs %q", first, second)
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}
}

func TestDownloadCacheRefetchesStalePartial(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("complete-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	url := srv.URL + "/remote.png"

	// Simulate an interrupted fetch: a file with the URL's key prefix but
	// no index row recording completion.
	stale := filepath.Join(dir, urlKey(url)+".png")
	if err := os.WriteFile(stale, []byte("parti"), 0o644); err != nil {
		t.Fatal(err)
	}

	cache := newDownloadCache(dir, newHTTPDownloader(5*time.Second), quietLogger())
	defer cache.Close()

	got, err := cache.Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "complete-bytes" {
		t.Errorf("stale partial was trusted: %q", data)
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}
}

func TestDownloadCacheVanishedFileRefetched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cache := newDownloadCache(dir, newHTTPDownloader(5*time.Second), quietLogger())
	defer cache.Close()

	url := srv.URL + "/remote.png"
	first, err := cache.Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	if err := os.Remove(first); err != nil {
		t.Fatal(err)
	}

	second, err := cache.Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("refetch failed: %v", err)
	}
	if _, err := os.Stat(second); err != nil {
		t.Errorf("refetched file missing: %v", err)
	}
}

func TestDownloadCachePropagatesNonImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cache := newDownloadCache(dir, newHTTPDownloader(5*time.Second), quietLogger())
	defer cache.Close()

	got, err := cache.Fetch(context.Background(), srv.URL+"/data.json")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if got != "" {
		t.Errorf("non-image cached as %q", got)
	}
}

func TestURLKeyStable(t *testing.T) {
	a := urlKey("https://example.com/a.png")
	b := urlKey("https://example.com/a.png")
	c := urlKey("https://example.com/b.png")
	if a != b {
		t.Error("urlKey not stable for identical URLs")
	}
	if a == c {
		t.Error("urlKey collides for different URLs")
	}
	if len(a) != 20 {
		t.Errorf("urlKey length = %d, want 20", len(a))
	}
}

func TestExtForContentType(t *testing.T) {
	cases := []struct{ ct, want string }{
		{"image/jpeg", ".jpg"},
		{"image/png", ".png"},
		{"image/webp", ".webp"},
		{"image/png; charset=binary", ".png"},
	}
	for _, tc := range cases {
		if got := extForContentType(tc.ct); got != tc.want {
			t.Errorf("extForContentType(%q) = %q, want %q", tc.ct, got, tc.want)
		}
	}
}

func TestRewriteRemoteImageEndToEnd(t *testing.T) {
	env := newTestEnv(t, nil)
	file := filepath.Join(env.src, "page.html")

	// The stub downloader stores remote bytes under the URL key with a
	// .jpg extension; variants are then derived from that local file.
	source := `<img src="https://example.com/pics/hero.jpg">`
	got := env.pre.Rewrite(source, file)
	if got == source {
		t.Fatal("remote image was not processed")
	}
	if !strings.Contains(got, `src="g/`+urlKey("https://example.com/pics/hero.jpg")) {
		t.Errorf("rewritten URL not derived from cache key: %q", got)
	}
}
