package liveimage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"
)

// Downloader fetches a remote image into destDir and returns the local path.
// An empty path with a nil error signals that the response was not an image;
// the caller turns that into a skip rather than an error.
type Downloader interface {
	Download(ctx context.Context, url, destDir string) (string, error)
}

// urlKey derives the stable cache key for a remote URL: a blake3 content
// hash of the URL text. Two runs (or two concurrent nodes) referencing the
// same URL therefore share one cached file.
func urlKey(url string) string {
	sum := blake3.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:20]
}

// extForContentType maps an image content type to a file extension.
func extForContentType(ct string) string {
	ct = strings.TrimSpace(strings.Split(ct, ";")[0])
	switch ct {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	}
	if exts, err := mime.ExtensionsByType(ct); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".img"
}

// httpDownloader is the default Downloader: a single timeout-bounded GET
// with no retry. Retry policy, if any, belongs to a wrapping implementation.
type httpDownloader struct {
	client *http.Client
}

func newHTTPDownloader(timeout time.Duration) *httpDownloader {
	return &httpDownloader{client: &http.Client{Timeout: timeout}}
}

func (d *httpDownloader) Download(ctx context.Context, url, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &BackendError{Op: "download", Path: url, Err: err}
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", &BackendError{Op: "download", Path: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &BackendError{Op: "download", Path: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "image/") {
		return "", nil // declared content type is not an image
	}

	name := urlKey(url) + extForContentType(ct)
	dst := filepath.Join(destDir, name)

	out, err := os.Create(dst)
	if err != nil {
		return "", &BackendError{Op: "download", Path: dst, Err: err}
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(dst)
		return "", &BackendError{Op: "download", Path: dst, Err: err}
	}
	if err := out.Close(); err != nil {
		return "", &BackendError{Op: "download", Path: dst, Err: err}
	}
	return dst, nil
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

// downloadCache deduplicates remote fetches by URL hash. Completed downloads
// are recorded in a SQLite index next to the files; a file on disk without an
// index row is treated as a stale partial download from an interrupted fetch
// and re-fetched rather than trusted.
type downloadCache struct {
	dir string
	dl  Downloader
	log *slog.Logger

	mu sync.Mutex
	db *sql.DB
}

func newDownloadCache(dir string, dl Downloader, log *slog.Logger) *downloadCache {
	return &downloadCache{dir: dir, dl: dl, log: log}
}

// open lazily creates the cache directory and its index. Called with mu held.
func (c *downloadCache) open(ctx context.Context) error {
	if c.db != nil {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create download cache directory: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(c.dir, "downloads.db"))
	if err != nil {
		return fmt.Errorf("failed to open download index: %w", err)
	}

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to init download index migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to migrate download index: %w", err)
	}

	c.db = db
	return nil
}

// Close releases the index handle. Safe to call on an unused cache.
func (c *downloadCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// Fetch returns a local file for the URL, reusing a completed download when
// the index has one. Returns "" with nil error when the remote content is
// not an image.
func (c *downloadCache) Fetch(ctx context.Context, url string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.open(ctx); err != nil {
		return "", err
	}
	key := urlKey(url)

	var cached string
	err := c.db.QueryRowContext(ctx, `SELECT path FROM remote_downloads WHERE key = ?`, key).Scan(&cached)
	switch {
	case err == nil:
		if _, statErr := os.Stat(cached); statErr == nil {
			return cached, nil
		}
		// Indexed file vanished; fall through to a fresh fetch.
		if _, delErr := c.db.ExecContext(ctx, `DELETE FROM remote_downloads WHERE key = ?`, key); delErr != nil {
			return "", fmt.Errorf("failed to drop stale index row: %w", delErr)
		}
	case err != sql.ErrNoRows:
		return "", fmt.Errorf("failed to query download index: %w", err)
	}

	// Remove unindexed files with this key prefix: leftovers of an
	// interrupted fetch.
	if stale, _ := filepath.Glob(filepath.Join(c.dir, key+".*")); len(stale) > 0 {
		for _, f := range stale {
			c.log.Debug("removing stale partial download", "path", f)
			os.Remove(f)
		}
	}

	local, err := c.dl.Download(ctx, url, c.dir)
	if err != nil || local == "" {
		return local, err
	}

	if _, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO remote_downloads (key, url, path) VALUES (?, ?, ?)`,
		key, url, local); err != nil {
		return "", fmt.Errorf("failed to record download: %w", err)
	}
	return local, nil
}
