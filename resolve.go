package liveimage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// ProcessingDecision is the terminal result of classification plus
// resolution for one node: either a skip with a human-readable reason, or a
// resolved path to feed the variant generator. Computed once per node and
// never revised.
type ProcessingDecision struct {
	Reason   string
	Resolved *ResolvedPath
}

// Process reports whether the node should be processed.
func (d ProcessingDecision) Process() bool { return d.Resolved != nil }

func skip(reason string) ProcessingDecision {
	return ProcessingDecision{Reason: reason}
}

// ResolvedPath locates a readable input image and fixes the deterministic
// output naming scheme derived from its base name and extension. Because the
// names depend only on (base, size, format), repeated runs can detect and
// reuse existing outputs instead of regenerating them.
type ResolvedPath struct {
	// InputPath is the readable source file on disk (local or downloaded).
	InputPath string
	// OutputDir is the on-disk directory generated files are written to.
	OutputDir string
	// URLPrefix is the URL path prefix generated files are served under.
	URLPrefix string

	base string // file name without extension
	ext  string // extension including the dot
}

// SizeOutput names the generated artifacts for one target size.
type SizeOutput struct {
	RasterPath    string
	RasterURL     string
	AltFormatPath string
	AltFormatURL  string
}

// SizeOutputs is a pure function of the resolved input and the requested
// size: the same size always yields the same names.
func (r *ResolvedPath) SizeOutputs(size int, altExt string) SizeOutput {
	raster := fmt.Sprintf("%s-%d%s", r.base, size, r.ext)
	out := SizeOutput{
		RasterPath: filepath.Join(r.OutputDir, raster),
		RasterURL:  path.Join(r.URLPrefix, raster),
	}
	if altExt != "" {
		alt := fmt.Sprintf("%s-%d.%s", r.base, size, altExt)
		out.AltFormatPath = filepath.Join(r.OutputDir, alt)
		out.AltFormatURL = path.Join(r.URLPrefix, alt)
	}
	return out
}

// SingleOutput names the whole-image (non-multi-size) artifact.
func (r *ResolvedPath) SingleOutput() (string, string) {
	name := r.base + r.ext
	return filepath.Join(r.OutputDir, name), path.Join(r.URLPrefix, name)
}

// absoluteURL matches values with an optional scheme followed by "//",
// covering https://, http:// and protocol-relative references.
var absoluteURL = regexp.MustCompile(`^(?:[a-zA-Z][a-zA-Z0-9+.-]*:)?//`)

// resolve turns a raw attribute value into a processing decision. parentDir
// is the directory of the component file being rewritten; relative values
// are tried there first, then against the configured source root.
func (p *Preprocessor) resolve(ctx context.Context, attr Attribute, parentDir string, allowed []string) ProcessingDecision {
	if attr.Dynamic {
		return skip(SkipDynamicValue)
	}
	value := strings.TrimSpace(attr.Value)
	if value == "" {
		return skip(SkipBlankSrc)
	}
	if !extensionAllowed(value, allowed) {
		return skip(SkipExtension)
	}

	var input string
	if absoluteURL.MatchString(value) {
		if !p.opts.OptimizeRemote {
			return skip(SkipRemoteDisabled)
		}
		local, err := p.downloads.Fetch(ctx, value)
		if err != nil {
			p.opts.Logger.Warn("remote image fetch failed", "url", value, "err", err)
			return skip(SkipFetchFailed)
		}
		if local == "" {
			return skip(SkipNotAnImage)
		}
		input = local
	} else {
		found, ok := p.findLocal(value, parentDir)
		if !ok {
			return skip(SkipFileNotFound)
		}
		input = found
	}

	rp := &ResolvedPath{
		InputPath: input,
		OutputDir: filepath.Join(p.opts.PublicDir, p.opts.OutputDir),
		URLPrefix: p.opts.OutputDir,
	}
	rp.ext = filepath.Ext(input)
	rp.base = strings.TrimSuffix(filepath.Base(input), rp.ext)

	// Output directory creation tolerates concurrent creators; generated
	// file names are deterministic so later steps can reuse what exists.
	if err := os.MkdirAll(rp.OutputDir, 0o755); err != nil {
		p.opts.Logger.Warn("failed to create output directory", "dir", rp.OutputDir, "err", err)
		return skip(SkipFileNotFound)
	}
	return ProcessingDecision{Resolved: rp}
}

// findLocal tries the consuming file's directory first, then the configured
// source root. First existing file wins.
func (p *Preprocessor) findLocal(value, parentDir string) (string, bool) {
	candidates := []string{
		filepath.Join(parentDir, value),
		filepath.Join(p.opts.SourceDir, strings.TrimPrefix(value, "/")),
	}
	for _, c := range candidates {
		if st, err := os.Stat(c); err == nil && !st.IsDir() {
			return c, true
		}
	}
	return "", false
}

// stageOriginal copies the resolved source into the output area under its
// plain name, so the served tree has the full-size original available as the
// component's fallback src. An existing copy is left alone, which keeps
// repeated runs idempotent.
func (p *Preprocessor) stageOriginal(rp *ResolvedPath) error {
	dst, _ := rp.SingleOutput()
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	return copyFile(rp.InputPath, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
