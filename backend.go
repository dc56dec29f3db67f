package liveimage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/dennwc/gotrace"
	"github.com/disintegration/imaging"
	"github.com/gen2brain/webp"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"
)

// Raster describes one derived raster file.
type Raster struct {
	Path   string
	Width  int
	Height int
}

// ImageInfo is the natural metadata of a source image.
type ImageInfo struct {
	Width    int
	Height   int
	ByteSize int64
}

// EncodeOptions carries the raster encoder parameters from Options.
type EncodeOptions struct {
	Quality          int
	CompressionLevel int
}

// RasterBackend resizes and re-encodes raster images. Derive writes the
// result to dst; DeriveInline returns the encoded bytes without touching the
// filesystem, for placeholders and inline embedding.
type RasterBackend interface {
	Derive(ctx context.Context, src, dst string, width int, enc EncodeOptions) (Raster, error)
	DeriveInline(ctx context.Context, src string, width int, enc EncodeOptions) ([]byte, Raster, error)
}

// AltEncoder emits the alternate compact format for a source image.
type AltEncoder interface {
	Encode(ctx context.Context, src, dst string, opts AltFormatOptions) error
	// Ext returns the format's file extension without the dot, e.g. "webp".
	Ext() string
}

// MetadataReader reads natural image metadata without decoding pixel data.
type MetadataReader interface {
	ReadMetadata(path string) (ImageInfo, error)
}

// Tracer produces a vector-trace SVG of an image.
type Tracer interface {
	Trace(path string, opts TraceOptions) (string, error)
}

// VectorMinifier compacts an SVG string.
type VectorMinifier interface {
	Minify(svg string) (string, error)
}

// Backends bundles the capability implementations a Preprocessor uses. Zero
// fields are filled with the package defaults in New, so callers only swap
// what they need (tests inject stubs the same way).
type Backends struct {
	Raster     RasterBackend
	AltFormat  AltEncoder
	Metadata   MetadataReader
	Tracer     Tracer
	Minifier   VectorMinifier
	Downloader Downloader
}

func (b *Backends) fillDefaults(opts *Options) {
	if b.Raster == nil {
		b.Raster = imagingBackend{}
	}
	if b.AltFormat == nil {
		b.AltFormat = webpEncoder{}
	}
	if b.Metadata == nil {
		b.Metadata = fileMetadata{}
	}
	if b.Tracer == nil {
		b.Tracer = potraceTracer{}
	}
	if b.Minifier == nil {
		b.Minifier = svgMinifier{}
	}
	if b.Downloader == nil {
		b.Downloader = newHTTPDownloader(opts.FetchTimeout)
	}
}

// imagingBackend is the default raster backend, built on
// github.com/disintegration/imaging. Output format follows the destination
// extension; unknown extensions fall back to JPEG.
type imagingBackend struct{}

func (imagingBackend) Derive(ctx context.Context, src, dst string, width int, enc EncodeOptions) (Raster, error) {
	if err := ctx.Err(); err != nil {
		return Raster{}, err
	}
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return Raster{}, &BackendError{Op: "raster", Path: src, Err: err}
	}
	resized := resizeToWidth(img, width)

	if err := imaging.Save(resized, dst, encodeOpts(dst, enc)...); err != nil {
		return Raster{}, &BackendError{Op: "raster", Path: dst, Err: err}
	}
	b := resized.Bounds()
	return Raster{Path: dst, Width: b.Dx(), Height: b.Dy()}, nil
}

func (imagingBackend) DeriveInline(ctx context.Context, src string, width int, enc EncodeOptions) ([]byte, Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, Raster{}, err
	}
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return nil, Raster{}, &BackendError{Op: "raster", Path: src, Err: err}
	}
	resized := resizeToWidth(img, width)

	var buf bytes.Buffer
	format := imaging.JPEG
	if strings.EqualFold(filepath.Ext(src), ".png") {
		format = imaging.PNG
	}
	if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(enc.Quality)); err != nil {
		return nil, Raster{}, &BackendError{Op: "raster", Path: src, Err: err}
	}
	b := resized.Bounds()
	return buf.Bytes(), Raster{Width: b.Dx(), Height: b.Dy()}, nil
}

// resizeToWidth scales preserving aspect ratio and never upscales.
func resizeToWidth(img image.Image, width int) image.Image {
	if width >= img.Bounds().Dx() {
		return img
	}
	return imaging.Resize(img, width, 0, imaging.Lanczos)
}

func encodeOpts(dst string, enc EncodeOptions) []imaging.EncodeOption {
	if strings.EqualFold(filepath.Ext(dst), ".png") {
		return []imaging.EncodeOption{imaging.PNGCompressionLevel(pngLevel(enc.CompressionLevel))}
	}
	return []imaging.EncodeOption{imaging.JPEGQuality(enc.Quality)}
}

// pngLevel maps the 0-9 compression knob onto the stdlib's coarse levels.
func pngLevel(level int) png.CompressionLevel {
	switch {
	case level >= 7:
		return png.BestCompression
	case level <= 2:
		return png.BestSpeed
	default:
		return png.DefaultCompression
	}
}

// webpEncoder is the default alternate-format encoder, built on the pure-Go
// github.com/gen2brain/webp.
type webpEncoder struct{}

func (webpEncoder) Ext() string { return "webp" }

func (webpEncoder) Encode(ctx context.Context, src, dst string, opts AltFormatOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return &BackendError{Op: "alt-format", Path: src, Err: err}
	}
	out, err := os.Create(dst)
	if err != nil {
		return &BackendError{Op: "alt-format", Path: dst, Err: err}
	}
	defer out.Close()

	quality := opts.Quality
	if quality == 0 {
		quality = 75
	}
	if err := webp.Encode(out, img, webp.Options{Quality: quality}); err != nil {
		return &BackendError{Op: "alt-format", Path: dst, Err: err}
	}
	return nil
}

// fileMetadata reads dimensions via image.DecodeConfig, which parses headers
// only, plus the byte size from a stat.
type fileMetadata struct{}

func (fileMetadata) ReadMetadata(path string) (ImageInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImageInfo{}, &BackendError{Op: "metadata", Path: path, Err: err}
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return ImageInfo{}, &BackendError{Op: "metadata", Path: path, Err: err}
	}
	st, err := f.Stat()
	if err != nil {
		return ImageInfo{}, &BackendError{Op: "metadata", Path: path, Err: err}
	}
	return ImageInfo{Width: cfg.Width, Height: cfg.Height, ByteSize: st.Size()}, nil
}

// potraceTracer is the default vector tracer, built on the potrace port
// github.com/dennwc/gotrace.
type potraceTracer struct{}

func (potraceTracer) Trace(path string, opts TraceOptions) (string, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return "", &BackendError{Op: "trace", Path: path, Err: err}
	}

	threshold := opts.Threshold
	if threshold == 0 {
		threshold = 120
	}
	bm := gotrace.NewBitmapFromImage(img, func(x, y int, c color.Color) bool {
		r, g, b, _ := c.RGBA()
		luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		return luma < threshold
	})

	paths, err := gotrace.Trace(bm, nil)
	if err != nil {
		return "", &BackendError{Op: "trace", Path: path, Err: err}
	}

	var buf bytes.Buffer
	if err := gotrace.WriteSvg(&buf, img.Bounds(), paths, opts.Color); err != nil {
		return "", &BackendError{Op: "trace", Path: path, Err: err}
	}

	out := buf.String()
	if opts.Background != "" {
		out = injectSvgBackground(out, opts.Background)
	}
	return out, nil
}

// injectSvgBackground inserts a full-size rect right after the opening <svg>
// tag so the trace renders over the configured background color.
func injectSvgBackground(svgText, background string) string {
	i := strings.Index(svgText, ">")
	if i < 0 {
		return svgText
	}
	rect := fmt.Sprintf(`<rect x="0" y="0" width="100%%" height="100%%" fill="%s"/>`, background)
	return svgText[:i+1] + rect + svgText[i+1:]
}

var (
	svgMinify     *minify.M
	svgMinifyOnce sync.Once
)

// getSvgMinifier returns a configured SVG minifier (singleton).
func getSvgMinifier() *minify.M {
	svgMinifyOnce.Do(func() {
		svgMinify = minify.New()
		svgMinify.AddFunc("image/svg+xml", svg.Minify)
	})
	return svgMinify
}

// svgMinifier is the default vector minifier, built on tdewolff/minify.
type svgMinifier struct{}

func (svgMinifier) Minify(svgText string) (string, error) {
	out, err := getSvgMinifier().String("image/svg+xml", svgText)
	if err != nil {
		// A minify failure is not worth losing the placeholder over.
		return svgText, nil
	}
	return out, nil
}
