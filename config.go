package liveimage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// PlaceholderStrategy selects the low-fidelity stand-in emitted for a
// processed component image.
type PlaceholderStrategy string

const (
	// PlaceholderBlur inlines a tiny raster rendition as a base64 data URI.
	PlaceholderBlur PlaceholderStrategy = "blur"
	// PlaceholderTrace inlines a minified vector trace of the image.
	PlaceholderTrace PlaceholderStrategy = "trace"
)

// TraceOptions are passed through to the vector-trace backend when the trace
// placeholder strategy is selected.
type TraceOptions struct {
	Background string  `yaml:"background"`
	Color      string  `yaml:"color"`
	Threshold  float64 `yaml:"threshold"`
}

// AltFormatOptions are encoder parameters for the alternate compact format
// (WebP by default).
type AltFormatOptions struct {
	Quality int `yaml:"quality" validate:"min=0,max=100"`
}

// Options configures a Preprocessor. The value is copied in New and never
// read from again by reference, so callers cannot mutate a running
// preprocessor by holding on to it.
type Options struct {
	// OptimizeAll treats every plain <img> element as eligible, independent
	// of the component tag name.
	OptimizeAll bool `yaml:"optimize_all"`

	// TagName identifies the image component node kind, e.g. "Image".
	TagName string `yaml:"tag_name" validate:"required"`

	// ImgTagExtensions and ComponentExtensions are per-kind allow-lists of
	// file extensions (without the dot). An empty list accepts any extension.
	ImgTagExtensions    []string `yaml:"img_tag_extensions"`
	ComponentExtensions []string `yaml:"component_extensions"`

	// Sizes are the target widths to generate; Breakpoints are the display
	// widths paired with them positionally when building srcset hints. The
	// two lists must have the same length and stay in the same order.
	Sizes       []int `yaml:"sizes" validate:"required,min=1,dive,gt=0"`
	Breakpoints []int `yaml:"breakpoints" validate:"required,min=1,dive,gt=0"`

	// InlineBelow is a byte-size threshold; single-image optimization of a
	// source smaller than this embeds the data inline instead of writing a
	// file. Zero disables inlining.
	InlineBelow int64 `yaml:"inline_below" validate:"min=0"`

	// Quality is the lossy encoder quality (JPEG); CompressionLevel the
	// lossless compression effort (PNG).
	Quality          int `yaml:"quality" validate:"min=0,max=100"`
	CompressionLevel int `yaml:"compression_level" validate:"min=0,max=9"`

	// PublicDir is the web root on disk, OutputDir the directory under it
	// where generated files land, SourceDir the project source root used as
	// the fallback base when resolving relative paths.
	PublicDir string `yaml:"public_dir" validate:"required"`
	OutputDir string `yaml:"output_dir" validate:"required"`
	SourceDir string `yaml:"source_dir" validate:"required"`

	// Placeholder selects the stand-in strategy for component images.
	Placeholder PlaceholderStrategy `yaml:"placeholder" validate:"oneof=blur trace"`

	// AltFormat enables emitting a second, compact-format file per variant.
	AltFormat        bool             `yaml:"alt_format"`
	AltFormatOptions AltFormatOptions `yaml:"alt_format_options"`

	// TraceOptions configure the vector-trace backend.
	TraceOptions TraceOptions `yaml:"trace_options"`

	// OptimizeRemote controls whether absolute URLs are downloaded and
	// processed at all.
	OptimizeRemote bool `yaml:"optimize_remote"`

	// DownloadDir is where remote images and their index are cached. It is
	// deliberately outside PublicDir so cache bookkeeping is never deployed.
	DownloadDir string `yaml:"download_dir" validate:"required"`

	// FetchTimeout bounds a single remote download attempt. There is no
	// automatic retry.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// Logger receives per-node skip diagnostics and backend failures.
	// Defaults to slog.Default().
	Logger *slog.Logger `yaml:"-"`
}

// DefaultOptions returns the options used when a field is left zero. The
// defaults mirror common static-site layouts: sources under the project
// root, generated files under static/g.
func DefaultOptions() Options {
	return Options{
		TagName:             "Image",
		ImgTagExtensions:    []string{"jpg", "jpeg", "png"},
		ComponentExtensions: []string{},
		Sizes:               []int{400, 800, 1200},
		Breakpoints:         []int{375, 768, 1024},
		InlineBelow:         0,
		Quality:             70,
		CompressionLevel:    8,
		PublicDir:           "./static",
		OutputDir:           "g",
		SourceDir:           ".",
		Placeholder:         PlaceholderBlur,
		AltFormat:           true,
		AltFormatOptions:    AltFormatOptions{Quality: 75},
		TraceOptions:        TraceOptions{Background: "#fff", Color: "#002fa7", Threshold: 120},
		OptimizeRemote:      true,
		DownloadDir:         filepath.Join(".liveimage", "remote"),
		FetchTimeout:        30 * time.Second,
	}
}

// ConfigFileName is the per-project configuration file LoadOptions and the
// liveimg CLI look for.
const ConfigFileName = "liveimage.yaml"

// LoadOptions reads options from a YAML file, layering the file's values over
// DefaultOptions. A missing file is not an error; the defaults are returned.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return opts, nil
	}
	if err != nil {
		return opts, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("failed to parse config file: %w", err)
	}

	return opts, nil
}

var validate = validator.New()

// normalize fills zero-valued fields from the defaults and cleans paths so
// the rest of the package can join them without re-checking.
func (o *Options) normalize() {
	def := DefaultOptions()
	if o.TagName == "" {
		o.TagName = def.TagName
	}
	if o.ImgTagExtensions == nil {
		// A nil list means unconfigured; an explicit empty list means any
		// extension is acceptable.
		o.ImgTagExtensions = def.ImgTagExtensions
	}
	if len(o.Sizes) == 0 {
		o.Sizes = def.Sizes
	}
	if len(o.Breakpoints) == 0 {
		o.Breakpoints = def.Breakpoints
	}
	if o.Quality == 0 {
		o.Quality = def.Quality
	}
	if o.PublicDir == "" {
		o.PublicDir = def.PublicDir
	}
	if o.OutputDir == "" {
		o.OutputDir = def.OutputDir
	}
	if o.SourceDir == "" {
		o.SourceDir = def.SourceDir
	}
	if o.Placeholder == "" {
		o.Placeholder = def.Placeholder
	}
	if o.DownloadDir == "" {
		o.DownloadDir = def.DownloadDir
	}
	if o.FetchTimeout == 0 {
		o.FetchTimeout = def.FetchTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	o.PublicDir = filepath.Clean(o.PublicDir)
	o.SourceDir = filepath.Clean(o.SourceDir)
}

// validateOptions checks structural constraints once at construction time.
func (o *Options) validateOptions() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	if len(o.Sizes) != len(o.Breakpoints) {
		return fmt.Errorf("invalid options: sizes (%d) and breakpoints (%d) must pair positionally", len(o.Sizes), len(o.Breakpoints))
	}
	return nil
}
