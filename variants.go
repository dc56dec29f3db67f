package liveimage

import (
	"context"
	"os"
)

// Variant is one derived rendition of a source image at a target width.
type Variant struct {
	// Size is the configured target width this variant was requested at.
	Size int
	// Width and Height are the actual dimensions of the generated raster.
	Width  int
	Height int
	// Breakpoint is the display-width hint paired with Size by position in
	// the configured lists.
	Breakpoint int
	URL        string
	// AltFormatAvailable reports whether the alternate-format sibling file
	// exists for this variant.
	AltFormatAvailable bool
}

// VariantSet is the ordered result of multi-size generation for one node.
// Ordering follows the configured size list, not the completion order of any
// concurrent work.
type VariantSet struct {
	Variants []Variant
	Natural  ImageInfo
}

// generateVariants derives the configured sizes from a resolved source.
// Natural metadata is read once; sizes exceeding the natural width are
// dropped (no upscaling). When even the smallest configured size exceeds the
// natural width, a single variant at the natural width is produced instead
// of an empty set. Existing output files are reused without recomputation.
func (p *Preprocessor) generateVariants(ctx context.Context, rp *ResolvedPath) (VariantSet, error) {
	info, err := p.backends.Metadata.ReadMetadata(rp.InputPath)
	if err != nil {
		return VariantSet{}, err
	}

	type candidate struct{ size, breakpoint int }
	var candidates []candidate

	smallest := p.opts.Sizes[0]
	for _, s := range p.opts.Sizes {
		if s < smallest {
			smallest = s
		}
	}
	if smallest > info.Width {
		candidates = []candidate{{size: info.Width, breakpoint: p.opts.Breakpoints[0]}}
	} else {
		for i, s := range p.opts.Sizes {
			if s > info.Width {
				continue
			}
			candidates = append(candidates, candidate{size: s, breakpoint: p.opts.Breakpoints[i]})
		}
	}

	altExt := ""
	if p.opts.AltFormat {
		altExt = p.backends.AltFormat.Ext()
	}
	enc := EncodeOptions{Quality: p.opts.Quality, CompressionLevel: p.opts.CompressionLevel}

	set := VariantSet{Natural: info}
	for _, c := range candidates {
		out := rp.SizeOutputs(c.size, altExt)

		var raster Raster
		if existing, err := os.Stat(out.RasterPath); err == nil && existing.Size() > 0 {
			meta, err := p.backends.Metadata.ReadMetadata(out.RasterPath)
			if err != nil {
				return VariantSet{}, err
			}
			raster = Raster{Path: out.RasterPath, Width: meta.Width, Height: meta.Height}
		} else {
			raster, err = p.backends.Raster.Derive(ctx, rp.InputPath, out.RasterPath, c.size, enc)
			if err != nil {
				return VariantSet{}, err
			}
		}

		altAvailable := false
		if altExt != "" {
			if _, err := os.Stat(out.AltFormatPath); err == nil {
				altAvailable = true
			} else if err := p.backends.AltFormat.Encode(ctx, rp.InputPath, out.AltFormatPath, p.opts.AltFormatOptions); err != nil {
				// The raster variant still stands; only the compact sibling
				// is missing.
				p.opts.Logger.Warn("alternate-format encode failed", "path", out.AltFormatPath, "err", err)
			} else {
				altAvailable = true
			}
		}

		set.Variants = append(set.Variants, Variant{
			Size:               c.size,
			Width:              raster.Width,
			Height:             raster.Height,
			Breakpoint:         c.breakpoint,
			URL:                out.RasterURL,
			AltFormatAvailable: altAvailable,
		})
	}

	return set, nil
}

// optimizeSingle handles whole-image (non-multi-size) optimization for plain
// <img> elements: below the inline threshold the original bytes are embedded
// as a data URI and no file is written; otherwise one optimized file is
// produced (or reused) and its URL returned.
func (p *Preprocessor) optimizeSingle(ctx context.Context, rp *ResolvedPath) (string, error) {
	info, err := p.backends.Metadata.ReadMetadata(rp.InputPath)
	if err != nil {
		return "", err
	}

	if p.opts.InlineBelow > 0 && info.ByteSize < p.opts.InlineBelow {
		data, err := os.ReadFile(rp.InputPath)
		if err != nil {
			return "", &BackendError{Op: "raster", Path: rp.InputPath, Err: err}
		}
		return inlineDataURI(data, rp.ext), nil
	}

	dst, url := rp.SingleOutput()
	if st, err := os.Stat(dst); err == nil && st.Size() > 0 {
		return url, nil // optimized on a previous run
	}
	enc := EncodeOptions{Quality: p.opts.Quality, CompressionLevel: p.opts.CompressionLevel}
	if _, err := p.backends.Raster.Derive(ctx, rp.InputPath, dst, info.Width, enc); err != nil {
		return "", err
	}
	return url, nil
}

// placeholder renders the configured low-fidelity stand-in for a processed
// component image.
func (p *Preprocessor) placeholder(ctx context.Context, rp *ResolvedPath) (string, error) {
	if p.opts.Placeholder == PlaceholderTrace {
		traced, err := p.backends.Tracer.Trace(rp.InputPath, p.opts.TraceOptions)
		if err != nil {
			return "", err
		}
		minified, err := p.backends.Minifier.Minify(traced)
		if err != nil {
			return "", err
		}
		return svgDataURI(minified), nil
	}

	enc := EncodeOptions{Quality: p.opts.Quality, CompressionLevel: p.opts.CompressionLevel}
	data, _, err := p.backends.Raster.DeriveInline(ctx, rp.InputPath, blurWidth, enc)
	if err != nil {
		return "", err
	}
	return inlineDataURI(data, rp.ext), nil
}

// blurWidth is the rendition width used for blur placeholders; large enough
// to blur up smoothly, small enough to stay a few hundred bytes.
const blurWidth = 64
