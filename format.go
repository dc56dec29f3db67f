package liveimage

import (
	"encoding/base64"
	"fmt"
	"mime"
	"path"
	"strconv"
	"strings"
)

// Output formatting: pure functions from variant sets to attribute-value
// strings. Nothing here touches the filesystem or the backends.

// formatSrcset renders the comma-joined responsive list, pairing each
// variant with its breakpoint: "<url> <breakpoint>w". The pairing was fixed
// positionally at generation time; this function never reorders.
func formatSrcset(set VariantSet) string {
	entries := make([]string, 0, len(set.Variants))
	for _, v := range set.Variants {
		entries = append(entries, fmt.Sprintf("%s %dw", v.URL, v.Breakpoint))
	}
	return strings.Join(entries, ",")
}

// formatAltSrcset renders the alternate-format list by rewriting each URL's
// trailing file extension to altExt. Only the trailing extension is touched:
// a base name or directory that happens to contain "jpg" or "png" passes
// through untouched. Variants without an alternate-format file are omitted.
func formatAltSrcset(set VariantSet, altExt string) string {
	entries := make([]string, 0, len(set.Variants))
	for _, v := range set.Variants {
		if !v.AltFormatAvailable {
			continue
		}
		entries = append(entries, fmt.Sprintf("%s %dw", swapTrailingExt(v.URL, altExt), v.Breakpoint))
	}
	return strings.Join(entries, ",")
}

// swapTrailingExt replaces the final extension segment of url with newExt
// (given without the dot). A url with no extension gains one.
func swapTrailingExt(url, newExt string) string {
	ext := path.Ext(url)
	return strings.TrimSuffix(url, ext) + "." + newExt
}

// aspectRatio returns (height/width)*100 of the primary variant, the padding
// percentage that reserves layout space before the image loads.
func aspectRatio(set VariantSet) string {
	if len(set.Variants) == 0 {
		return ""
	}
	v := set.Variants[0]
	if v.Width == 0 {
		return ""
	}
	ratio := float64(v.Height) / float64(v.Width) * 100
	return strconv.FormatFloat(ratio, 'f', -1, 64)
}

// inlineDataURI embeds raw image bytes as a base64 data URI, inferring the
// media type from the file extension (given with or without the dot).
func inlineDataURI(data []byte, ext string) string {
	mediaType := mime.TypeByExtension("." + strings.TrimPrefix(ext, "."))
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data))
}

// svgEscaper covers the characters that break an unencoded SVG data URI when
// it is placed inside a double-quoted HTML attribute.
var svgEscaper = strings.NewReplacer(
	"#", "%23",
	`"`, "'",
	"\n", "",
	"\r", "",
)

// svgDataURI embeds a (minified) SVG string as a utf8 data URI. Base64 would
// be correct too but inflates the payload by a third for no gain.
func svgDataURI(svg string) string {
	return "data:image/svg+xml;utf8," + svgEscaper.Replace(svg)
}

// componentAttrs renders the full replacement attribute list spliced over a
// component's src attribute.
func componentAttrs(set VariantSet, altSrcset, placeholder string) string {
	if len(set.Variants) == 0 {
		return ""
	}
	primary := set.Variants[0]

	var b strings.Builder
	fmt.Fprintf(&b, `src="%s"`, primary.URL)
	fmt.Fprintf(&b, ` srcset="%s"`, formatSrcset(set))
	if altSrcset != "" {
		fmt.Fprintf(&b, ` srcsetWebp="%s"`, altSrcset)
	}
	if ratio := aspectRatio(set); ratio != "" {
		fmt.Fprintf(&b, ` ratio="%s"`, ratio)
	}
	if placeholder != "" {
		fmt.Fprintf(&b, ` placeholder="%s"`, placeholder)
	}
	return b.String()
}
