package liveimage

import (
	"fmt"
	"path"
	"strings"
)

// srcAttr is the attribute carrying the image reference on both node kinds.
const srcAttr = "src"

// fileExt returns the final extension segment of a path-like value, lowered
// and without the dot. Query strings are stripped first so remote URLs gate
// on the path alone.
func fileExt(value string) string {
	if i := strings.IndexAny(value, "?#"); i >= 0 {
		value = value[:i]
	}
	ext := path.Ext(value)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// extensionAllowed implements the allow-list gate: an empty list accepts any
// extension, a non-empty list matches the final dot-segment
// case-insensitively.
func extensionAllowed(value string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	ext := fileExt(value)
	for _, a := range allowed {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}

// classify decides whether a node participates in optimization at all and,
// when it does not, why. Plain <img> elements and named image components are
// gated independently; everything else is ineligible by construction.
func classify(node *Node, opts *Options) (bool, string) {
	src, _ := node.Attr(srcAttr)

	switch {
	case node.Kind == ElementNode && node.Name == "img":
		if !opts.OptimizeAll {
			return false, "img optimization disabled"
		}
		if !src.Dynamic && src.Value != "" && !extensionAllowed(src.Value, opts.ImgTagExtensions) {
			return false, SkipExtension
		}
		return true, ""

	case node.Kind == ComponentNode && node.Name == opts.TagName:
		if !src.Dynamic && src.Value != "" && !extensionAllowed(src.Value, opts.ComponentExtensions) {
			return false, SkipExtension
		}
		return true, ""

	default:
		return false, fmt.Sprintf("%s node %q is not an optimization target", node.Kind, node.Name)
	}
}
