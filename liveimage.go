// Package liveimage rewrites image references in component markup at build
// time. Given the text of a component file it locates eligible <img>
// elements and image components, derives resized rasters, alternate-format
// encodings and placeholders through pluggable image backends, and splices
// the generated attributes back into the original text without disturbing
// anything else.
package liveimage

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
)

// Preprocessor is the rewrite engine. Configure it once with New; the
// options are copied and never consulted as shared mutable state afterwards.
// A Preprocessor is safe for concurrent use by multiple goroutines.
type Preprocessor struct {
	opts      Options
	backends  Backends
	downloads *downloadCache
}

// New creates a Preprocessor with the default backends.
func New(opts Options) (*Preprocessor, error) {
	return NewWithBackends(opts, Backends{})
}

// NewWithBackends creates a Preprocessor with caller-supplied backends; any
// zero field of b falls back to the package default.
func NewWithBackends(opts Options, b Backends) (*Preprocessor, error) {
	opts.normalize()
	if err := opts.validateOptions(); err != nil {
		return nil, err
	}
	b.fillDefaults(&opts)

	p := &Preprocessor{opts: opts, backends: b}
	p.downloads = newDownloadCache(opts.DownloadDir, b.Downloader, opts.Logger)
	return p, nil
}

// Close releases resources held by the preprocessor (the remote download
// index, when one was opened).
func (p *Preprocessor) Close() error {
	return p.downloads.Close()
}

// Rewrite processes one component source and returns the rewritten text.
// It never fails the build: any document-level problem, including a markup
// parse failure, degrades to returning the original text unchanged, and any
// per-node problem leaves that node's markup untouched.
func (p *Preprocessor) Rewrite(source, filename string) string {
	out, err := p.RewriteContext(context.Background(), source, filename)
	if err != nil {
		p.opts.Logger.Error("rewrite failed, returning source unchanged", "file", filename, "err", err)
		return source
	}
	return out
}

// RewriteContext is Rewrite with cancellation. The returned error reports
// why the document was left unchanged; callers that only want the build-safe
// behavior can use Rewrite.
func (p *Preprocessor) RewriteContext(ctx context.Context, source, filename string) (string, error) {
	// Cheap marker scan before any parsing: most component files reference
	// no images at all.
	if !strings.Contains(source, "<img") && !strings.Contains(source, "<"+p.opts.TagName) {
		return source, nil
	}
	if !p.inSourceTree(filename) {
		return source, nil
	}

	root, err := parseDocument(source)
	if err != nil {
		p.opts.Logger.Error("markup parse failed", "file", filename, "err", err)
		return source, nil
	}

	candidates := p.collectCandidates(root)
	if len(candidates) == 0 {
		return source, nil
	}

	parentDir := filepath.Dir(filename)

	// Per-node work is independent: fan out, collect into a pre-sized slice
	// so completion order cannot perturb anything, then sort the edits by
	// original position and apply them in a single serial pass. No text is
	// touched until every node has finished.
	type result struct {
		edit EditOperation
		ok   bool
	}
	results := make([]result, len(candidates))

	var wg sync.WaitGroup
	for i, node := range candidates {
		wg.Add(1)
		go func(i int, node *Node) {
			defer wg.Done()
			edit, ok := p.processNode(ctx, node, parentDir, filename)
			results[i] = result{edit: edit, ok: ok}
		}(i, node)
	}
	wg.Wait()

	edits := make([]EditOperation, 0, len(results))
	for _, r := range results {
		if r.ok {
			edits = append(edits, r.edit)
		}
	}
	if len(edits) == 0 {
		return source, nil
	}

	SortEdits(edits)
	return ApplyEdits(source, edits)
}

// inSourceTree reports whether the file being rewritten lives under the
// configured source root. Files outside it are passed through untouched.
func (p *Preprocessor) inSourceTree(filename string) bool {
	if filename == "" {
		return true
	}
	src, err := filepath.Abs(p.opts.SourceDir)
	if err != nil {
		return true
	}
	file, err := filepath.Abs(filename)
	if err != nil {
		return true
	}
	rel, err := filepath.Rel(src, file)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}

// collectCandidates walks the parsed tree and returns, in document order,
// every node the classifier could possibly accept. The traversal returns a
// fresh slice; nothing accumulates into shared state.
func (p *Preprocessor) collectCandidates(root *Node) []*Node {
	var out []*Node
	for _, n := range root.Descendants() {
		if (n.Kind == ElementNode && n.Name == "img") || (n.Kind == ComponentNode && n.Name == p.opts.TagName) {
			out = append(out, n)
		}
	}
	return out
}

// processNode drives one node through classification, resolution, variant
// generation and formatting. The returned edit is in original-document
// coordinates; ok is false when the node is skipped for any reason.
func (p *Preprocessor) processNode(ctx context.Context, node *Node, parentDir, filename string) (EditOperation, bool) {
	log := p.opts.Logger.With("file", filename, "node", node.Name, "offset", node.Start)

	eligible, reason := classify(node, &p.opts)
	if !eligible {
		log.Debug("node not eligible", "reason", reason)
		return EditOperation{}, false
	}

	src, ok := node.Attr(srcAttr)
	if !ok {
		log.Debug("node skipped", "reason", SkipBlankSrc)
		return EditOperation{}, false
	}

	allowed := p.opts.ImgTagExtensions
	if node.Kind == ComponentNode {
		allowed = p.opts.ComponentExtensions
	}

	decision := p.resolve(ctx, src, parentDir, allowed)
	if !decision.Process() {
		log.Debug("node skipped", "reason", decision.Reason)
		return EditOperation{}, false
	}
	rp := decision.Resolved

	if node.Kind == ComponentNode {
		return p.processComponent(ctx, src, rp, log)
	}
	return p.processImgElement(ctx, src, rp, log)
}

// processComponent replaces the component's whole src attribute with the
// generated attribute set: primary src, srcset, alternate-format srcset,
// aspect ratio and placeholder.
func (p *Preprocessor) processComponent(ctx context.Context, src Attribute, rp *ResolvedPath, log *slog.Logger) (EditOperation, bool) {
	if err := p.stageOriginal(rp); err != nil {
		log.Warn("failed to stage original", "err", err)
		return EditOperation{}, false
	}

	set, err := p.generateVariants(ctx, rp)
	if err != nil {
		log.Warn("variant generation failed", "err", err)
		return EditOperation{}, false
	}
	if len(set.Variants) == 0 {
		log.Debug("node skipped", "reason", "no variants within natural width")
		return EditOperation{}, false
	}

	altSrcset := ""
	if p.opts.AltFormat {
		altSrcset = formatAltSrcset(set, p.backends.AltFormat.Ext())
	}

	placeholder, err := p.placeholder(ctx, rp)
	if err != nil {
		// A missing placeholder degrades the loading experience, not the
		// image itself.
		log.Warn("placeholder generation failed", "err", err)
		placeholder = ""
	}

	return EditOperation{
		Start:       src.Start,
		End:         src.End,
		Replacement: componentAttrs(set, altSrcset, placeholder),
	}, true
}

// processImgElement replaces only the src attribute's value with either the
// optimized file's URL or, below the inline threshold, a data URI.
func (p *Preprocessor) processImgElement(ctx context.Context, src Attribute, rp *ResolvedPath, log *slog.Logger) (EditOperation, bool) {
	value, err := p.optimizeSingle(ctx, rp)
	if err != nil {
		log.Warn("single-image optimization failed", "err", err)
		return EditOperation{}, false
	}
	return EditOperation{
		Start:       src.ValueStart,
		End:         src.ValueEnd,
		Replacement: value,
	}, true
}
