package liveimage

import (
	"errors"
	"fmt"
)

// Patcher errors. These indicate a bug in edit collection upstream rather
// than bad user input; the orchestrator guarantees sorted, non-overlapping
// edits before calling ApplyEdits.
var (
	ErrInvalidEdit      = errors.New("liveimage: edit out of document bounds")
	ErrOutOfOrderEdits  = errors.New("liveimage: edits not sorted by start offset")
	ErrOverlappingEdits = errors.New("liveimage: overlapping edits")
)

// Skip reasons surfaced in diagnostics when a node is left untouched. They
// are compared in tests, so the strings are part of the package's behavior.
const (
	SkipDynamicValue   = "dynamic value"
	SkipBlankSrc       = "blank src"
	SkipExtension      = "extension not allowed"
	SkipRemoteDisabled = "external, remote optimization disabled"
	SkipNotAnImage     = "not an image"
	SkipFetchFailed    = "fetch failed"
	SkipFileNotFound   = "file not found"
)

// BackendError wraps a failure from one of the image-processing backends.
// Backend failures never abort a rewrite; the affected node is skipped and
// the wrapped cause is logged.
type BackendError struct {
	Op   string // "raster", "alt-format", "metadata", "trace", "download"
	Path string
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("liveimage: %s backend failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
