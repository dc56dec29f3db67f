package liveimage

import (
	"fmt"
	"sort"
	"strings"
)

// EditOperation describes a single textual replacement expressed in
// coordinates of the original, untouched source document. Start and End are
// byte offsets with the usual [Start, End) convention.
type EditOperation struct {
	Start       int
	End         int
	Replacement string
}

// Len returns the signed length change this edit contributes to the document.
func (e EditOperation) Len() int {
	return len(e.Replacement) - (e.End - e.Start)
}

// SortEdits orders edits ascending by their original start offset. Edits are
// collected from concurrent per-node work in arbitrary completion order, so
// the orchestrator sorts them once before applying.
func SortEdits(edits []EditOperation) {
	sort.Slice(edits, func(i, j int) bool {
		return edits[i].Start < edits[j].Start
	})
}

// ApplyEdits splices the given edits into the original text and returns the
// resulting string. All edit offsets refer to the original text; a running
// offset accumulator translates them into positions in the partially built
// output:
//
//	delta_after_i = delta_after_(i-1) + len(replacement_i) - (end_i - start_i)
//
// The accumulator model is only defined for edits sorted ascending by Start
// with no overlaps, so ApplyEdits rejects anything else instead of producing
// silently corrupted output.
func ApplyEdits(original string, edits []EditOperation) (string, error) {
	if len(edits) == 0 {
		return original, nil
	}

	var b strings.Builder
	b.Grow(len(original))

	// cursor tracks how far into the original we have copied. Because edits
	// are applied in ascending original order, copying [cursor, e.Start) then
	// the replacement is equivalent to splicing at Start+delta in the
	// materialized text; the accumulator never needs to be materialized.
	cursor := 0
	for i, e := range edits {
		if e.Start < 0 || e.End > len(original) || e.Start > e.End {
			return "", fmt.Errorf("%w: edit %d spans [%d,%d) in a %d byte document", ErrInvalidEdit, i, e.Start, e.End, len(original))
		}
		if e.Start < cursor {
			if i > 0 && e.Start < edits[i-1].End {
				return "", fmt.Errorf("%w: edit %d at [%d,%d) overlaps previous edit ending at %d", ErrOverlappingEdits, i, e.Start, e.End, edits[i-1].End)
			}
			return "", fmt.Errorf("%w: edit %d at offset %d precedes cursor %d", ErrOutOfOrderEdits, i, e.Start, cursor)
		}
		b.WriteString(original[cursor:e.Start])
		b.WriteString(e.Replacement)
		cursor = e.End
	}
	b.WriteString(original[cursor:])

	return b.String(), nil
}
