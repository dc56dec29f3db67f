package liveimage

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// NodeKind distinguishes the three markup node shapes the classifier cares
// about.
type NodeKind int

const (
	// ElementNode is a plain lowercase HTML element such as <img>.
	ElementNode NodeKind = iota
	// FragmentNode is a <template> grouping element.
	FragmentNode
	// ComponentNode is a capitalized component instance such as <Image>.
	ComponentNode
)

func (k NodeKind) String() string {
	switch k {
	case FragmentNode:
		return "fragment"
	case ComponentNode:
		return "component"
	default:
		return "element"
	}
}

// Attribute is one parsed attribute of a markup node. For static values the
// offsets locate the literal in the ORIGINAL source text; they are never
// adjusted to any intermediate edited text. Dynamic attributes (expression
// values, shorthand {name}, or interpolated literals) carry no offsets.
type Attribute struct {
	Name    string
	Value   string
	Dynamic bool

	// ValueStart/ValueEnd delimit the literal text between the quotes.
	ValueStart int
	ValueEnd   int

	// Start/End delimit the whole attribute, name through closing quote.
	Start int
	End   int
}

// Node is a markup element with its attributes and children, positioned in
// the original source. Children reference parents through tree structure
// only; nothing in the pipeline mutates a node after parsing.
type Node struct {
	Kind     NodeKind
	Name     string
	Attrs    []Attribute
	Children []*Node

	// Start is the byte offset of the opening '<'.
	Start int
}

// Attr returns the named attribute, matching case-sensitively.
func (n *Node) Attr(name string) (Attribute, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Descendants returns n's subtree in document order, excluding n itself.
// The traversal builds and returns a fresh slice rather than threading a
// shared collector through the recursion.
func (n *Node) Descendants() []*Node {
	var out []*Node
	for _, c := range n.Children {
		out = append(out, c)
		out = append(out, c.Descendants()...)
	}
	return out
}

// voidElements never take end tags, so the tree builder does not push them.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// parseDocument tokenizes a component source and assembles a light element
// tree that preserves byte offsets. The x/net/html tokenizer does the hard
// parts (raw-text elements, comments, entity-free token segmentation); the
// attribute scanner below re-reads each tag token's raw bytes because the
// tokenizer's own attribute API lowercases names and discards positions.
func parseDocument(source string) (*Node, error) {
	root := &Node{Kind: FragmentNode, Name: ""}
	stack := []*Node{root}

	z := html.NewTokenizer(strings.NewReader(source))
	pos := 0

	for {
		tt := z.Next()
		raw := z.Raw()
		tokStart := pos
		pos += len(raw)

		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, fmt.Errorf("failed to tokenize markup: %w", err)
			}
			return root, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			node := scanTag(raw, tokStart)
			if node == nil {
				continue
			}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, node)
			if tt == html.StartTagToken && !voidElements[node.Name] {
				stack = append(stack, node)
			}

		case html.EndTagToken:
			name := endTagName(raw)
			// Pop to the matching open element; unmatched end tags are
			// ignored, matching the tokenizer's forgiving posture.
			for i := len(stack) - 1; i > 0; i-- {
				if stack[i].Name == name {
					stack = stack[:i]
					break
				}
			}
		}
	}
}

// endTagName extracts the name from raw end-tag bytes ("</div>") keeping the
// original case, which the tokenizer's TagName would fold away.
func endTagName(raw []byte) string {
	i := 2 // skip "</"
	j := i
	for j < len(raw) && !isTagDelim(raw[j]) {
		j++
	}
	return string(raw[i:j])
}

func isTagDelim(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '/' || c == '>'
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// scanTag parses the raw bytes of a start tag into a Node, recording every
// attribute's [start, end) offsets relative to the original document (base is
// the document offset of the leading '<'). Returns nil for degenerate tags.
func scanTag(raw []byte, base int) *Node {
	if len(raw) < 3 || raw[0] != '<' {
		return nil
	}

	i := 1
	j := i
	for j < len(raw) && !isTagDelim(raw[j]) {
		j++
	}
	name := string(raw[i:j])
	if name == "" {
		return nil
	}

	node := &Node{Name: name, Start: base, Kind: kindOf(name)}

	i = j
	for i < len(raw) {
		for i < len(raw) && isSpaceByte(raw[i]) {
			i++
		}
		if i >= len(raw) || raw[i] == '>' || (raw[i] == '/' && i+1 < len(raw) && raw[i+1] == '>') {
			break
		}

		attrStart := i

		// Shorthand expression attribute: {src} stands for src={src}.
		if raw[i] == '{' {
			j = matchBrace(raw, i)
			inner := strings.TrimSpace(string(raw[i+1 : j]))
			node.Attrs = append(node.Attrs, Attribute{
				Name:    inner,
				Dynamic: true,
				Start:   base + attrStart,
				End:     base + j + 1,
			})
			i = j + 1
			continue
		}

		// Attribute name.
		j = i
		for j < len(raw) && raw[j] != '=' && !isTagDelim(raw[j]) {
			j++
		}
		attrName := string(raw[i:j])
		i = j
		for i < len(raw) && isSpaceByte(raw[i]) {
			i++
		}

		if i >= len(raw) || raw[i] != '=' {
			// Bare attribute with no value.
			node.Attrs = append(node.Attrs, Attribute{
				Name:       attrName,
				ValueStart: base + j,
				ValueEnd:   base + j,
				Start:      base + attrStart,
				End:        base + j,
			})
			continue
		}

		i++ // consume '='
		for i < len(raw) && isSpaceByte(raw[i]) {
			i++
		}
		if i >= len(raw) {
			break
		}

		switch {
		case raw[i] == '"' || raw[i] == '\'':
			quote := raw[i]
			valStart := i + 1
			j = valStart
			for j < len(raw) && raw[j] != quote {
				j++
			}
			val := string(raw[valStart:j])
			node.Attrs = append(node.Attrs, Attribute{
				Name:       attrName,
				Value:      val,
				Dynamic:    strings.Contains(val, "{"),
				ValueStart: base + valStart,
				ValueEnd:   base + j,
				Start:      base + attrStart,
				End:        base + j + 1,
			})
			i = j + 1

		case raw[i] == '{':
			// Expression value: src={expr}. No literal data to carry.
			j = matchBrace(raw, i)
			node.Attrs = append(node.Attrs, Attribute{
				Name:    attrName,
				Dynamic: true,
				Start:   base + attrStart,
				End:     base + j + 1,
			})
			i = j + 1

		default:
			// Unquoted value.
			valStart := i
			j = valStart
			for j < len(raw) && !isTagDelim(raw[j]) {
				j++
			}
			val := string(raw[valStart:j])
			node.Attrs = append(node.Attrs, Attribute{
				Name:       attrName,
				Value:      val,
				Dynamic:    strings.Contains(val, "{"),
				ValueStart: base + valStart,
				ValueEnd:   base + j,
				Start:      base + attrStart,
				End:        base + j,
			})
			i = j
		}
	}

	return node
}

// matchBrace returns the index of the '}' closing the '{' at raw[open],
// tolerating nested braces. Falls back to the end of the tag when unbalanced.
func matchBrace(raw []byte, open int) int {
	depth := 0
	for i := open; i < len(raw); i++ {
		switch raw[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(raw) - 1
}

func kindOf(name string) NodeKind {
	if name == "template" {
		return FragmentNode
	}
	r := []rune(name)
	if len(r) > 0 && unicode.IsUpper(r[0]) {
		return ComponentNode
	}
	return ElementNode
}
