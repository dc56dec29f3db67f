package liveimage

import (
	"strings"
	"testing"
)

func TestParseDocumentOffsets(t *testing.T) {
	source := `<div class="hero">
	<img src="images/a.jpg" alt="A">
	<Image src="images/b.png" />
</div>`

	root, err := parseDocument(source)
	if err != nil {
		t.Fatalf("parseDocument failed: %v", err)
	}

	nodes := root.Descendants()
	var img, component *Node
	for _, n := range nodes {
		switch n.Name {
		case "img":
			img = n
		case "Image":
			component = n
		}
	}
	if img == nil || component == nil {
		t.Fatalf("expected img and Image nodes, got %d nodes", len(nodes))
	}

	src, ok := img.Attr("src")
	if !ok {
		t.Fatal("img has no src attribute")
	}
	if got := source[src.ValueStart:src.ValueEnd]; got != "images/a.jpg" {
		t.Errorf("img src value span = %q, want %q", got, "images/a.jpg")
	}
	if src.Dynamic {
		t.Error("literal src reported as dynamic")
	}

	csrc, ok := component.Attr("src")
	if !ok {
		t.Fatal("Image has no src attribute")
	}
	if got := source[csrc.ValueStart:csrc.ValueEnd]; got != "images/b.png" {
		t.Errorf("component src value span = %q, want %q", got, "images/b.png")
	}
	// Full attribute span includes name and quotes.
	if got := source[csrc.Start:csrc.End]; got != `src="images/b.png"` {
		t.Errorf("component attribute span = %q", got)
	}
}

func TestParseDocumentNodeKinds(t *testing.T) {
	source := `<template><img src="a.jpg"><Image src="b.jpg" /></template>`
	root, err := parseDocument(source)
	if err != nil {
		t.Fatalf("parseDocument failed: %v", err)
	}

	kinds := map[string]NodeKind{}
	for _, n := range root.Descendants() {
		kinds[n.Name] = n.Kind
	}
	if kinds["template"] != FragmentNode {
		t.Errorf("template kind = %v, want fragment", kinds["template"])
	}
	if kinds["img"] != ElementNode {
		t.Errorf("img kind = %v, want element", kinds["img"])
	}
	if kinds["Image"] != ComponentNode {
		t.Errorf("Image kind = %v, want component", kinds["Image"])
	}
}

func TestParseDocumentDynamicValues(t *testing.T) {
	cases := []struct {
		name   string
		source string
		attr   string
	}{
		{"expression value", `<Image src={imagePath} />`, "src"},
		{"shorthand", `<Image {src} />`, "src"},
		{"interpolated literal", `<Image src="images/{name}.jpg" />`, "src"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root, err := parseDocument(tc.source)
			if err != nil {
				t.Fatalf("parseDocument failed: %v", err)
			}
			nodes := root.Descendants()
			if len(nodes) == 0 {
				t.Fatal("no nodes parsed")
			}
			attr, ok := nodes[0].Attr(tc.attr)
			if !ok {
				t.Fatalf("attribute %q not found", tc.attr)
			}
			if !attr.Dynamic {
				t.Errorf("attribute %q not marked dynamic", tc.attr)
			}
		})
	}
}

func TestParseDocumentPreservesComponentCase(t *testing.T) {
	root, err := parseDocument(`<MyImage src="a.jpg" />`)
	if err != nil {
		t.Fatalf("parseDocument failed: %v", err)
	}
	nodes := root.Descendants()
	if len(nodes) != 1 || nodes[0].Name != "MyImage" {
		t.Fatalf("expected single MyImage node, got %+v", nodes)
	}
}

func TestParseDocumentNesting(t *testing.T) {
	source := `<section><div><img src="a.jpg"></div><img src="b.jpg"></section>`
	root, err := parseDocument(source)
	if err != nil {
		t.Fatalf("parseDocument failed: %v", err)
	}

	// Document order: section, div, img(a), img(b).
	var order []string
	for _, n := range root.Descendants() {
		src, _ := n.Attr("src")
		order = append(order, n.Name+":"+src.Value)
	}
	want := []string{"section:", "div:", "img:a.jpg", "img:b.jpg"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("document order = %v, want %v", order, want)
	}
}

func TestParseDocumentSingleQuotesAndUnquoted(t *testing.T) {
	source := `<img src='a.jpg' width=200>`
	root, err := parseDocument(source)
	if err != nil {
		t.Fatalf("parseDocument failed: %v", err)
	}
	img := root.Descendants()[0]

	src, _ := img.Attr("src")
	if src.Value != "a.jpg" {
		t.Errorf("single-quoted value = %q", src.Value)
	}
	if got := source[src.ValueStart:src.ValueEnd]; got != "a.jpg" {
		t.Errorf("single-quoted span = %q", got)
	}

	width, _ := img.Attr("width")
	if width.Value != "200" {
		t.Errorf("unquoted value = %q", width.Value)
	}
	if got := source[width.ValueStart:width.ValueEnd]; got != "200" {
		t.Errorf("unquoted span = %q", got)
	}
}

func TestParseDocumentIgnoresScriptAndComments(t *testing.T) {
	source := `<script>let a = "<img src='fake.jpg'>";</script>
<!-- <img src="commented.jpg"> -->
<img src="real.jpg">`

	root, err := parseDocument(source)
	if err != nil {
		t.Fatalf("parseDocument failed: %v", err)
	}

	var imgs []string
	for _, n := range root.Descendants() {
		if n.Name == "img" {
			src, _ := n.Attr("src")
			imgs = append(imgs, src.Value)
		}
	}
	if len(imgs) != 1 || imgs[0] != "real.jpg" {
		t.Errorf("img nodes = %v, want only real.jpg", imgs)
	}
}
