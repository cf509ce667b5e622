package overlay

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	treeblood "github.com/wyatt915/goldmark-treeblood"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"doctrans/annotation"
)

// RenderMarkdown converts extracted markdown to an HTML fragment. Tables and
// LaTeX math (rendered to MathML) are supported.
func RenderMarkdown(md []byte) ([]byte, error) {
	engine := goldmark.New(
		goldmark.WithExtensions(
			extension.Table,
			treeblood.MathML(),
		),
	)
	var buf bytes.Buffer
	if err := engine.Convert(md, &buf); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}
	return buf.Bytes(), nil
}

// ImageLookup resolves an asset file name to its pixel dimensions. A lookup
// error leaves the image unwrapped.
type ImageLookup func(name string) (width, height int, err error)

// WrapImages parses the HTML fragment and wraps every <img> that has a box
// set in a relatively-positioned container with absolutely-positioned overlay
// divs, honoring the policy. Geometry is the image's own pixel space, so the
// overlays track the image wherever the flow puts it. Images without boxes,
// with failed dimension lookups, or fully filtered by policy keep their
// original markup.
func WrapImages(fragment []byte, sets map[string]annotation.BoxSet, lookup ImageLookup, policy Policy, fontRatio float64) ([]byte, []Report, error) {
	nodes, err := html.ParseFragment(bytes.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}

	// Re-root the fragment under a synthetic body. Top-level nodes come out
	// of ParseFragment with no parent, and wrapping needs one.
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	for _, n := range nodes {
		body.AppendChild(n)
	}

	var reports []Report
	walkImages(body, func(img *html.Node) {
		name := assetName(attr(img, "src"))
		set, ok := sets[name]
		if !ok || set.Len() == 0 {
			return
		}
		w, h, err := lookup(name)
		if err != nil || w <= 0 || h <= 0 {
			return
		}
		report := wrapImage(img, name, set, float64(w), float64(h), policy, fontRatio)
		reports = append(reports, report)
	})

	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return nil, nil, fmt.Errorf("render html: %w", err)
		}
	}
	return buf.Bytes(), reports, nil
}

func walkImages(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode && n.DataAtom == atom.Img {
		fn(n)
		return
	}
	// fn replaces visited images in their parent, so grab the next sibling
	// before descending.
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		walkImages(c, fn)
		c = next
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// assetName extracts the bare file name from an asset reference, tolerating
// both relative md_assets paths and absolute asset URLs.
func assetName(src string) string {
	if src == "" {
		return ""
	}
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	return path.Base(src)
}

// wrapImage replaces img in its parent with
//
//	<div class="img-wrap"><img class="img"/><div class="ov">...</div>...</div>
//
// and returns the policy report for the image.
func wrapImage(img *html.Node, name string, set annotation.BoxSet, imgW, imgH float64, policy Policy, fontRatio float64) Report {
	report := Report{Image: name, Scope: policy.Scope, Total: set.Len()}

	wrap := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: "class", Val: "img-wrap"},
			{Key: "style", Val: fmt.Sprintf("width:%.0fpx;height:%.0fpx", imgW, imgH)},
		},
	}

	parent := img.Parent
	parent.InsertBefore(wrap, img)
	parent.RemoveChild(img)
	wrap.AppendChild(img)
	setAttr(img, "class", "img")
	setAttr(img, "style", fmt.Sprintf("width:%.0fpx;height:%.0fpx", imgW, imgH))

	for _, box := range set.Ordered() {
		ok, reason := policy.Decide(box, imgW, imgH)
		report.Decisions = append(report.Decisions, Decision{BoxID: box.ID, Replaced: ok, Reason: reason})
		if !ok {
			continue
		}
		fontSize := box.Style.Resolved().FontSize
		if box.Style.FontSize <= 0 {
			fontSize = FontFit(box.H, fontRatio)
		}
		ov := &html.Node{
			Type:     html.ElementNode,
			Data:     "div",
			DataAtom: atom.Div,
			Attr: []html.Attribute{
				{Key: "class", Val: "ov"},
				{Key: "style", Val: fmt.Sprintf(
					"left:%.0fpx;top:%.0fpx;width:%.0fpx;height:%.0fpx;font-size:%.0fpx",
					box.X, box.Y, box.W, box.H, fontSize)},
			},
		}
		ov.AppendChild(&html.Node{Type: html.TextNode, Data: box.Text})
		wrap.AppendChild(ov)
		report.Replaced++
	}
	return report
}

// FlowPage is one page's translated blocks for flowing HTML output.
type FlowPage struct {
	Number int
	Blocks []annotation.Box
}

// FlowSections renders translated page blocks as ordinary flowing sections,
// one per page, with no positional overlay. Headings and lists keep their
// structure; every other block type flows as a paragraph. Blocks with empty
// text are dropped, and pages with nothing left produce no section.
func FlowSections(pages []FlowPage) []byte {
	var b bytes.Buffer
	for _, page := range pages {
		var blocks bytes.Buffer
		for _, box := range page.Blocks {
			renderFlowBlock(&blocks, box)
		}
		if blocks.Len() == 0 {
			continue
		}
		fmt.Fprintf(&b, "<section class=\"page-text\" data-page=\"%d\">\n", page.Number)
		b.Write(blocks.Bytes())
		b.WriteString("</section>\n")
	}
	return b.Bytes()
}

func renderFlowBlock(b *bytes.Buffer, box annotation.Box) {
	text := strings.TrimSpace(box.Text)
	if text == "" {
		return
	}
	switch {
	case box.Type.IsHeading():
		fmt.Fprintf(b, "<div class=\"block\"><div class=\"heading\">%s</div></div>\n", htmlEscape(text))
	case box.Type == annotation.TypeList:
		b.WriteString("<div class=\"block\"><ul class=\"list\">\n")
		for _, item := range strings.Split(text, "\n") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			fmt.Fprintf(b, "<li class=\"list-item\">%s</li>\n", htmlEscape(item))
		}
		b.WriteString("</ul></div>\n")
	default:
		fmt.Fprintf(b, "<div class=\"block\"><div class=\"paragraph\">%s</div></div>\n", htmlEscape(text))
	}
}

// DocumentHTML renders an overlay document as a standalone HTML page: one
// full-size container per page with the background raster and the overlay
// blocks absolutely positioned at their normalized percentages. The asset
// function maps a background reference to the src attribute value.
func DocumentHTML(title string, doc Document, asset func(name string) string) []byte {
	var body bytes.Buffer
	for _, page := range doc.Pages {
		fmt.Fprintf(&body,
			"<div class=\"page\" style=\"width:%.0fpx;height:%.0fpx\">\n",
			page.Size.Width, page.Size.Height)
		fmt.Fprintf(&body,
			"  <img class=\"page-bg\" src=%q style=\"width:%.0fpx;height:%.0fpx\"/>\n",
			asset(page.Background), page.Size.Width, page.Size.Height)
		for _, blk := range page.Blocks {
			fmt.Fprintf(&body,
				"  <div class=\"ov\" style=\"left:%.2f%%;top:%.2f%%;width:%.2f%%;height:%.2f%%;font-size:%.0fpx\">%s</div>\n",
				blk.X*100, blk.Y*100, blk.W*100, blk.H*100, blk.FontSize, htmlEscape(blk.Text))
		}
		body.WriteString("</div>\n")
	}
	return PageHTML(title, body.Bytes())
}

// documentCSS styles the generated HTML: flowing markdown typography plus the
// positioned overlay containers.
const documentCSS = `body {
    font-family: Arial, sans-serif;
    margin: 40mm;
    line-height: 1.6;
    position: relative;
}
.img-wrap {
    position: relative;
    display: inline-block;
}
.page {
    position: relative;
    margin: 0 auto;
    page-break-after: always;
}
.page-bg {
    display: block;
}
.img {
    display: block;
}
.ov {
    position: absolute;
    background: white;
    color: black;
    padding: 2px 6px;
    line-height: 1.1;
    border: 1px solid #000;
    box-sizing: border-box;
    white-space: pre-wrap;
    overflow: hidden;
}
.page-text {
    margin-top: 24px;
    padding-top: 12px;
    border-top: 1px solid #bdc3c7;
}
.block {
    margin-bottom: 15px;
}
.block .heading {
    font-size: 18px;
    font-weight: bold;
    color: #2c3e50;
    margin: 10px 0;
}
.block .paragraph {
    margin: 8px 0;
    text-align: justify;
}
.block .list {
    margin: 8px 0;
    padding-left: 20px;
}
.block .list-item {
    margin: 4px 0;
}
h1, h2, h3, h4, h5, h6 {
    color: #2c3e50;
    margin-top: 24px;
    margin-bottom: 16px;
}
p {
    margin: 0 0 16px 0;
}
ul, ol {
    margin: 0 0 16px 0;
    padding-left: 30px;
}
code {
    background-color: #f4f4f4;
    padding: 2px 4px;
    border-radius: 3px;
    font-family: monospace;
}
pre {
    background-color: #f4f4f4;
    padding: 12px;
    border-radius: 5px;
    overflow-x: auto;
}
blockquote {
    border-left: 4px solid #ddd;
    margin: 0 0 16px 0;
    padding: 0 16px;
    color: #666;
}
table {
    border-collapse: collapse;
    width: 100%;
    margin: 16px 0;
}
th, td {
    border: 1px solid #ddd;
    padding: 8px 12px;
    text-align: left;
}
th {
    background-color: #f8f8f8;
    font-weight: bold;
}`

// PageHTML wraps a rendered fragment into a complete standalone document.
func PageHTML(title string, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"UTF-8\">\n<title>")
	buf.WriteString(htmlEscape(title))
	buf.WriteString("</title>\n<style>\n")
	buf.WriteString(documentCSS)
	buf.WriteString("\n</style>\n</head>\n<body>\n")
	buf.Write(body)
	buf.WriteString("\n</body>\n</html>\n")
	return buf.Bytes()
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
