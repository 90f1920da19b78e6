package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark/ast"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// block kinds used by the PDF layout
const (
	blockHeading = iota
	blockParagraph
	blockCode
	blockListItem
	blockQuote
	blockRule
)

type block struct {
	kind  int
	level int // heading level or list depth
	text  string
}

// blocks walks the top-level markdown blocks of source and returns their text.
func blocks(source string) []block {
	src := []byte(source)
	doc := converter.Parser().Parse(text.NewReader(src))

	var out []block
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		out = appendBlock(out, n, src, 0)
	}
	return out
}

func appendBlock(out []block, n ast.Node, src []byte, depth int) []block {
	switch node := n.(type) {
	case *ast.Heading:
		return append(out, block{kind: blockHeading, level: node.Level, text: nodeText(n, src)})
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		return append(out, block{kind: blockCode, text: strings.TrimRight(linesText(n, src), "\n")})
	case *ast.ThematicBreak:
		return append(out, block{kind: blockRule})
	case *ast.Blockquote:
		return append(out, block{kind: blockQuote, text: nodeText(n, src)})
	case *ast.List:
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			var nested []ast.Node
			var sb strings.Builder
			for c := item.FirstChild(); c != nil; c = c.NextSibling() {
				if _, ok := c.(*ast.List); ok {
					nested = append(nested, c)
					continue
				}
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(nodeText(c, src))
			}
			out = append(out, block{kind: blockListItem, level: depth, text: sb.String()})
			for _, c := range nested {
				out = appendBlock(out, c, src, depth+1)
			}
		}
		return out
	case *east.Table:
		for row := node.FirstChild(); row != nil; row = row.NextSibling() {
			cells := make([]string, 0, row.ChildCount())
			for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
				cells = append(cells, nodeText(cell, src))
			}
			out = append(out, block{kind: blockParagraph, text: strings.Join(cells, " | ")})
		}
		return out
	case *ast.HTMLBlock:
		if t := PlainText(linesText(n, src)); t != "" {
			return append(out, block{kind: blockParagraph, text: t})
		}
		return out
	default:
		if t := nodeText(n, src); t != "" {
			return append(out, block{kind: blockParagraph, text: t})
		}
		return out
	}
}

func linesText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(src))
	}
	return buf.String()
}

// nodeText gets the text content of a node and its inline children.
func nodeText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	writeText(&buf, n, src)
	return strings.TrimSpace(buf.String())
}

func writeText(buf *bytes.Buffer, n ast.Node, src []byte) {
	switch node := n.(type) {
	case *ast.Text:
		buf.Write(node.Segment.Value(src))
		if node.HardLineBreak() {
			buf.WriteByte('\n')
		} else if node.SoftLineBreak() {
			buf.WriteByte(' ')
		}
		return
	case *ast.String:
		buf.Write(node.Value)
		return
	case *ast.RawHTML:
		return
	}

	if n.Type() == ast.TypeBlock && n.FirstChild() == nil {
		buf.WriteString(linesText(n, src))
		return
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if c.Type() == ast.TypeBlock && buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		writeText(buf, c, src)
	}
}
