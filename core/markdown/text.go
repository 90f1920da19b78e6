package markdown

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText returns the visible text of an HTML fragment, whitespace collapsed.
func PlainText(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))

	var (
		sb   strings.Builder
		skip int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed fragment: keep what was read
			return collapse(sb.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			if isHidden(name) {
				skip++
			} else if isBlock(name) {
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if isHidden(name) && skip > 0 {
				skip--
			} else if isBlock(name) {
				sb.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			sb.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		}
	}
}

// Excerpt returns at most n runes of the plain text of fragment.
func Excerpt(fragment string, n int) string {
	text := []rune(PlainText(fragment))
	if len(text) <= n {
		return string(text)
	}
	return strings.TrimSpace(string(text[:n])) + "…"
}

func isHidden(tag []byte) bool {
	switch string(tag) {
	case "script", "style", "head":
		return true
	}
	return false
}

func isBlock(tag []byte) bool {
	switch string(tag) {
	case "p", "div", "br", "li", "ul", "ol", "pre", "blockquote", "table", "tr", "td", "th",
		"h1", "h2", "h3", "h4", "h5", "h6", "hr":
		return true
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
