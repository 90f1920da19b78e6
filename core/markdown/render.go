package markdown

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	goldhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	mathRegex       = regexp.MustCompile(`\$\$[\s\S]+?\$\$|\$[^$\n]+?\$`)
	mathPlaceholder = regexp.MustCompile(`KATEXMATH(\d+)X`)
	fenceRegex      = regexp.MustCompile("^ {0,3}(`{3,}|~{3,})")

	converter = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(goldhtml.WithUnsafe()),
	)
)

// Render converts markdown to HTML. Fenced code keeps its `language-x` class
// and `$…$` / `$$…$$` math is passed through for client-side KaTeX.
func Render(source string) (string, error) {
	protected, spans := protectMath(source)

	var buf bytes.Buffer
	if err := converter.Convert([]byte(protected), &buf); err != nil {
		return "", errors.Wrap(err, "rendering markdown")
	}

	out := buf.String()
	if len(spans) > 0 {
		out = mathPlaceholder.ReplaceAllStringFunc(out, func(m string) string {
			var i int
			if _, err := fmt.Sscanf(m, "KATEXMATH%dX", &i); err != nil || i >= len(spans) {
				return m
			}
			return html.EscapeString(spans[i])
		})
	}
	return out, nil
}

// protectMath swaps the math spans found outside code for placeholders.
func protectMath(source string) (string, []string) {
	var (
		spans []string
		out   strings.Builder
		text  strings.Builder
		fence string
	)
	flush := func() {
		out.WriteString(replaceMath(text.String(), &spans))
		text.Reset()
	}

	for _, line := range strings.SplitAfter(source, "\n") {
		m := fenceRegex.FindStringSubmatch(line)
		switch {
		case fence != "":
			out.WriteString(line)
			if m != nil && m[1][0] == fence[0] && len(m[1]) >= len(fence) && strings.TrimSpace(line[len(m[0]):]) == "" {
				fence = ""
			}
		case m != nil:
			flush()
			fence = m[1]
			out.WriteString(line)
		default:
			text.WriteString(line)
		}
	}
	flush()
	return out.String(), spans
}

// replaceMath replaces math between inline code spans, leaving the spans as is.
func replaceMath(text string, spans *[]string) string {
	replace := func(s string) string {
		return mathRegex.ReplaceAllStringFunc(s, func(m string) string {
			*spans = append(*spans, m)
			return fmt.Sprintf("KATEXMATH%dX", len(*spans)-1)
		})
	}

	var out strings.Builder
	for text != "" {
		start, end := codeSpan(text)
		if start < 0 {
			out.WriteString(replace(text))
			break
		}
		out.WriteString(replace(text[:start]))
		out.WriteString(text[start:end])
		text = text[end:]
	}
	return out.String()
}

// codeSpan returns the bounds of the first backtick run of s and of its closing run of the same length.
// An unclosed run is returned alone.
func codeSpan(s string) (int, int) {
	start := strings.IndexByte(s, '`')
	if start < 0 {
		return -1, -1
	}
	n := backticks(s[start:])
	for i := start + n; i < len(s); {
		j := strings.IndexByte(s[i:], '`')
		if j < 0 {
			break
		}
		j += i
		m := backticks(s[j:])
		if m == n {
			return start, j + m
		}
		i = j + m
	}
	return start, start + n
}

func backticks(s string) int {
	n := 0
	for n < len(s) && s[n] == '`' {
		n++
	}
	return n
}

// RenderedSection is a section whose body was rendered to HTML.
type RenderedSection struct {
	Section
	HTML string `json:"html"`
}

// RenderedDocument is a note ready for display.
type RenderedDocument struct {
	IntroHTML string            `json:"intro_html"`
	Sections  []RenderedSection `json:"sections"`
	TOC       []TOCEntry        `json:"toc"`
}

// RenderDocument splits content into sections and renders each of them.
func RenderDocument(content string) (RenderedDocument, error) {
	doc := SplitSections(content)

	intro, err := Render(doc.Intro)
	if err != nil {
		return RenderedDocument{}, err
	}

	out := RenderedDocument{
		IntroHTML: intro,
		Sections:  make([]RenderedSection, len(doc.Sections)),
		TOC:       doc.TableOfContents(),
	}
	for i, s := range doc.Sections {
		body, err := Render(strings.TrimLeft(s.Body, "\n"))
		if err != nil {
			return RenderedDocument{}, errors.Wrapf(err, "section %q", s.Title)
		}
		out.Sections[i] = RenderedSection{Section: s, HTML: body}
	}
	return out, nil
}
