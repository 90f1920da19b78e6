package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studentnotes/core/tree"
)

func TestParseFrontMatter(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantTitle string
		wantOrder int
		wantExtra map[string]interface{}
		wantBody  string
	}{
		{
			name:      "no frontmatter",
			raw:       "# Hello\n\ntext",
			wantTitle: "Untitled",
			wantOrder: 999,
			wantBody:  "# Hello\n\ntext",
		},
		{
			name:      "yaml block",
			raw:       "---\ntitle: OSI Model\norder: 2\nauthor: jd\n---\n# OSI\n",
			wantTitle: "OSI Model",
			wantOrder: 2,
			wantExtra: map[string]interface{}{"author": "jd"},
			wantBody:  "# OSI\n",
		},
		{
			name:      "quoted numeric order",
			raw:       "---\ntitle: 'Routing'\norder: \"7\"\n---\nbody",
			wantTitle: "Routing",
			wantOrder: 7,
			wantBody:  "body",
		},
		{
			name:      "invalid yaml falls back to lines",
			raw:       "---\ntitle: TCP: the basics\norder: 3\n---\nbody",
			wantTitle: "TCP: the basics",
			wantOrder: 3,
			wantBody:  "body",
		},
		{
			name:      "no order",
			raw:       "---\ntitle: Sets\n---\n",
			wantTitle: "Sets",
			wantOrder: 999,
			wantBody:  "",
		},
		{
			name:      "crlf line endings",
			raw:       "---\r\ntitle: Win\r\norder: 1\r\n---\r\nbody",
			wantTitle: "Win",
			wantOrder: 1,
			wantBody:  "body",
		},
		{
			name:      "unterminated block",
			raw:       "---\ntitle: Nope\nbody",
			wantTitle: "Untitled",
			wantOrder: 999,
			wantBody:  "---\ntitle: Nope\nbody",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, body := ParseFrontMatter(tt.raw)
			assert.Equal(t, tt.wantTitle, meta.Title)
			assert.Equal(t, tt.wantOrder, meta.EffectiveOrder())
			assert.Equal(t, tt.wantBody, body)
			if tt.wantExtra != nil {
				assert.Equal(t, tt.wantExtra, meta.Extra)
			}
		})
	}
}

func TestSplitSections(t *testing.T) {
	content := "Intro text\n\n## 1. Physical Layer\nbits\n\n## Data Link!\nframes\n## 7 Application\napps\n"
	doc := SplitSections(content)

	assert.Equal(t, "Intro text\n\n", doc.Intro)
	require.Len(t, doc.Sections, 3)

	assert.Equal(t, Section{Num: "1", Title: "Physical Layer", ID: "physical-layer", Body: "bits\n\n"}, doc.Sections[0])
	assert.Equal(t, Section{Num: "2", Title: "Data Link!", ID: "data-link", Body: "frames\n"}, doc.Sections[1])
	assert.Equal(t, Section{Num: "7", Title: "Application", ID: "application", Body: "apps\n"}, doc.Sections[2])

	assert.Equal(t, []TOCEntry{
		{Num: "1", Title: "Physical Layer", ID: "physical-layer"},
		{Num: "2", Title: "Data Link!", ID: "data-link"},
		{Num: "7", Title: "Application", ID: "application"},
	}, doc.TableOfContents())

	t.Run("no sections", func(t *testing.T) {
		doc := SplitSections("just text\n### not a section")
		assert.Equal(t, "just text\n### not a section", doc.Intro)
		assert.Empty(t, doc.Sections)
	})
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Hello World", want: "hello-world"},
		{in: "TCP/IP & UDP", want: "tcpip-udp"},
		{in: "  spaced   out ", want: "-spaced-out-"},
		{in: "snake_case-kept", want: "snake_case-kept"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestRender(t *testing.T) {
	out, err := Render("# Title\n\nInline $a_1 + b_2$ math.\n\n```go\nfmt.Println(\"hi\")\n```\n\n| a | b |\n|---|---|\n| 1 | 2 |\n")
	require.NoError(t, err)

	assert.Contains(t, out, `<h1 id="title">Title</h1>`)
	assert.Contains(t, out, `$a_1 + b_2$`)
	assert.Contains(t, out, `<code class="language-go">`)
	assert.Contains(t, out, "<table>")
	assert.NotContains(t, out, "KATEXMATH")
}

func TestRender_mathOutsideCode(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		want    []string
		notWant []string
	}{
		{
			name:   "inline code then a lone dollar",
			source: "cost `$x` and $y",
			want:   []string{"<p>cost <code>$x</code> and $y</p>"},
		},
		{
			name:   "math after inline code",
			source: "use `a_b` for $a_1 + b_2$",
			want:   []string{"<code>a_b</code>", "$a_1 + b_2$"},
		},
		{
			name:   "double backtick span",
			source: "``a ` $b`` then $c$",
			want:   []string{"<code>a ` $b</code>", "then $c$"},
		},
		{
			name:    "fenced block is left alone",
			source:  "```\ncost $$\n```\n\nand $$ more",
			want:    []string{"<pre><code>cost $$\n</code></pre>", "<p>and $$ more</p>"},
			notWant: []string{"KATEXMATH"},
		},
		{
			name:   "tilde fence",
			source: "~~~python\nx = \"$a$\"\n~~~\n\n$$E = mc^2$$",
			want:   []string{`<code class="language-python">`, "$$E = mc^2$$"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			out, err := Render(tt.source)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, out, w)
			}
		})
	}
}

func TestRenderDocument(t *testing.T) {
	doc, err := RenderDocument("Intro **bold**\n## 1. First\nSome `code`\n## Second\n- a\n- b\n")
	require.NoError(t, err)

	assert.Contains(t, doc.IntroHTML, "<strong>bold</strong>")
	require.Len(t, doc.Sections, 2)
	assert.Equal(t, "first", doc.Sections[0].ID)
	assert.Contains(t, doc.Sections[0].HTML, "<code>code</code>")
	assert.Contains(t, doc.Sections[1].HTML, "<li>a</li>")
	assert.Len(t, doc.TOC, 2)
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{name: "paragraphs", html: "<p>Hello <em>there</em></p><p>world</p>", want: "Hello there world"},
		{name: "scripts skipped", html: "<p>a</p><script>alert(1)</script><style>p{}</style><p>b</p>", want: "a b"},
		{name: "entities", html: "<p>a &amp; b</p>", want: "a & b"},
		{name: "empty", html: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainText(tt.html))
		})
	}

	assert.Equal(t, "Hello…", Excerpt("<p>Hello there</p>", 5))
}

func TestBlocks(t *testing.T) {
	got := blocks("# Head\n\npara *one*\ntwo\n\n- item\n  - nested\n\n```\n  code\n```\n\n> quote\n\n---\n")
	kinds := make([]int, len(got))
	for i, b := range got {
		kinds[i] = b.kind
	}
	assert.Equal(t, []int{blockHeading, blockParagraph, blockListItem, blockListItem, blockCode, blockQuote, blockRule}, kinds)
	assert.Equal(t, "para one two", got[1].text)
	assert.Equal(t, 1, got[3].level)
	assert.Equal(t, "  code", got[4].text)
}

func TestFrontMatterIntoEntry(t *testing.T) {
	meta, body := ParseFrontMatter("---\ntitle: Intro\norder: 1\n---\n## 1. Start\n")
	e := tree.Entry{ID: "intro", Type: tree.TypeMarkdown, Meta: meta, Content: body}
	assert.Equal(t, "Intro", e.DisplayTitle())
	assert.True(t, strings.HasPrefix(e.Content, "## 1."))
}
