package markdown

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	sectionSplitRegex = regexp.MustCompile(`(?m)^##\s+`)
	sectionTitleRegex = regexp.MustCompile(`^(\d+)\.?\s*(.*)`)
	slugStripRegex    = regexp.MustCompile(`[^\w\s-]`)
	slugSpaceRegex    = regexp.MustCompile(`\s+`)
)

type (
	// Section is a `## ` part of a note.
	Section struct {
		Num   string `json:"num"`
		Title string `json:"title"`
		ID    string `json:"id"`
		Body  string `json:"body"`
	}

	// Document is a note split into its intro and its sections.
	Document struct {
		Intro    string    `json:"intro"`
		Sections []Section `json:"sections"`
	}

	// TOCEntry is an item of the table of contents.
	TOCEntry struct {
		Num   string `json:"num"`
		Title string `json:"title"`
		ID    string `json:"id"`
	}
)

// SplitSections splits content on lines starting with `## `.
// A title line like `3. Routing` yields num "3" and title "Routing", otherwise num is the 1-based position.
func SplitSections(content string) Document {
	chunks := sectionSplitRegex.Split(content, -1)
	doc := Document{Intro: chunks[0], Sections: make([]Section, 0, len(chunks)-1)}

	for i, chunk := range chunks[1:] {
		titleLine, body, _ := strings.Cut(chunk, "\n")
		titleLine = strings.TrimRight(titleLine, "\r")

		num := strconv.Itoa(i + 1)
		title := titleLine
		if m := sectionTitleRegex.FindStringSubmatch(titleLine); m != nil {
			num, title = m[1], m[2]
		}

		doc.Sections = append(doc.Sections, Section{
			Num:   num,
			Title: title,
			ID:    Slugify(title),
			Body:  body,
		})
	}
	return doc
}

// TableOfContents lists the sections of the document.
func (d Document) TableOfContents() []TOCEntry {
	toc := make([]TOCEntry, len(d.Sections))
	for i, s := range d.Sections {
		toc[i] = TOCEntry{Num: s.Num, Title: s.Title, ID: s.ID}
	}
	return toc
}

// Slugify lowercases s, drops everything but word characters, spaces and '-', then joins words with '-'.
func Slugify(s string) string {
	s = slugStripRegex.ReplaceAllString(strings.ToLower(s), "")
	return slugSpaceRegex.ReplaceAllString(s, "-")
}
