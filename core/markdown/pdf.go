package markdown

import (
	"io"
	"math"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"
)

// A4 portrait, in millimetres.
const (
	PageWidthMM  = 210.0
	PageHeightMM = 297.0
)

// Defaults of the fixed "paper" column the note is laid out on.
const (
	DefaultCanvasWidthPx = 800.0
	DefaultPaddingPx     = 40.0
	DefaultWatermark     = "shankar.com"
)

const (
	ptToMM          = 25.4 / 72
	lineHeightRatio = 1.45
	watermarkX      = 200.0
	watermarkY      = 290.0
	watermarkSize   = 9.0
	watermarkGrey   = 150
)

// PageSlice is the part of the rendered canvas shown on one PDF page.
type PageSlice struct {
	Index    int     `json:"index"`
	TopPx    float64 `json:"top_px"`
	HeightPx float64 `json:"height_px"`
	// OffsetMM is the vertical shift applied to the canvas image on this page.
	OffsetMM float64 `json:"offset_mm"`
}

// Paginate slices a canvas of contentHeightPx x canvasWidthPx into A4 pages.
// The first page always exists; the following ones are added while content is left.
func Paginate(contentHeightPx, canvasWidthPx float64) []PageSlice {
	if canvasWidthPx <= 0 {
		canvasWidthPx = DefaultCanvasWidthPx
	}
	pageHeight := PageHeightMM * canvasWidthPx / PageWidthMM

	slice := func(i int) PageSlice {
		top := float64(i) * pageHeight
		return PageSlice{
			Index:    i,
			TopPx:    top,
			HeightPx: math.Max(0, math.Min(pageHeight, contentHeightPx-top)),
			OffsetMM: -(float64(i) * PageHeightMM),
		}
	}

	slices := []PageSlice{slice(0)}
	heightLeft := contentHeightPx - pageHeight
	for heightLeft > 0 {
		slices = append(slices, slice(len(slices)))
		heightLeft -= pageHeight
	}
	return slices
}

// ExportOptions configures a PDF export.
type ExportOptions struct {
	Title         string
	Content       string
	Watermark     string
	Author        string
	Creator       string
	CanvasWidthPx float64
	PaddingPx     float64
}

// ExportResult describes a generated PDF.
type ExportResult struct {
	Pages           int
	ContentHeightPx float64
}

// FileName returns the download name of an exported note.
func FileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "note"
	}
	return name + ".pdf"
}

type textStyle struct {
	family string
	style  string
	size   float64
	indent float64
	pre    bool
}

func (s textStyle) lineHeight() float64 { return s.size * ptToMM * lineHeightRatio }

var (
	bodyStyle  = textStyle{family: "Helvetica", size: 11}
	codeStyle  = textStyle{family: "Courier", size: 9.5, indent: 3, pre: true}
	quoteStyle = textStyle{family: "Helvetica", style: "I", size: 11, indent: 6}
)

func headingStyle(level int) textStyle {
	switch level {
	case 1:
		return textStyle{family: "Helvetica", style: "B", size: 20}
	case 2:
		return textStyle{family: "Helvetica", style: "B", size: 16}
	default:
		return textStyle{family: "Helvetica", style: "B", size: 13}
	}
}

// laid out element of the virtual canvas; y values are millimetres from the canvas top.
type item struct {
	rule     bool
	style    textStyle
	x        float64
	baseline float64
	top      float64
	bottom   float64
	text     string
}

type layout struct {
	pdf    *fpdf.Fpdf
	tr     func(string) string
	left   float64
	width  float64
	cursor float64
	items  []item
}

func (l *layout) addText(s textStyle, txt string, after float64) {
	l.pdf.SetFont(s.family, s.style, s.size)
	lh := s.lineHeight()
	width := l.width - s.indent

	for _, para := range strings.Split(txt, "\n") {
		wrap := wrapText
		if s.pre {
			wrap = wrapPre
		}
		for _, line := range wrap(l.pdf, l.tr(para), width) {
			l.items = append(l.items, item{
				style:    s,
				x:        l.left + s.indent,
				top:      l.cursor,
				baseline: l.cursor + lh*0.75,
				bottom:   l.cursor + lh,
				text:     line,
			})
			l.cursor += lh
		}
	}
	l.cursor += after
}

// wrapText breaks translated (single byte) text into lines no wider than width, using the current font.
func wrapText(pdf *fpdf.Fpdf, txt string, width float64) []string {
	words := strings.Fields(txt)
	if len(words) == 0 {
		return []string{""}
	}

	var (
		lines []string
		cur   string
	)
	for _, word := range words {
		for pdf.GetStringWidth(word) > width && len(word) > 1 {
			if cur != "" {
				lines = append(lines, cur)
				cur = ""
			}
			n := len(word) - 1
			for n > 1 && pdf.GetStringWidth(word[:n]) > width {
				n--
			}
			lines = append(lines, word[:n])
			word = word[n:]
		}

		candidate := word
		if cur != "" {
			candidate = cur + " " + word
		}
		if cur != "" && pdf.GetStringWidth(candidate) > width {
			lines = append(lines, cur)
			cur = word
			continue
		}
		cur = candidate
	}
	return append(lines, cur)
}

// wrapPre keeps whitespace and only breaks lines that overflow.
func wrapPre(pdf *fpdf.Fpdf, txt string, width float64) []string {
	var lines []string
	for len(txt) > 1 && pdf.GetStringWidth(txt) > width {
		n := len(txt) - 1
		for n > 1 && pdf.GetStringWidth(txt[:n]) > width {
			n--
		}
		lines = append(lines, txt[:n])
		txt = txt[n:]
	}
	return append(lines, txt)
}

func (l *layout) addRule() {
	l.cursor += 2
	l.items = append(l.items, item{rule: true, x: l.left, top: l.cursor, baseline: l.cursor, bottom: l.cursor + 0.3})
	l.cursor += 3
}

// ExportPDF lays the note out on a fixed-width light canvas, slices it into A4 pages
// and writes the document to w. Every page carries the watermark.
func ExportPDF(w io.Writer, opts ExportOptions) (ExportResult, error) {
	if opts.CanvasWidthPx <= 0 {
		opts.CanvasWidthPx = DefaultCanvasWidthPx
	}
	if opts.PaddingPx < 0 || opts.PaddingPx*2 >= opts.CanvasWidthPx {
		opts.PaddingPx = DefaultPaddingPx
	}
	if opts.Watermark == "" {
		opts.Watermark = DefaultWatermark
	}

	mmPerPx := PageWidthMM / opts.CanvasWidthPx
	padding := opts.PaddingPx * mmPerPx

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if opts.Title != "" {
		pdf.SetTitle(opts.Title, true)
	}
	if opts.Author != "" {
		pdf.SetAuthor(opts.Author, true)
	}
	if opts.Creator != "" {
		pdf.SetCreator(opts.Creator, true)
	}

	l := &layout{pdf: pdf, tr: tr, left: padding, width: PageWidthMM - 2*padding, cursor: padding}
	if opts.Title != "" {
		s := headingStyle(1)
		l.addText(s, opts.Title, s.lineHeight()*0.6)
	}
	for _, b := range blocks(opts.Content) {
		switch b.kind {
		case blockHeading:
			s := headingStyle(b.level)
			l.cursor += s.lineHeight() * 0.3
			l.addText(s, b.text, s.lineHeight()*0.3)
		case blockCode:
			l.addText(codeStyle, b.text, codeStyle.lineHeight()*0.6)
		case blockQuote:
			l.addText(quoteStyle, b.text, quoteStyle.lineHeight()*0.6)
		case blockListItem:
			s := bodyStyle
			s.indent = 4 + float64(b.level)*5
			l.addText(s, "• "+b.text, s.lineHeight()*0.2)
		case blockRule:
			l.addRule()
		default:
			l.addText(bodyStyle, b.text, bodyStyle.lineHeight()*0.6)
		}
	}
	contentHeight := l.cursor + padding
	contentHeightPx := contentHeight / mmPerPx

	pages := Paginate(contentHeightPx, opts.CanvasWidthPx)
	for _, page := range pages {
		pdf.AddPage()
		shift := page.OffsetMM
		top, bottom := -shift, -shift+PageHeightMM

		pdf.ClipRect(0, 0, PageWidthMM, PageHeightMM, false)
		pdf.SetTextColor(0, 0, 0)
		pdf.SetDrawColor(200, 200, 200)
		for _, it := range l.items {
			if it.bottom <= top || it.top >= bottom {
				continue
			}
			if it.rule {
				pdf.Line(it.x, it.top+shift, PageWidthMM-padding, it.top+shift)
				continue
			}
			pdf.SetFont(it.style.family, it.style.style, it.style.size)
			pdf.Text(it.x, it.baseline+shift, it.text)
		}
		pdf.ClipEnd()

		drawWatermark(pdf, tr(opts.Watermark))
	}

	if err := pdf.Output(w); err != nil {
		return ExportResult{}, errors.Wrap(err, "writing pdf")
	}
	return ExportResult{Pages: len(pages), ContentHeightPx: contentHeightPx}, nil
}

// drawWatermark writes the watermark right-aligned at (200, 290) mm.
func drawWatermark(pdf *fpdf.Fpdf, text string) {
	pdf.SetFont("Helvetica", "", watermarkSize)
	pdf.SetTextColor(watermarkGrey, watermarkGrey, watermarkGrey)
	pdf.Text(watermarkX-pdf.GetStringWidth(text), watermarkY, text)
}
