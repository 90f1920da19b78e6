package markdown

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginate(t *testing.T) {
	pageHeight := PageHeightMM * DefaultCanvasWidthPx / PageWidthMM

	tests := []struct {
		name      string
		height    float64
		wantPages int
	}{
		{name: "empty content", height: 0, wantPages: 1},
		{name: "short content", height: 300, wantPages: 1},
		{name: "just under a page", height: pageHeight - 1, wantPages: 1},
		{name: "exactly one page", height: pageHeight, wantPages: 1},
		{name: "a bit more than a page", height: pageHeight + 1, wantPages: 2},
		{name: "exactly two pages", height: 2 * pageHeight, wantPages: 2},
		{name: "long content", height: 5000, wantPages: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slices := Paginate(tt.height, DefaultCanvasWidthPx)
			require.Len(t, slices, tt.wantPages)
			for i, s := range slices {
				assert.Equal(t, i, s.Index)
				assert.Equal(t, -(float64(i) * PageHeightMM), s.OffsetMM)
				assert.InDelta(t, float64(i)*pageHeight, s.TopPx, 1e-9)
			}
		})
	}

	t.Run("zero width uses the default canvas", func(t *testing.T) {
		assert.Equal(t, Paginate(5000, DefaultCanvasWidthPx), Paginate(5000, 0))
	})
}

func longNote(paragraphs int) string {
	var sb strings.Builder
	sb.WriteString("Intro paragraph.\n\n")
	for i := 1; i <= paragraphs; i++ {
		if i%10 == 1 {
			fmt.Fprintf(&sb, "## %d. Part %d\n\n", i/10+1, i/10+1)
		}
		fmt.Fprintf(&sb, "Paragraph %d explains the layers of the network stack in a few plain words.\n\n", i)
	}
	sb.WriteString("```\nfunc main() {}\n```\n\n- one\n- two\n\n---\n")
	return sb.String()
}

func readPDF(t *testing.T, data []byte) (int, []string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "note.pdf")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	f, reader, err := pdflib.Open(path)
	require.NoError(t, err)
	defer f.Close()

	n := reader.NumPage()
	texts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		require.NoError(t, err)
		texts = append(texts, text)
	}
	return n, texts
}

func TestExportPDF(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		minPages int
	}{
		{name: "single page", content: "A short note.", minPages: 1},
		{name: "multi page", content: longNote(120), minPages: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			res, err := ExportPDF(&buf, ExportOptions{Title: "Networks", Content: tt.content})
			require.NoError(t, err)

			assert.GreaterOrEqual(t, res.Pages, tt.minPages)
			assert.Equal(t, len(Paginate(res.ContentHeightPx, DefaultCanvasWidthPx)), res.Pages)

			pages, texts := readPDF(t, buf.Bytes())
			assert.Equal(t, res.Pages, pages)
			assert.Contains(t, texts[0], "Networks")
			for i, text := range texts {
				assert.Contains(t, text, DefaultWatermark, "page %d", i+1)
			}
		})
	}
}

func TestExportPDFCustomWatermark(t *testing.T) {
	var buf bytes.Buffer
	_, err := ExportPDF(&buf, ExportOptions{Content: "x", Watermark: "notes.example", PaddingPx: 1000})
	require.NoError(t, err)

	_, texts := readPDF(t, buf.Bytes())
	assert.Contains(t, texts[0], "notes.example")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "osi.pdf", FileName("osi"))
	assert.Equal(t, "note.pdf", FileName("  "))
}
