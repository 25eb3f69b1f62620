package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// FileFetcher extracts plain text from local files. Supported formats
// are txt, md, pdf, and xlsx, chosen by file extension.
type FileFetcher struct{}

// NewFileFetcher builds a file fetcher.
func NewFileFetcher() *FileFetcher {
	return &FileFetcher{}
}

// Supported reports whether the path's extension has an extractor.
func (f *FileFetcher) Supported(path string) bool {
	switch normalisedExt(path) {
	case "txt", "md", "pdf", "xlsx":
		return true
	}
	return false
}

// Fetch reads the file and returns its extracted text. The title is
// the file's base name without extension.
func (f *FileFetcher) Fetch(ctx context.Context, path string) (*Page, error) {
	var content string
	var err error

	switch ext := normalisedExt(path); ext {
	case "txt", "md":
		content, err = readTextFile(path)
	case "pdf":
		content, err = extractPDF(path)
	case "xlsx":
		content, err = extractXLSX(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}

	base := filepath.Base(path)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	return &Page{Source: path, Title: title, Content: content}, nil
}

func normalisedExt(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

func readTextFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF %s: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}

	if b.Len() == 0 {
		return "", fmt.Errorf("no extractable text in PDF %s", path)
	}
	return b.String(), nil
}

func extractXLSX(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("opening XLSX %s: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(sheet + "\n")
		for _, row := range rows {
			b.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}
	}

	if b.Len() == 0 {
		return "", fmt.Errorf("no data found in XLSX %s", path)
	}
	return b.String(), nil
}
