package pdf

import (
	"fmt"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
)

// pageTextSource yields the plain text of one 1-based page.
type pageTextSource interface {
	PageCount() int
	PageText(number int) (string, error)
}

// TextExtractor extracts page text and gates it through a ContentScanner.
type TextExtractor struct {
	scanner *ContentScanner
}

// NewTextExtractor creates a TextExtractor. A nil scanner lets every page
// through.
func NewTextExtractor(scanner *ContentScanner) *TextExtractor {
	if scanner == nil {
		scanner = NewContentScanner(nil)
	}
	return &TextExtractor{scanner: scanner}
}

// Extract returns the text of the requested pages joined by "\n" in request
// order. All numbers are validated before any page is read. If any page
// matches a sensitive pattern the whole request fails and no text is
// returned.
func (e *TextExtractor) Extract(doc *Document, numbers []int) (string, error) {
	return e.extract(&documentText{doc: doc}, numbers)
}

func (e *TextExtractor) extract(src pageTextSource, numbers []int) (string, error) {
	count := src.PageCount()
	if len(numbers) == 0 {
		return "", errPageOutOfRange(0, count)
	}
	for _, n := range numbers {
		if n < 1 || n > count {
			return "", errPageOutOfRange(n, count)
		}
	}

	texts := make([]string, 0, len(numbers))
	for _, n := range numbers {
		text, err := src.PageText(n)
		if err != nil {
			return "", err
		}
		if matched := e.scanner.Scan(text); len(matched) > 0 {
			return "", errSensitive(matched)
		}
		texts = append(texts, text)
	}
	return strings.Join(texts, "\n"), nil
}

// documentText reads page text from a Document with ledongthuc/pdf.
type documentText struct {
	doc *Document
}

func (d *documentText) PageCount() int {
	return d.doc.PageCount()
}

func (d *documentText) PageText(number int) (text string, err error) {
	r, err := d.doc.textReader()
	if err != nil {
		return "", err
	}

	defer func() {
		if p := recover(); p != nil {
			text = ""
			err = errInternal("failed to extract text", fmt.Errorf("text panic on page %d: %v", number, p))
		}
	}()

	if number > r.NumPage() {
		return "", errPageOutOfRange(number, r.NumPage())
	}
	page := r.Page(number)
	if page.V.IsNull() {
		return "", nil
	}

	// 按行获取文本，失败时退回纯文本
	rows, err := page.GetTextByRow()
	if err == nil {
		return joinRows(rows), nil
	}
	plain, err := page.GetPlainText(nil)
	if err != nil {
		return "", NewPDFErrorWithPage(ErrInternal, "failed to extract text", number, err)
	}
	return strings.TrimRight(plain, "\n"), nil
}

// joinRows joins each row's runs and separates rows with newlines.
func joinRows(rows lpdf.Rows) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		var sb strings.Builder
		for _, t := range row.Content {
			sb.WriteString(t.S)
		}
		if line := strings.TrimRight(sb.String(), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
