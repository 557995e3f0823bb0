package pdf

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ExtractedPage is one single-page document cut out of a source document.
type ExtractedPage struct {
	PageNumber int    `json:"pageNumber"`
	Data       []byte `json:"-"`
}

// ExtractPages copies the pages with the given 1-based numbers, each into its
// own single-page document, in the requested order. Page content is copied
// structurally and never re-rendered. Every number is checked before the
// first copy is made.
func ExtractPages(doc *Document, numbers []int) ([]ExtractedPage, error) {
	if len(numbers) == 0 {
		return nil, errPageOutOfRange(0, doc.PageCount())
	}
	for _, n := range numbers {
		if _, err := doc.PageByNumber(n); err != nil {
			return nil, err
		}
	}

	out := make([]ExtractedPage, 0, len(numbers))
	for _, n := range numbers {
		data, err := extractPage(doc, n)
		if err != nil {
			return nil, err
		}
		out = append(out, ExtractedPage{PageNumber: n, Data: data})
	}
	return out, nil
}

// ExtractAll splits doc into one document per page in source order.
func ExtractAll(doc *Document) ([]ExtractedPage, error) {
	numbers := make([]int, doc.PageCount())
	for i := range numbers {
		numbers[i] = i + 1
	}
	return ExtractPages(doc, numbers)
}

// extractPage keeps only page n. The result is written without object or
// xref streams.
func extractPage(doc *Document, n int) ([]byte, error) {
	return trimPages(doc, strconv.Itoa(n), false)
}

// trimPages writes a copy of doc holding only the pages of selection, a
// pdfcpu page selection such as "3" or "2-5".
func trimPages(doc *Document, selection string, compress bool) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = errInternal("failed to copy pages", fmt.Errorf("trim panic on %s: %v", selection, r))
		}
	}()

	conf := doc.configuration()
	conf.WriteObjectStream = compress
	conf.WriteXRefStream = compress

	var buf bytes.Buffer
	if err := api.Trim(bytes.NewReader(doc.Bytes()), &buf, []string{selection}, conf); err != nil {
		return nil, errInternal("failed to copy pages", err)
	}
	return buf.Bytes(), nil
}
