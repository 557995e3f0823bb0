package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

// testPage describes one page of a generated fixture.
type testPage struct {
	width, height float64
	text          string // shown with Helvetica at 72 / height-72
	content       string // extra content stream operators
}

// buildPDF writes a minimal classic-xref PDF with one shared Helvetica font.
func buildPDF(t testing.TB, pages ...testPage) []byte {
	t.Helper()
	if len(pages) == 0 {
		t.Fatal("buildPDF needs at least one page")
	}

	// 1 catalog, 2 pages, 3 font, then page + content pairs
	var objs []string
	var kids []string
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>", "", fontObject())
	for i, p := range pages {
		pageNr, contentNr := 4+2*i, 5+2*i
		kids = append(kids, fmt.Sprintf("%d 0 R", pageNr))

		var cs strings.Builder
		if p.content != "" {
			cs.WriteString(p.content)
			cs.WriteByte('\n')
		}
		if p.text != "" {
			fmt.Fprintf(&cs, "BT /F1 12 Tf 72 %.0f Td (%s) Tj ET\n", p.height-72, escapeLiteral(p.text))
		}
		stream := cs.String()

		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
				p.width, p.height, contentNr),
			streamObject(stream))
	}
	objs[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))

	return rawPDF(objs)
}

// rawPDF numbers objs from 1, the first being the catalog, and writes them
// with a classic xref table.
func rawPDF(objs []string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

// streamObject formats an unfiltered stream object body.
func streamObject(content string) string {
	return fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content)
}

func fontObject() string {
	widths := make([]string, 95)
	for i := range widths {
		widths[i] = "556"
	}
	return "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding " +
		"/FirstChar 32 /LastChar 126 /Widths [" + strings.Join(widths, " ") + "] >>"
}

func escapeLiteral(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

// letterPDF builds a US Letter document with one text page per entry.
func letterPDF(t testing.TB, texts ...string) []byte {
	t.Helper()
	pages := make([]testPage, len(texts))
	for i, s := range texts {
		pages[i] = testPage{width: 612, height: 792, text: s}
	}
	return buildPDF(t, pages...)
}

// openTest opens data and closes the document when the test ends.
func openTest(t testing.TB, data []byte) *Document {
	t.Helper()
	doc, err := Open(data, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { doc.Close() })
	return doc
}

// wantCode fails unless err is a *PDFError with code.
func wantCode(t testing.TB, err error, code PDFErrorCode) *PDFError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %s, got nil", code)
	}
	pdfErr, ok := err.(*PDFError)
	if !ok {
		t.Fatalf("expected *PDFError, got %T: %v", err, err)
	}
	if pdfErr.Code != code {
		t.Fatalf("expected error code %s, got %s (%v)", code, pdfErr.Code, err)
	}
	return pdfErr
}
