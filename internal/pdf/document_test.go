package pdf

import (
	"math"
	"testing"
)

// TestOpen_RejectsBadInput tests the checks that run before and during the structural parse
func TestOpen_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		code PDFErrorCode
	}{
		{"empty", nil, ErrEmpty},
		{"png header", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), ErrInvalidFormat},
		{"plain text", []byte("This is not a PDF file"), ErrInvalidFormat},
		{"header only", []byte("%PDF-1.7\nthis is not a pdf body\n"), ErrCorrupted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Open(tt.data, nil)
			if doc != nil {
				t.Errorf("expected nil document, got %v", doc)
			}
			wantCode(t, err, tt.code)
		})
	}
}

func TestHasPDFMagic(t *testing.T) {
	if !HasPDFMagic([]byte("%PDF-1.4")) {
		t.Error("expected %PDF-1.4 to be recognised")
	}
	if HasPDFMagic([]byte("%PD")) {
		t.Error("expected a short header to be rejected")
	}
	if HasPDFMagic([]byte(" %PDF-1.4")) {
		t.Error("expected a leading space to be rejected")
	}
}

// TestOpen_PageGeometry tests page count and per-page sizes
func TestOpen_PageGeometry(t *testing.T) {
	data := buildPDF(t,
		testPage{width: 612, height: 792, text: "Letter"},
		testPage{width: 595.5, height: 842, text: "A4"},
		testPage{width: 200, height: 100},
	)
	doc := openTest(t, data)

	if got := doc.PageCount(); got != 3 {
		t.Fatalf("PageCount() = %d, want 3", got)
	}
	if doc.Size() != len(data) {
		t.Errorf("Size() = %d, want %d", doc.Size(), len(data))
	}

	want := [][2]float64{{612, 792}, {595.5, 842}, {200, 100}}
	for i, w := range want {
		p, err := doc.Page(i)
		if err != nil {
			t.Fatalf("Page(%d) error = %v", i, err)
		}
		if p.Index != i || p.Number != i+1 {
			t.Errorf("page %d: Index=%d Number=%d", i, p.Index, p.Number)
		}
		if math.Abs(p.Width-w[0]) > 1e-6 || math.Abs(p.Height-w[1]) > 1e-6 {
			t.Errorf("page %d: size %gx%g, want %gx%g", i, p.Width, p.Height, w[0], w[1])
		}
		if p.Document() != doc {
			t.Errorf("page %d: Document() does not return its owner", i)
		}
	}
}

// TestDocument_PageBounds tests that page 0 and pageCount+1 are rejected
func TestDocument_PageBounds(t *testing.T) {
	doc := openTest(t, letterPDF(t, "one", "two", "three"))

	for _, n := range []int{0, -1, 4, 100} {
		_, err := doc.PageByNumber(n)
		pdfErr := wantCode(t, err, ErrPageOutOfRange)
		if pdfErr.Page != n {
			t.Errorf("PageByNumber(%d): error page = %d", n, pdfErr.Page)
		}
	}
	for _, n := range []int{1, 3} {
		if _, err := doc.PageByNumber(n); err != nil {
			t.Errorf("PageByNumber(%d) error = %v", n, err)
		}
	}
}

func TestDocument_Close(t *testing.T) {
	doc, err := Open(letterPDF(t, "hello"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	page, _ := doc.Page(0)

	if err := doc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := doc.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	_, err = doc.Page(0)
	wantCode(t, err, ErrInternal)
	if page.Document() != nil {
		t.Error("page still references its document after Close")
	}
	if _, err := doc.WorkingContext(); err == nil {
		t.Error("WorkingContext() after Close should fail")
	}
}

// TestDocument_WorkingContextIsIndependent tests that edits to a working copy leave the document alone
func TestDocument_WorkingContextIsIndependent(t *testing.T) {
	doc := openTest(t, letterPDF(t, "one", "two"))

	work, err := doc.WorkingContext()
	if err != nil {
		t.Fatalf("WorkingContext() error = %v", err)
	}
	pageDict, _, _, err := work.PageDict(1, false)
	if err != nil {
		t.Fatalf("PageDict() error = %v", err)
	}
	pageDict.Delete("Contents")

	orig, _, _, err := doc.ctx.PageDict(1, false)
	if err != nil {
		t.Fatalf("PageDict() error = %v", err)
	}
	if _, found := orig.Find("Contents"); !found {
		t.Error("editing the working context changed the document")
	}
}

// TestOpen_InheritedMediaBox tests that a MediaBox on the page tree root is inherited
func TestOpen_InheritedMediaBox(t *testing.T) {
	data := rawPDF([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 300 400] >>",
		"<< /Type /Page /Parent 2 0 R /Resources << >> /Contents 4 0 R >>",
		streamObject(""),
	})

	doc := openTest(t, data)
	p, _ := doc.Page(0)
	if p.Width != 300 || p.Height != 400 {
		t.Errorf("inherited size = %gx%g, want 300x400", p.Width, p.Height)
	}
}

// TestOpen_CropBoxWins tests that the CropBox defines the visible size and origin
func TestOpen_CropBoxWins(t *testing.T) {
	data := rawPDF([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /CropBox [10 20 310 420] /Resources << >> /Contents 4 0 R >>",
		streamObject(""),
	})

	doc := openTest(t, data)
	p, _ := doc.Page(0)
	if p.Width != 300 || p.Height != 400 {
		t.Errorf("size = %gx%g, want 300x400", p.Width, p.Height)
	}
	if p.Origin.X != 10 || p.Origin.Y != 20 {
		t.Errorf("origin = %+v, want {10 20}", p.Origin)
	}
}
