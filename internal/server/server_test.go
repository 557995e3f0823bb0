package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"pdf-workbench/internal/pdf"
	"pdf-workbench/internal/types"
)

const testOrigin = "http://localhost:3001"

// letterPDF builds a US Letter document with one Helvetica text line per page.
func letterPDF(texts ...string) []byte {
	objs := []string{"<< /Type /Catalog /Pages 2 0 R >>", "",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>"}
	var kids []string
	for i, s := range texts {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+2*i))
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", s)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}
	objs[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(texts))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
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

func drawingPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func newTestServer(opts pdf.Options) http.Handler {
	svc := pdf.NewService(opts)
	return New(svc, types.ServerConfig{AllowedOrigins: []string{testOrigin + "/"}}, nil).Handler()
}

// post sends a multipart form with the document in the "file" part when file is non-nil.
func post(t *testing.T, h http.Handler, path string, file []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if file != nil {
		part, err := mw.CreateFormFile("file", "doc.pdf")
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		part.Write(file)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %v (%s)", err, rec.Body.String())
	}
	if body.Success {
		t.Error("error body has success=true")
	}
	return body
}

func TestHealthz(t *testing.T) {
	h := newTestServer(pdf.Options{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, err := uuid.Parse(rec.Header().Get(HeaderRequestID)); err != nil {
		t.Errorf("response request id %q is not a UUID", rec.Header().Get(HeaderRequestID))
	}
}

func TestRequestIDEchoed(t *testing.T) {
	h := newTestServer(pdf.Options{})
	id := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, id)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); got != id {
		t.Errorf("request id = %q, want %q", got, id)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, "not-a-uuid")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); got == "not-a-uuid" {
		t.Error("invalid request id should be replaced")
	}
}

func TestPageCount(t *testing.T) {
	h := newTestServer(pdf.Options{})
	rec := post(t, h, "/api/v1/pdf/page-count", letterPDF("one", "two", "three"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body pageCountBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body.NumPages != 3 {
		t.Errorf("numPages = %d, want 3", body.NumPages)
	}
}

func TestPreviewRoutes(t *testing.T) {
	h := newTestServer(pdf.Options{})
	data := letterPDF("one", "two")

	for _, path := range []string{"/api/v1/image/upload-pdf", "/api/v1/pdf/upload-pdf", "/api/v1/pdf/render"} {
		t.Run(path, func(t *testing.T) {
			rec := post(t, h, path, data, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
				t.Errorf("Content-Type = %q", ct)
			}
			cfg, err := png.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
			if err != nil {
				t.Fatalf("body is not a PNG: %v", err)
			}
			if cfg.Width != 612 || cfg.Height != 792 {
				t.Errorf("preview size = %dx%d, want 612x792", cfg.Width, cfg.Height)
			}
		})
	}

	rec := post(t, h, "/api/v1/pdf/render", data, map[string]string{"page": "2", "zoom": "0.5"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	if err != nil || cfg.Width != 306 || cfg.Height != 396 {
		t.Errorf("zoomed preview = %dx%d, %v; want 306x396", cfg.Width, cfg.Height, err)
	}
}

func TestErrorResponses(t *testing.T) {
	h := newTestServer(pdf.Options{})
	data := letterPDF("one", "two", "three")
	pngData := drawingPNG(t)

	tests := []struct {
		name   string
		path   string
		file   []byte
		fields map[string]string
		status int
		code   pdf.PDFErrorCode
	}{
		{"no file", "/api/v1/pdf/page-count", nil, nil, http.StatusBadRequest, pdf.ErrNoFileProvided},
		{"png upload", "/api/v1/pdf/render", pngData, nil, http.StatusUnsupportedMediaType, pdf.ErrInvalidFormat},
		{"page zero", "/api/v1/pdf/render", data, map[string]string{"page": "0"}, http.StatusBadRequest, pdf.ErrPageOutOfRange},
		{"page past end", "/api/v1/pdf/render", data, map[string]string{"page": "4"}, http.StatusBadRequest, pdf.ErrPageOutOfRange},
		{"page not a number", "/api/v1/pdf/render", data, map[string]string{"page": "abc"}, http.StatusBadRequest, pdf.ErrPageOutOfRange},
		{"bad zoom", "/api/v1/pdf/render", data, map[string]string{"zoom": "big"}, http.StatusBadRequest, pdf.ErrInvalidZoom},
		{"negative zoom", "/api/v1/pdf/render", data, map[string]string{"zoom": "-1"}, http.StatusBadRequest, pdf.ErrInvalidZoom},
		{"bad pages list", "/api/v1/pdf/extract", data, map[string]string{"pages": "1,x"}, http.StatusBadRequest, pdf.ErrPageOutOfRange},
		{"no pages", "/api/v1/pdf/extract", data, nil, http.StatusBadRequest, pdf.ErrPageOutOfRange},
		{"draw without drawing", "/api/v1/pdf/draw", data, map[string]string{"page": "1"}, http.StatusBadRequest, pdf.ErrNoAnnotationData},
		{"annotate without canvas", "/api/v1/pdf/annotate", data,
			map[string]string{"page": "1", "shapes": "[]"}, http.StatusBadRequest, pdf.ErrMalformedAnnotation},
		{"annotate bad canvas", "/api/v1/pdf/annotate", data,
			map[string]string{"page": "1", "shapes": "[]", "canvasWidth": "wide", "canvasHeight": "10"}, http.StatusBadRequest, pdf.ErrMalformedAnnotation},
		{"annotate bad shapes", "/api/v1/pdf/annotate", data,
			map[string]string{"page": "1", "shapes": `[{"type":"circle"}]`, "canvasWidth": "10", "canvasHeight": "10"}, http.StatusBadRequest, pdf.ErrMalformedAnnotation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, tt.path, tt.file, tt.fields)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			body := decodeError(t, rec)
			if body.Code != string(tt.code) {
				t.Errorf("code = %q, want %q", body.Code, tt.code)
			}
			if body.Error == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestNotMultipart(t *testing.T) {
	h := newTestServer(pdf.Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pdf/page-count", strings.NewReader("%PDF-1.4"))
	req.Header.Set("Content-Type", "application/pdf")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != string(pdf.ErrNoFileProvided) {
		t.Errorf("code = %q", body.Code)
	}
}

func TestFileTooLarge(t *testing.T) {
	// the document limit is checked by the service
	h := newTestServer(pdf.Options{MaxUploadBytes: 100})
	rec := post(t, h, "/api/v1/pdf/page-count", letterPDF("one"), nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != string(pdf.ErrFileTooLarge) {
		t.Errorf("code = %q", body.Code)
	}

	// the body limit is checked before the form is parsed
	huge := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte{' '}, formOverhead+200)...)
	rec = post(t, h, "/api/v1/pdf/page-count", huge, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestExtractText(t *testing.T) {
	h := newTestServer(pdf.Options{SensitivePatterns: []string{"TEST"}})
	data := letterPDF("PageOne", "PageTwoTEST", "PageThree")

	for _, path := range []string{"/api/v1/pdf/extract", "/api/v1/pdf/extract-text"} {
		rec := post(t, h, path, data, map[string]string{"pages": "1, 3"})
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, body %s", path, rec.Code, rec.Body.String())
		}
		var body textBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("body is not JSON: %v", err)
		}
		if !body.Success || body.Text != "PageOne\nPageThree" {
			t.Errorf("%s: body = %+v", path, body)
		}
	}

	rec := post(t, h, "/api/v1/pdf/extract", data, map[string]string{"pages": "1,2"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Code != string(pdf.ErrSensitiveContent) {
		t.Errorf("code = %q", body.Code)
	}
	if diff := cmp.Diff([]string{"TEST"}, body.Patterns); diff != "" {
		t.Errorf("patterns mismatch (-want +got):\n%s", diff)
	}
	if strings.Contains(rec.Body.String(), "PageOne") {
		t.Error("extracted text leaked into the error response")
	}
}

func TestSplit(t *testing.T) {
	h := newTestServer(pdf.Options{})
	svc := pdf.NewService(pdf.Options{})
	data := letterPDF("one", "two", "three")

	decode := func(rec *httptest.ResponseRecorder) splitBody {
		t.Helper()
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		var body splitBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("body is not JSON: %v", err)
		}
		return body
	}

	all := decode(post(t, h, "/api/v1/pdf/split", data, nil))
	if all.Total != 3 || len(all.Pages) != 3 {
		t.Fatalf("split total=%d pages=%d", all.Total, len(all.Pages))
	}
	for i, p := range all.Pages {
		raw, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			t.Fatalf("page %d: bad base64: %v", i+1, err)
		}
		if n, err := svc.PageCount(t.Context(), raw); err != nil || n != 1 || p.PageNumber != i+1 {
			t.Errorf("page %d: number=%d count=%d err=%v", i+1, p.PageNumber, n, err)
		}
	}

	some := decode(post(t, h, "/api/v1/pdf/split", data, map[string]string{"pages": "3,1"}))
	if some.Total != 2 || some.Pages[0].PageNumber != 3 || some.Pages[1].PageNumber != 1 {
		t.Errorf("selected split = %+v", some)
	}
}

func TestAnnotate(t *testing.T) {
	h := newTestServer(pdf.Options{})
	svc := pdf.NewService(pdf.Options{})
	data := letterPDF("one", "two")
	shapes := `[{"type":"rect","left":10,"top":10,"width":50,"height":20}]`

	tests := []struct {
		path  string
		field string
	}{
		{"/api/v1/pdf/annotate", "shapes"},
		{"/api/v1/pdf/apply-drawing", "drawing"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := post(t, h, tt.path, data, map[string]string{
				"page": "2", tt.field: shapes, "canvasWidth": "612", "canvasHeight": "792",
			})
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
				t.Errorf("Content-Type = %q", ct)
			}
			if n, err := svc.PageCount(t.Context(), rec.Body.Bytes()); err != nil || n != 2 {
				t.Errorf("annotated page count = %d, %v; want 2", n, err)
			}
		})
	}
}

func TestDraw(t *testing.T) {
	h := newTestServer(pdf.Options{CompositeZoom: 1})
	svc := pdf.NewService(pdf.Options{})
	data := letterPDF("one", "two")
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(drawingPNG(t))

	rec := post(t, h, "/api/v1/pdf/draw", data, map[string]string{"page": "1", "drawing": url})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if n, err := svc.PageCount(t.Context(), rec.Body.Bytes()); err != nil || n != 2 {
		t.Errorf("page count = %d, %v; want 2", n, err)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "page_1.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestCORS(t *testing.T) {
	h := newTestServer(pdf.Options{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/pdf/page-count", nil)
	req.Header.Set("Origin", testOrigin)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != testOrigin {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("foreign origin status = %d, want 403", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("foreign origin must not be echoed")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code pdf.PDFErrorCode
		want int
	}{
		{pdf.ErrNoFileProvided, 400},
		{pdf.ErrInvalidFormat, 415},
		{pdf.ErrCorrupted, 400},
		{pdf.ErrEmpty, 400},
		{pdf.ErrFileTooLarge, 413},
		{pdf.ErrPageOutOfRange, 400},
		{pdf.ErrInvalidZoom, 400},
		{pdf.ErrNoAnnotationData, 400},
		{pdf.ErrMalformedAnnotation, 400},
		{pdf.ErrRenderTooLarge, 422},
		{pdf.ErrSensitiveContent, 422},
		{pdf.ErrInternal, 500},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.code); got != tt.want {
			t.Errorf("StatusFor(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
