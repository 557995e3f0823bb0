// Package server exposes the document Service over HTTP.
//
// Every route takes a multipart form with the document in the "file" part.
// Failures are reported as JSON with the stable error code of the core.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"pdf-workbench/internal/coords"
	"pdf-workbench/internal/logger"
	"pdf-workbench/internal/pdf"
	"pdf-workbench/internal/types"
)

// HeaderRequestID carries the request id on requests and responses.
const HeaderRequestID = "X-Request-ID"

// formOverhead is the room left for form fields on top of the document size.
const formOverhead = 4 << 20

// maxMemory is how much of a multipart form is kept in memory.
const maxMemory = 32 << 20

type ctxKey int

const requestIDKey ctxKey = 0

// Server HTTP 传输层
type Server struct {
	svc     *pdf.Service
	log     logger.Logger
	origins map[string]bool
	maxBody int64
	mux     *http.ServeMux
}

// New creates a Server for svc. A nil log disables request logging.
func New(svc *pdf.Service, cfg types.ServerConfig, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Server{
		svc:     svc,
		log:     log,
		origins: make(map[string]bool, len(cfg.AllowedOrigins)),
		maxBody: svc.Options().MaxUploadBytes + formOverhead,
		mux:     http.NewServeMux(),
	}
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			s.origins[o] = true
		}
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// 预览
	s.mux.HandleFunc("POST /api/v1/image/upload-pdf", s.handleRender)
	s.mux.HandleFunc("POST /api/v1/pdf/upload-pdf", s.handleRender)
	s.mux.HandleFunc("POST /api/v1/pdf/render", s.handleRender)

	s.mux.HandleFunc("POST /api/v1/pdf/page-count", s.handlePageCount)
	s.mux.HandleFunc("POST /api/v1/pdf/split", s.handleSplit)
	s.mux.HandleFunc("POST /api/v1/pdf/draw", s.handleDraw)

	s.mux.HandleFunc("POST /api/v1/pdf/annotate", s.handleAnnotate)
	s.mux.HandleFunc("POST /api/v1/pdf/apply-drawing", s.handleAnnotate)

	s.mux.HandleFunc("POST /api/v1/pdf/extract", s.handleExtractText)
	s.mux.HandleFunc("POST /api/v1/pdf/extract-text", s.handleExtractText)
}

// Handler returns the root handler with CORS and request ids applied.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.withCORS(s.mux))
}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))

		s.log.Info("request handled",
			logger.String("request_id", id),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Duration("elapsed", time.Since(start)))
	})
}

// withCORS 仅允许配置中的来源；没有 Origin 头的请求直接放行
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if !s.origins[origin] {
				s.log.Warn("CORS origin rejected", logger.String("origin", origin))
				writeJSON(w, http.StatusForbidden, errorBody{Error: "origin not allowed"})
				return
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", "Content-Type, "+HeaderRequestID)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Expose-Headers", HeaderRequestID)
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRender renders one page to PNG. Page defaults to 1, zoom to the
// preview zoom.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	data, err := s.readForm(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := intField(r, "page", 1)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	zoom, err := zoomField(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out, err := s.svc.RenderPage(r.Context(), data, page, zoom)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", `inline; filename="preview.png"`)
	writeBytes(w, "image/png", out)
}

func (s *Server) handlePageCount(w http.ResponseWriter, r *http.Request) {
	data, err := s.readForm(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.svc.PageCount(r.Context(), data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageCountBody{NumPages: n})
}

// handleSplit returns every page, or the pages listed in "pages", as
// separate base64 encoded documents.
func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	data, err := s.readForm(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var pages []pdf.ExtractedPage
	if strings.TrimSpace(r.FormValue("pages")) == "" {
		res, err := s.svc.SplitPages(r.Context(), data)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		pages = res.Pages
	} else {
		numbers, err := pagesField(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if pages, err = s.svc.ExtractPages(r.Context(), data, numbers); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	body := splitBody{Success: true, Total: len(pages), Pages: make([]splitPage, 0, len(pages))}
	for _, p := range pages {
		body.Pages = append(body.Pages, splitPage{
			PageNumber: p.PageNumber,
			Data:       base64.StdEncoding.EncodeToString(p.Data),
		})
	}
	writeJSON(w, http.StatusOK, body)
}

// handleDraw composites a raster drawing, sent as a data URL field or as an
// image part, over one page.
func (s *Server) handleDraw(w http.ResponseWriter, r *http.Request) {
	data, err := s.readForm(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := intField(r, "page", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	drawing, err := filePart(r, "drawing", s.maxBody)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if drawing == nil {
		drawing = []byte(r.FormValue("drawing"))
	}

	out, err := s.svc.OverlayDrawing(r.Context(), data, page, drawing)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writePDF(w, out, page)
}

// handleAnnotate adds a JSON shape list, given in canvas pixels, to one page.
// The list is read from "shapes", or from "drawing" as the web client sends it.
func (s *Server) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	data, err := s.readForm(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := intField(r, "page", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	payload := r.FormValue("shapes")
	if payload == "" {
		payload = r.FormValue("drawing")
	}
	canvas, err := canvasField(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out, err := s.svc.AnnotateShapes(r.Context(), data, page, []byte(payload), canvas)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writePDF(w, out, page)
}

func (s *Server) handleExtractText(w http.ResponseWriter, r *http.Request) {
	data, err := s.readForm(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	numbers, err := pagesField(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	text, err := s.svc.ExtractText(r.Context(), data, numbers)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, textBody{Success: true, Text: text})
}

// readForm parses the multipart form and returns the "file" part. A missing
// part yields nil so the Service reports NO_FILE_PROVIDED.
func (s *Server) readForm(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.ContentLength > s.maxBody {
		return nil, pdf.NewPDFErrorWithDetails(pdf.ErrFileTooLarge, "file is too large",
			fmt.Sprintf("request body of %d bytes exceeds %d", r.ContentLength, s.maxBody), nil)
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, pdf.NewPDFErrorWithDetails(pdf.ErrFileTooLarge, "file is too large",
				fmt.Sprintf("request body exceeds %d bytes", tooBig.Limit), err)
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, pdf.NewPDFError(pdf.ErrNoFileProvided, "no file provided", err)
		}
		return nil, pdf.NewPDFError(pdf.ErrNoFileProvided, "failed to read upload", err)
	}
	return filePart(r, "file", s.maxBody)
}

// filePart reads the named file part, nil when it is absent.
func filePart(r *http.Request, name string, limit int64) ([]byte, error) {
	f, _, err := r.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, pdf.NewPDFError(pdf.ErrNoFileProvided, "failed to read upload", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return nil, pdf.NewPDFError(pdf.ErrNoFileProvided, "failed to read upload", err)
	}
	return data, nil
}

// intField parses a page number field. def is used when the field is absent;
// a zero default leaves range checking to the Service.
func intField(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, pdf.NewPDFErrorWithDetails(pdf.ErrPageOutOfRange, "invalid page number",
			fmt.Sprintf("%s=%q", name, v), err)
	}
	return n, nil
}

// pagesField parses the comma separated "pages" field.
func pagesField(r *http.Request) ([]int, error) {
	var numbers []int
	for _, p := range strings.Split(r.FormValue("pages"), ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, pdf.NewPDFErrorWithDetails(pdf.ErrPageOutOfRange, "invalid page number",
				fmt.Sprintf("pages contains %q", p), err)
		}
		numbers = append(numbers, n)
	}
	return numbers, nil
}

func zoomField(r *http.Request) (float64, error) {
	v := strings.TrimSpace(r.FormValue("zoom"))
	if v == "" {
		return 0, nil
	}
	z, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, pdf.NewPDFErrorWithDetails(pdf.ErrInvalidZoom, "invalid zoom factor",
			fmt.Sprintf("zoom=%q", v), err)
	}
	return z, nil
}

// canvasField reads canvasWidth and canvasHeight. Validation of the values is
// left to the Service.
func canvasField(r *http.Request) (coords.Size, error) {
	var size coords.Size
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"canvasWidth", &size.Width},
		{"canvasHeight", &size.Height},
	} {
		v := strings.TrimSpace(r.FormValue(f.name))
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return coords.Size{}, pdf.NewPDFErrorWithDetails(pdf.ErrMalformedAnnotation,
				"malformed annotation payload", fmt.Sprintf("%s=%q", f.name, v), err)
		}
		*f.dst = n
	}
	return size, nil
}

// fail writes err as a JSON error body. Only the user-safe part of a
// PDFError is sent.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	pe, ok := pdf.AsPDFError(err)
	if !ok {
		s.log.Error("unhandled transport error", err, logger.String("request_id", RequestID(r.Context())))
		pe = pdf.NewPDFError(pdf.ErrInternal, "internal error", err)
	}
	writeJSON(w, StatusFor(pe.Code), errorBody{
		Error:    pe.Error(),
		Code:     string(pe.Code),
		Page:     pe.Page,
		Patterns: pe.Patterns,
	})
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code pdf.PDFErrorCode) int {
	switch code {
	case pdf.ErrFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case pdf.ErrInvalidFormat:
		return http.StatusUnsupportedMediaType
	case pdf.ErrSensitiveContent, pdf.ErrRenderTooLarge:
		return http.StatusUnprocessableEntity
	case pdf.ErrInternal:
		return http.StatusInternalServerError
	case "":
		return http.StatusOK
	default:
		return http.StatusBadRequest
	}
}

type errorBody struct {
	Success  bool     `json:"success"`
	Error    string   `json:"error"`
	Code     string   `json:"code,omitempty"`
	Page     int      `json:"page,omitempty"`
	Patterns []string `json:"patterns,omitempty"`
}

type pageCountBody struct {
	NumPages int `json:"numPages"`
}

type textBody struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
	Error   string `json:"error,omitempty"`
}

type splitPage struct {
	PageNumber int    `json:"pageNumber"`
	Data       string `json:"data"`
}

type splitBody struct {
	Success bool        `json:"success"`
	Total   int         `json:"total"`
	Pages   []splitPage `json:"pages"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBytes(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writePDF(w http.ResponseWriter, data []byte, page int) {
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="page_%d.pdf"`, page))
	writeBytes(w, "application/pdf", data)
}
