package pdf

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"pdf-workbench/internal/coords"
	"pdf-workbench/internal/logger"
	"pdf-workbench/internal/observer"
	"pdf-workbench/internal/types"
)

// DefaultMaxUploadBytes is the input size ceiling (10 MiB).
const DefaultMaxUploadBytes int64 = 10 * 1024 * 1024

// Options configures a Service. The zero value of every field selects its
// default.
type Options struct {
	MaxUploadBytes    int64
	MaxRenderPixels   int64
	PreviewZoom       float64
	CompositeZoom     float64
	SensitivePatterns []string

	Logger      logger.Logger
	Instruments *observer.Instruments
}

// OptionsFromConfig maps the loaded configuration to service options.
func OptionsFromConfig(cfg *types.Config) Options {
	if cfg == nil {
		return Options{}
	}
	opts := Options{
		MaxUploadBytes:    cfg.Limits.MaxUploadBytes,
		MaxRenderPixels:   cfg.Limits.MaxRenderPixels,
		PreviewZoom:       cfg.Render.PreviewZoom,
		SensitivePatterns: append([]string(nil), cfg.Scanner.SensitivePatterns...),
	}
	if cfg.Render.CompositeDPI > 0 {
		opts.CompositeZoom = cfg.Render.CompositeDPI / 72
	}
	return opts
}

// SplitResult is the outcome of SplitPages.
type SplitResult struct {
	Total int             `json:"total"`
	Pages []ExtractedPage `json:"pages"`
}

// Service runs the document operations on request-owned buffers. Every call
// opens its own Document and releases it before returning; a Service holds
// no per-request state and may be used concurrently.
type Service struct {
	opts Options

	rz   *Rasterizer
	comp *Compositor
	text *TextExtractor
	log  logger.Logger
	ins  *observer.Instruments
}

// NewService creates a Service.
func NewService(opts Options) *Service {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.PreviewZoom <= 0 {
		opts.PreviewZoom = PreviewZoom
	}
	if opts.CompositeZoom <= 0 {
		opts.CompositeZoom = CompositeZoom
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}

	rz := NewRasterizer(opts.MaxRenderPixels)
	opts.MaxRenderPixels = rz.MaxPixels()

	scanner := NewContentScanner(opts.SensitivePatterns)
	opts.SensitivePatterns = scanner.Patterns()

	return &Service{
		opts: opts,
		rz:   rz,
		comp: NewCompositor(rz, opts.CompositeZoom),
		text: NewTextExtractor(scanner),
		log:  opts.Logger,
		ins:  opts.Instruments,
	}
}

// Options returns the effective options.
func (s *Service) Options() Options {
	return s.opts
}

// PageCount returns the number of pages of data.
func (s *Service) PageCount(ctx context.Context, data []byte) (int, error) {
	var n int
	err := s.run(ctx, "page_count", data, nil, func(doc *Document) error {
		n = doc.PageCount()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// RenderPage renders the 1-based page to PNG. A zero zoom selects the
// preview zoom.
func (s *Service) RenderPage(ctx context.Context, data []byte, page int, zoom float64) ([]byte, error) {
	if zoom == 0 {
		zoom = s.opts.PreviewZoom
	}
	var out []byte
	err := s.run(ctx, "render", data, func() error {
		return ValidateZoom(zoom)
	}, func(doc *Document) error {
		p, err := doc.PageByNumber(page)
		if err != nil {
			return err
		}
		r, err := s.rz.Render(p, zoom)
		if err != nil {
			return err
		}
		out, err = r.EncodePNG()
		if err != nil {
			return errInternal("failed to encode image", err)
		}
		return nil
	}, attribute.Int("pdf.page", page), attribute.Float64("pdf.zoom", zoom))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SplitPages extracts every page into its own document.
func (s *Service) SplitPages(ctx context.Context, data []byte) (*SplitResult, error) {
	var res *SplitResult
	err := s.run(ctx, "split", data, nil, func(doc *Document) error {
		pages, err := ExtractAll(doc)
		if err != nil {
			return err
		}
		res = &SplitResult{Total: len(pages), Pages: pages}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ExtractPages extracts the given 1-based pages, each into its own document.
func (s *Service) ExtractPages(ctx context.Context, data []byte, pages []int) ([]ExtractedPage, error) {
	var out []ExtractedPage
	err := s.run(ctx, "extract_pages", data, nil, func(doc *Document) error {
		var err error
		out, err = ExtractPages(doc, pages)
		return err
	}, attribute.IntSlice("pdf.pages", pages))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OverlayDrawing composites drawing over the 1-based page.
func (s *Service) OverlayDrawing(ctx context.Context, data []byte, page int, drawing []byte) ([]byte, error) {
	var out []byte
	err := s.run(ctx, "draw", data, func() error {
		if len(drawing) == 0 {
			return NewPDFError(ErrNoAnnotationData, "no drawing data provided", nil)
		}
		return nil
	}, func(doc *Document) error {
		var err error
		out, err = s.comp.OverlayDrawing(doc, page-1, drawing)
		return err
	}, attribute.Int("pdf.page", page), attribute.Int("pdf.drawing_bytes", len(drawing)))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AnnotateShapes adds the shapes of payload, a JSON shape list in canvas
// pixels, to the 1-based page as native annotations.
func (s *Service) AnnotateShapes(ctx context.Context, data []byte, page int, payload []byte, canvas coords.Size) ([]byte, error) {
	var shapes []Shape
	var out []byte
	err := s.run(ctx, "annotate", data, func() error {
		var err error
		if shapes, err = ParseShapes(payload); err != nil {
			return err
		}
		if !canvas.Valid() {
			return malformed("canvas dimensions must be positive", nil)
		}
		return nil
	}, func(doc *Document) error {
		var err error
		out, err = s.comp.AnnotateShapes(doc, page-1, shapes, canvas)
		return err
	}, attribute.Int("pdf.page", page))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExtractText returns the text of the 1-based pages, gated by the sensitive
// pattern set.
func (s *Service) ExtractText(ctx context.Context, data []byte, pages []int) (string, error) {
	var text string
	err := s.run(ctx, "extract_text", data, nil, func(doc *Document) error {
		var err error
		text, err = s.text.Extract(doc, pages)
		return err
	}, attribute.IntSlice("pdf.pages", pages))
	if err != nil {
		return "", err
	}
	return text, nil
}

// CheckInput applies the checks that precede any parse.
func (s *Service) CheckInput(data []byte) error {
	if len(data) == 0 {
		return NewPDFError(ErrNoFileProvided, "no file provided", nil)
	}
	if int64(len(data)) > s.opts.MaxUploadBytes {
		return NewPDFErrorWithDetails(ErrFileTooLarge, "file is too large",
			fmt.Sprintf("%d bytes exceeds the limit of %d", len(data), s.opts.MaxUploadBytes), nil)
	}
	return nil
}

// run performs the input checks, the cheap request checks in pre, opens the
// document, runs fn and closes the document on every path.
func (s *Service) run(ctx context.Context, op string, data []byte, pre func() error, fn func(doc *Document) error, attrs ...attribute.KeyValue) (err error) {
	start := time.Now()
	attrs = append(attrs, attribute.Int("pdf.input_bytes", len(data)))
	_, finish := s.ins.Track(ctx, op, attrs...)
	defer func() {
		if r := recover(); r != nil {
			err = errInternal("internal error", fmt.Errorf("panic in %s: %v", op, r))
		}
		err = s.report(op, start, err)
		finish(err)
	}()

	if err := s.CheckInput(data); err != nil {
		return err
	}
	if pre != nil {
		if err := pre(); err != nil {
			return err
		}
	}

	doc, err := Open(data, nil)
	if err != nil {
		return err
	}
	defer doc.Close()

	return fn(doc)
}

// report logs the outcome of op and turns foreign errors into INTERNAL_ERROR.
func (s *Service) report(op string, start time.Time, err error) error {
	elapsed := time.Since(start)
	if err == nil {
		s.log.Info("operation completed", logger.String("op", op), logger.Duration("elapsed", elapsed))
		return nil
	}

	pe, ok := AsPDFError(err)
	if !ok {
		s.log.Error("operation failed", err, logger.String("op", op), logger.Duration("elapsed", elapsed))
		return errInternal("internal error", err)
	}
	if pe.Code == ErrInternal {
		cause := error(pe)
		if pe.Cause != nil {
			cause = pe.Cause
		}
		s.log.Error("operation failed", cause,
			logger.String("op", op),
			logger.String("message", pe.Message),
			logger.Duration("elapsed", elapsed))
		return pe
	}

	fields := []logger.Field{
		logger.String("op", op),
		logger.String("code", string(pe.Code)),
		logger.Duration("elapsed", elapsed),
	}
	if pe.Page > 0 {
		fields = append(fields, logger.Int("page", pe.Page))
	}
	if pe.Cause != nil {
		fields = append(fields, logger.Err(pe.Cause))
	}
	s.log.Warn("operation rejected", fields...)
	return pe
}
