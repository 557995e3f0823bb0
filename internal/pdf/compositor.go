package pdf

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"time"

	gopdf "github.com/VantageDataChat/GoPDF2"
	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"pdf-workbench/internal/coords"
)

// Compositor merges client annotation layers into a page.
type Compositor struct {
	rz   *Rasterizer
	zoom float64

	now   func() time.Time
	newID func() string
}

// NewCompositor creates a Compositor rendering backgrounds with rz at zoom.
// zoom <= 0 selects CompositeZoom.
func NewCompositor(rz *Rasterizer, zoom float64) *Compositor {
	if rz == nil {
		rz = NewRasterizer(0)
	}
	if zoom <= 0 {
		zoom = CompositeZoom
	}
	return &Compositor{
		rz:    rz,
		zoom:  zoom,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// OverlayDrawing paints drawing over the page at index and returns the whole
// document with that page replaced by the flattened composite. Every other
// page is carried over untouched.
func (c *Compositor) OverlayDrawing(doc *Document, index int, drawing []byte) ([]byte, error) {
	page, err := doc.Page(index)
	if err != nil {
		return nil, err
	}
	layer, err := DecodeDrawing(drawing, c.rz.MaxPixels())
	if err != nil {
		return nil, err
	}

	bg, err := c.rz.RenderImage(page, c.zoom)
	if err != nil {
		return nil, err
	}
	// resample straight onto the background, blending by the layer's alpha
	xdraw.CatmullRom.Scale(bg, bg.Bounds(), layer.Image(), image.Rect(0, 0, layer.Width, layer.Height), draw.Over, nil)

	composite, err := imagePage(bg, page.Width, page.Height)
	if err != nil {
		return nil, err
	}

	parts := make([][]byte, 0, 3)
	if index > 0 {
		before, err := trimPages(doc, pageRange(1, index), false)
		if err != nil {
			return nil, err
		}
		parts = append(parts, before)
	}
	parts = append(parts, composite)
	if last := doc.PageCount(); page.Number < last {
		after, err := trimPages(doc, pageRange(page.Number+1, last), false)
		if err != nil {
			return nil, err
		}
		parts = append(parts, after)
	}

	merged, err := Merge(parts)
	if err != nil {
		return nil, err
	}
	// the page builder rounds its MediaBox to two decimals
	out, err := Reassemble(merged, true, func(ctx *model.Context) error {
		return setPageBox(ctx, page.Number, page.Size())
	})
	if err != nil {
		return nil, err
	}
	if n, err := countPages(out); err != nil || n != doc.PageCount() {
		return nil, errInternal("composite document lost pages", fmt.Errorf("want %d pages, got %d (%v)", doc.PageCount(), n, err))
	}
	return out, nil
}

// setPageBox gives page number an exact [0 0 w h] MediaBox and drops any
// CropBox, so the composite keeps the size of the page it replaces.
func setPageBox(ctx *model.Context, number int, size coords.Size) error {
	pageDict, _, _, err := ctx.PageDict(number, false)
	if err != nil || pageDict == nil {
		return errInternal("composite page is missing", err)
	}
	pageDict["MediaBox"] = types.NewNumberArray(0, 0, size.Width, size.Height)
	delete(pageDict, "CropBox")
	return nil
}

func pageRange(from, to int) string {
	if from == to {
		return fmt.Sprint(from)
	}
	return fmt.Sprintf("%d-%d", from, to)
}

// imagePage builds a one-page document of w x h points whose only content is
// img stretched over the whole page.
func imagePage(img image.Image, w, h float64) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = errInternal("failed to build composite page", fmt.Errorf("page builder panic: %v", r))
		}
	}()

	var p gopdf.GoPdf
	p.Start(gopdf.Config{Unit: gopdf.UnitPT, PageSize: gopdf.Rect{W: w, H: h}})
	p.AddPage()
	if err := p.ImageFrom(img, 0, 0, &gopdf.Rect{W: w, H: h}); err != nil {
		return nil, errInternal("failed to embed composite image", err)
	}
	data, err := p.GetBytesPdfReturnErr()
	if err != nil {
		return nil, errInternal("failed to build composite page", err)
	}
	return data, nil
}

// DecodeDrawing decodes a drawing layer given as raw PNG, JPEG, GIF or WebP
// bytes or as a base64 data URL, and converts it to 4-channel RGBA. The
// declared dimensions are checked against maxPixels before decoding.
func DecodeDrawing(payload []byte, maxPixels int64) (*Raster, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, NewPDFError(ErrNoAnnotationData, "no drawing data provided", nil)
	}

	data := payload
	if bytes.HasPrefix(payload, []byte("data:")) {
		header, body, ok := strings.Cut(string(payload), ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, malformed("drawing data URL is not base64 encoded", nil)
		}
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			if decoded, err = base64.RawStdEncoding.DecodeString(body); err != nil {
				return nil, malformed("drawing data URL is not valid base64", err)
			}
		}
		data = decoded
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, malformed("drawing is not a supported image", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, malformed("drawing has no pixels", nil)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, NewPDFErrorWithDetails(ErrRenderTooLarge, "drawing is too large",
			fmt.Sprintf("%dx%d pixels exceeds the limit of %d", cfg.Width, cfg.Height, maxPixels), nil)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, malformed("drawing could not be decoded", err)
	}
	layer, err := RasterFromImage(img, 4)
	if err != nil {
		return nil, malformed("drawing could not be decoded", err)
	}
	return layer, nil
}

// AnnotateShapes adds one native square annotation per shape to the page at
// index. Shape geometry is in pixels of a canvas of the given size. The page
// content stream is left as is and every page of doc is kept.
func (c *Compositor) AnnotateShapes(doc *Document, index int, shapes []Shape, canvas coords.Size) ([]byte, error) {
	if !canvas.Valid() {
		return nil, malformed("canvas dimensions must be positive", nil)
	}
	page, err := doc.Page(index)
	if err != nil {
		return nil, err
	}

	ctx, err := doc.WorkingContext()
	if err != nil {
		return nil, err
	}
	pageDict, pageRef, _, err := ctx.PageDict(page.Number, false)
	if err != nil || pageDict == nil || pageRef == nil {
		return nil, NewPDFErrorWithPage(ErrCorrupted, "page tree is corrupted", page.Number, err)
	}

	refs := make(types.Array, 0, len(shapes))
	for _, s := range shapes {
		r := coords.MapRect(s.Bounds(), canvas, page.Size())
		ref, err := c.addSquare(ctx, *pageRef, coords.TopLeftToUserSpace(r, page.Size(), page.Origin))
		if err != nil {
			return nil, err
		}
		refs = append(refs, *ref)
	}
	if len(refs) > 0 {
		if err := appendAnnots(ctx, pageDict, refs); err != nil {
			return nil, err
		}
	}

	return Serialize(ctx, true)
}

// addSquare creates a black /Square annotation over rect with its own
// appearance stream.
func (c *Compositor) addSquare(ctx *model.Context, pageRef types.IndirectRef, rect [4]float64) (*types.IndirectRef, error) {
	w, h := rect[2]-rect[0], rect[3]-rect[1]

	ap, err := ctx.NewStreamDictForBuf([]byte(fmt.Sprintf("0 g 0 G 1 w 0 0 %.4f %.4f re B\n", w, h)))
	if err != nil {
		return nil, errInternal("failed to create annotation appearance", err)
	}
	ap.InsertName("Type", "XObject")
	ap.InsertName("Subtype", "Form")
	ap.Insert("BBox", types.NewNumberArray(0, 0, w, h))
	if err := ap.Encode(); err != nil {
		return nil, errInternal("failed to encode annotation appearance", err)
	}
	apRef, err := ctx.IndRefForNewObject(*ap)
	if err != nil {
		return nil, errInternal("failed to create annotation appearance", err)
	}

	annot := types.Dict{
		"Type":    types.Name("Annot"),
		"Subtype": types.Name("Square"),
		"Rect":    types.NewNumberArray(rect[0], rect[1], rect[2], rect[3]),
		"C":       types.NewNumberArray(0, 0, 0),
		"IC":      types.NewNumberArray(0, 0, 0),
		"CA":      types.Float(1),
		"F":       types.Integer(4),
		"BS":      types.Dict{"Type": types.Name("Border"), "W": types.Integer(1), "S": types.Name("S")},
		"P":       pageRef,
		"NM":      types.StringLiteral(c.newID()),
		"M":       types.StringLiteral(types.DateString(c.now())),
		"AP":      types.Dict{"N": *apRef},
	}
	ref, err := ctx.IndRefForNewObject(annot)
	if err != nil {
		return nil, errInternal("failed to create annotation", err)
	}
	return ref, nil
}

// appendAnnots adds refs to the page's /Annots array, which may be direct,
// indirect or missing.
func appendAnnots(ctx *model.Context, pageDict types.Dict, refs types.Array) error {
	o, found := pageDict.Find("Annots")
	if !found || o == nil {
		pageDict["Annots"] = refs
		return nil
	}

	if ir, ok := o.(types.IndirectRef); ok {
		arr, err := ctx.DereferenceArray(ir)
		if err != nil {
			return NewPDFError(ErrCorrupted, "page annotations are corrupted", err)
		}
		entry, ok := ctx.FindTableEntryForIndRef(&ir)
		if !ok || entry == nil {
			return NewPDFError(ErrCorrupted, "page annotations are corrupted", nil)
		}
		entry.Object = append(arr, refs...)
		return nil
	}

	arr, ok := o.(types.Array)
	if !ok {
		return NewPDFError(ErrCorrupted, "page annotations are corrupted", nil)
	}
	pageDict["Annots"] = append(arr, refs...)
	return nil
}
