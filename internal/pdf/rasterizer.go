package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const (
	// PreviewZoom renders at 72 dpi.
	PreviewZoom = 1.0
	// CompositeZoom renders at roughly 300 dpi for overlay composition.
	CompositeZoom = 300.0 / 72
	// DefaultMaxRenderPixels bounds a single render.
	DefaultMaxRenderPixels int64 = 40_000_000
)

// Rasterizer renders pages to pixel buffers with a pure Go painter.
// It holds no per-render state and may be shared.
type Rasterizer struct {
	maxPixels int64
}

// NewRasterizer creates a Rasterizer. maxPixels <= 0 selects the default ceiling.
func NewRasterizer(maxPixels int64) *Rasterizer {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxRenderPixels
	}
	return &Rasterizer{maxPixels: maxPixels}
}

// MaxPixels returns the pixel ceiling.
func (rz *Rasterizer) MaxPixels() int64 {
	return rz.maxPixels
}

// ValidateZoom rejects zoom factors that are not finite and positive.
func ValidateZoom(zoom float64) error {
	if math.IsNaN(zoom) || math.IsInf(zoom, 0) || zoom <= 0 {
		return NewPDFErrorWithDetails(ErrInvalidZoom, "invalid zoom factor", fmt.Sprintf("%v", zoom), nil)
	}
	return nil
}

// OutputSize returns the pixel dimensions of page at zoom, enforcing the
// pixel ceiling before anything is allocated.
func (rz *Rasterizer) OutputSize(page *Page, zoom float64) (int, int, error) {
	if err := ValidateZoom(zoom); err != nil {
		return 0, 0, err
	}
	fw, fh := math.Round(page.Width*zoom), math.Round(page.Height*zoom)
	if fw < 1 {
		fw = 1
	}
	if fh < 1 {
		fh = 1
	}
	if fw*fh > float64(rz.maxPixels) {
		return 0, 0, NewPDFErrorWithDetails(ErrRenderTooLarge, "rendered page would be too large",
			fmt.Sprintf("%.0fx%.0f pixels exceeds the limit of %d", fw, fh, rz.maxPixels), nil)
	}
	return int(fw), int(fh), nil
}

// Render rasterizes page at zoom into a 3-channel Raster.
func (rz *Rasterizer) Render(page *Page, zoom float64) (*Raster, error) {
	img, err := rz.RenderImage(page, zoom)
	if err != nil {
		return nil, err
	}
	return RasterFromImage(img, 3)
}

// RenderImage rasterizes page at zoom onto an opaque white RGBA canvas.
// The Document is only read.
func (rz *Rasterizer) RenderImage(page *Page, zoom float64) (img *image.RGBA, err error) {
	if page == nil || page.doc == nil || page.doc.ctx == nil {
		return nil, errInternal("page is not attached to an open document", nil)
	}
	w, h, err := rz.OutputSize(page, zoom)
	if err != nil {
		return nil, err
	}

	face, err := substitute()
	if err != nil {
		return nil, errInternal("failed to load substitute font", err)
	}

	ctx := page.doc.ctx
	pageDict, _, _, err := ctx.PageDict(page.Number, false)
	if err != nil || pageDict == nil {
		return nil, NewPDFErrorWithPage(ErrCorrupted, "page tree is corrupted", page.Number, err)
	}
	content, err := pageContent(ctx, pageDict)
	if err != nil {
		return nil, NewPDFErrorWithPage(ErrCorrupted, "page content is corrupted", page.Number, err)
	}

	var res types.Dict
	if o, err := inheritedEntry(ctx, pageDict, "Resources"); err == nil && o != nil {
		res, _ = o.(types.Dict)
	}

	defer func() {
		if p := recover(); p != nil {
			img = nil
			err = errInternal("failed to render page", fmt.Errorf("render panic on page %d: %v", page.Number, p))
		}
	}()

	img = image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	// user space -> device pixels: scale, flip y, move the box origin to 0,0
	sx, sy := float64(w)/page.Width, float64(h)/page.Height
	base := matrix{sx, 0, 0, -sy, -page.Origin.X * sx, float64(h) + page.Origin.Y*sy}

	newRenderer(ctx, img, base, res, face).run(content)
	return img, nil
}

// pageContent concatenates the decoded page content streams.
func pageContent(ctx *model.Context, pageDict types.Dict) ([]byte, error) {
	o, found := pageDict.Find("Contents")
	if !found || o == nil {
		return nil, nil
	}
	o, err := ctx.Dereference(o)
	if err != nil {
		return nil, err
	}

	var parts []types.Object
	switch v := o.(type) {
	case types.StreamDict:
		parts = []types.Object{v}
	case types.Array:
		parts = v
	default:
		return nil, nil
	}

	var buf bytes.Buffer
	for _, p := range parts {
		sd, err := streamContent(ctx, p)
		if err != nil {
			return nil, err
		}
		if sd == nil {
			continue
		}
		buf.Write(sd.Content)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// streamContent resolves o to a stream and makes sure its content is decoded.
func streamContent(ctx *model.Context, o types.Object) (*types.StreamDict, error) {
	sd, _, err := ctx.DereferenceStreamDict(o)
	if err != nil || sd == nil {
		return nil, err
	}
	if sd.Content == nil && len(sd.Raw) > 0 {
		if err := sd.Decode(); err != nil {
			return nil, err
		}
	}
	return sd, nil
}
