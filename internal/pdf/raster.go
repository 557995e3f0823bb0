package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// Raster is a decoded pixel buffer. Rendered pages have 3 channels (RGB),
// decoded annotation layers have 4 (RGBA, non-premultiplied).
type Raster struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// NewRaster wraps pix, which must hold exactly width*height*channels bytes.
func NewRaster(width, height, channels int, pix []byte) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, NewPDFErrorWithDetails(ErrInternal, "invalid raster",
			fmt.Sprintf("dimensions %dx%d", width, height), nil)
	}
	if channels != 3 && channels != 4 {
		return nil, NewPDFErrorWithDetails(ErrInternal, "invalid raster",
			fmt.Sprintf("%d channels", channels), nil)
	}
	if want := width * height * channels; len(pix) != want {
		return nil, NewPDFErrorWithDetails(ErrInternal, "invalid raster",
			fmt.Sprintf("sample buffer has %d bytes, want %d", len(pix), want), nil)
	}
	return &Raster{Width: width, Height: height, Channels: channels, Pix: pix}, nil
}

// RasterFromImage copies img into a Raster with the given channel count.
// Colour is taken through the NRGBA model so alpha is not premultiplied.
func RasterFromImage(img image.Image, channels int) (*Raster, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, NewPDFError(ErrInternal, "empty image", nil)
	}

	pix := make([]byte, 0, w*h*channels)
	if rgba, ok := img.(*image.RGBA); ok && channels == 3 {
		// fast path for rendered pages, which are always opaque
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := rgba.Pix[rgba.PixOffset(b.Min.X, y):]
			for x := 0; x < w; x++ {
				pix = append(pix, row[x*4], row[x*4+1], row[x*4+2])
			}
		}
		return NewRaster(w, h, channels, pix)
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			pix = append(pix, c.R, c.G, c.B)
			if channels == 4 {
				pix = append(pix, c.A)
			}
		}
	}
	return NewRaster(w, h, channels, pix)
}

// Image returns the raster as an image.Image.
func (r *Raster) Image() image.Image {
	rect := image.Rect(0, 0, r.Width, r.Height)
	if r.Channels == 4 {
		return &image.NRGBA{Pix: r.Pix, Stride: r.Width * 4, Rect: rect}
	}
	out := image.NewRGBA(rect)
	for i, j := 0, 0; i < len(r.Pix); i, j = i+3, j+4 {
		out.Pix[j] = r.Pix[i]
		out.Pix[j+1] = r.Pix[i+1]
		out.Pix[j+2] = r.Pix[i+2]
		out.Pix[j+3] = 0xff
	}
	return out
}

// EncodePNG encodes the raster as PNG.
func (r *Raster) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, r.Image()); err != nil {
		return nil, errInternal("failed to encode image", err)
	}
	return buf.Bytes(), nil
}
