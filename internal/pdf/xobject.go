package pdf

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/math/f64"
	xdraw "golang.org/x/image/draw"
)

// doXObject paints the named XObject from the current resources.
func (r *renderer) doXObject(name string) {
	sd, ok := r.resource("XObject", name).(types.StreamDict)
	if !ok {
		return
	}
	subtype := sd.Subtype()
	if subtype == nil {
		return
	}
	switch *subtype {
	case "Image":
		r.drawImage(sd)
	case "Form":
		r.drawForm(sd)
	}
}

func (r *renderer) drawForm(sd types.StreamDict) {
	if r.depth >= maxFormDepth {
		return
	}
	decoded, err := streamContent(r.ctx, sd)
	if err != nil || decoded == nil {
		return
	}

	m := identity
	if o, found := sd.Find("Matrix"); found {
		if arr, err := r.ctx.DereferenceArray(o); err == nil && len(arr) == 6 {
			var v [6]float64
			for i, e := range arr {
				v[i], _ = number64(e)
			}
			m = matrix(v)
		}
	}

	res := r.res
	if o, found := sd.Find("Resources"); found {
		if d, err := r.ctx.DereferenceDict(o); err == nil && d != nil {
			res = d
		}
	}

	savedGS, savedStack, savedRes := r.gs, r.stack, r.res
	savedTM, savedTLM := r.tm, r.tlm
	savedPath := append([]pathSeg(nil), r.path...)
	savedCur, savedStart, savedHas := r.cur, r.start, r.hasCur

	r.gs.ctm = m.mul(r.gs.ctm)
	r.stack = nil
	r.res = res
	r.path = r.path[:0]
	r.hasCur = false
	r.depth++

	r.run(decoded.Content)

	r.depth--
	r.gs, r.stack, r.res = savedGS, savedStack, savedRes
	r.tm, r.tlm = savedTM, savedTLM
	r.path = savedPath
	r.cur, r.start, r.hasCur = savedCur, savedStart, savedHas
}

// drawImage maps the image's unit square through the CTM and resamples it
// onto the canvas.
func (r *renderer) drawImage(sd types.StreamDict) {
	src := r.decodeImage(sd)
	if src == nil {
		return
	}
	b := src.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	m := r.gs.ctm
	if math.Abs(m[0]*m[3]-m[1]*m[2]) < 1e-9 {
		return
	}

	// image pixel (sx, sy) -> unit square (sx/w, 1-sy/h) -> device
	s2d := f64.Aff3{
		m[0] / w, -m[2] / h, m[2] + m[4],
		m[1] / w, -m[3] / h, m[3] + m[5],
	}
	xdraw.ApproxBiLinear.Transform(r.img, s2d, src, b, draw.Over, nil)
}

// decodeImage supports DCT-encoded images and 8-bit (or 1-bit gray and
// stencil mask) DeviceGray, DeviceRGB and DeviceCMYK samples.
func (r *renderer) decodeImage(sd types.StreamDict) image.Image {
	filters := r.filterNames(sd)
	if len(filters) == 1 && filters[0] == "DCTDecode" && len(sd.Raw) > 0 {
		img, err := jpeg.Decode(bytes.NewReader(sd.Raw))
		if err != nil {
			return nil
		}
		return img
	}

	decoded, err := streamContent(r.ctx, sd)
	if err != nil || decoded == nil {
		return nil
	}
	if n := len(filters); n > 0 && filters[n-1] == "DCTDecode" {
		img, err := jpeg.Decode(bytes.NewReader(decoded.Content))
		if err != nil {
			return nil
		}
		return img
	}

	width, _ := r.num(sd.Dict, "Width")
	height, _ := r.num(sd.Dict, "Height")
	bpc, ok := r.num(sd.Dict, "BitsPerComponent")
	w, h := int(width), int(height)
	if w <= 0 || h <= 0 || int64(w)*int64(h) > 64<<20 {
		return nil
	}
	samples := decoded.Content

	if mask, _ := sd.Find("ImageMask"); mask == types.Boolean(true) {
		return stencil(samples, w, h, r.gs.fill, r.gs.fillAlpha)
	}
	if !ok {
		bpc = 8
	}

	switch comps := r.components(sd); {
	case comps == 1 && bpc == 1:
		return gray1(samples, w, h)
	case bpc != 8:
		return nil
	case comps == 1 && len(samples) >= w*h:
		return &image.Gray{Pix: samples[:w*h], Stride: w, Rect: image.Rect(0, 0, w, h)}
	case comps == 3 && len(samples) >= w*h*3:
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for i, j := 0, 0; i < w*h*3; i, j = i+3, j+4 {
			img.Pix[j], img.Pix[j+1], img.Pix[j+2], img.Pix[j+3] = samples[i], samples[i+1], samples[i+2], 0xff
		}
		return img
	case comps == 4 && len(samples) >= w*h*4:
		return &image.CMYK{Pix: samples[:w*h*4], Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
	}
	return nil
}

// filterNames lists the stream's /Filter entry.
func (r *renderer) filterNames(sd types.StreamDict) []string {
	o, found := sd.Find("Filter")
	if !found {
		return nil
	}
	o, err := r.ctx.Dereference(o)
	if err != nil {
		return nil
	}
	switch v := o.(type) {
	case types.Name:
		return []string{string(v)}
	case types.Array:
		var out []string
		for _, e := range v {
			if n, ok := e.(types.Name); ok {
				out = append(out, string(n))
			}
		}
		return out
	}
	return nil
}

// components returns the number of colour components of the image's colour
// space, defaulting to 3.
func (r *renderer) components(sd types.StreamDict) int {
	o, found := sd.Find("ColorSpace")
	if !found {
		return 3
	}
	o, err := r.ctx.Dereference(o)
	if err != nil {
		return 3
	}
	if n, ok := o.(types.Name); ok {
		if cs := r.resource("ColorSpace", string(n)); cs != nil {
			o = cs
		}
	}
	switch v := o.(type) {
	case types.Name:
		switch v {
		case "DeviceGray", "CalGray", "G":
			return 1
		case "DeviceCMYK", "CMYK":
			return 4
		}
		return 3
	case types.Array:
		if len(v) < 2 {
			return 3
		}
		switch v[0] {
		case types.Name("ICCBased"):
			if icc, _, err := r.ctx.DereferenceStreamDict(v[1]); err == nil && icc != nil {
				if n, ok := r.num(icc.Dict, "N"); ok {
					return int(n)
				}
			}
		case types.Name("CalGray"):
			return 1
		case types.Name("Indexed"), types.Name("Separation"), types.Name("DeviceN"):
			return 0
		}
	}
	return 3
}

func gray1(samples []byte, w, h int) image.Image {
	stride := (w + 7) / 8
	if len(samples) < stride*h {
		return nil
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if samples[y*stride+x/8]&(0x80>>(x%8)) != 0 {
				img.Pix[y*w+x] = 0xff
			}
		}
	}
	return img
}

// stencil paints the fill colour where the mask sample is 0.
func stencil(samples []byte, w, h int, c color.NRGBA, alpha float64) image.Image {
	stride := (w + 7) / 8
	if len(samples) < stride*h {
		return nil
	}
	c.A = uint8(math.Round(float64(c.A) * clamp01(alpha)))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if samples[y*stride+x/8]&(0x80>>(x%8)) == 0 {
				img.SetNRGBA(x, y, c)
			}
		}
	}
	return img
}
