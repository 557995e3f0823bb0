package pdf

import (
	"image/color"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/encoding/charmap"
)

var (
	substituteOnce sync.Once
	substituteFont *sfnt.Font
	substituteErr  error
)

// substitute returns the outline font used for every text glyph. The parsed
// font is immutable and shared; callers keep their own sfnt.Buffer.
func substitute() (*sfnt.Font, error) {
	substituteOnce.Do(func() {
		substituteFont, substituteErr = sfnt.Parse(goregular.TTF)
	})
	return substituteFont, substituteErr
}

// pageFont carries the metrics of a page font that matter for positioning.
type pageFont struct {
	composite    bool
	type3        bool
	firstChar    int
	widths       []float64
	missingWidth float64
	defaultWidth float64
}

// width returns the advance of a single-byte code in text space units, or
// false when the font declares none.
func (f *pageFont) width(code byte) (float64, bool) {
	if i := int(code) - f.firstChar; i >= 0 && i < len(f.widths) {
		return f.widths[i] / 1000, true
	}
	if f.missingWidth > 0 {
		return f.missingWidth / 1000, true
	}
	return 0, false
}

func (r *renderer) loadFont(name string) *pageFont {
	if f, ok := r.fonts[name]; ok {
		return f
	}
	f := &pageFont{defaultWidth: 1000}
	r.fonts[name] = f

	d, ok := r.resource("Font", name).(types.Dict)
	if !ok {
		return f
	}

	switch subtype, _ := d.Find("Subtype"); subtype {
	case types.Name("Type0"):
		f.composite = true
		if o, found := d.Find("DescendantFonts"); found {
			if arr, err := r.ctx.DereferenceArray(o); err == nil && len(arr) > 0 {
				if desc, err := r.ctx.DereferenceDict(arr[0]); err == nil && desc != nil {
					if v, ok := r.num(desc, "DW"); ok {
						f.defaultWidth = v
					}
				}
			}
		}
		return f
	case types.Name("Type3"):
		f.type3 = true
	}

	if v, ok := r.num(d, "FirstChar"); ok {
		f.firstChar = int(v)
	}
	if o, found := d.Find("Widths"); found {
		if arr, err := r.ctx.DereferenceArray(o); err == nil {
			for _, e := range arr {
				e, _ = r.ctx.Dereference(e)
				w, _ := number64(e)
				f.widths = append(f.widths, w)
			}
		}
	}
	if o, found := d.Find("FontDescriptor"); found {
		if fd, err := r.ctx.DereferenceDict(o); err == nil && fd != nil {
			if v, ok := r.num(fd, "MissingWidth"); ok {
				f.missingWidth = v
			}
		}
	}
	return f
}

// num reads a numeric dictionary entry.
func (r *renderer) num(d types.Dict, key string) (float64, bool) {
	o, found := d.Find(key)
	if !found {
		return 0, false
	}
	o, err := r.ctx.Dereference(o)
	if err != nil {
		return 0, false
	}
	return number64(o)
}

func (r *renderer) nextLine(tx, ty float64) {
	r.tlm = matrix{1, 0, 0, 1, tx, ty}.mul(r.tlm)
	r.tm = r.tlm
}

// showText paints a string operand and advances the text matrix.
func (r *renderer) showText(s string) {
	f := r.gs.font
	if f == nil {
		f = &pageFont{defaultWidth: 1000}
	}
	tfs, th := r.gs.fontSize, r.gs.hscale

	if f.composite {
		// two-byte codes without a usable glyph mapping: advance only
		for i := 0; i+1 < len(s); i += 2 {
			tx := (f.defaultWidth/1000*tfs + r.gs.charSpace) * th
			r.tm = matrix{1, 0, 0, 1, tx, 0}.mul(r.tm)
		}
		return
	}

	visible := r.gs.renderMode != 3 && r.gs.renderMode != 7 && !f.type3
	paint, alpha := r.gs.fill, r.gs.fillAlpha
	if r.gs.renderMode == 1 || r.gs.renderMode == 5 {
		paint, alpha = r.gs.stroke, r.gs.strokeAlpha
	}
	base := matrix{tfs * th, 0, 0, tfs, 0, r.gs.rise}

	for i := 0; i < len(s); i++ {
		code := s[i]
		rn := charmap.Windows1252.DecodeByte(code)

		w0, ok := f.width(code)
		if !ok {
			w0 = r.substituteAdvance(rn)
		}
		if visible && code != ' ' {
			r.drawGlyph(rn, base.mul(r.tm).mul(r.gs.ctm), paint, alpha)
		}

		tx := w0*tfs + r.gs.charSpace
		if code == ' ' {
			tx += r.gs.wordSpace
		}
		r.tm = matrix{1, 0, 0, 1, tx * th, 0}.mul(r.tm)
	}
}

// substituteAdvance returns the substitute font's advance for rn in text
// space units.
func (r *renderer) substituteAdvance(rn rune) float64 {
	if r.face == nil {
		return 0.5
	}
	idx, err := r.face.GlyphIndex(&r.buf, rn)
	if err != nil || idx == 0 {
		return 0.5
	}
	upem := r.face.UnitsPerEm()
	adv, err := r.face.GlyphAdvance(&r.buf, idx, fixed.I(int(upem)), font.HintingNone)
	if err != nil {
		return 0.5
	}
	return float64(adv) / 64 / float64(upem)
}

// drawGlyph fills the substitute outline of rn transformed by trm, which
// maps glyph space (1 unit = 1 em, y up) to device space.
func (r *renderer) drawGlyph(rn rune, trm matrix, c color.NRGBA, alpha float64) {
	if r.face == nil {
		return
	}
	idx, err := r.face.GlyphIndex(&r.buf, rn)
	if err != nil || idx == 0 {
		return
	}
	upem := float64(r.face.UnitsPerEm())
	segs, err := r.face.LoadGlyph(&r.buf, idx, fixed.I(int(upem)), nil)
	if err != nil {
		return
	}

	pt := func(p fixed.Point26_6) point {
		x, y := trm.apply(float64(p.X)/64/upem, -float64(p.Y)/64/upem)
		return point{x, y}
	}

	out := make([]pathSeg, 0, len(segs))
	var cur point
	for _, s := range segs {
		switch s.Op {
		case sfnt.SegmentOpMoveTo:
			cur = pt(s.Args[0])
			out = append(out, pathSeg{kind: segMove, pts: [3]point{cur}})
		case sfnt.SegmentOpLineTo:
			cur = pt(s.Args[0])
			out = append(out, pathSeg{kind: segLine, pts: [3]point{cur}})
		case sfnt.SegmentOpQuadTo:
			q, end := pt(s.Args[0]), pt(s.Args[1])
			c1 := point{cur.x + 2.0/3*(q.x-cur.x), cur.y + 2.0/3*(q.y-cur.y)}
			c2 := point{end.x + 2.0/3*(q.x-end.x), end.y + 2.0/3*(q.y-end.y)}
			out = append(out, pathSeg{kind: segCube, pts: [3]point{c1, c2, end}})
			cur = end
		case sfnt.SegmentOpCubeTo:
			cur = pt(s.Args[2])
			out = append(out, pathSeg{kind: segCube, pts: [3]point{pt(s.Args[0]), pt(s.Args[1]), cur}})
		}
	}
	r.fillSegments(out, c, alpha)
}
