// Package coords converts between the three coordinate systems an annotation
// passes through: drawing-canvas pixels, PDF points and normalised colour units.
//
// Canvas coordinates are anchored at the top-left corner with y growing
// downwards. ToPDFPoints and MapRect keep that anchoring and only rescale;
// TopLeftToUserSpace performs the final flip into PDF user space, whose
// origin is the lower-left corner of the page box.
package coords

import "math"

// Size is a width/height pair in the unit of its coordinate system.
type Size struct {
	Width  float64
	Height float64
}

// Valid reports whether both dimensions are finite and strictly positive.
func (s Size) Valid() bool {
	return finite(s.Width) && finite(s.Height) && s.Width > 0 && s.Height > 0
}

// Point is a position in some coordinate system.
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned rectangle anchored at its top-left corner.
type Rect struct {
	Left, Top, Width, Height float64
}

// ToPDFPoints scales a canvas pixel position to page points. Both systems are
// top-left anchored here, so no vertical flip is applied.
func ToPDFPoints(cx, cy float64, canvas, page Size) (x, y float64) {
	x = cx * page.Width / canvas.Width
	y = cy * page.Height / canvas.Height
	return x, y
}

// MapRect scales a canvas rectangle into page points.
func MapRect(r Rect, canvas, page Size) Rect {
	left, top := ToPDFPoints(r.Left, r.Top, canvas, page)
	w, h := ToPDFPoints(r.Width, r.Height, canvas, page)
	return Rect{Left: left, Top: top, Width: w, Height: h}
}

// TopLeftToUserSpace converts a top-left anchored rectangle in points into a
// PDF rectangle [llx lly urx ury]. origin is the lower-left corner of the
// page box and page its size.
func TopLeftToUserSpace(r Rect, page Size, origin Point) [4]float64 {
	llx := origin.X + r.Left
	urx := llx + r.Width
	ury := origin.Y + page.Height - r.Top
	lly := ury - r.Height
	return [4]float64{llx, lly, urx, ury}
}

// NormalizeColor maps an 8-bit channel value into [0,1].
func NormalizeColor(b byte) float64 {
	return float64(b) / 255
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
