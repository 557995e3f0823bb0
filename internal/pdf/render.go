package pdf

import (
	"bytes"
	"image"
	"image/color"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/vector"
	cos "seehuhn.de/go/pdf"
	"seehuhn.de/go/pdf/graphics/scanner"
)

// maxFormDepth bounds Form XObject recursion.
const maxFormDepth = 8

// matrix is a PDF transformation [a b c d e f].
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

// mul returns m followed by n.
func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2], m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2], m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4], m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// scale is the mean linear scale factor of m.
func (m matrix) scale() float64 {
	return math.Sqrt(math.Abs(m[0]*m[3] - m[1]*m[2]))
}

func matrixOf(v []float64) matrix {
	return matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
}

type point struct{ x, y float64 }

type segKind int

const (
	segMove segKind = iota
	segLine
	segCube
	segClose
)

// pathSeg holds device-space points; cubes use all three.
type pathSeg struct {
	kind segKind
	pts  [3]point
}

// gstate 图形状态
type gstate struct {
	ctm         matrix
	fill        color.NRGBA
	stroke      color.NRGBA
	fillAlpha   float64
	strokeAlpha float64
	lineWidth   float64

	font       *pageFont
	fontSize   float64
	charSpace  float64
	wordSpace  float64
	hscale     float64
	leading    float64
	rise       float64
	renderMode int
}

// renderer executes content streams onto an RGBA canvas. It is not safe for
// concurrent use.
type renderer struct {
	ctx  *model.Context
	img  *image.RGBA
	ras  *vector.Rasterizer
	buf  sfnt.Buffer
	face *sfnt.Font

	gs    gstate
	stack []gstate
	res   types.Dict
	fonts map[string]*pageFont

	path       []pathSeg
	cur, start point
	hasCur     bool

	tm, tlm matrix
	depth   int
}

func newRenderer(ctx *model.Context, img *image.RGBA, base matrix, res types.Dict, face *sfnt.Font) *renderer {
	return &renderer{
		ctx:   ctx,
		img:   img,
		ras:   vector.NewRasterizer(1, 1),
		face:  face,
		res:   res,
		fonts: map[string]*pageFont{},
		gs: gstate{
			ctm:         base,
			fill:        color.NRGBA{A: 0xff},
			stroke:      color.NRGBA{A: 0xff},
			fillAlpha:   1,
			strokeAlpha: 1,
			lineWidth:   1,
			hscale:      1,
		},
		tm:  identity,
		tlm: identity,
	}
}

// run executes a decoded content stream. Each call gets its own scanner:
// Do recurses into run while the outer stream is still being scanned.
func (r *renderer) run(content []byte) {
	inline := false
	_ = scanner.NewScanner().Scan(bytes.NewReader(content))(func(op string, args []cos.Object) error {
		// inline image data between ID and EI is not painted
		if op == "ID" {
			inline = true
			return nil
		}
		if inline {
			inline = op != "EI"
			return nil
		}
		r.exec(op, args)
		return nil
	})
}

func (r *renderer) exec(op string, a []cos.Object) {
	switch op {
	// graphics state
	case "q":
		r.stack = append(r.stack, r.gs)
	case "Q":
		if n := len(r.stack); n > 0 {
			r.gs = r.stack[n-1]
			r.stack = r.stack[:n-1]
		}
	case "cm":
		if v, ok := numbers(a, 6); ok {
			r.gs.ctm = matrixOf(v).mul(r.gs.ctm)
		}
	case "w":
		if v, ok := numbers(a, 1); ok {
			r.gs.lineWidth = v[0]
		}
	case "gs":
		if name, ok := lastName(a); ok {
			r.applyExtGState(name)
		}

	// colour
	case "g", "rg", "k", "sc", "scn":
		if c, ok := colorOf(a); ok {
			r.gs.fill = c
		}
	case "G", "RG", "K", "SC", "SCN":
		if c, ok := colorOf(a); ok {
			r.gs.stroke = c
		}
	case "cs":
		r.gs.fill = color.NRGBA{A: 0xff}
	case "CS":
		r.gs.stroke = color.NRGBA{A: 0xff}

	// path construction
	case "m":
		if v, ok := numbers(a, 2); ok {
			r.moveTo(v[0], v[1])
		}
	case "l":
		if v, ok := numbers(a, 2); ok {
			r.lineTo(v[0], v[1])
		}
	case "c":
		if v, ok := numbers(a, 6); ok {
			r.curveTo(v[0], v[1], v[2], v[3], v[4], v[5])
		}
	case "v":
		if v, ok := numbers(a, 4); ok {
			x, y := r.gs.ctm.inverseApply(r.cur)
			r.curveTo(x, y, v[0], v[1], v[2], v[3])
		}
	case "y":
		if v, ok := numbers(a, 4); ok {
			r.curveTo(v[0], v[1], v[2], v[3], v[2], v[3])
		}
	case "h":
		r.closePath()
	case "re":
		if v, ok := numbers(a, 4); ok {
			x, y, w, h := v[0], v[1], v[2], v[3]
			r.moveTo(x, y)
			r.lineTo(x+w, y)
			r.lineTo(x+w, y+h)
			r.lineTo(x, y+h)
			r.closePath()
		}

	// path painting
	case "f", "F", "f*":
		r.fillPath(r.gs.fill, r.gs.fillAlpha)
		r.endPath()
	case "S":
		r.strokePath()
		r.endPath()
	case "s":
		r.closePath()
		r.strokePath()
		r.endPath()
	case "B", "B*":
		r.fillPath(r.gs.fill, r.gs.fillAlpha)
		r.strokePath()
		r.endPath()
	case "b", "b*":
		r.closePath()
		r.fillPath(r.gs.fill, r.gs.fillAlpha)
		r.strokePath()
		r.endPath()
	case "n":
		r.endPath()

	// text
	case "BT":
		r.tm, r.tlm = identity, identity
	case "ET":
	case "Tf":
		if v, ok := numbers(a, 1); ok && len(a) >= 2 {
			if name, ok := a[len(a)-2].(cos.Name); ok {
				r.gs.font = r.loadFont(string(name))
				r.gs.fontSize = v[0]
			}
		}
	case "Tc":
		if v, ok := numbers(a, 1); ok {
			r.gs.charSpace = v[0]
		}
	case "Tw":
		if v, ok := numbers(a, 1); ok {
			r.gs.wordSpace = v[0]
		}
	case "Tz":
		if v, ok := numbers(a, 1); ok {
			r.gs.hscale = v[0] / 100
		}
	case "TL":
		if v, ok := numbers(a, 1); ok {
			r.gs.leading = v[0]
		}
	case "Ts":
		if v, ok := numbers(a, 1); ok {
			r.gs.rise = v[0]
		}
	case "Tr":
		if v, ok := numbers(a, 1); ok {
			r.gs.renderMode = int(v[0])
		}
	case "Td":
		if v, ok := numbers(a, 2); ok {
			r.nextLine(v[0], v[1])
		}
	case "TD":
		if v, ok := numbers(a, 2); ok {
			r.gs.leading = -v[1]
			r.nextLine(v[0], v[1])
		}
	case "Tm":
		if v, ok := numbers(a, 6); ok {
			r.tlm = matrixOf(v)
			r.tm = r.tlm
		}
	case "T*":
		r.nextLine(0, -r.gs.leading)
	case "Tj":
		if s, ok := lastString(a); ok {
			r.showText(s)
		}
	case "'":
		r.nextLine(0, -r.gs.leading)
		if s, ok := lastString(a); ok {
			r.showText(s)
		}
	case "\"":
		if v, ok := numbers(a[:max(len(a)-1, 0)], 2); ok {
			r.gs.wordSpace, r.gs.charSpace = v[0], v[1]
		}
		r.nextLine(0, -r.gs.leading)
		if s, ok := lastString(a); ok {
			r.showText(s)
		}
	case "TJ":
		if len(a) == 0 {
			return
		}
		arr, ok := a[len(a)-1].(cos.Array)
		if !ok {
			return
		}
		for _, e := range arr {
			if s, ok := e.(cos.String); ok {
				r.showText(string(s))
				continue
			}
			if f, ok := objNumber(e); ok {
				tx := -f / 1000 * r.gs.fontSize * r.gs.hscale
				r.tm = matrix{1, 0, 0, 1, tx, 0}.mul(r.tm)
			}
		}

	// external objects
	case "Do":
		if name, ok := lastName(a); ok {
			r.doXObject(name)
		}
	}
}

// objNumber reads an integer or real operand.
func objNumber(o cos.Object) (float64, bool) {
	switch x := o.(type) {
	case cos.Integer:
		return float64(x), true
	case cos.Real:
		return float64(x), true
	}
	return 0, false
}

// numbers returns the last n operands as numbers, reporting false when any
// of them is not numeric or fewer than n are present.
func numbers(args []cos.Object, n int) ([]float64, bool) {
	if len(args) < n {
		return nil, false
	}
	out := make([]float64, n)
	for i, a := range args[len(args)-n:] {
		f, ok := objNumber(a)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

func lastName(args []cos.Object) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	name, ok := args[len(args)-1].(cos.Name)
	return string(name), ok
}

func lastString(args []cos.Object) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	s, ok := args[len(args)-1].(cos.String)
	return string(s), ok
}

// inverseApply maps a device point back through m. It is only used for the
// rarely seen "v" operator, whose first control point is the current point.
func (m matrix) inverseApply(p point) (float64, float64) {
	det := m[0]*m[3] - m[1]*m[2]
	if det == 0 {
		return 0, 0
	}
	x, y := p.x-m[4], p.y-m[5]
	return (m[3]*x - m[2]*y) / det, (-m[1]*x + m[0]*y) / det
}

func (r *renderer) moveTo(x, y float64) {
	dx, dy := r.gs.ctm.apply(x, y)
	r.cur = point{dx, dy}
	r.start = r.cur
	r.hasCur = true
	r.path = append(r.path, pathSeg{kind: segMove, pts: [3]point{r.cur}})
}

func (r *renderer) lineTo(x, y float64) {
	if !r.hasCur {
		r.moveTo(x, y)
		return
	}
	dx, dy := r.gs.ctm.apply(x, y)
	r.cur = point{dx, dy}
	r.path = append(r.path, pathSeg{kind: segLine, pts: [3]point{r.cur}})
}

func (r *renderer) curveTo(x1, y1, x2, y2, x3, y3 float64) {
	if !r.hasCur {
		r.moveTo(x1, y1)
	}
	ax, ay := r.gs.ctm.apply(x1, y1)
	bx, by := r.gs.ctm.apply(x2, y2)
	cx, cy := r.gs.ctm.apply(x3, y3)
	r.cur = point{cx, cy}
	r.path = append(r.path, pathSeg{kind: segCube, pts: [3]point{{ax, ay}, {bx, by}, r.cur}})
}

func (r *renderer) closePath() {
	if !r.hasCur {
		return
	}
	r.path = append(r.path, pathSeg{kind: segClose})
	r.cur = r.start
}

func (r *renderer) endPath() {
	r.path = r.path[:0]
	r.hasCur = false
}

// fillPath fills the current path with the nonzero rule. Even-odd requests
// are filled the same way.
func (r *renderer) fillPath(c color.NRGBA, alpha float64) {
	r.fillSegments(r.path, c, alpha)
}

func (r *renderer) fillSegments(segs []pathSeg, c color.NRGBA, alpha float64) {
	if len(segs) == 0 || alpha <= 0 {
		return
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, s := range segs {
		n := 1
		switch s.kind {
		case segClose:
			n = 0
		case segCube:
			n = 3
		}
		for _, p := range s.pts[:n] {
			minX, maxX = math.Min(minX, p.x), math.Max(maxX, p.x)
			minY, maxY = math.Min(minY, p.y), math.Max(maxY, p.y)
		}
	}
	if math.IsInf(minX, 0) || math.IsNaN(minX+minY+maxX+maxY) {
		return
	}

	bounds := image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX))+1, int(math.Ceil(maxY))+1)
	bounds = bounds.Intersect(r.img.Bounds())
	if bounds.Empty() {
		return
	}

	ox, oy := float64(bounds.Min.X), float64(bounds.Min.Y)
	r.ras.Reset(bounds.Dx(), bounds.Dy())
	open := false
	for _, s := range segs {
		switch s.kind {
		case segMove:
			if open {
				r.ras.ClosePath()
			}
			r.ras.MoveTo(float32(s.pts[0].x-ox), float32(s.pts[0].y-oy))
			open = true
		case segLine:
			r.ras.LineTo(float32(s.pts[0].x-ox), float32(s.pts[0].y-oy))
		case segCube:
			r.ras.CubeTo(
				float32(s.pts[0].x-ox), float32(s.pts[0].y-oy),
				float32(s.pts[1].x-ox), float32(s.pts[1].y-oy),
				float32(s.pts[2].x-ox), float32(s.pts[2].y-oy))
		case segClose:
			if open {
				r.ras.ClosePath()
				open = false
			}
		}
	}
	if open {
		r.ras.ClosePath()
	}

	c.A = uint8(math.Round(float64(c.A) * clamp01(alpha)))
	r.ras.Draw(r.img, bounds, image.NewUniform(c), image.Point{})
}

// strokePath outlines every segment as a quad and every vertex as a small
// octagon, all wound the same way so overlaps never cancel.
func (r *renderer) strokePath() {
	if len(r.path) == 0 || r.gs.strokeAlpha <= 0 {
		return
	}
	half := r.gs.lineWidth * r.gs.ctm.scale() / 2
	if half < 0.5 {
		half = 0.5
	}

	var outline []pathSeg
	addPoly := func(pts ...point) {
		if signedArea(pts) < 0 {
			for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
				pts[i], pts[j] = pts[j], pts[i]
			}
		}
		outline = append(outline, pathSeg{kind: segMove, pts: [3]point{pts[0]}})
		for _, p := range pts[1:] {
			outline = append(outline, pathSeg{kind: segLine, pts: [3]point{p}})
		}
		outline = append(outline, pathSeg{kind: segClose})
	}
	segment := func(a, b point) {
		vx, vy := b.x-a.x, b.y-a.y
		l := math.Hypot(vx, vy)
		if l == 0 {
			return
		}
		nx, ny := -vy/l*half, vx/l*half
		addPoly(point{a.x + nx, a.y + ny}, point{b.x + nx, b.y + ny}, point{b.x - nx, b.y - ny}, point{a.x - nx, a.y - ny})
	}
	join := func(p point) {
		pts := make([]point, 8)
		for i := range pts {
			t := float64(i) * math.Pi / 4
			pts[i] = point{p.x + half*math.Cos(t), p.y + half*math.Sin(t)}
		}
		addPoly(pts...)
	}

	var cur, start point
	for _, s := range r.path {
		switch s.kind {
		case segMove:
			cur, start = s.pts[0], s.pts[0]
		case segLine:
			segment(cur, s.pts[0])
			join(s.pts[0])
			cur = s.pts[0]
		case segCube:
			prev := cur
			for i := 1; i <= 16; i++ {
				p := cubicAt(cur, s.pts[0], s.pts[1], s.pts[2], float64(i)/16)
				segment(prev, p)
				prev = p
			}
			join(s.pts[2])
			cur = s.pts[2]
		case segClose:
			segment(cur, start)
			join(start)
			cur = start
		}
	}

	r.fillSegments(outline, r.gs.stroke, r.gs.strokeAlpha)
}

func signedArea(pts []point) float64 {
	var a float64
	for i := range pts {
		j := (i + 1) % len(pts)
		a += pts[i].x*pts[j].y - pts[j].x*pts[i].y
	}
	return a / 2
}

func cubicAt(p0, p1, p2, p3 point, t float64) point {
	mt := 1 - t
	a, b, c, d := mt*mt*mt, 3*mt*mt*t, 3*mt*t*t, t*t*t
	return point{
		a*p0.x + b*p1.x + c*p2.x + d*p3.x,
		a*p0.y + b*p1.y + c*p2.y + d*p3.y,
	}
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}

// colorOf interprets colour operands by their count: 1 gray, 3 RGB, 4 CMYK.
// Pattern names and other operand shapes are ignored.
func colorOf(args []cos.Object) (color.NRGBA, bool) {
	var v []float64
	for _, a := range args {
		if f, ok := objNumber(a); ok {
			v = append(v, clamp01(f))
		}
	}
	to8 := func(f float64) uint8 { return uint8(math.Round(f * 255)) }
	switch len(v) {
	case 1:
		g := to8(v[0])
		return color.NRGBA{g, g, g, 0xff}, true
	case 3:
		return color.NRGBA{to8(v[0]), to8(v[1]), to8(v[2]), 0xff}, true
	case 4:
		k := 1 - v[3]
		return color.NRGBA{to8((1 - v[0]) * k), to8((1 - v[1]) * k), to8((1 - v[2]) * k), 0xff}, true
	}
	return color.NRGBA{}, false
}

// resource returns /category /name from the current resource dictionary.
func (r *renderer) resource(category, name string) types.Object {
	if r.res == nil {
		return nil
	}
	o, found := r.res.Find(category)
	if !found {
		return nil
	}
	cat, err := r.ctx.DereferenceDict(o)
	if err != nil || cat == nil {
		return nil
	}
	entry, found := cat.Find(name)
	if !found {
		return nil
	}
	obj, err := r.ctx.Dereference(entry)
	if err != nil {
		return nil
	}
	return obj
}

func (r *renderer) applyExtGState(name string) {
	d, ok := r.resource("ExtGState", name).(types.Dict)
	if !ok {
		return
	}
	read := func(key string) (float64, bool) {
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
	if v, ok := read("ca"); ok {
		r.gs.fillAlpha = clamp01(v)
	}
	if v, ok := read("CA"); ok {
		r.gs.strokeAlpha = clamp01(v)
	}
	if v, ok := read("LW"); ok {
		r.gs.lineWidth = v
	}
}
