// Package pdf implements the page-level document pipeline of pdf-workbench:
// opening and validating documents, rasterizing pages, compositing
// annotation layers, extracting pages and text, and re-assembling output
// documents.
package pdf

import (
	"bytes"
	"fmt"
	"math"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"pdf-workbench/internal/coords"
)

// pdfMagic 文件头魔数
var pdfMagic = []byte("%PDF")

// Document is an opened, validated PDF. It is owned by a single request and
// must be released with Close.
type Document struct {
	data   []byte
	conf   *model.Configuration
	ctx    *model.Context
	pages  []*Page
	text   *lpdf.Reader
	closed bool
}

// Page is a reference into a Document's page sequence.
type Page struct {
	doc *Document

	// Index is 0-based, Number is Index+1.
	Index  int
	Number int

	// Width and Height of the visible page box in points.
	Width  float64
	Height float64

	// Origin is the lower-left corner of the visible page box in user space.
	Origin coords.Point

	// Rotate is the /Rotate entry. It is reported but not applied.
	Rotate int
}

// Size returns the page dimensions in points.
func (p *Page) Size() coords.Size {
	return coords.Size{Width: p.Width, Height: p.Height}
}

// Document returns the owning document.
func (p *Page) Document() *Document {
	return p.doc
}

// HasPDFMagic reports whether data starts with the PDF file header.
func HasPDFMagic(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// NewConfiguration returns the pdfcpu configuration used for every read.
func NewConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Open validates data and opens it as a Document. The magic-byte check runs
// before any structural parse.
func Open(data []byte, conf *model.Configuration) (doc *Document, err error) {
	if len(data) == 0 {
		return nil, NewPDFError(ErrEmpty, "document is empty", nil)
	}
	if !HasPDFMagic(data) {
		return nil, NewPDFError(ErrInvalidFormat, "file is not a PDF document", nil)
	}
	if conf == nil {
		conf = NewConfiguration()
	}

	// pdfcpu may panic on hostile input
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = NewPDFError(ErrCorrupted, "document structure is corrupted", fmt.Errorf("parser panic: %v", r))
		}
	}()

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, NewPDFError(ErrCorrupted, "document structure is corrupted", err)
	}
	if ctx.PageCount == 0 {
		return nil, NewPDFError(ErrEmpty, "document has no pages", nil)
	}

	doc = &Document{data: data, conf: conf, ctx: ctx}
	doc.pages = make([]*Page, ctx.PageCount)
	for i := range doc.pages {
		p, err := doc.loadPage(i)
		if err != nil {
			return nil, err
		}
		doc.pages[i] = p
	}
	return doc, nil
}

func (d *Document) loadPage(index int) (*Page, error) {
	number := index + 1
	pageDict, _, _, err := d.ctx.PageDict(number, false)
	if err != nil || pageDict == nil {
		return nil, NewPDFErrorWithPage(ErrCorrupted, "page tree is corrupted", number, err)
	}

	box, err := d.pageBox(pageDict)
	if err != nil {
		return nil, NewPDFErrorWithPage(ErrCorrupted, "page box is invalid", number, err)
	}

	rotate := 0
	if o, err := inheritedEntry(d.ctx, pageDict, "Rotate"); err == nil && o != nil {
		if f, ok := number64(o); ok {
			rotate = int(f)
		}
	}

	return &Page{
		doc:    d,
		Index:  index,
		Number: number,
		Width:  box[2] - box[0],
		Height: box[3] - box[1],
		Origin: coords.Point{X: box[0], Y: box[1]},
		Rotate: rotate,
	}, nil
}

// pageBox returns the CropBox, or the MediaBox when no CropBox is present,
// as a normalised [llx lly urx ury].
func (d *Document) pageBox(pageDict types.Dict) ([4]float64, error) {
	for _, key := range []string{"CropBox", "MediaBox"} {
		o, err := inheritedEntry(d.ctx, pageDict, key)
		if err != nil {
			return [4]float64{}, err
		}
		if o == nil {
			continue
		}
		box, err := rectOf(d.ctx, o)
		if err != nil {
			return [4]float64{}, err
		}
		if box[2]-box[0] <= 0 || box[3]-box[1] <= 0 {
			return [4]float64{}, fmt.Errorf("%s has zero area", key)
		}
		return box, nil
	}
	return [4]float64{}, fmt.Errorf("page has no MediaBox")
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return len(d.pages)
}

// Size returns the length of the source buffer in bytes.
func (d *Document) Size() int {
	return len(d.data)
}

// Page returns the page at a 0-based index.
func (d *Document) Page(index int) (*Page, error) {
	if d.closed {
		return nil, errInternal("document is closed", nil)
	}
	if index < 0 || index >= len(d.pages) {
		return nil, errPageOutOfRange(index+1, len(d.pages))
	}
	return d.pages[index], nil
}

// PageByNumber returns the page with a 1-based number.
func (d *Document) PageByNumber(number int) (*Page, error) {
	return d.Page(number - 1)
}

// Pages returns every page in order.
func (d *Document) Pages() []*Page {
	return append([]*Page(nil), d.pages...)
}

// Bytes returns the source buffer. Callers must not modify it.
func (d *Document) Bytes() []byte {
	return d.data
}

// WorkingContext re-reads the source bytes into a fresh context that the
// caller may modify without affecting the Document.
func (d *Document) WorkingContext() (*model.Context, error) {
	if d.closed {
		return nil, errInternal("document is closed", nil)
	}
	ctx, err := api.ReadContext(bytes.NewReader(d.data), d.configuration())
	if err != nil {
		return nil, errInternal("failed to copy document", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, errInternal("failed to copy document", err)
	}
	return ctx, nil
}

// configuration returns a private copy of the read configuration. pdfcpu
// records the running command on the configuration it is given.
func (d *Document) configuration() *model.Configuration {
	c := *d.conf
	return &c
}

// textReader opens the text reader lazily on the source bytes.
func (d *Document) textReader() (*lpdf.Reader, error) {
	if d.closed {
		return nil, errInternal("document is closed", nil)
	}
	if d.text == nil {
		r, err := lpdf.NewReader(bytes.NewReader(d.data), int64(len(d.data)))
		if err != nil {
			return nil, errInternal("failed to open text layer", err)
		}
		d.text = r
	}
	return d.text, nil
}

// Close releases the parsed document. It is safe to call more than once.
func (d *Document) Close() error {
	if d == nil || d.closed {
		return nil
	}
	d.closed = true
	for _, p := range d.pages {
		p.doc = nil
	}
	d.pages = nil
	d.ctx = nil
	d.text = nil
	d.data = nil
	return nil
}

// inheritedEntry looks key up on d and then on its /Parent chain.
func inheritedEntry(ctx *model.Context, d types.Dict, key string) (types.Object, error) {
	for depth := 0; d != nil && depth < 64; depth++ {
		if o, found := d.Find(key); found && o != nil {
			return ctx.Dereference(o)
		}
		parent, found := d.Find("Parent")
		if !found || parent == nil {
			return nil, nil
		}
		var err error
		if d, err = ctx.DereferenceDict(parent); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// rectOf reads a 4-number array, dereferencing elements as needed.
func rectOf(ctx *model.Context, o types.Object) ([4]float64, error) {
	arr, err := ctx.DereferenceArray(o)
	if err != nil {
		return [4]float64{}, err
	}
	if len(arr) != 4 {
		return [4]float64{}, fmt.Errorf("rectangle has %d elements", len(arr))
	}
	var v [4]float64
	for i, e := range arr {
		e, err := ctx.Dereference(e)
		if err != nil {
			return [4]float64{}, err
		}
		f, ok := number64(e)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return [4]float64{}, fmt.Errorf("rectangle element %d is not a number", i)
		}
		v[i] = f
	}
	return [4]float64{
		math.Min(v[0], v[2]), math.Min(v[1], v[3]),
		math.Max(v[0], v[2]), math.Max(v[1], v[3]),
	}, nil
}

// number64 converts a pdfcpu numeric object to float64.
func number64(o types.Object) (float64, bool) {
	switch v := o.(type) {
	case types.Integer:
		return float64(v), true
	case types.Float:
		return float64(v), true
	}
	return 0, false
}
