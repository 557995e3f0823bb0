package pdf

import (
	"bytes"
	"image"
	"image/png"
	"math"
	"testing"
)

// TestRender_DimensionsAtZoom tests that output size is round(points * zoom)
func TestRender_DimensionsAtZoom(t *testing.T) {
	doc := openTest(t, buildPDF(t,
		testPage{width: 612, height: 792, text: "Letter"},
		testPage{width: 595.5, height: 842.3},
		testPage{width: 200, height: 100},
	))
	rz := NewRasterizer(0)

	tests := []struct {
		index int
		zoom  float64
		w, h  int
	}{
		{0, 1, 612, 792},
		{1, 1, 596, 842},
		{2, 1, 200, 100},
		{2, 2, 400, 200},
		{2, 0.5, 100, 50},
		{0, CompositeZoom, 2550, 3300},
	}
	for _, tt := range tests {
		p, err := doc.Page(tt.index)
		if err != nil {
			t.Fatalf("Page(%d) error = %v", tt.index, err)
		}
		r, err := rz.Render(p, tt.zoom)
		if err != nil {
			t.Fatalf("Render(page %d, %v) error = %v", tt.index, tt.zoom, err)
		}
		if r.Width != tt.w || r.Height != tt.h {
			t.Errorf("Render(page %d, %v) = %dx%d, want %dx%d", tt.index, tt.zoom, r.Width, r.Height, tt.w, tt.h)
		}
		if r.Channels != 3 || len(r.Pix) != r.Width*r.Height*3 {
			t.Errorf("Render(page %d, %v): channels=%d len=%d", tt.index, tt.zoom, r.Channels, len(r.Pix))
		}
	}
}

// TestRender_PaintsFilledRect tests that a filled rectangle lands where the page says, y up
func TestRender_PaintsFilledRect(t *testing.T) {
	doc := openTest(t, buildPDF(t, testPage{width: 200, height: 100, content: "0 0 1 rg 10 10 50 50 re f"}))
	p, _ := doc.Page(0)

	img, err := NewRasterizer(0).RenderImage(p, 1)
	if err != nil {
		t.Fatalf("RenderImage() error = %v", err)
	}

	// user space (10,10)-(60,60) is device x 10..60, y 40..90
	if c := img.RGBAAt(35, 65); c.B < 250 || c.R > 5 || c.G > 5 {
		t.Errorf("pixel inside rect = %v, want blue", c)
	}
	for _, pt := range []image.Point{{150, 20}, {35, 20}, {100, 65}} {
		if c := img.RGBAAt(pt.X, pt.Y); c.R != 255 || c.G != 255 || c.B != 255 {
			t.Errorf("pixel %v = %v, want white", pt, c)
		}
	}
}

// TestRender_CropBoxOrigin tests that content is placed relative to the visible box
func TestRender_CropBoxOrigin(t *testing.T) {
	data := rawPDF([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 400 400] /CropBox [100 100 300 300] /Resources << >> /Contents 4 0 R >>",
		streamObject("1 0 0 rg 100 100 20 20 re f"),
	})
	doc := openTest(t, data)
	p, _ := doc.Page(0)

	img, err := NewRasterizer(0).RenderImage(p, 1)
	if err != nil {
		t.Fatalf("RenderImage() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 200 {
		t.Fatalf("size = %v, want 200x200", b)
	}
	if c := img.RGBAAt(10, 190); c.R < 250 || c.G > 5 {
		t.Errorf("bottom-left pixel = %v, want red", c)
	}
}

// TestRender_OperandShapes tests that marked content dictionaries, comments,
// inline images and mistyped operands do not derail the operators after them
func TestRender_OperandShapes(t *testing.T) {
	doc := openTest(t, buildPDF(t, testPage{
		width: 200, height: 100,
		content: "% leading comment\n" +
			"/OC << /MCID 0 /Tags [/a /b] >> BDC EMC " +
			"BI /W 2 /H 1 /BPC 8 /CS /G ID ab EI " +
			"(junk) 10 10 re /Name w " +
			"0.0 1 0 rg 10 10 50 50 re f",
	}))
	p, _ := doc.Page(0)

	img, err := NewRasterizer(0).RenderImage(p, 1)
	if err != nil {
		t.Fatalf("RenderImage() error = %v", err)
	}
	if c := img.RGBAAt(35, 65); c.G < 250 || c.R > 5 || c.B > 5 {
		t.Errorf("pixel inside rect = %v, want green", c)
	}
	if c := img.RGBAAt(150, 20); c.R != 255 || c.G != 255 || c.B != 255 {
		t.Errorf("pixel outside rect = %v, want white", c)
	}
}

func TestRender_TextDoesNotFail(t *testing.T) {
	doc := openTest(t, buildPDF(t, testPage{
		width: 300, height: 200,
		text:  "Hello (World) \\ 123",
		content: "q 0.5 0 0 0.5 10 10 cm 2 w 0 0 1 RG 0 0 m 100 100 l S Q " +
			"BT /F1 10 Tf 14 TL 20 50 Td [(Kern) -250 (ed)] TJ T* (next) ' 3 Tr (hidden) Tj ET",
	}))
	p, _ := doc.Page(0)

	img, err := NewRasterizer(0).RenderImage(p, 2)
	if err != nil {
		t.Fatalf("RenderImage() error = %v", err)
	}

	painted := 0
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] < 128 {
			painted++
		}
	}
	if painted == 0 {
		t.Error("expected glyphs and strokes to darken some pixels")
	}
}

func TestValidateZoom(t *testing.T) {
	for _, z := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		wantCode(t, ValidateZoom(z), ErrInvalidZoom)
	}
	for _, z := range []float64{0.01, 1, CompositeZoom} {
		if err := ValidateZoom(z); err != nil {
			t.Errorf("ValidateZoom(%v) error = %v", z, err)
		}
	}
}

// TestRender_PixelCeiling tests that oversize output is refused before allocation
func TestRender_PixelCeiling(t *testing.T) {
	doc := openTest(t, letterPDF(t, "big"))
	p, _ := doc.Page(0)

	rz := NewRasterizer(612 * 792)
	if _, err := rz.Render(p, 1); err != nil {
		t.Fatalf("Render at the ceiling error = %v", err)
	}
	_, err := rz.Render(p, 1.01)
	wantCode(t, err, ErrRenderTooLarge)

	_, err = rz.Render(p, 1e9)
	wantCode(t, err, ErrRenderTooLarge)

	_, err = rz.Render(p, math.NaN())
	wantCode(t, err, ErrInvalidZoom)
}

func TestNewRasterizer_Default(t *testing.T) {
	if got := NewRasterizer(0).MaxPixels(); got != DefaultMaxRenderPixels {
		t.Errorf("MaxPixels() = %d, want %d", got, DefaultMaxRenderPixels)
	}
	if got := NewRasterizer(10).MaxPixels(); got != 10 {
		t.Errorf("MaxPixels() = %d, want 10", got)
	}
}

func TestNewRaster_LengthMismatch(t *testing.T) {
	tests := []struct {
		name             string
		w, h, ch, length int
		ok               bool
	}{
		{"exact rgb", 2, 3, 3, 18, true},
		{"exact rgba", 2, 3, 4, 24, true},
		{"short", 2, 3, 3, 17, false},
		{"long", 2, 3, 3, 19, false},
		{"zero width", 0, 3, 3, 0, false},
		{"two channels", 2, 3, 2, 12, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRaster(tt.w, tt.h, tt.ch, make([]byte, tt.length))
			if (err == nil) != tt.ok {
				t.Errorf("NewRaster() error = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestRaster_EncodePNG(t *testing.T) {
	doc := openTest(t, buildPDF(t, testPage{width: 30, height: 20}))
	p, _ := doc.Page(0)
	r, err := NewRasterizer(0).Render(p, 1)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	data, err := r.EncodePNG()
	if err != nil {
		t.Fatalf("EncodePNG() error = %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.DecodeConfig() error = %v", err)
	}
	if cfg.Width != 30 || cfg.Height != 20 {
		t.Errorf("png size = %dx%d, want 30x20", cfg.Width, cfg.Height)
	}
}
