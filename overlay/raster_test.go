package overlay

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"doctrans/annotation"
	"doctrans/fault"
)

func grayBase(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	gray := color.NRGBA{0x80, 0x80, 0x80, 0xFF}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, gray)
		}
	}
	return img
}

func overlayBox(t *testing.T, id string, typ annotation.BlockType, x, y, w, h float64, text string) annotation.Box {
	t.Helper()
	b, err := annotation.NewBox(id, annotation.SpacePixel, x, y, w, h, text)
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}
	b.Type = typ
	return b
}

func TestParseHexColor(t *testing.T) {
	fallback := color.NRGBA{1, 2, 3, 0xFF}
	cases := []struct {
		in   string
		want color.NRGBA
	}{
		{"#FFFFFF", color.NRGBA{0xFF, 0xFF, 0xFF, 0xFF}},
		{"#000000", color.NRGBA{0, 0, 0, 0xFF}},
		{"#f00", color.NRGBA{0xFF, 0, 0, 0xFF}},
		{" #2c3e50 ", color.NRGBA{0x2C, 0x3E, 0x50, 0xFF}},
		{"red", fallback},
		{"", fallback},
	}
	for _, tc := range cases {
		if got := parseHexColor(tc.in, fallback); got != tc.want {
			t.Errorf("parseHexColor(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestScaleToFit(t *testing.T) {
	base := grayBase(1200, 1600)
	out, scale := scaleToFit(base, 600, 800)
	if out.Bounds().Dx() != 600 || out.Bounds().Dy() != 800 {
		t.Errorf("bounds = %v", out.Bounds())
	}
	if scale != 0.5 {
		t.Errorf("scale = %v", scale)
	}

	// Never upscale.
	small := grayBase(100, 100)
	out, scale = scaleToFit(small, 600, 800)
	if out.Bounds().Dx() != 100 || scale != 1.0 {
		t.Errorf("bounds = %v, scale = %v", out.Bounds(), scale)
	}

	// Zero bounds disable scaling.
	out, scale = scaleToFit(base, 0, 0)
	if out.Bounds().Dx() != 1200 || scale != 1.0 {
		t.Errorf("bounds = %v, scale = %v", out.Bounds(), scale)
	}
}

func TestBurnBoxFillsAndBorders(t *testing.T) {
	dst := grayBase(200, 200)
	box := overlayBox(t, "b1", annotation.TypeHeading, 50, 50, 100, 40, "Hi")
	burnBox(dst, box, 1.0, 0.8)

	// Interior is the default white background.
	if got := dst.NRGBAAt(100, 70); got != (color.NRGBA{0xFF, 0xFF, 0xFF, 0xFF}) {
		// Text pixels are black; probe a corner inside the fill instead.
		if got2 := dst.NRGBAAt(145, 85); got2 != (color.NRGBA{0xFF, 0xFF, 0xFF, 0xFF}) {
			t.Errorf("interior = %v / %v, want white", got, got2)
		}
	}
	// Border is black.
	if got := dst.NRGBAAt(50, 50); got != (color.NRGBA{0, 0, 0, 0xFF}) {
		t.Errorf("border = %v, want black", got)
	}
	// Outside untouched.
	if got := dst.NRGBAAt(10, 10); got != (color.NRGBA{0x80, 0x80, 0x80, 0xFF}) {
		t.Errorf("outside = %v, want gray", got)
	}
}

func TestBurnBoxClipsToCanvas(t *testing.T) {
	dst := grayBase(100, 100)
	box := overlayBox(t, "b1", annotation.TypeHeading, 80, 80, 60, 60, "clip")
	burnBox(dst, box, 1.0, 0.8) // must not panic writing out of bounds
	if got := dst.NRGBAAt(99, 99); got == (color.NRGBA{0x80, 0x80, 0x80, 0xFF}) {
		t.Error("in-bounds part of the box was not painted")
	}
}

func TestBurnBoxCapsFontToBoxHeight(t *testing.T) {
	mk := func(fontRatio float64) *image.NRGBA {
		dst := grayBase(400, 120)
		box := overlayBox(t, "b1", annotation.TypeHeading, 20, 20, 360, 80, "Grosse Schrift")
		box.Style.FontSize = 64
		burnBox(dst, box, 1.0, fontRatio)
		return dst
	}
	// 0.8*80 = 64 leaves the requested size alone; 0.2*80 = 16 caps it.
	// Glyphs at 64px cover pixels that 16px text cannot reach.
	full := mk(0.8)
	capped := mk(0.2)
	if bytes.Equal(full.Pix, capped.Pix) {
		t.Error("font ratio had no effect on the rendered text size")
	}

	inkAtRow := func(img *image.NRGBA, y int) bool {
		for x := 26; x < 374; x++ {
			c := img.NRGBAAt(x, y)
			if c.R < 0x40 && c.G < 0x40 && c.B < 0x40 {
				return true
			}
		}
		return false
	}
	// 64px glyphs sit on a baseline near the bottom of the box; 16px text
	// hugs the top and leaves row 70 blank.
	if !inkAtRow(full, 70) {
		t.Error("uncapped 64px text should reach deep into the box")
	}
	if inkAtRow(capped, 70) {
		t.Error("text capped at 16px must not reach row 70")
	}
}

func TestRenderPreviewScalesGeometry(t *testing.T) {
	base := grayBase(1200, 1600)
	set := annotation.NewBoxSet("page_1")
	if err := set.Add(overlayBox(t, "b1", annotation.TypeHeading, 200, 200, 400, 100, "Titel")); err != nil {
		t.Fatal(err)
	}

	img, err := RenderPreview(base, set, PreviewOptions{MaxWidth: 600, MaxHeight: 800})
	if err != nil {
		t.Fatalf("RenderPreview: %v", err)
	}
	if img.Bounds().Dx() != 600 || img.Bounds().Dy() != 800 {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	// Box lands at half scale: (100,100)-(300,150).
	if got := img.NRGBAAt(100, 100); got != (color.NRGBA{0, 0, 0, 0xFF}) {
		t.Errorf("scaled border = %v, want black", got)
	}
	if got := img.NRGBAAt(290, 140); got != (color.NRGBA{0xFF, 0xFF, 0xFF, 0xFF}) {
		t.Errorf("scaled fill = %v, want white", got)
	}
}

func TestRenderPreviewDeterministic(t *testing.T) {
	set := annotation.NewBoxSet("page_1")
	for _, b := range []annotation.Box{
		overlayBox(t, "b1", annotation.TypeHeading, 10, 10, 100, 40, "one"),
		overlayBox(t, "b2", annotation.TypeCaption, 10, 60, 100, 40, "two"),
	} {
		if err := set.Add(b); err != nil {
			t.Fatal(err)
		}
	}
	a, err := RenderPreview(grayBase(300, 300), set, PreviewOptions{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := RenderPreview(grayBase(300, 300), set, PreviewOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("identical inputs produced different rasters")
	}
}

func TestRenderPreviewNilBase(t *testing.T) {
	if _, err := RenderPreview(nil, annotation.NewBoxSet("s"), PreviewOptions{}); err == nil {
		t.Error("expected error for nil base")
	}
}

func TestCompositeReportsDecisions(t *testing.T) {
	base := grayBase(1000, 1000)
	set := annotation.NewBoxSet("img_001.png")
	for _, b := range []annotation.Box{
		overlayBox(t, "b1", annotation.TypeHeading, 10, 10, 400, 80, "kept"),
		overlayBox(t, "b2", annotation.TypeParagraph, 10, 200, 400, 300, "tall paragraph"),
	} {
		if err := set.Add(b); err != nil {
			t.Fatal(err)
		}
	}

	img, report, err := Composite(base, set, DefaultPolicy(ScopeHeadings), "img_001.png", 0.8)
	if err != nil {
		t.Fatalf("Composite: %v", err)
	}
	if report.Total != 2 || report.Replaced != 1 {
		t.Errorf("report = %+v", report)
	}
	if len(report.Decisions) != 2 {
		t.Fatalf("decisions = %d", len(report.Decisions))
	}
	if !report.Decisions[0].Replaced || report.Decisions[1].Replaced {
		t.Errorf("decisions = %+v", report.Decisions)
	}
	if report.Decisions[1].Reason != "paragraph_height_exceeded" {
		t.Errorf("skip reason = %q", report.Decisions[1].Reason)
	}
	// The kept box is burned in, the skipped one is not.
	if got := img.NRGBAAt(10, 10); got != (color.NRGBA{0, 0, 0, 0xFF}) {
		t.Errorf("kept box border = %v", got)
	}
	if got := img.NRGBAAt(200, 350); got != (color.NRGBA{0x80, 0x80, 0x80, 0xFF}) {
		t.Errorf("skipped box area = %v, want untouched gray", got)
	}
	// Base must be untouched.
	if got := base.NRGBAAt(10, 10); got != (color.NRGBA{0x80, 0x80, 0x80, 0xFF}) {
		t.Error("Composite mutated the base image")
	}
}

func TestBuildPageNormalizes(t *testing.T) {
	set := annotation.NewBoxSet("page_1")
	for _, b := range []annotation.Box{
		overlayBox(t, "b2", annotation.TypeHeading, 500, 100, 250, 50, "second"),
		overlayBox(t, "b1", annotation.TypeHeading, 100, 100, 250, 50, "first"),
	} {
		if err := set.Add(b); err != nil {
			t.Fatal(err)
		}
	}

	page, report, err := BuildPage(1, "page_1.png", PageSize{Width: 1000, Height: 500}, set, DefaultPolicy(ScopeHeadings), 0.8)
	if err != nil {
		t.Fatalf("BuildPage: %v", err)
	}
	if report.Replaced != 2 {
		t.Fatalf("report = %+v", report)
	}
	if len(page.Blocks) != 2 || page.Blocks[0].BoxID != "b1" || page.Blocks[1].BoxID != "b2" {
		t.Fatalf("blocks not ordered by id: %+v", page.Blocks)
	}
	b1 := page.Blocks[0]
	if b1.X != 0.1 || b1.Y != 0.2 || b1.W != 0.25 || b1.H != 0.1 {
		t.Errorf("normalized geometry = %+v", b1)
	}
	if b1.FontSize != 24 {
		t.Errorf("font size = %v, want 24", b1.FontSize)
	}
}

func TestBuildPageZeroSize(t *testing.T) {
	_, _, err := BuildPage(1, "p.png", PageSize{}, annotation.NewBoxSet("s"), DefaultPolicy(ScopeAll), 0.8)
	if !fault.IsCode(err, fault.CodeFrameUnavailable) {
		t.Fatalf("err = %v, want FRAME_UNAVAILABLE", err)
	}
}
