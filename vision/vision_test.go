package vision

import (
	"math"
	"testing"
)

func TestStripFences(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"bare", `{"pages":[]}`, `{"pages":[]}`},
		{"fenced", "```json\n{\"pages\":[]}\n```", `{"pages":[]}`},
		{"fenced no lang", "```\n{\"pages\":[]}\n```", `{"pages":[]}`},
		{"surrounding whitespace", "  \n```json\n{}\n```\n ", "{}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripFences(tc.in); got != tc.want {
				t.Errorf("StripFences(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestDecodeFenced(t *testing.T) {
	payload := []byte("```json\n{\"pages\":[{\"page\":1,\"blocks\":[{\"type\":\"heading\",\"bbox\":[10,10,200,40],\"text\":\"Title\"}]}],\"meta\":{\"model\":\"m1\"}}\n```")
	res := Decode(payload)
	if res.Raw != "" {
		t.Fatalf("expected clean decode, got raw fallback: %q", res.Raw)
	}
	if len(res.Pages) != 1 || len(res.Pages[0].Blocks) != 1 {
		t.Fatalf("unexpected structure: %+v", res)
	}
	if res.Meta.Model != "m1" {
		t.Errorf("meta model = %q", res.Meta.Model)
	}
}

func TestDecodeGarbageDegrades(t *testing.T) {
	res := Decode([]byte("sorry, I cannot help with that"))
	if res == nil {
		t.Fatal("Decode returned nil")
	}
	if len(res.Pages) != 0 {
		t.Errorf("expected no pages, got %d", len(res.Pages))
	}
	if res.Raw == "" {
		t.Error("expected raw payload preserved")
	}
}

func TestNormalizePageSkips(t *testing.T) {
	p := RawPage{Page: 1, Blocks: []RawBlock{
		{Type: "heading", BBox: []float64{10, 10, 200, 40}, Text: "keep"},
		{Type: "paragraph", BBox: []float64{10, 10, 200}, Text: "short bbox"},
		{Type: "paragraph", BBox: []float64{math.NaN(), 0, 10, 10}, Text: "nan"},
		{Type: "paragraph", BBox: []float64{100, 100, 50, 120}, Text: "inverted x"},
		{Type: "paragraph", BBox: []float64{10, 100, 50, 90}, Text: "inverted y"},
		{Type: "paragraph", BBox: []float64{10, 10, 50, 50}, Text: "   "},
		{Type: "paragraph", BBox: []float64{900, 900, 950, 950}, Text: "off page"},
	}}
	set, rep := NormalizePage(p, 800, 600)

	if rep.Total != 7 {
		t.Errorf("total = %d, want 7", rep.Total)
	}
	if rep.Kept != 1 {
		t.Errorf("kept = %d, want 1", rep.Kept)
	}
	if set.Len() != 1 {
		t.Fatalf("set has %d boxes, want 1", set.Len())
	}
	if rep.Skipped[SkipInvalidBBox] != 1 || rep.Skipped[SkipNaN] != 1 ||
		rep.Skipped[SkipInverted] != 2 || rep.Skipped[SkipEmptyText] != 1 ||
		rep.Skipped[SkipOutOfBounds] != 1 {
		t.Errorf("unexpected skip breakdown: %+v", rep.Skipped)
	}

	box, ok := set.Get("p1-b0")
	if !ok {
		t.Fatal("kept box id not p1-b0")
	}
	if !box.Type.IsHeading() {
		t.Errorf("type = %q, want heading", box.Type)
	}
	if box.W != 190 || box.H != 30 {
		t.Errorf("dims = %vx%v, want 190x30", box.W, box.H)
	}
}

func TestNormalizePageClipsNegativeOrigin(t *testing.T) {
	p := RawPage{Page: 2, Blocks: []RawBlock{
		{Type: "paragraph", BBox: []float64{-5, -10, 100, 50}, Text: "edge"},
	}}
	set, rep := NormalizePage(p, 800, 600)
	if rep.Kept != 1 {
		t.Fatalf("kept = %d, want 1", rep.Kept)
	}
	box, _ := set.Get("p2-b0")
	if box.X != 0 || box.Y != 0 {
		t.Errorf("origin = (%v,%v), want (0,0)", box.X, box.Y)
	}
	if box.W != 100 || box.H != 50 {
		t.Errorf("dims = %vx%v, want 100x50", box.W, box.H)
	}
}

func TestNormalizeMultiPage(t *testing.T) {
	res := &Result{Pages: []RawPage{
		{Page: 1, Blocks: []RawBlock{{Type: "title", BBox: []float64{0, 0, 100, 40}, Text: "a"}}},
		{Page: 2, Blocks: []RawBlock{{Type: "paragraph", BBox: []float64{0, 0, 100, 40}, Text: "b"}}},
	}}
	sets, reports := Normalize(res, map[int][2]float64{1: {800, 600}, 2: {800, 600}})
	if len(sets) != 2 || len(reports) != 2 {
		t.Fatalf("got %d sets, %d reports", len(sets), len(reports))
	}
	if sets[1].Scope != "page_1" || sets[2].Scope != "page_2" {
		t.Errorf("scopes: %q, %q", sets[1].Scope, sets[2].Scope)
	}
}
