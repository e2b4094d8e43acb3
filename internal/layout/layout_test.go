package layout

import (
	"image"
	"strings"
	"testing"

	"golang.org/x/image/font/basicfont"

	"bloom/internal/shape"
)

// rectRegion is a rectangular fake hit region.
type rectRegion struct {
	r image.Rectangle
}

func (rr rectRegion) Contains(x, y int) bool {
	return (image.Point{X: x, Y: y}).In(rr.r)
}

// ringRegion leaves a hole in the middle of each scanline.
type ringRegion struct {
	outer, hole image.Rectangle
}

func (rr ringRegion) Contains(x, y int) bool {
	p := image.Point{X: x, Y: y}
	return p.In(rr.outer) && !p.In(rr.hole)
}

func testEngine() *Engine {
	// Face7x13: every ASCII glyph advances exactly 7px, which keeps the
	// arithmetic in these tests exact.
	return NewEngine(basicfont.Face7x13, 10)
}

func TestBandsBottomUp(t *testing.T) {
	e := testEngine()
	region := rectRegion{r: image.Rect(0, 0, 70, 40)}

	bands := e.Bands(region, 70, 40)
	if len(bands) != 4 {
		t.Fatalf("got %d bands, want 4", len(bands))
	}
	wantY := []int{30, 20, 10, 0}
	for i, b := range bands {
		if b.Y != wantY[i] {
			t.Errorf("band %d at y=%d, want %d", i, b.Y, wantY[i])
		}
		if len(b.Runs) != 1 || b.Runs[0] != (Run{X0: 0, X1: 70}) {
			t.Errorf("band %d runs = %+v", i, b.Runs)
		}
	}
}

func TestBandsSplitAroundHole(t *testing.T) {
	e := testEngine()
	region := ringRegion{
		outer: image.Rect(0, 0, 100, 10),
		hole:  image.Rect(40, 0, 60, 10),
	}

	bands := e.Bands(region, 100, 10)
	if len(bands) != 1 {
		t.Fatalf("got %d bands, want 1", len(bands))
	}
	want := []Run{{X0: 0, X1: 40}, {X0: 60, X1: 100}}
	if len(bands[0].Runs) != 2 || bands[0].Runs[0] != want[0] || bands[0].Runs[1] != want[1] {
		t.Fatalf("runs = %+v, want %+v", bands[0].Runs, want)
	}
}

func TestPlaceGreedyBottomUp(t *testing.T) {
	e := testEngine()
	// 70px wide: exactly 10 glyphs of 7px per line.
	region := rectRegion{r: image.Rect(0, 0, 70, 40)}

	glyphs, overflow := e.Place([]string{"hello world"}, region, 70, 40)
	if overflow {
		t.Fatal("unexpected overflow")
	}
	if len(glyphs) != 11 {
		t.Fatalf("placed %d glyphs, want 11", len(glyphs))
	}
	// First 10 on the bottom line, the 11th one line up.
	for i := 0; i < 10; i++ {
		if glyphs[i].Y != 30 {
			t.Fatalf("glyph %d at y=%d, want 30", i, glyphs[i].Y)
		}
	}
	if glyphs[10].Y != 20 {
		t.Fatalf("glyph 10 at y=%d, want 20", glyphs[10].Y)
	}
	if glyphs[10].X != 0 {
		t.Fatalf("glyph 10 at x=%v, want 0", glyphs[10].X)
	}
}

func TestPlaceNoMidCharacterSplit(t *testing.T) {
	e := testEngine()
	// Runs of 10px hold a single 7px glyph; a second would cross X1.
	region := ringRegion{
		outer: image.Rect(0, 0, 24, 10),
		hole:  image.Rect(10, 0, 14, 10),
	}

	glyphs, overflow := e.Place([]string{"abcd"}, region, 24, 10)
	if !overflow {
		t.Fatal("want overflow, 4 glyphs cannot fit 2 runs of 10px")
	}
	if len(glyphs) != 2 {
		t.Fatalf("placed %d glyphs, want 2", len(glyphs))
	}
	if glyphs[0].X != 0 || glyphs[1].X != 14 {
		t.Fatalf("glyph x = %v, %v; want 0, 14", glyphs[0].X, glyphs[1].X)
	}
}

func TestFlattenSingleSpaceJoin(t *testing.T) {
	got := Flatten([]string{"안녕", "하세요"})
	if got != "안녕 하세요" {
		t.Fatalf("Flatten = %q, want %q", got, "안녕 하세요")
	}
}

func TestWillOverflowBoundary(t *testing.T) {
	e := testEngine()
	region := rectRegion{r: image.Rect(0, 0, 70, 10)}
	sh := &shape.Shape{Width: 70, Height: 10, Tight: region, Expanded: region}

	// One band, 10 glyph capacity.
	if e.WillOverflow([]string{strings.Repeat("x", 10)}, sh) {
		t.Error("10 glyphs should fit")
	}
	if !e.WillOverflow([]string{strings.Repeat("x", 11)}, sh) {
		t.Error("11 glyphs should overflow")
	}
	if e.WillOverflow(nil, sh) {
		t.Error("empty candidate never overflows")
	}
}

func TestWillOverflowDeterministic(t *testing.T) {
	e := testEngine()
	region := rectRegion{r: image.Rect(0, 0, 70, 30)}
	sh := &shape.Shape{Width: 70, Height: 30, Tight: region, Expanded: region}
	texts := []string{"first visitor", "second visitor"}

	first := e.WillOverflow(texts, sh)
	for i := 0; i < 20; i++ {
		if e.WillOverflow(texts, sh) != first {
			t.Fatal("WillOverflow flipped between calls")
		}
	}
}

func TestRenderClipsToTightRegion(t *testing.T) {
	e := testEngine()
	// Expanded region is wider than the tight one; paint must stay tight.
	tight := rectRegion{r: image.Rect(0, 0, 40, 40)}
	expanded := rectRegion{r: image.Rect(0, 0, 80, 40)}
	sh := &shape.Shape{Width: 80, Height: 40, Tight: tight, Expanded: expanded}

	img := e.Render([]string{strings.Repeat("w", 20)}, sh, 0, 1)

	for y := 0; y < 40; y++ {
		for x := 40; x < 80; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0 {
				t.Fatalf("pixel (%d,%d) painted outside the tight region", x, y)
			}
		}
	}
}

func TestRenderNewGlyphAlpha(t *testing.T) {
	e := testEngine()
	region := rectRegion{r: image.Rect(0, 0, 70, 40)}
	sh := &shape.Shape{Width: 70, Height: 40, Tight: region, Expanded: region}
	texts := []string{"old", "new"}

	// alpha 0: new glyphs invisible, old ones painted.
	faded := e.Render(texts, sh, 3, 0)
	solid := e.Render(texts, sh, 3, 1)

	sum := func(img *image.RGBA, x0, x1 int) (total uint64) {
		for y := 0; y < 40; y++ {
			for x := x0; x < x1; x++ {
				_, _, _, a := img.At(x, y).RGBA()
				total += uint64(a)
			}
		}
		return
	}

	// "old" occupies the first 3 glyph cells (21px); identical either way.
	if sum(faded, 0, 21) != sum(solid, 0, 21) {
		t.Error("old glyphs changed with animation alpha")
	}
	// The "new" cells only appear at full alpha.
	if sum(faded, 28, 49) != 0 {
		t.Error("new glyphs visible at alpha 0")
	}
	if sum(solid, 28, 49) == 0 {
		t.Error("new glyphs missing at alpha 1")
	}
}
