// Package layout places the accumulated visitor text into the silhouette.
// Lines are scanned from the bottom edge upward in fixed line-height steps,
// so the composite grows upward as more visitors speak. Placement is greedy
// left to right inside each inside-shape x-range; characters are never split
// across a range boundary.
package layout

import (
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"bloom/internal/shape"
)

// Run is one contiguous inside-shape x-range [X0, X1) on a scanline.
type Run struct {
	X0, X1 int
}

// Band is a single scanline's set of inside-shape runs.
type Band struct {
	Y    int
	Runs []Run
}

// Glyph is one placed character.
type Glyph struct {
	R rune
	X float64 // left edge
	Y int     // baseline
}

// Engine lays text into a shape with a fixed face and line height.
type Engine struct {
	Face       font.Face
	LineHeight int
}

func NewEngine(face font.Face, lineHeight int) *Engine {
	return &Engine{Face: face, LineHeight: lineHeight}
}

// Flatten joins the ordered utterance list into the single character stream
// the layout works on.
func Flatten(texts []string) string {
	return strings.Join(texts, " ")
}

// Bands extracts the inside-region runs for every scanline, bottom to top.
func (e *Engine) Bands(region shape.Region, w, h int) []Band {
	var bands []Band
	for y := h - e.LineHeight; y >= 0; y -= e.LineHeight {
		var runs []Run
		start := -1
		for x := 0; x < w; x++ {
			if region.Contains(x, y) {
				if start < 0 {
					start = x
				}
				continue
			}
			if start >= 0 {
				runs = append(runs, Run{X0: start, X1: x})
				start = -1
			}
		}
		if start >= 0 {
			runs = append(runs, Run{X0: start, X1: w})
		}
		if len(runs) > 0 {
			bands = append(bands, Band{Y: y, Runs: runs})
		}
	}
	return bands
}

// Place runs the shared scan: greedy left-to-right placement of the joined
// character sequence into the bands of the given region. Returns the placed
// glyphs and whether characters remained unplaced.
func (e *Engine) Place(texts []string, region shape.Region, w, h int) ([]Glyph, bool) {
	chars := []rune(Flatten(texts))
	if len(chars) == 0 {
		return nil, false
	}

	var glyphs []Glyph
	idx := 0
	for _, band := range e.Bands(region, w, h) {
		for _, run := range band.Runs {
			x := float64(run.X0)
			for idx < len(chars) {
				adv := e.advance(chars[idx])
				if x+adv > float64(run.X1) {
					break
				}
				glyphs = append(glyphs, Glyph{R: chars[idx], X: x, Y: band.Y})
				x += adv
				idx++
			}
			if idx == len(chars) {
				return glyphs, false
			}
		}
	}
	return glyphs, idx < len(chars)
}

// WillOverflow reports whether the candidate list cannot be fully placed.
// Same scan as the draw path, no painting. Pure in its inputs.
func (e *Engine) WillOverflow(texts []string, sh *shape.Shape) bool {
	_, overflow := e.Place(texts, sh.Expanded, sh.Width, sh.Height)
	return overflow
}

// advance is the horizontal advance of r in pixels.
func (e *Engine) advance(r rune) float64 {
	adv, ok := e.Face.GlyphAdvance(r)
	if !ok {
		adv, ok = e.Face.GlyphAdvance('�')
		if !ok {
			adv = fixed.I(e.LineHeight / 2)
		}
	}
	return float64(adv) / 64
}
