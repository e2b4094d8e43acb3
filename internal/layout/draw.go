package layout

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"bloom/internal/shape"
)

// backdropAlpha dims the raster silhouette behind the text.
const backdropAlpha = 38 // ~15%

// Masker is implemented by regions that can hand over their raster mask
// directly instead of being probed point by point.
type Masker interface {
	Mask() *image.Alpha
}

// Render paints the composite: the dim backdrop, then every placed glyph
// clipped to the tight region. Glyphs at or past prevCount are "new" and
// painted at the given eased alpha; all others at full opacity. Layout still
// runs against the expanded region — expansion exists only so placement is
// not cut at the literal boundary.
func (e *Engine) Render(texts []string, sh *shape.Shape, prevCount int, alpha float64) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, sh.Width, sh.Height))

	if sh.Backdrop != nil {
		draw.DrawMask(dst, dst.Bounds(), sh.Backdrop, image.Point{},
			image.NewUniform(color.Alpha{A: backdropAlpha}), image.Point{}, draw.Over)
	}

	glyphs, _ := e.Place(texts, sh.Expanded, sh.Width, sh.Height)
	if len(glyphs) == 0 {
		return dst
	}

	layer := image.NewRGBA(dst.Bounds())
	full := &font.Drawer{Dst: layer, Src: image.NewUniform(color.White), Face: e.Face}

	a := uint8(math.Round(255 * clamp01(alpha)))
	faded := &font.Drawer{
		Dst:  layer,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: a}),
		Face: e.Face,
	}

	for i, g := range glyphs {
		d := full
		if i >= prevCount {
			d = faded
		}
		d.Dot = fixed.Point26_6{
			X: fixed.Int26_6(math.Round(g.X * 64)),
			Y: fixed.I(g.Y),
		}
		d.DrawString(string(g.R))
	}

	// Final paint stays visually inside the silhouette.
	draw.DrawMask(dst, dst.Bounds(), layer, image.Point{},
		regionMask(sh.Tight, sh.Width, sh.Height), image.Point{}, draw.Over)

	return dst
}

func regionMask(r shape.Region, w, h int) *image.Alpha {
	if m, ok := r.(Masker); ok {
		return m.Mask()
	}
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if r.Contains(x, y) {
				mask.SetAlpha(x, y, color.Alpha{A: 0xff})
			}
		}
	}
	return mask
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
