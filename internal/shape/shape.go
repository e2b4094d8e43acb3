// Package shape loads the silhouette the composite is laid into: a single
// closed SVG outline plus a raster backdrop of the same artwork. The outline
// is rasterized twice — a tight mask matching the visual boundary (used to
// clip painting) and an expanded mask scaled up around the center with a
// small horizontal offset (used only for layout so glyphs are not cut
// mid-character at the literal edge).
package shape

import (
	"fmt"
	"image"
	"image/color"
	"os"

	_ "image/jpeg"
	_ "image/png"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Region answers point-in-shape queries at pixel resolution.
type Region interface {
	Contains(x, y int) bool
}

// Shape is the immutable, shared resource handed to every consumer.
type Shape struct {
	Width    int
	Height   int
	Backdrop image.Image // dim composite background, may be nil
	Tight    Region      // exact visual boundary, clips final paint
	Expanded Region      // enlarged boundary, layout decisions only
}

// Options for a shape load.
type Options struct {
	ShapePath     string
	BackdropPath  string
	RenderWidth   int
	ExpandFactor  float64
	ExpandOffsetX float64
}

// maskRegion is a Region backed by a rasterized alpha mask.
type maskRegion struct {
	alpha *image.Alpha
}

func (m *maskRegion) Contains(x, y int) bool {
	if !(image.Point{X: x, Y: y}).In(m.alpha.Rect) {
		return false
	}
	return m.alpha.AlphaAt(x, y).A >= 0x80
}

// Mask exposes the raster mask so the draw path can clip in one blit.
func (m *maskRegion) Mask() *image.Alpha { return m.alpha }

// Load reads the outline and backdrop and builds both hit regions.
func Load(opt Options) (*Shape, error) {
	icon, err := oksvg.ReadIcon(opt.ShapePath, oksvg.WarnErrorMode)
	if err != nil {
		return nil, fmt.Errorf("read outline: %w", err)
	}

	vb := icon.ViewBox
	if vb.W <= 0 || vb.H <= 0 {
		return nil, fmt.Errorf("outline %s has an empty viewbox", opt.ShapePath)
	}

	w := opt.RenderWidth
	if w <= 0 {
		w = int(vb.W)
	}
	h := int(float64(w) * vb.H / vb.W)

	tight := rasterize(icon, w, h, 0, 0, float64(w), float64(h))

	f := opt.ExpandFactor
	if f <= 0 {
		f = 1
	}
	ew := float64(w) * f
	eh := float64(h) * f
	ex := (float64(w)-ew)/2 + opt.ExpandOffsetX
	ey := (float64(h) - eh) / 2
	expanded := rasterize(icon, w, h, ex, ey, ew, eh)

	var backdrop image.Image
	if opt.BackdropPath != "" {
		backdrop, err = decodeImage(opt.BackdropPath)
		if err != nil {
			return nil, fmt.Errorf("decode backdrop: %w", err)
		}
	}

	return &Shape{
		Width:    w,
		Height:   h,
		Backdrop: backdrop,
		Tight:    &maskRegion{alpha: tight},
		Expanded: &maskRegion{alpha: expanded},
	}, nil
}

// rasterize fills the icon into a w×h alpha mask with the outline scaled to
// the given target rectangle.
func rasterize(icon *oksvg.SvgIcon, w, h int, tx, ty, tw, th float64) *image.Alpha {
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, rgba, rgba.Bounds())
	raster := rasterx.NewDasher(w, h, scanner)

	icon.SetTarget(tx, ty, tw, th)
	icon.Draw(raster, 1.0)

	mask := image.NewAlpha(rgba.Bounds())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			_, _, _, a := rgba.At(x, y).RGBA()
			mask.SetAlpha(x, y, color.Alpha{A: uint8(a >> 8)})
		}
	}
	return mask
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return img, nil
}
