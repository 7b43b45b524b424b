package sim

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
)

// Canvas draws filled shapes into an RGBA frame with anti-aliasing.
type Canvas struct {
	img *image.RGBA
	ras *vector.Rasterizer
}

// NewCanvas returns a w x h canvas filled with bg.
func NewCanvas(w, h int, bg color.Color) *Canvas {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	return &Canvas{img: img, ras: vector.NewRasterizer(w, h)}
}

// Polygon fills the closed path through pts.
func (c *Canvas) Polygon(col color.Color, pts ...[2]float64) {
	if len(pts) < 3 {
		return
	}
	b := c.img.Bounds()
	c.ras.Reset(b.Dx(), b.Dy())
	c.ras.MoveTo(float32(pts[0][0]), float32(pts[0][1]))
	for _, p := range pts[1:] {
		c.ras.LineTo(float32(p[0]), float32(p[1]))
	}
	c.ras.ClosePath()
	c.ras.Draw(c.img, b, image.NewUniform(col), image.Point{})
}

// Rect fills the axis-aligned rectangle with top-left corner (x, y).
func (c *Canvas) Rect(col color.Color, x, y, w, h float64) {
	c.Polygon(col, [2]float64{x, y}, [2]float64{x + w, y}, [2]float64{x + w, y + h}, [2]float64{x, y + h})
}

// Line draws a segment of the given width.
func (c *Canvas) Line(col color.Color, x0, y0, x1, y1, width float64) {
	dx, dy := x1-x0, y1-y0
	n := math.Hypot(dx, dy)
	if n == 0 {
		return
	}
	ox, oy := -dy/n*width/2, dx/n*width/2
	c.Polygon(col,
		[2]float64{x0 + ox, y0 + oy},
		[2]float64{x1 + ox, y1 + oy},
		[2]float64{x1 - ox, y1 - oy},
		[2]float64{x0 - ox, y0 - oy},
	)
}

// Circle fills a disc approximated by a 24-gon.
func (c *Canvas) Circle(col color.Color, cx, cy, r float64) {
	const segments = 24
	pts := make([][2]float64, segments)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / segments
		pts[i] = [2]float64{cx + r*math.Cos(a), cy + r*math.Sin(a)}
	}
	c.Polygon(col, pts...)
}

// Image returns the frame drawn so far.
func (c *Canvas) Image() *image.RGBA {
	return c.img
}
