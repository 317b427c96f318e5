package rendering

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Format is a raster export format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// ParseFormat maps a file extension to a Format.
func ParseFormat(ext string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "", "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	default:
		return "", fmt.Errorf("unsupported image format %q", ext)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatWebP {
		return "image/webp"
	}
	return "image/png"
}

// Encode writes img in the given format.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case FormatWebP:
		return webp.Encode(w, img, &webp.Options{Quality: 85})
	case FormatPNG:
		return imaging.Encode(w, img, imaging.PNG)
	default:
		return fmt.Errorf("unsupported image format %q", f)
	}
}

var (
	background = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	labelColor = color.NRGBA{R: 40, G: 40, B: 40, A: 255}
	palette    = []color.NRGBA{
		{R: 8, G: 145, B: 178, A: 255},
		{R: 234, G: 88, B: 12, A: 255},
		{R: 22, G: 163, B: 74, A: 255},
		{R: 147, G: 51, B: 234, A: 255},
		{R: 219, G: 39, B: 119, A: 255},
		{R: 202, G: 138, B: 4, A: 255},
	}
)

const linkAlpha = 0.35

// MaxCanvasSide bounds the supersampled canvas on either axis.
const MaxCanvasSide = 4000

// RenderSankey draws a laid-out diagram. scale > 1 renders a sharper image
// that is downsampled to the layout size.
func RenderSankey(layout SankeyLayout, scale int) *image.NRGBA {
	w, h := max(layout.Width, 1), max(layout.Height, 1)
	scale = canvasScale(w, h, scale)
	s := float64(scale)
	canvas := imaging.New(w*scale, h*scale, background)

	for _, l := range layout.Links {
		src, dst := layout.Nodes[l.Source], layout.Nodes[l.Target]
		drawBand(canvas, src.X1*s, l.Y0*s, dst.X0*s, l.Y1*s, l.Width*s, palette[l.Source%len(palette)])
	}

	for i, n := range layout.Nodes {
		nw := int(math.Round((n.X1 - n.X0) * s))
		nh := int(math.Round((n.Y1 - n.Y0) * s))
		if nw <= 0 || nh <= 0 {
			continue
		}
		block := imaging.New(nw, nh, palette[i%len(palette)])
		canvas = imaging.Paste(canvas, block, image.Pt(int(math.Round(n.X0*s)), int(math.Round(n.Y0*s))))
	}

	if scale > 1 {
		canvas = imaging.Resize(canvas, w, h, imaging.Lanczos)
	}

	for _, n := range layout.Nodes {
		drawLabel(canvas, n, w)
	}
	return canvas
}

// canvasScale clamps the supersampling factor so neither canvas side exceeds MaxCanvasSide.
func canvasScale(w, h, scale int) int {
	return max(1, min(scale, MaxCanvasSide/max(w, h, 1)))
}

// drawBand fills a link band whose centre follows a smoothstep curve from
// (x0, y0) to (x1, y1).
func drawBand(img *image.NRGBA, x0, y0, x1, y1, width float64, c color.NRGBA) {
	if x1 <= x0 || width <= 0 {
		return
	}
	half := math.Max(width/2, 0.5)
	b := img.Bounds()
	for x := int(math.Floor(x0)); x < int(math.Ceil(x1)); x++ {
		if x < b.Min.X || x >= b.Max.X {
			continue
		}
		t := (float64(x) + 0.5 - x0) / (x1 - x0)
		t = math.Min(math.Max(t, 0), 1)
		t = t * t * (3 - 2*t)
		centre := y0 + (y1-y0)*t
		top := int(math.Round(centre - half))
		bottom := int(math.Round(centre + half))
		for y := max(top, b.Min.Y); y < min(bottom, b.Max.Y); y++ {
			blend(img, x, y, c, linkAlpha)
		}
	}
}

func blend(img *image.NRGBA, x, y int, c color.NRGBA, alpha float64) {
	i := img.PixOffset(x, y)
	p := img.Pix[i : i+4 : i+4]
	p[0] = uint8(float64(p[0])*(1-alpha) + float64(c.R)*alpha)
	p[1] = uint8(float64(p[1])*(1-alpha) + float64(c.G)*alpha)
	p[2] = uint8(float64(p[2])*(1-alpha) + float64(c.B)*alpha)
	p[3] = 255
}

// drawLabel writes the node title beside the node, on the left for the last column.
func drawLabel(img *image.NRGBA, n LayoutNode, width int) {
	if n.Title == "" {
		return
	}
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Src: image.NewUniform(labelColor), Face: face}
	textW := d.MeasureString(n.Title).Round()

	x := int(n.X1) + 6
	if x+textW > width {
		x = int(n.X0) - 6 - textW
	}
	y := int((n.Y0+n.Y1)/2) + face.Ascent/2
	d.Dot = fixed.P(max(x, 0), y)
	d.DrawString(n.Title)
}
