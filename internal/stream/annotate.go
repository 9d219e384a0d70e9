package stream

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"vigil/internal/tracker"
)

// Annotator draws track boxes and labels onto JPEG frames.
type Annotator struct {
	quality int
}

// NewAnnotator creates an annotator encoding at the given JPEG quality.
func NewAnnotator(quality int) *Annotator {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Annotator{quality: quality}
}

var palette = []color.RGBA{
	{0, 255, 0, 255},
	{255, 64, 64, 255},
	{64, 128, 255, 255},
	{255, 200, 0, 255},
	{255, 0, 255, 255},
	{0, 255, 255, 255},
}

// colorFor assigns each class a stable palette color.
func colorFor(label string) color.RGBA {
	var h uint32
	for _, c := range label {
		h = h*31 + uint32(c)
	}
	return palette[h%uint32(len(palette))]
}

// Annotate decodes the frame, draws every track's box and a
// "label id conf%" tag, and re-encodes.
func (a *Annotator) Annotate(frame []byte, tracks []tracker.Track) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	for _, trk := range tracks {
		c := colorFor(trk.Label)
		x := int(trk.BBox.X1)
		y := int(trk.BBox.Y1)
		w := int(trk.BBox.Width())
		h := int(trk.BBox.Height())

		drawBox(rgba, x, y, w, h, c, 2)
		label := fmt.Sprintf("%s %d %.0f%%", trk.Label, trk.ID, trk.Confidence*100)
		drawLabel(rgba, x, y-5, label, c)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: a.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// drawBox draws a rectangle outline on the image.
func drawBox(img *image.RGBA, x, y, w, h int, c color.RGBA, thickness int) {
	bounds := img.Bounds()

	for t := 0; t < thickness; t++ {
		// Top edge
		for i := x; i < x+w && i < bounds.Max.X; i++ {
			if y+t >= 0 && y+t < bounds.Max.Y && i >= 0 {
				img.Set(i, y+t, c)
			}
		}
		// Bottom edge
		for i := x; i < x+w && i < bounds.Max.X; i++ {
			if y+h-t >= 0 && y+h-t < bounds.Max.Y && i >= 0 {
				img.Set(i, y+h-t, c)
			}
		}
		// Left edge
		for j := y; j < y+h && j < bounds.Max.Y; j++ {
			if x+t >= 0 && x+t < bounds.Max.X && j >= 0 {
				img.Set(x+t, j, c)
			}
		}
		// Right edge
		for j := y; j < y+h && j < bounds.Max.Y; j++ {
			if x+w-t >= 0 && x+w-t < bounds.Max.X && j >= 0 {
				img.Set(x+w-t, j, c)
			}
		}
	}
}

// drawLabel draws text with a dark background on the image.
func drawLabel(img *image.RGBA, x, y int, label string, c color.RGBA) {
	if y < 10 {
		y = 10
	}
	if x < 0 {
		x = 0
	}

	bgColor := color.RGBA{0, 0, 0, 180}
	textWidth := len(label) * 7
	for dy := -2; dy < 12; dy++ {
		for dx := -2; dx < textWidth+2; dx++ {
			px, py := x+dx, y+dy
			if px >= 0 && px < img.Bounds().Max.X && py >= 0 && py < img.Bounds().Max.Y {
				img.Set(px, py, bgColor)
			}
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + 10)},
	}
	d.DrawString(label)
}
