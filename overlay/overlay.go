// Package overlay draws the fixed branding labels onto cartoonized images.
package overlay

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/algoverse/cartoonbooth/photo"
)

// ErrRender is returned when labels cannot be rendered, usually because a
// font file is missing. It indicates a packaging defect.
var ErrRender = errors.New("render error")

// Anchor selects the vertical position of a label.
type Anchor int

const (
	AnchorTop Anchor = iota
	AnchorBottom
)

var (
	colorNavy  = color.NRGBA{R: 0, G: 0, B: 128, A: 255}
	colorWhite = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	colorBlack = color.NRGBA{R: 0, G: 0, B: 0, A: 255}
)

// Label describes one boxed text label.
type Label struct {
	Text        string
	FontFile    string
	Size        float64
	Anchor      Anchor
	Margin      int
	Padding     int
	BorderWidth int
	TextColor   color.Color
	FillColor   color.Color
	BorderColor color.Color
}

// DefaultLabels is the booth branding. It is not configurable at runtime.
var DefaultLabels = []Label{
	{
		Text:        "AVS ENGINEERING COLLEGE",
		FontFile:    "times.ttf",
		Size:        30,
		Anchor:      AnchorTop,
		Margin:      10,
		Padding:     15,
		BorderWidth: 2,
		TextColor:   colorNavy,
		FillColor:   colorWhite,
		BorderColor: colorBlack,
	},
	{
		Text:        "ALGOVERSE'25",
		FontFile:    "impact.ttf",
		Size:        20,
		Anchor:      AnchorBottom,
		Margin:      10,
		Padding:     15,
		BorderWidth: 1,
		TextColor:   colorNavy,
		FillColor:   colorWhite,
		BorderColor: colorBlack,
	},
}

// Placement records where a label ended up. Text is the ink rectangle of the
// rendered string and Box the padded background rectangle around it.
type Placement struct {
	Label string
	Text  image.Rectangle
	Box   image.Rectangle
}

// Annotated is an image with its labels drawn on.
type Annotated struct {
	Image      photo.Image
	Placements []Placement
}

type loadedLabel struct {
	Label
	face font.Face
}

// Overlay renders a fixed set of labels. Font faces are not safe for
// concurrent use, so Annotate serializes callers.
type Overlay struct {
	mu     sync.Mutex
	labels []loadedLabel
}

// Load parses the font of every label from dir. A missing or invalid font
// file yields ErrRender.
func Load(dir string, labels []Label) (*Overlay, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: no labels configured", ErrRender)
	}

	parsed := make(map[string]*opentype.Font)
	o := &Overlay{}
	for _, l := range labels {
		f, ok := parsed[l.FontFile]
		if !ok {
			path := filepath.Join(dir, l.FontFile)
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("%w: read font %s: %v", ErrRender, path, err)
			}
			f, err = opentype.Parse(data)
			if err != nil {
				return nil, fmt.Errorf("%w: parse font %s: %v", ErrRender, path, err)
			}
			parsed[l.FontFile] = f
		}

		face, err := opentype.NewFace(f, &opentype.FaceOptions{
			Size:    l.Size,
			DPI:     72,
			Hinting: font.HintingNone,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: face %s at %.0fpx: %v", ErrRender, l.FontFile, l.Size, err)
		}
		o.labels = append(o.labels, loadedLabel{Label: l, face: face})
	}
	return o, nil
}

// Annotate returns a copy of img with every label drawn on it. The result
// has the same dimensions as img. Labels are centered horizontally and kept
// inside the image vertically; a label wider than the image starts at a
// negative x.
func (o *Overlay) Annotate(img photo.Image) (*Annotated, error) {
	if o == nil || len(o.labels) == 0 {
		return nil, fmt.Errorf("%w: fonts not loaded", ErrRender)
	}
	if img.Empty() {
		return nil, photo.ErrEmpty
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	dst := img.NRGBA()
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()

	placements := make([]Placement, 0, len(o.labels))
	for _, l := range o.labels {
		placements = append(placements, drawLabel(dst, w, h, l))
	}

	return &Annotated{
		Image:      photo.FromImage(dst),
		Placements: placements,
	}, nil
}

func drawLabel(dst draw.Image, imgW, imgH int, l loadedLabel) Placement {
	bounds, _ := font.BoundString(l.face, l.Text)
	minX, minY := bounds.Min.X.Floor(), bounds.Min.Y.Floor()
	textW := bounds.Max.X.Ceil() - minX
	textH := bounds.Max.Y.Ceil() - minY

	x := (imgW - textW) / 2
	var y int
	switch l.Anchor {
	case AnchorBottom:
		y = imgH - textH - l.Margin
	default:
		y = l.Margin
	}
	y = clamp(y, 0, imgH-textH)

	text := image.Rect(x, y, x+textW, y+textH)
	box := text.Inset(-l.Padding)

	// Box first, text on top.
	draw.Draw(dst, box, image.NewUniform(l.FillColor), image.Point{}, draw.Src)
	drawBorder(dst, box, l.BorderWidth, l.BorderColor)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(l.TextColor),
		Face: l.face,
		Dot:  fixed.P(x-minX, y-minY),
	}
	d.DrawString(l.Text)

	return Placement{Label: l.Text, Text: text, Box: box}
}

func drawBorder(dst draw.Image, r image.Rectangle, width int, c color.Color) {
	if width <= 0 {
		return
	}
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width),
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y),
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e, src, image.Point{}, draw.Src)
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
