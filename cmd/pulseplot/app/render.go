package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"github.com/canstralian/rf-test-harness/internal/storage"
)

const (
	dpi      = 96.0
	fontSize = 12.0

	laneHeight = 24
	laneGap    = 8
	markHeight = 16

	// Default border sizes in pixels
	defaultTopBorder    = 30
	defaultLeftBorder   = 220
	defaultBottomBorder = 30
	defaultRightBorder  = 20

	maxPlotWidth = 4096
)

var (
	markColor    = color.RGBA{R: 0x20, G: 0x3a, B: 0x66, A: 0xff}
	spaceColor   = color.RGBA{R: 0xd8, G: 0xdf, B: 0xea, A: 0xff}
	invalidColor = color.RGBA{R: 0xb3, G: 0x3a, B: 0x3a, A: 0xff}
	labelColor   = image.NewUniform(color.RGBA{R: 0x22, G: 0x22, B: 0x22, A: 0xff})
)

// RenderConfig holds the options of a pulse-timing rendering.
type RenderConfig struct {
	FontPath   string  // TrueType font for labels; empty disables labels
	UsPerPixel float64 // horizontal scale
	Annotate   bool
}

// PulseRenderer draws captured pulse trains as one timing lane per
// signal: marks and spaces alternate along the horizontal time axis.
type PulseRenderer struct {
	config RenderConfig
	font   *truetype.Font
}

// NewPulseRenderer creates a renderer; when annotations are requested
// the font file is loaded eagerly so a bad path fails fast.
func NewPulseRenderer(config RenderConfig) (*PulseRenderer, error) {
	r := PulseRenderer{config: config}

	if config.Annotate && config.FontPath != "" {
		data, err := os.ReadFile(config.FontPath)
		if err != nil {
			return nil, fmt.Errorf("reading font: %w", err)
		}
		parsed, err := freetype.ParseFont(data)
		if err != nil {
			return nil, fmt.Errorf("parsing font: %w", err)
		}
		r.font = parsed
	}

	return &r, nil
}

// Render draws the given signals, one lane each, and returns the image.
func (r *PulseRenderer) Render(signals []*storage.StoredSignal) (*image.RGBA, error) {
	if len(signals) == 0 {
		return nil, fmt.Errorf("no signals to render")
	}

	plotWidth := 0
	for _, sig := range signals {
		w := r.laneWidth(sig)
		if w > plotWidth {
			plotWidth = w
		}
	}
	if plotWidth > maxPlotWidth {
		plotWidth = maxPlotWidth
	}
	if plotWidth == 0 {
		return nil, fmt.Errorf("no pulse data to render")
	}

	fullWidth := defaultLeftBorder + plotWidth + defaultRightBorder
	fullHeight := defaultTopBorder + len(signals)*(laneHeight+laneGap) + defaultBottomBorder

	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	for i, sig := range signals {
		laneTop := defaultTopBorder + i*(laneHeight+laneGap)
		r.drawLane(img, sig, laneTop)
	}

	if r.font != nil {
		if err := r.annotate(img, signals); err != nil {
			return nil, fmt.Errorf("annotating: %w", err)
		}
	}

	return img, nil
}

// laneWidth returns the pixel width of one signal's pulse train.
func (r *PulseRenderer) laneWidth(sig *storage.StoredSignal) int {
	var totalUs uint64
	for _, p := range sig.Pulses {
		totalUs += uint64(p)
	}
	return int(float64(totalUs) / r.config.UsPerPixel)
}

// drawLane paints one signal: even pulse indices are marks, odd are
// spaces, matching on/off keying.
func (r *PulseRenderer) drawLane(img *image.RGBA, sig *storage.StoredSignal, laneTop int) {
	mark := markColor
	if !sig.Valid {
		mark = invalidColor
	}

	x := float64(defaultLeftBorder)
	markTop := laneTop + (laneHeight-markHeight)/2

	for i, p := range sig.Pulses {
		w := float64(p) / r.config.UsPerPixel
		x0 := int(x)
		x1 := int(x + w)
		if x1 > defaultLeftBorder+maxPlotWidth {
			break
		}

		var c color.RGBA
		var top, height int
		if i%2 == 0 {
			c, top, height = mark, markTop, markHeight
		} else {
			c, top, height = spaceColor, laneTop+laneHeight/2-1, 2
		}

		rect := image.Rect(x0, top, x1, top+height)
		draw.Draw(img, rect, &image.Uniform{C: c}, image.Point{}, draw.Src)

		x += w
	}
}

// annotate writes the lane labels into the left border.
func (r *PulseRenderer) annotate(img *image.RGBA, signals []*storage.StoredSignal) error {
	c := freetype.NewContext()
	c.SetDPI(dpi)
	c.SetFont(r.font)
	c.SetFontSize(fontSize)
	c.SetClip(img.Bounds())
	c.SetDst(img)
	c.SetSrc(labelColor)
	c.SetHinting(font.HintingFull)

	for i, sig := range signals {
		var totalUs uint64
		for _, p := range sig.Pulses {
			totalUs += uint64(p)
		}

		label := fmt.Sprintf("#%d %s %s µs", i, sig.DeviceType, humanize.Comma(int64(totalUs)))
		laneTop := defaultTopBorder + i*(laneHeight+laneGap)
		pt := freetype.Pt(8, laneTop+laneHeight/2+int(fontSize/2))
		if _, err := c.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing label: %w", err)
		}
	}

	return nil
}
