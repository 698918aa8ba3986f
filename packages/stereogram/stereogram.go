// Package stereogram renders single-image autostereograms from a depth map
// and a background texture.
package stereogram

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// DepthMax is the depth of a fully white, opaque depth-map pixel.
const DepthMax = 3000

// Default separations used by the upload endpoint.
const (
	DefaultSeparationMin = 60
	DefaultSeparationMax = 100
)

var ErrEmptyImage = errors.New("image has no pixels")

// Config controls the eye separation range and viewing mode.
type Config struct {
	SeparationMin int  `json:"separationMin"`
	SeparationMax int  `json:"separationMax"`
	CrossEyed     bool `json:"crossEyed"`
	InvertDepth   bool `json:"invertDepth"`
}

// DefaultConfig returns the endpoint defaults.
func DefaultConfig() Config {
	return Config{
		SeparationMin: DefaultSeparationMin,
		SeparationMax: DefaultSeparationMax,
		CrossEyed:     true,
	}
}

// ConfigForWidth scales the separation range to a depth map width.
func ConfigForWidth(width int) Config {
	return Config{
		SeparationMin: max(width/14, 1),
		SeparationMax: max(width/10, 1),
	}
}

// ConfigError reports an unusable separation range.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid stereogram config: " + e.Reason
}

func (c Config) Validate() error {
	if c.SeparationMin < 1 {
		return &ConfigError{Reason: fmt.Sprintf("separationMin must be at least 1, got %d", c.SeparationMin)}
	}
	if c.SeparationMax < c.SeparationMin {
		return &ConfigError{Reason: fmt.Sprintf("separationMax (%d) must not be below separationMin (%d)", c.SeparationMax, c.SeparationMin)}
	}
	return nil
}

// Generate renders an autostereogram the size of depth, texturing it with
// background. Rows are independent; each pixel repeats the background
// index of the pixel one separation to its left.
func Generate(depth, background image.Image, cfg Config) (*image.RGBA, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, bb := depth.Bounds(), background.Bounds()
	if db.Empty() || bb.Empty() {
		return nil, ErrEmptyImage
	}

	out := image.NewRGBA(image.Rect(0, 0, db.Dx(), db.Dy()))
	for y := 0; y < db.Dy(); y++ {
		bgIndexes := rowIndexes(depth, cfg, y, bb.Dx())
		bgY := bb.Min.Y + y*bb.Dy()/db.Dy()
		for x, bx := range bgIndexes {
			out.Set(x, y, background.At(bb.Min.X+bx, bgY))
		}
	}
	return out, nil
}

// rowIndexes returns, for row y of the depth map, the background column of
// every output pixel.
func rowIndexes(depth image.Image, cfg Config, y, bgWidth int) []int {
	db := depth.Bounds()
	width := db.Dx()

	sources := make([]int, width)
	for x := range sources {
		d := depthAt(depth.At(db.Min.X+x, db.Min.Y+y), cfg.InvertDepth)
		sources[x] = x - sourceOffset(d, cfg)
	}

	initial := 0
	for initial < width && sources[initial] < 0 {
		initial++
	}

	indexes := make([]int, width)
	step := 1
	if initial > 0 {
		step = max(bgWidth/initial, 1)
	}
	for x := 0; x < initial; x++ {
		indexes[x] = x * step
	}

	used := make([]bool, width)
	for x := initial; x < width; x++ {
		si := sources[x]
		switch {
		case si < 0:
			indexes[x] = indexes[x-1] + 1
		case used[si] && !cfg.CrossEyed:
			// A source already seen by one eye is not shared, avoiding
			// ambiguous depth for wall-eyed viewing.
			indexes[x] = indexes[x-1] + 1
		default:
			indexes[x] = indexes[si]
			used[si] = true
		}
	}

	for x := range indexes {
		indexes[x] %= bgWidth
	}
	return indexes
}

// depthAt maps a pixel's alpha-weighted luminance to [0, DepthMax].
func depthAt(c color.Color, invert bool) int {
	r, g, b, a := c.RGBA()
	lum := (r + g + b) / 3
	d := int(lum * a / 0xFFFF * DepthMax / 0xFFFF)
	if invert {
		return DepthMax - d
	}
	return d
}

// sourceOffset is the eye separation for depth d.
func sourceOffset(d int, cfg Config) int {
	span := d * (cfg.SeparationMax - cfg.SeparationMin) / DepthMax
	if cfg.CrossEyed {
		return cfg.SeparationMin + span
	}
	return cfg.SeparationMax - span
}
