package stereogram

import (
	"image"
	"image/color"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatDepth(w, h int, level uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	return img
}

func stripes(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), uint8(x ^ y), 255})
		}
	}
	return img
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"equal bounds", Config{SeparationMin: 5, SeparationMax: 5}, false},
		{"zero min", Config{SeparationMin: 0, SeparationMax: 5}, true},
		{"inverted range", Config{SeparationMin: 10, SeparationMax: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				var cfgErr *ConfigError
				assert.ErrorAs(t, err, &cfgErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigForWidth(t *testing.T) {
	assert.Equal(t, Config{SeparationMin: 50, SeparationMax: 70}, ConfigForWidth(700))
	assert.NoError(t, ConfigForWidth(3).Validate())
}

func TestGenerate_FlatDepthRepeatsWithSeparation(t *testing.T) {
	cfg := Config{SeparationMin: 10, SeparationMax: 20, CrossEyed: true}
	out, err := Generate(flatDepth(64, 4, 0), stripes(64, 4), cfg)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 4), out.Bounds())

	for y := 0; y < 4; y++ {
		for x := 10; x < 64; x++ {
			assert.Equal(t, out.At(x-10, y), out.At(x, y), "pixel (%d,%d)", x, y)
		}
	}
}

func TestGenerate_WhiteDepthUsesMaxSeparationCrossEyed(t *testing.T) {
	cfg := Config{SeparationMin: 10, SeparationMax: 20, CrossEyed: true}
	out, err := Generate(flatDepth(64, 1, 255), stripes(64, 1), cfg)
	require.NoError(t, err)

	for x := 20; x < 64; x++ {
		assert.Equal(t, out.At(x-20, 0), out.At(x, 0))
	}
}

func TestGenerate_InvertDepth(t *testing.T) {
	cfg := Config{SeparationMin: 10, SeparationMax: 20, CrossEyed: true}
	plain, err := Generate(flatDepth(64, 1, 255), stripes(64, 1), cfg)
	require.NoError(t, err)

	cfg.InvertDepth = true
	inverted, err := Generate(flatDepth(64, 1, 0), stripes(64, 1), cfg)
	require.NoError(t, err)

	assert.Equal(t, plain.Pix, inverted.Pix)
}

func TestGenerate_NarrowBackgroundDoesNotOverflow(t *testing.T) {
	cfg := Config{SeparationMin: 30, SeparationMax: 40}
	out, err := Generate(flatDepth(200, 3, 128), stripes(7, 2), cfg)
	require.NoError(t, err)
	assert.Equal(t, 200, out.Bounds().Dx())
}

func TestGenerate_SeparationWiderThanImage(t *testing.T) {
	cfg := Config{SeparationMin: 100, SeparationMax: 120}
	out, err := Generate(flatDepth(16, 2, 0), stripes(16, 2), cfg)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 2), out.Bounds())
}

func TestGenerate_OffsetBounds(t *testing.T) {
	depth := image.NewGray(image.Rect(5, 5, 37, 9))
	bg := stripes(32, 4).(*image.RGBA).SubImage(image.Rect(0, 0, 32, 4))

	out, err := Generate(depth, bg, Config{SeparationMin: 4, SeparationMax: 8})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 4), out.Bounds())
}

func TestGenerate_Errors(t *testing.T) {
	_, err := Generate(flatDepth(0, 0, 0), stripes(4, 4), DefaultConfig())
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = Generate(flatDepth(4, 4, 0), stripes(4, 4), Config{})
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestDepthAt(t *testing.T) {
	assert.Equal(t, 0, depthAt(color.Black, false))
	assert.Equal(t, DepthMax, depthAt(color.White, false))
	assert.Equal(t, 0, depthAt(color.White, true))
	assert.Equal(t, 0, depthAt(color.Transparent, false))
}

func TestSourceOffset(t *testing.T) {
	cfg := Config{SeparationMin: 60, SeparationMax: 100, CrossEyed: true}
	assert.Equal(t, 60, sourceOffset(0, cfg))
	assert.Equal(t, 100, sourceOffset(DepthMax, cfg))

	cfg.CrossEyed = false
	assert.Equal(t, 100, sourceOffset(0, cfg))
	assert.Equal(t, 60, sourceOffset(DepthMax, cfg))
}

func TestApplyPalette(t *testing.T) {
	palette := color.Palette{color.Black, color.White}
	out, err := ApplyPalette(stripes(16, 4), palette)
	require.NoError(t, err)

	for y := 0; y < 4; y++ {
		for x := 0; x < 16; x++ {
			c := color.RGBAModel.Convert(out.At(x, y)).(color.RGBA)
			assert.Contains(t, []color.RGBA{{0, 0, 0, 255}, {255, 255, 255, 255}}, c)
		}
	}

	_, err = ApplyPalette(stripes(2, 2), nil)
	assert.ErrorIs(t, err, ErrEmptyPalette)
}

func TestRandomPalette(t *testing.T) {
	p := RandomPalette(5, rand.New(rand.NewPCG(1, 2)))
	assert.Len(t, p, 5)
	for _, c := range p {
		_, _, _, a := c.RGBA()
		assert.Equal(t, uint32(0xFFFF), a)
	}
}
