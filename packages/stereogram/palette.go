package stereogram

import (
	"errors"
	"image"
	"image/color"
	"math/rand/v2"
)

var ErrEmptyPalette = errors.New("palette has no colors")

// ApplyPalette quantizes img to palette, carrying each pixel's rounding
// error into the next pixel of the same row.
func ApplyPalette(img image.Image, palette color.Palette) (*image.RGBA, error) {
	if len(palette) == 0 {
		return nil, ErrEmptyPalette
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	for y := 0; y < b.Dy(); y++ {
		var er, eg, eb int32
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			ar, ag, ab := int32(r)+er, int32(g)+eg, int32(bl)+eb

			want := color.RGBA64{
				R: uint16(clamp(ar, int32(a))),
				G: uint16(clamp(ag, int32(a))),
				B: uint16(clamp(ab, int32(a))),
				A: uint16(a),
			}
			got := palette.Convert(want)
			out.Set(x, y, got)

			pr, pg, pb, _ := got.RGBA()
			er, eg, eb = ar-int32(pr), ag-int32(pg), ab-int32(pb)
		}
	}
	return out, nil
}

func clamp(v, hi int32) int32 {
	return min(max(v, 0), hi)
}

// RandomPalette returns n opaque colors drawn from rng.
func RandomPalette(n int, rng *rand.Rand) color.Palette {
	p := make(color.Palette, n)
	for i := range p {
		p[i] = color.RGBA{
			R: uint8(rng.IntN(256)),
			G: uint8(rng.IntN(256)),
			B: uint8(rng.IntN(256)),
			A: 255,
		}
	}
	return p
}
