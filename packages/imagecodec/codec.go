// Package imagecodec turns image files into upload parts.
package imagecodec

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/abdul-hamid-achik/imagic/packages/http"
)

// MimePNG is the media type of encoded parts.
const MimePNG = "image/png"

// EncodePNG encodes img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode decodes a JPEG, GIF or PNG image.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decoding image: %w", err)
	}
	return img, format, nil
}

// ToPNG re-encodes any supported image as PNG. PNG input is returned as is.
func ToPNG(data []byte) ([]byte, error) {
	if DetectMimeType(data, "") == MimePNG {
		return data, nil
	}
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return EncodePNG(img)
}

// DetectMimeType sniffs the content type of data, falling back to the
// extension of filename when the content is not recognised.
func DetectMimeType(data []byte, filename string) string {
	mt := mimetype.Detect(data)
	if mt != nil && !mt.Is("application/octet-stream") && !mt.Is("text/plain") {
		return mt.String()
	}
	if ext := filepath.Ext(filename); ext != "" {
		if byExt := mime.TypeByExtension(strings.ToLower(ext)); byExt != "" {
			return byExt
		}
	}
	return mt.String()
}

// PartFromFile reads path into a part. With convertPNG the data is
// re-encoded as PNG and the filename extension replaced.
func PartFromFile(path string, convertPNG bool) (*http.Part, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	filename := filepath.Base(path)
	if !convertPNG {
		return http.NewPart(filename, data, DetectMimeType(data, filename)), nil
	}

	pngData, err := ToPNG(data)
	if err != nil {
		return nil, fmt.Errorf("converting %s: %w", path, err)
	}
	filename = strings.TrimSuffix(filename, filepath.Ext(filename)) + ".png"
	return http.NewPart(filename, pngData, MimePNG), nil
}

// LoadParts loads each file concurrently. The result keeps the order of
// names.
func LoadParts(ctx context.Context, names []string, paths map[string]string, convertPNG bool) (*http.OrderedMap[*http.Part], error) {
	for _, name := range names {
		if _, ok := paths[name]; !ok {
			return nil, fmt.Errorf("no file for part %q", name)
		}
	}

	loaded := make([]*http.Part, len(names))
	g, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		path := paths[name]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			part, err := PartFromFile(path, convertPNG)
			if err != nil {
				return err
			}
			loaded[i] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	parts := http.NewOrderedMap[*http.Part]()
	for i, name := range names {
		parts.Set(name, loaded[i])
	}
	return parts, nil
}
