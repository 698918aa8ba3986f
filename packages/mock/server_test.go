package mock

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	imhttp "github.com/abdul-hamid-achik/imagic/packages/http"
	"github.com/abdul-hamid-achik/imagic/packages/imagecodec"
	"github.com/abdul-hamid-achik/imagic/packages/stereogram"
)

func pngBytes(t *testing.T, w, h int, fill func(x, y int) color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill(x, y))
		}
	}
	data, err := imagecodec.EncodePNG(img)
	require.NoError(t, err)
	return data
}

func uploadRequest(t *testing.T, serverURL string, fields map[string]string) *imhttp.UploadRequest {
	t.Helper()
	req := imhttp.NewUploadRequest("POST", serverURL+UploadPath)
	for _, name := range []string{FieldSeparationMin, FieldSeparationMax, FieldCrossEyed, FieldInvertDepth} {
		if v, ok := fields[name]; ok {
			require.NoError(t, req.SetParam(name, v))
		}
	}
	bg := pngBytes(t, 32, 16, func(x, y int) color.Color { return color.RGBA{uint8(x * 8), uint8(y * 16), 0, 255} })
	dm := pngBytes(t, 48, 16, func(x, y int) color.Color { return color.Gray{uint8(x * 5)} })
	require.NoError(t, req.PutPart(FieldBackground, imhttp.NewPart("bg.png", bg, "image/png")))
	require.NoError(t, req.PutPart(FieldDepth, imhttp.NewPart("depth.png", dm, "image/png")))
	return req
}

func TestServer_UploadReturnsPNG(t *testing.T) {
	server := httptest.NewServer(NewServer().Handler())
	defer server.Close()

	req := uploadRequest(t, server.URL, map[string]string{
		FieldSeparationMin: "4",
		FieldSeparationMax: "8",
	})
	resp, err := imhttp.NewClient().Execute(context.Background(), req, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(resp.Body))
	assert.Equal(t, "image/png", resp.ContentType())

	img, err := png.Decode(bytes.NewReader(resp.Body))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 48, 16), img.Bounds())
}

func TestServer_MissingPart(t *testing.T) {
	server := httptest.NewServer(NewServer().Handler())
	defer server.Close()

	req := imhttp.NewUploadRequest("POST", server.URL+UploadPath)
	require.NoError(t, req.PutPart(FieldBackground, imhttp.NewPart("bg.png",
		pngBytes(t, 4, 4, func(x, y int) color.Color { return color.White }), "image/png")))

	resp, err := imhttp.NewClient().Execute(context.Background(), req, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	te := imhttp.Classify(resp, nil)
	require.NotNil(t, te)
	assert.Equal(t, "depth not found", te.Message())
}

func TestServer_UndecodableImage(t *testing.T) {
	server := httptest.NewServer(NewServer().Handler())
	defer server.Close()

	req := imhttp.NewUploadRequest("POST", server.URL+UploadPath)
	require.NoError(t, req.PutPart(FieldBackground, imhttp.NewPart("bg.png", []byte("nope"), "image/png")))
	require.NoError(t, req.PutPart(FieldDepth, imhttp.NewPart("depth.png", []byte("nope"), "image/png")))

	resp, err := imhttp.NewClient().Execute(context.Background(), req, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "background could not be decoded")
}

func TestServer_InvalidSeparation(t *testing.T) {
	server := httptest.NewServer(NewServer().Handler())
	defer server.Close()

	req := uploadRequest(t, server.URL, map[string]string{
		FieldSeparationMin: "20",
		FieldSeparationMax: "10",
	})
	resp, err := imhttp.NewClient().Execute(context.Background(), req, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestServer_NotMultipart(t *testing.T) {
	server := httptest.NewServer(NewServer().Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+UploadPath, "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestServer_FailuresThenSuccess(t *testing.T) {
	server := httptest.NewServer(NewServer(WithFailures(1)).Handler())
	defer server.Close()

	client := imhttp.NewClient()
	first, err := client.Execute(context.Background(), uploadRequest(t, server.URL, nil), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, first.StatusCode)

	second, err := client.Execute(context.Background(), uploadRequest(t, server.URL, nil), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, second.StatusCode)
}

func TestServer_PaletteOutput(t *testing.T) {
	server := httptest.NewServer(NewServer(WithPalette(2, 7)).Handler())
	defer server.Close()

	resp, err := imhttp.NewClient().Execute(context.Background(), uploadRequest(t, server.URL, nil), 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	img, err := png.Decode(bytes.NewReader(resp.Body))
	require.NoError(t, err)

	seen := map[color.RGBA]bool{}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			seen[color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)] = true
		}
	}
	assert.LessOrEqual(t, len(seen), 2)
}

func TestServer_HealthAndIndex(t *testing.T) {
	server := httptest.NewServer(NewServer().Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, err = http.Get(server.URL + "/")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `action="/uploads"`)
	assert.Contains(t, string(body), `name="separationMin" value="60"`)
}

func TestServer_Metrics(t *testing.T) {
	server := httptest.NewServer(NewServer(WithFailures(1)).Handler())
	defer server.Close()

	_, err := imhttp.NewClient().Execute(context.Background(), uploadRequest(t, server.URL, nil), 5*time.Second)
	require.NoError(t, err)

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `imagic_uploads_total{status="503"} 1`)
}

func TestServer_AcceptsStdlibMultipart(t *testing.T) {
	server := httptest.NewServer(NewServer().Handler())
	defer server.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField(FieldSeparationMin, "2"))
	require.NoError(t, mw.WriteField(FieldSeparationMax, "4"))
	for _, name := range []string{FieldBackground, FieldDepth} {
		fw, err := mw.CreateFormFile(name, name+".png")
		require.NoError(t, err)
		_, err = fw.Write(pngBytes(t, 8, 8, func(x, y int) color.Color { return color.Gray{uint8(x * 30)} }))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(server.URL+UploadPath, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConfigFromForm(t *testing.T) {
	defaults := stereogram.DefaultConfig()

	tests := []struct {
		name     string
		values   url.Values
		expected stereogram.Config
	}{
		{"empty keeps defaults", url.Values{}, defaults},
		{
			"parses values",
			url.Values{"separationMin": {"0x10"}, "separationMax": {"40"}, "crossEyed": {"false"}, "invertDepth": {"1"}},
			stereogram.Config{SeparationMin: 16, SeparationMax: 40, CrossEyed: false, InvertDepth: true},
		},
		{
			"invalid values fall back",
			url.Values{"separationMin": {"abc"}, "crossEyed": {"on"}},
			defaults,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, configFromForm(tt.values, defaults))
		})
	}
}
