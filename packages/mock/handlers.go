package mock

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/abdul-hamid-achik/imagic/packages/imagecodec"
	"github.com/abdul-hamid-achik/imagic/packages/stereogram"
)

// Form field names accepted by the upload route.
const (
	FieldBackground    = "background"
	FieldDepth         = "depth"
	FieldSeparationMin = "separationMin"
	FieldSeparationMax = "separationMax"
	FieldCrossEyed     = "crossEyed"
	FieldInvertDepth   = "invertDepth"
)

var indexTemplate = template.Must(template.New("index").Parse(`<html><head><title>imagic</title></head><body>
<form action="{{.Action}}" method="POST" enctype="multipart/form-data">
Background File: <input type="file" name="background"><br>
Depth File: <input type="file" name="depth"><br>
Cross-eyed: <input type="checkbox" name="crossEyed" value="true"{{if .CrossEyed}} checked{{end}}><br>
Invert depth: <input type="checkbox" name="invertDepth" value="true"><br>
Separation Min: <input type="text" name="separationMin" value="{{.SeparationMin}}"><br>
Separation Max: <input type="text" name="separationMax" value="{{.SeparationMax}}"><br>
<input type="submit" value="Submit">
</form>
</body></html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Action string
		stereogram.Config
	}{UploadPath, s.defaults}
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.Error("rendering index", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() { s.metrics.observe(status, time.Since(start)) }()

	fail := func(code int, msg string) {
		status = code
		writeError(w, code, msg)
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-r.Context().Done():
			status = http.StatusServiceUnavailable
			return
		}
	}

	if s.failures.Add(-1) >= 0 {
		fail(http.StatusServiceUnavailable, "server busy, try again")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(http.StatusRequestEntityTooLarge, "upload exceeds 10MB")
			return
		}
		fail(http.StatusBadRequest, "could not read multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	bg, err := formImage(r, FieldBackground)
	if err != nil {
		fail(http.StatusBadRequest, err.Error())
		return
	}
	dm, err := formImage(r, FieldDepth)
	if err != nil {
		fail(http.StatusBadRequest, err.Error())
		return
	}

	cfg := configFromForm(r.MultipartForm.Value, s.defaults)
	out, err := stereogram.Generate(dm, bg, cfg)
	if err != nil {
		fail(http.StatusUnprocessableEntity, err.Error())
		return
	}

	var result image.Image = out
	if s.palette > 0 {
		result, err = stereogram.ApplyPalette(out, stereogram.RandomPalette(s.palette, s.rng))
		if err != nil {
			fail(http.StatusInternalServerError, err.Error())
			return
		}
	}

	w.Header().Set("Content-Type", imagecodec.MimePNG)
	if err := png.Encode(w, result); err != nil {
		status = http.StatusInternalServerError
		s.logger.Error("encoding result", "error", err)
	}
}

// formImage decodes the first file uploaded under name.
func formImage(r *http.Request, name string) (image.Image, error) {
	files := r.MultipartForm.File[name]
	if len(files) == 0 {
		return nil, fmt.Errorf("%s not found", name)
	}
	f, err := files[0].Open()
	if err != nil {
		return nil, fmt.Errorf("%s could not be read", name)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%s could not be read", name)
	}
	img, _, err := imagecodec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s could not be decoded", name)
	}
	return img, nil
}

// configFromForm overlays the form's text fields on defaults. Values that
// do not parse keep the default.
func configFromForm(values url.Values, defaults stereogram.Config) stereogram.Config {
	cfg := defaults
	if v := values.Get(FieldSeparationMin); v != "" {
		if i, err := strconv.ParseInt(v, 0, 0); err == nil {
			cfg.SeparationMin = int(i)
		}
	}
	if v := values.Get(FieldSeparationMax); v != "" {
		if i, err := strconv.ParseInt(v, 0, 0); err == nil {
			cfg.SeparationMax = int(i)
		}
	}
	if v := values.Get(FieldCrossEyed); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.CrossEyed = b
		}
	}
	if v := values.Get(FieldInvertDepth); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.InvertDepth = b
		}
	}
	return cfg
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
