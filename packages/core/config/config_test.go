package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/imagic/packages/http"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "http", cfg.Endpoint.Scheme)
	assert.Equal(t, "localhost:3000", cfg.Endpoint.Host)
	assert.Equal(t, "/uploads", cfg.Endpoint.Path)
	assert.Equal(t, 1, cfg.GetRetries())
	assert.Equal(t, 1.0, cfg.GetBackoffMultiplier())
	assert.True(t, cfg.GetValidateSSL())
	assert.True(t, cfg.GetConvertPNG())
	assert.True(t, cfg.GetHistory())
	assert.False(t, cfg.GetVerbose())
	assert.NoError(t, cfg.Check())

	policy := cfg.RetryPolicy()
	assert.Equal(t, 10*time.Second, policy.Timeout())
	assert.Equal(t, 2, policy.Attempts())
	assert.Equal(t, 20*time.Second, policy.AttemptTimeout(1))
}

func TestGetters_NilDefaults(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 1, cfg.GetRetries())
	assert.Equal(t, 1.0, cfg.GetBackoffMultiplier())
	assert.True(t, cfg.GetFollowRedirects())
	assert.False(t, cfg.GetNoColor())

	cfg.Retries = IntPtr(0)
	assert.Equal(t, 0, cfg.GetRetries())
}

func TestParse_YAML(t *testing.T) {
	data := []byte(`
endpoint:
  scheme: https
  host: stereo.example.com
  path: /api/uploads
  params:
    - name: key
      value: a b
    - name: key
      value: c
fields:
  background: bg
  depth: dm
form:
  separationMin: 20
  crossEyed: false
timeout: 5000
retries: 0
headers:
  X-Trace: "1"
output: json
`)

	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "https", cfg.Endpoint.Scheme)
	assert.Equal(t, []Param{{"key", "a b"}, {"key", "c"}}, cfg.Endpoint.Params)
	assert.Equal(t, "bg", cfg.Fields.Background)
	assert.Equal(t, 5000, cfg.Timeout)
	assert.Equal(t, 0, cfg.GetRetries())
	assert.Equal(t, "json", cfg.Output)
	assert.Equal(t, "1", cfg.Headers["X-Trace"])
	// untouched defaults survive
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, "UTF-8", cfg.Charset)

	url, err := cfg.URLBuilder().Build()
	require.NoError(t, err)
	assert.Equal(t, "https://stereo.example.com/api/uploads?key=a+b&key=c", url)

	form := cfg.Form.Values()
	assert.Equal(t, []string{"separationMin", "crossEyed"}, form.Keys())
	v, _ := form.Get("crossEyed")
	assert.Equal(t, "false", v)
}

func TestParse_JSON(t *testing.T) {
	cfg, err := Parse([]byte(`{"endpoint": {"host": "10.0.0.2:8080"}, "concurrency": 8, "validateSSL": false}`))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2:8080", cfg.Endpoint.Host)
	assert.Equal(t, "http", cfg.Endpoint.Scheme)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.False(t, cfg.GetValidateSSL())
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		problem string
	}{
		{"unknown key", `colour: red`, "colour"},
		{"wrong type", `timeout: soon`, "timeout"},
		{"negative retries", `retries: -1`, "retries"},
		{"bad output", `output: xml`, "output"},
		{"param without name", "endpoint:\n  params:\n    - value: x", "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Error(), tt.problem)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("endpoint: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate([]byte(`{"rate": 2.5}`)))
	assert.Error(t, Validate([]byte(`{"rate": "fast"}`)))
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"missing host", func(c *Config) { c.Endpoint.Host = "" }, "host"},
		{"missing scheme", func(c *Config) { c.Endpoint.Scheme = "" }, "scheme"},
		{"same field names", func(c *Config) { c.Fields.Depth = c.Fields.Background }, "fields"},
		{"inverted separation", func(c *Config) {
			c.Form.SeparationMin = IntPtr(50)
			c.Form.SeparationMax = IntPtr(10)
		}, "form"},
		{"unknown output", func(c *Config) { c.Output = "xml" }, "output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Check()
			require.Error(t, err)
			var cerr *http.ConfigurationError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	base.Headers = map[string]string{"A": "1"}

	merged := base.Merge(&Config{
		Endpoint:    Endpoint{Host: "remote:9000"},
		Form:        Form{InvertDepth: BoolPtr(true)},
		Retries:     IntPtr(0),
		Concurrency: 2,
		Headers:     map[string]string{"B": "2"},
		Verbose:     BoolPtr(true),
	})

	assert.Equal(t, "remote:9000", merged.Endpoint.Host)
	assert.Equal(t, "http", merged.Endpoint.Scheme)
	assert.True(t, *merged.Form.InvertDepth)
	assert.Equal(t, 0, merged.GetRetries())
	assert.Equal(t, 2, merged.Concurrency)
	assert.True(t, merged.GetVerbose())
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, merged.Headers)

	// the receiver is not modified
	assert.Equal(t, map[string]string{"A": "1"}, base.Headers)
	assert.Equal(t, 1, base.GetRetries())
	assert.Same(t, base, base.Merge(nil))
}

func TestFindAndLoadConfig(t *testing.T) {
	t.Run("defaults when no file", func(t *testing.T) {
		cfg, err := FindAndLoadConfig(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("first filename wins", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".imagic.yaml"), []byte("concurrency: 3\n"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "imagic.config.json"), []byte(`{"concurrency": 9}`), 0644))

		assert.Equal(t, filepath.Join(dir, ".imagic.yaml"), FindConfigFile(dir))
		cfg, err := FindAndLoadConfig(dir)
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Concurrency)
	})

	t.Run("environment references are expanded", func(t *testing.T) {
		t.Setenv("IMAGIC_TEST_HOST", "stereo.internal:8080")
		dir := t.TempDir()
		path := filepath.Join(dir, ".imagic.yml")
		content := "endpoint:\n  host: ${IMAGIC_TEST_HOST}\n  path: ${IMAGIC_TEST_PATH:-/v2/uploads}\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "stereo.internal:8080", cfg.Endpoint.Host)
		assert.Equal(t, "/v2/uploads", cfg.Endpoint.Path)
	})

	t.Run("invalid file names the path", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, ".imagicrc")
		require.NoError(t, os.WriteFile(path, []byte(`{"bogus": true}`), 0644))

		_, err := LoadConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), path)
	})
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Endpoint.Params = []Param{{Name: "q", Value: "1"}}
	cfg.Form.SeparationMax = IntPtr(90)

	for _, name := range []string{"out.yaml", "out.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, cfg.SaveConfig(path))

			loaded, err := LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}
