package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/imagic/packages/core/env"
	"github.com/abdul-hamid-achik/imagic/packages/http"
)

//go:embed schema.json
var schemaJSON []byte

// Schema returns the JSON schema configuration files are validated against.
func Schema() []byte {
	return schemaJSON
}

// Config represents the imagic configuration
type Config struct {
	Endpoint          Endpoint          `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Fields            Fields            `json:"fields,omitempty" yaml:"fields,omitempty"`
	Form              Form              `json:"form,omitempty" yaml:"form,omitempty"`
	Timeout           int               `json:"timeout,omitempty" yaml:"timeout,omitempty"` // milliseconds, first attempt
	Retries           *int              `json:"retries,omitempty" yaml:"retries,omitempty"`
	BackoffMultiplier *float64          `json:"backoffMultiplier,omitempty" yaml:"backoffMultiplier,omitempty"`
	RetryDelay        int               `json:"retryDelay,omitempty" yaml:"retryDelay,omitempty"` // milliseconds
	Concurrency       int               `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	Rate              float64           `json:"rate,omitempty" yaml:"rate,omitempty"` // attempts per second
	Headers           map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Charset           string            `json:"charset,omitempty" yaml:"charset,omitempty"`
	ConvertPNG        *bool             `json:"convertPNG,omitempty" yaml:"convertPNG,omitempty"`
	FollowRedirects   *bool             `json:"followRedirects,omitempty" yaml:"followRedirects,omitempty"`
	ValidateSSL       *bool             `json:"validateSSL,omitempty" yaml:"validateSSL,omitempty"`
	Proxy             string            `json:"proxy,omitempty" yaml:"proxy,omitempty"`
	History           *bool             `json:"history,omitempty" yaml:"history,omitempty"`
	HistoryDB         string            `json:"historyDB,omitempty" yaml:"historyDB,omitempty"`
	OutputDir         string            `json:"outputDir,omitempty" yaml:"outputDir,omitempty"`
	Output            string            `json:"output,omitempty" yaml:"output,omitempty"`
	Verbose           *bool             `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	NoColor           *bool             `json:"noColor,omitempty" yaml:"noColor,omitempty"`
}

// Endpoint locates the compositing service.
type Endpoint struct {
	Scheme string  `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	Host   string  `json:"host,omitempty" yaml:"host,omitempty"`
	Path   string  `json:"path,omitempty" yaml:"path,omitempty"`
	Params []Param `json:"params,omitempty" yaml:"params,omitempty"`
}

// Param is one query parameter. A name may repeat.
type Param struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Fields names the multipart parts the images are sent under.
type Fields struct {
	Background string `json:"background,omitempty" yaml:"background,omitempty"`
	Depth      string `json:"depth,omitempty" yaml:"depth,omitempty"`
}

// Form holds the optional text fields sent with every upload. Unset fields
// are not sent and the server applies its own defaults.
type Form struct {
	SeparationMin *int  `json:"separationMin,omitempty" yaml:"separationMin,omitempty"`
	SeparationMax *int  `json:"separationMax,omitempty" yaml:"separationMax,omitempty"`
	CrossEyed     *bool `json:"crossEyed,omitempty" yaml:"crossEyed,omitempty"`
	InvertDepth   *bool `json:"invertDepth,omitempty" yaml:"invertDepth,omitempty"`
}

// Values returns the set fields in a fixed order.
func (f Form) Values() *http.OrderedMap[string] {
	m := http.NewOrderedMap[string]()
	if f.SeparationMin != nil {
		m.Set("separationMin", strconv.Itoa(*f.SeparationMin))
	}
	if f.SeparationMax != nil {
		m.Set("separationMax", strconv.Itoa(*f.SeparationMax))
	}
	if f.CrossEyed != nil {
		m.Set("crossEyed", strconv.FormatBool(*f.CrossEyed))
	}
	if f.InvertDepth != nil {
		m.Set("invertDepth", strconv.FormatBool(*f.InvertDepth))
	}
	return m
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// IntPtr returns a pointer to i
func IntPtr(i int) *int {
	return &i
}

// FloatPtr returns a pointer to f
func FloatPtr(f float64) *float64 {
	return &f
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetRetries returns the retry count, defaulting to 1
func (c *Config) GetRetries() int {
	if c.Retries == nil {
		return 1
	}
	return *c.Retries
}

// GetBackoffMultiplier returns the backoff multiplier, defaulting to 1
func (c *Config) GetBackoffMultiplier() float64 {
	if c.BackoffMultiplier == nil {
		return 1
	}
	return *c.BackoffMultiplier
}

// GetConvertPNG returns whether images are re-encoded as PNG, defaulting to true
func (c *Config) GetConvertPNG() bool {
	return getBool(c.ConvertPNG, true)
}

// GetFollowRedirects returns the follow redirects setting, defaulting to true
func (c *Config) GetFollowRedirects() bool {
	return getBool(c.FollowRedirects, true)
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

// GetHistory returns whether uploads are recorded, defaulting to true
func (c *Config) GetHistory() bool {
	return getBool(c.History, true)
}

// GetVerbose returns the verbose setting, defaulting to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// RetryPolicy builds the request retry policy from the timeout, retries
// and backoff settings.
func (c *Config) RetryPolicy() http.RetryPolicy {
	return http.NewRetryPolicy(
		time.Duration(c.Timeout)*time.Millisecond,
		c.GetRetries(),
		c.GetBackoffMultiplier(),
	)
}

// URLBuilder returns a builder primed with the endpoint.
func (c *Config) URLBuilder() *http.URLBuilder {
	b := http.NewURLBuilder().
		SetScheme(c.Endpoint.Scheme).
		SetHost(c.Endpoint.Host).
		SetPath(c.Endpoint.Path)
	for _, p := range c.Endpoint.Params {
		b.AddParam(p.Name, p.Value)
	}
	return b
}

// OutputFormats are the accepted values of Output.
var OutputFormats = []string{"", "console", "json", "junit"}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".imagic.yaml",
	".imagic.yml",
	"imagic.config.json",
	".imagicrc",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	// Search for config file in current directory
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	if path := FindConfigFile(dir); path != "" {
		return loadConfigFromFile(path)
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

// FindConfigFile returns the first config file present in dir, or "".
func FindConfigFile(dir string) string {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}
	return ""
}

// loadConfigFromFile loads configuration from a specific file, expanding
// ${VAR} references first
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config, err := Parse([]byte(env.Expand(string(data))))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// ValidationError lists the schema violations of a configuration document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Parse decodes a JSON or YAML document, validates it against the schema
// and overlays it on DefaultConfig.
func Parse(data []byte) (*Config, error) {
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	// The document has passed the schema, so it round-trips through JSON.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	config := DefaultConfig()
	if err := json.Unmarshal(normalized, config); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks a JSON or YAML document against the schema without
// building a Config.
func Validate(data []byte) error {
	doc, err := decodeDocument(data)
	if err != nil {
		return err
	}
	return validateDocument(doc)
}

// decodeDocument reads JSON or YAML into generic values. YAML is a superset
// of JSON so one decoder serves both.
func decodeDocument(data []byte) (any, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func validateDocument(doc any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return &ValidationError{Problems: problems}
}

// Check reports settings that are individually valid but unusable together.
func (c *Config) Check() error {
	var errs []error
	if c.Endpoint.Scheme == "" {
		errs = append(errs, &http.ConfigurationError{Field: "scheme", Reason: "is required"})
	}
	if c.Endpoint.Host == "" {
		errs = append(errs, &http.ConfigurationError{Field: "host", Reason: "is required"})
	}
	if c.Fields.Background == "" || c.Fields.Depth == "" {
		errs = append(errs, &http.ConfigurationError{Field: "fields", Reason: "background and depth names are required"})
	}
	if c.Fields.Background != "" && c.Fields.Background == c.Fields.Depth {
		errs = append(errs, &http.ConfigurationError{Field: "fields", Reason: "background and depth must differ"})
	}
	if lo, hi := c.Form.SeparationMin, c.Form.SeparationMax; lo != nil && hi != nil && *hi < *lo {
		errs = append(errs, &http.ConfigurationError{Field: "form", Reason: "separationMax must not be below separationMin"})
	}
	if !slices.Contains(OutputFormats, c.Output) {
		errs = append(errs, &http.ConfigurationError{Field: "output", Reason: fmt.Sprintf("unknown format %q", c.Output)})
	}
	return errors.Join(errs...)
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.Endpoint.Scheme != "" {
		result.Endpoint.Scheme = other.Endpoint.Scheme
	}
	if other.Endpoint.Host != "" {
		result.Endpoint.Host = other.Endpoint.Host
	}
	if other.Endpoint.Path != "" {
		result.Endpoint.Path = other.Endpoint.Path
	}
	if len(other.Endpoint.Params) > 0 {
		result.Endpoint.Params = append([]Param(nil), other.Endpoint.Params...)
	}
	if other.Fields.Background != "" {
		result.Fields.Background = other.Fields.Background
	}
	if other.Fields.Depth != "" {
		result.Fields.Depth = other.Fields.Depth
	}
	if other.Form.SeparationMin != nil {
		result.Form.SeparationMin = other.Form.SeparationMin
	}
	if other.Form.SeparationMax != nil {
		result.Form.SeparationMax = other.Form.SeparationMax
	}
	if other.Form.CrossEyed != nil {
		result.Form.CrossEyed = other.Form.CrossEyed
	}
	if other.Form.InvertDepth != nil {
		result.Form.InvertDepth = other.Form.InvertDepth
	}
	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.Retries != nil {
		result.Retries = other.Retries
	}
	if other.BackoffMultiplier != nil {
		result.BackoffMultiplier = other.BackoffMultiplier
	}
	if other.RetryDelay > 0 {
		result.RetryDelay = other.RetryDelay
	}
	if other.Concurrency > 0 {
		result.Concurrency = other.Concurrency
	}
	if other.Rate > 0 {
		result.Rate = other.Rate
	}
	if other.Charset != "" {
		result.Charset = other.Charset
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.HistoryDB != "" {
		result.HistoryDB = other.HistoryDB
	}
	if other.OutputDir != "" {
		result.OutputDir = other.OutputDir
	}
	if other.Output != "" {
		result.Output = other.Output
	}

	// Boolean flags - only override if explicitly set in other config
	if other.ConvertPNG != nil {
		result.ConvertPNG = other.ConvertPNG
	}
	if other.FollowRedirects != nil {
		result.FollowRedirects = other.FollowRedirects
	}
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.History != nil {
		result.History = other.History
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	// Merge headers
	if len(other.Headers) > 0 {
		headers := make(map[string]string, len(result.Headers)+len(other.Headers))
		for k, v := range result.Headers {
			headers[k] = v
		}
		for k, v := range other.Headers {
			headers[k] = v
		}
		result.Headers = headers
	}

	return &result
}

// SaveConfig saves the configuration to a file. Paths ending in .json are
// written as JSON, everything else as YAML.
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
