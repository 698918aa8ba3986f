package config

import "github.com/abdul-hamid-achik/imagic/packages/history"

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Endpoint: Endpoint{
			Scheme: "http",
			Host:   "localhost:3000",
			Path:   "/uploads",
		},
		Fields: Fields{
			Background: "background",
			Depth:      "depth",
		},
		Timeout:           10000, // 10 seconds
		Retries:           IntPtr(1),
		BackoffMultiplier: FloatPtr(1),
		RetryDelay:        500,
		Concurrency:       4,
		Charset:           "UTF-8",
		ConvertPNG:        BoolPtr(true),
		FollowRedirects:   BoolPtr(true),
		ValidateSSL:       BoolPtr(true),
		History:           BoolPtr(true),
		HistoryDB:         history.DefaultPath,
		OutputDir:         ".",
		Output:            "console",
		Verbose:           BoolPtr(false),
		NoColor:           BoolPtr(false),
	}
}
