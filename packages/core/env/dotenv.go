package env

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Var is one assignment from a .env file.
type Var struct {
	Key   string
	Value string
}

// LoadDotEnv parses a .env file and returns its assignments in file order.
// Supports: KEY=value, KEY="quoted value", KEY='single quoted', export KEY=value,
// # comments and trailing " # comments" after unquoted values.
// Note: This does NOT export to OS environment. Use LoadAndExportDotEnv if you
// need ${VAR} syntax to work in config files loaded after the .env file.
func LoadDotEnv(path string) ([]Var, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open env file: %w", err)
	}
	defer file.Close()

	vars, err := ParseDotEnv(file)
	if err != nil {
		return nil, fmt.Errorf("reading env file: %w", err)
	}
	return vars, nil
}

// ParseDotEnv reads assignments from r. A key assigned twice keeps its
// first position and its last value.
func ParseDotEnv(r io.Reader) ([]Var, error) {
	var vars []Var
	index := make(map[string]int)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		// Find the first = sign
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue // Skip lines without =
		}

		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}

		value = parseValue(strings.TrimSpace(value))
		if i, ok := index[key]; ok {
			vars[i].Value = value
			continue
		}
		index[key] = len(vars)
		vars = append(vars, Var{Key: key, Value: value})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return vars, nil
}

func parseValue(value string) string {
	if len(value) >= 2 {
		switch {
		case value[0] == '"' && value[len(value)-1] == '"':
			return strings.NewReplacer(`\n`, "\n", `\"`, `"`, `\\`, `\`).Replace(value[1 : len(value)-1])
		case value[0] == '\'' && value[len(value)-1] == '\'':
			return value[1 : len(value)-1]
		}
	}
	if i := strings.Index(value, " #"); i >= 0 {
		value = strings.TrimSpace(value[:i])
	}
	return value
}

// LoadAndExportDotEnv parses a .env file, returns its assignments,
// and exports them to the OS environment for ${VAR} resolution.
// Variables are only exported if not already set in the OS environment.
func LoadAndExportDotEnv(path string) ([]Var, error) {
	vars, err := LoadDotEnv(path)
	if err != nil {
		return nil, err
	}

	// Export to OS environment (only if not already set)
	for _, v := range vars {
		if _, ok := os.LookupEnv(v.Key); !ok {
			_ = os.Setenv(v.Key, v.Value) // Error ignored: only fails for invalid key names
		}
	}

	return vars, nil
}
