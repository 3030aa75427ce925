// Package environment loads process configuration from environment variables,
// optionally seeded from a .env file.
//
// Helpers never exit the process. Required values are reported as errors so
// the command layer decides how to fail.
package environment

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads KEY=VALUE pairs from the given dotenv files into the process
// environment. Variables that are already set are never overwritten. Missing
// files are skipped so a deployment without a .env file behaves the same as
// one with an empty file.
func Load(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("environment: load %s: %w", f, err)
		}
	}
	return nil
}

// StringOr returns the value of the named variable, or defaultValue when it
// is unset or empty.
func StringOr(name, defaultValue string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultValue
}

// First returns the value of the first non-empty variable among names, or ""
// when none is set. Useful for legacy aliases (e.g. LLM_API_KEY falling back
// to GOOGLE_API_KEY).
func First(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(os.Getenv(n)); v != "" {
			return v
		}
	}
	return ""
}

// RequiredString returns the value of the named variable or an error if it
// is unset or empty.
func RequiredString(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("required environment variable %q is not set", name)
	}
	return v, nil
}

// BoolOr parses the named variable with strconv.ParseBool. Unset, empty or
// unparseable values yield defaultValue.
func BoolOr(name string, defaultValue bool) bool {
	b, err := strconv.ParseBool(os.Getenv(name))
	if err != nil {
		return defaultValue
	}
	return b
}

// IntOr parses the named variable as a decimal integer. Unset, empty or
// unparseable values yield defaultValue.
func IntOr(name string, defaultValue int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(name)))
	if err != nil {
		return defaultValue
	}
	return n
}

// DurationOr parses the named variable as a time.Duration ("30s", "2h").
// Unset, empty or unparseable values yield defaultValue.
func DurationOr(name string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(name)))
	if err != nil {
		return defaultValue
	}
	return d
}

// StringSliceOr splits the named variable on commas, trimming whitespace and
// dropping empty elements. Returns defaultValue when nothing remains.
func StringSliceOr(name string, defaultValue []string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(name), ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
