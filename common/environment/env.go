// Package environment reads Kanri's configuration from environment variables.
//
// Every helper returns either the parsed value or a default; unparseable
// values fall back to the default rather than failing. Required variables
// return an error instead of exiting, keeping policy in cmd/.
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

// LoadDotEnv seeds the process environment from the given .env files.
// Variables already set win over file values. Missing files are ignored;
// malformed ones are an error.
func LoadDotEnv(files ...string) error {
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

// String returns the value of the named variable and whether it was set.
func String(name string) (string, bool) {
	return os.LookupEnv(name)
}

// StringOr returns the named variable, or def when unset or empty.
func StringOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// RequiredString returns the named variable or an error when unset or empty.
func RequiredString(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("required environment variable %q is not set", name)
	}
	return v, nil
}

// parseOr applies parse to the named variable, returning def when it is
// unset, empty or rejected by parse.
func parseOr[T any](name string, def T, parse func(string) (T, error)) T {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

// BoolOr parses the named variable with strconv.ParseBool.
func BoolOr(name string, def bool) bool {
	return parseOr(name, def, strconv.ParseBool)
}

// IntOr parses the named variable as a decimal integer.
func IntOr(name string, def int) int {
	return parseOr(name, def, strconv.Atoi)
}

// DurationOr parses the named variable as a time.Duration such as "90s".
func DurationOr(name string, def time.Duration) time.Duration {
	return parseOr(name, def, time.ParseDuration)
}

// LocationOr loads the IANA zone named by the variable, e.g.
// "America/Sao_Paulo".
func LocationOr(name string, def *time.Location) *time.Location {
	return parseOr(name, def, time.LoadLocation)
}

// StringSliceOr splits the named variable on commas, trimming each element
// and dropping empty ones.
func StringSliceOr(name string, def []string) []string {
	return parseOr(name, def, func(v string) ([]string, error) {
		var out []string
		for _, p := range strings.Split(v, ",") {
			if t := strings.TrimSpace(p); t != "" {
				out = append(out, t)
			}
		}
		if len(out) == 0 {
			return nil, errors.New("empty list")
		}
		return out, nil
	})
}
