package config

import (
	"strconv"
	"strings"
	"time"
)

// env reads typed values through a lookup such as os.LookupEnv. Unset, empty
// or unparsable values yield the default.
type env func(string) (string, bool)

func (e env) raw(key string) (string, bool) {
	v, ok := e(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func (e env) str(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

// word is a trimmed, lower-cased str for enum-like settings.
func (e env) word(key, def string) string {
	return strings.ToLower(strings.TrimSpace(e.str(key, def)))
}

func (e env) integer(key string, def int) int {
	if v, ok := e.raw(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func (e env) number(key string, def float64) float64 {
	if v, ok := e.raw(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func (e env) dur(key string, def time.Duration) time.Duration {
	if v, ok := e.raw(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

func (e env) flag(key string, def bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}

// list splits a comma-separated value, dropping blank items.
func (e env) list(key string) []string {
	v, ok := e.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
