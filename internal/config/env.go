package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type env struct {
	get func(string) string
}

func (e env) str(key, def string) string {
	val := strings.TrimSpace(e.get(key))
	if val == "" {
		return def
	}
	return val
}

func (e env) integer(key string, def int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (e env) nonNegative(key string, def int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (e env) float(key string, def float64) float64 {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return f
}

func (e env) boolean(key string, def bool) bool {
	switch strings.ToLower(e.str(key, "")) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func (e env) date(key string) (*time.Time, error) {
	raw := e.str(key, "")
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s (want YYYY-MM-DD): %w", key, err)
	}
	tt := dateOnly(t.UTC())
	return &tt, nil
}
