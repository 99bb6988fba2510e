// Package envconfig resolves runtime settings from VIDEODIT_* environment
// variables. Getters are closures so values are re-read on every call, which
// keeps tests that set variables with t.Setenv honest.
package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

// Var reads an environment variable, trimming whitespace and stray quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// Debug reports whether verbose logging was requested. Accepts truthy values
// as well as explicit slog-style level numbers below zero.
func Debug() bool {
	if s := Var("VIDEODIT_DEBUG"); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		if i, err := strconv.Atoi(s); err == nil {
			return i < 0
		}
		return true
	}
	return false
}

// LogLevel maps VIDEODIT_DEBUG onto a slog level.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("VIDEODIT_DEBUG"); s != "" {
		if i, err := strconv.Atoi(s); err == nil {
			level = slog.Level(i)
		} else if b, err := strconv.ParseBool(s); err == nil && b {
			level = slog.LevelDebug
		}
	}
	return level
}

// Host returns the listen address for the generation server. A bare port or
// a bare host are both accepted.
func Host() string {
	s := Var("VIDEODIT_HOST")
	if s == "" {
		return "127.0.0.1:11435"
	}
	if !strings.Contains(s, ":") {
		return net.JoinHostPort(s, "11435")
	}
	if strings.HasPrefix(s, ":") {
		return "127.0.0.1" + s
	}
	if host, port, err := net.SplitHostPort(s); err == nil {
		if host == "" {
			host = "127.0.0.1"
		}
		return net.JoinHostPort(host, port)
	}
	return s
}

// Models returns the directory searched for model weights.
func Models() string {
	if s := Var("VIDEODIT_MODELS"); s != "" {
		return s
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".videodit", "models")
	}
	return filepath.Join(home, ".videodit", "models")
}

// Attention names the attention backend to construct networks with. Empty
// means the default backend.
func Attention() string {
	return Var("VIDEODIT_ATTENTION")
}

// Bool returns a getter for a boolean variable.
func Bool(key string) func() bool {
	return func() bool {
		if s := Var(key); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return false
	}
}

// Uint returns a getter for an unsigned integer variable with a default.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

var (
	// Threads caps the worker count used by batched matrix multiplies.
	Threads = Uint("VIDEODIT_THREADS", uint(runtime.GOMAXPROCS(0)))
	// Quiet suppresses the interactive progress bar.
	Quiet = Bool("VIDEODIT_QUIET")
)

// EnvVar describes one recognized variable for help output.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap lists every recognized variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"VIDEODIT_DEBUG":     {"VIDEODIT_DEBUG", Debug(), "Show additional debug information (e.g. VIDEODIT_DEBUG=1)"},
		"VIDEODIT_HOST":      {"VIDEODIT_HOST", Host(), "Address for the generation server"},
		"VIDEODIT_MODELS":    {"VIDEODIT_MODELS", Models(), "Directory searched for model weights"},
		"VIDEODIT_ATTENTION": {"VIDEODIT_ATTENTION", Attention(), "Attention backend (blas or loop)"},
		"VIDEODIT_THREADS":   {"VIDEODIT_THREADS", Threads(), "Worker count for batched matrix multiplies"},
		"VIDEODIT_QUIET":     {"VIDEODIT_QUIET", Quiet(), "Suppress the progress bar"},
	}
}

// Values renders AsMap in a stable order for logs.
func Values() map[string]string {
	vars := AsMap()
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vals := make(map[string]string, len(keys))
	for _, k := range keys {
		vals[k] = fmt.Sprintf("%v", vars[k].Value)
	}
	return vals
}
