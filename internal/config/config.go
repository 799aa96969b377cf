// Package config resolves run-time settings from a github.com/spf13/viper
// instance into a single RunConfig.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RunConfig is the fully-resolved configuration for `workflowctl run`.
type RunConfig struct {
	WorkflowPath string
	MaxWorkers   int
	Executor     string // "process" | "thread"
	TagLimits    map[string]int
	CacheDir     string // empty disables the cache
	SummaryJSON  string // empty disables summary export
	TraceJSON    string // empty disables trace export
	Timeout      time.Duration // zero means unbounded
	LogLevel     string
	MetricsAddr  string // empty disables the metrics server
}

// Load resolves a RunConfig from an already-populated *viper.Viper. The
// CLI layer binds only its command-line flags into that instance; no
// environment variables or config file are read.
func Load(v *viper.Viper) (RunConfig, error) {
	tagLimits, err := ParseTagLimits(v.GetString("tag-limits"))
	if err != nil {
		return RunConfig{}, err
	}

	cfg := RunConfig{
		WorkflowPath: v.GetString("workflow"),
		MaxWorkers:   v.GetInt("max-workers"),
		Executor:     v.GetString("executor"),
		TagLimits:    tagLimits,
		CacheDir:     v.GetString("cache-dir"),
		SummaryJSON:  v.GetString("summary-json"),
		TraceJSON:    v.GetString("trace-json"),
		Timeout:      time.Duration(v.GetFloat64("timeout") * float64(time.Second)),
		LogLevel:     v.GetString("log-level"),
		MetricsAddr:  v.GetString("metrics-addr"),
	}
	if cfg.Executor != "process" && cfg.Executor != "thread" {
		return RunConfig{}, fmt.Errorf("--executor must be %q or %q, got %q", "process", "thread", cfg.Executor)
	}
	if cfg.MaxWorkers <= 0 {
		return RunConfig{}, fmt.Errorf("--max-workers must be positive, got %d", cfg.MaxWorkers)
	}
	return cfg, nil
}

// ParseTagLimits parses the `--tag-limits tag=N,tag=N,...` flag value into
// a map.
func ParseTagLimits(raw string) (map[string]int, error) {
	out := make(map[string]int)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid --tag-limits entry %q: expected tag=N", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid --tag-limits entry %q: %w", pair, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid --tag-limits entry %q: limit must be non-negative", pair)
		}
		out[strings.TrimSpace(kv[0])] = n
	}
	return out, nil
}
