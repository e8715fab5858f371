package reporter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/atomic"

	"firestige.xyz/sourcewatch/internal/core"
)

// LogName is the type name of the log reporter.
const LogName = "log"

// LogConfig represents log reporter configuration.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug|info|warn, default info
}

// LogReporter writes one "addr: ..., port: ..." line per record to the
// process logger.
type LogReporter struct {
	level    slog.Level
	reported atomic.Uint64
}

// NewLogReporter creates a log reporter.
func NewLogReporter(options map[string]any) (Reporter, error) {
	cfg := LogConfig{Level: "info"}
	if err := decodeOptions(options, &cfg); err != nil {
		return nil, fmt.Errorf("log reporter: %w", err)
	}

	r := &LogReporter{}
	switch strings.ToLower(cfg.Level) {
	case "debug":
		r.level = slog.LevelDebug
	case "info", "":
		r.level = slog.LevelInfo
	case "warn", "warning":
		r.level = slog.LevelWarn
	default:
		return nil, fmt.Errorf("log reporter: %w: invalid level %q", core.ErrConfigInvalid, cfg.Level)
	}
	return r, nil
}

// Name returns the reporter name.
func (r *LogReporter) Name() string { return LogName }

// Report logs rec. The default logger is looked up per call so a logging
// re-init takes effect immediately.
func (r *LogReporter) Report(ctx context.Context, rec core.SourceAddr) error {
	slog.Default().Log(ctx, r.level, FormatRecord(rec))
	r.reported.Inc()
	return nil
}

// Close logs the final count.
func (r *LogReporter) Close() error {
	slog.Info("log reporter stopped", "total_reported", r.reported.Load())
	return nil
}
