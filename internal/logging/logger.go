// Package logging builds the shared zap logger. Each run writes its own
// timestamped file under <data-dir>/logs in addition to stderr, matching
// the one-log-file-per-run layout of the rest of the user data directory.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the logger. verbose lowers the level to debug. logsDir may be
// empty, in which case only stderr is used.
func New(logsDir string, verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0o755); err != nil {
			return nil, fmt.Errorf("create logs dir: %w", err)
		}
		name := fmt.Sprintf("unichat_%s.log", time.Now().Format("2006-01-02_15-04-05"))
		cfg.OutputPaths = append(cfg.OutputPaths, filepath.Join(logsDir, name))
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
