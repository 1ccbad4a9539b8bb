// Package logging builds the diagnostic logger. The terminal belongs to the
// user, so log output goes to a file under the project's tool directory.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sokinpui/code-llm/internal/ignore"
)

const logFileName = "code-llm.log"

// Path is the log file of the project at root.
func Path(root string) string {
	return filepath.Join(root, ignore.ToolDir, "logs", logFileName)
}

// New returns a JSON logger writing to Path(root) at the given level. An empty
// level without verbose returns a no-op logger.
func New(root, level string, verbose bool) (*zap.Logger, error) {
	if level == "" && !verbose {
		return zap.NewNop(), nil
	}

	lvl := zapcore.InfoLevel
	if level != "" {
		var err error
		if lvl, err = zapcore.ParseLevel(level); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}

	path := Path(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.OutputPaths = []string{path}
	config.ErrorOutputPaths = []string{path}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
