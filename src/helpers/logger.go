package helpers

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"mediatorpro/src/settings"
)

// LogFilePath is the timestamped log file NewLogger writes to under logDir.
func LogFilePath(logDir string, now time.Time) string {
	return filepath.Join(logDir, fmt.Sprintf("%s_mediatorpro.log", now.Format("2006-01-02_15-04-05")))
}

// NewLogger builds the process logger from args. Debug mode uses zap's
// development config, otherwise production. When LogDir is set output also
// goes to a timestamped file there.
func NewLogger(args *settings.Arguments) (*zap.SugaredLogger, error) {
	var z zap.Config
	if args.Debug {
		z = zap.NewDevelopmentConfig()
	} else {
		z = zap.NewProductionConfig()
	}
	if args.Verbose {
		z.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	z.OutputPaths = nil
	if args.PrintToScreen || args.LogDir == "" {
		z.OutputPaths = append(z.OutputPaths, "stdout")
	}
	if args.LogDir != "" {
		if err := EnsureDir(args.LogDir); err != nil {
			return nil, err
		}
		z.OutputPaths = append(z.OutputPaths, LogFilePath(args.LogDir, time.Now()))
	}

	logger, err := z.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.Sugar(), nil
}
