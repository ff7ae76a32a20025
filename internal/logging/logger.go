package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a zap logger that writes JSON to the given log file path
// and also writes to stderr. Account, user and PID are included as initial
// fields.
func New(logPath, account, userID string) (*zap.Logger, error) {
	return newLogger(logPath, zapcore.AddSync(os.Stderr),
		zap.String("account", account),
		zap.String("user", userID),
	)
}

// NewService creates the same logger for a process that serves no single
// account, tagged with the service name.
func NewService(logPath, service string) (*zap.Logger, error) {
	return newLogger(logPath, zapcore.AddSync(os.Stderr), zap.String("service", service))
}

func newLogger(logPath string, console zapcore.WriteSyncer, fields ...zap.Field) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	jsonEncoder := zapcore.NewJSONEncoder(encoderCfg)
	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)

	fileCore := zapcore.NewCore(jsonEncoder, zapcore.AddSync(file), zapcore.InfoLevel)
	stderrCore := zapcore.NewCore(consoleEncoder, console, zapcore.InfoLevel)

	core := zapcore.NewTee(fileCore, stderrCore)

	logger := zap.New(core, zap.Fields(append(fields, zap.Int("pid", os.Getpid()))...))

	return logger, nil
}
