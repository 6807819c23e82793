package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zapcore"
)

// Logger is the process-wide logger. It defaults to a no-op logger so
// library code can log before Init runs.
var Logger = zap.NewNop()

// Init builds the global logger. mode is "production" or "development";
// development gets colored level names on console output.
func Init(mode string) error {
	var cfg zap.Config
	if mode == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	Logger = logger
	return nil
}

// S returns the sugared logger for printf-style call sites.
func S() *zap.SugaredLogger {
	return Logger.Sugar()
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() {
	_ = Logger.Sync()
}
