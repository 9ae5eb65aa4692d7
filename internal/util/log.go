package util

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	logMu     sync.Mutex
	logLevel  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	useColors = true
	logger    = newLogger()
)

func newLogger() *zap.SugaredLogger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	encCfg.CallerKey = zapcore.OmitKey
	encCfg.StacktraceKey = zapcore.OmitKey
	if useColors && WantColor(os.Stderr) {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), logLevel)
	return zap.New(core).Sugar()
}

// Logger returns the shared structured logger for callers that want fields
// instead of printf-style messages.
func Logger() *zap.SugaredLogger {
	logMu.Lock()
	defer logMu.Unlock()
	return logger
}

// SetLogLevel sets the minimum log level to display
func SetLogLevel(level LogLevel) {
	switch level {
	case LevelDebug:
		logLevel.SetLevel(zapcore.DebugLevel)
	case LevelInfo:
		logLevel.SetLevel(zapcore.InfoLevel)
	case LevelWarn:
		logLevel.SetLevel(zapcore.WarnLevel)
	default:
		logLevel.SetLevel(zapcore.ErrorLevel)
	}
}

// SetVerbose enables verbose (debug) logging
func SetVerbose(verbose bool) {
	if verbose {
		SetLogLevel(LevelDebug)
	}
}

// SetQuiet enables quiet mode (errors only)
func SetQuiet(quiet bool) {
	if quiet {
		SetLogLevel(LevelError)
	}
}

// IsQuiet reports whether only errors are being logged
func IsQuiet() bool {
	return logLevel.Level() >= zapcore.ErrorLevel
}

// SetColors enables or disables colored output
func SetColors(enabled bool) {
	logMu.Lock()
	defer logMu.Unlock()
	useColors = enabled
	logger = newLogger()
}

// DebugLog logs debug messages
func DebugLog(format string, args ...interface{}) {
	Logger().Debugf(format, args...)
}

// InfoLog logs informational messages
func InfoLog(format string, args ...interface{}) {
	Logger().Infof(format, args...)
}

// WarnLog logs warning messages
func WarnLog(format string, args ...interface{}) {
	Logger().Warnf(format, args...)
}

// ErrorLog logs error messages
func ErrorLog(format string, args ...interface{}) {
	Logger().Errorf(format, args...)
}

// SuccessLog logs success messages (always shown unless quiet)
func SuccessLog(format string, args ...interface{}) {
	Logger().Named("ok").Infof(format, args...)
}

// Sync flushes any buffered log entries
func Sync() {
	_ = Logger().Sync()
}
