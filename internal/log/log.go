package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is shared by every package. It discards output until one of the
// init functions runs.
var Logger = zap.NewNop().Sugar()

// LogConfig controls where log lines go and how the file is rotated.
type LogConfig struct {
	Filename   string // empty means console only
	MaxSize    int    // MB
	MaxBackups int
	MaxAge     int // days
	Compress   bool
	Level      zapcore.Level
	Console    bool
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Filename:   "",
		MaxSize:    10,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
		Level:      zapcore.InfoLevel,
		Console:    true,
	}
}

// InitLogger builds the global logger. When a file is configured every
// level goes to the file; otherwise errors go to stderr and the rest to
// stdout.
func InitLogger(config LogConfig) {
	encoder := getEncoder()

	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel && lvl >= config.Level
	})
	lowPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl < zapcore.ErrorLevel && lvl >= config.Level
	})

	var cores []zapcore.Core

	if config.Filename != "" {
		fileCore := zapcore.NewCore(encoder, getLogWriter(config), zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
			return lvl >= config.Level
		}))
		cores = append(cores, fileCore)
		config.Console = false
	}

	if config.Console {
		cores = append(cores,
			zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), lowPriority),
			zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), highPriority),
		)
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	Logger = logger.Sugar()
}

// Init is the short form used by the command line: a file name (may be
// empty) and a level name.
func Init(filename, level string) error {
	config := DefaultLogConfig()
	config.Filename = filename
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}
	config.Level = l
	InitLogger(config)
	return nil
}

// Close flushes buffered entries.
func Close() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

func getEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func getLogWriter(config LogConfig) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   config.Filename,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	})
}
