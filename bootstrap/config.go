package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"cipherd/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logLevel is shared by every logger built through InitLogger
var logLevel = zap.NewAtomicLevelAt(zapcore.DebugLevel)

// InitLogger initializes the zap logger. format is "console" (colored,
// human readable) or "json".
func InitLogger(format string) (*zap.Logger, *zap.SugaredLogger, error) {
	var encoder zapcore.Encoder
	switch strings.ToLower(format) {
	case "", "console":
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder // Colored levels
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder        // Readable timestamps
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder      // Short file paths
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	case "json":
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		return nil, nil, fmt.Errorf("unsupported log format %q", format)
	}

	core := zapcore.NewCore(
		encoder,
		zapcore.AddSync(os.Stdout),
		logLevel,
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// SetLogLevel changes the level of every logger built through InitLogger
func SetLogLevel(level string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logLevel.SetLevel(l)
	return nil
}

// LogLevel returns the current level
func LogLevel() zapcore.Level {
	return logLevel.Level()
}

// InitConfig loads the application configuration and resolves secrets.
func InitConfig(configFile string, sugar *zap.SugaredLogger) (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load config: %v\n", err)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.LoadSecrets(cfg); err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	sugar.Infow("Config loaded",
		"addr", cfg.Addr(),
		"storage_driver", cfg.Storage.Driver,
		"log_table", cfg.Storage.Table,
		"max_queue_size", cfg.Pipeline.MaxQueueSize,
		"rate_limit", cfg.Server.RateLimit.Enabled,
		"secrets_provider", cfg.Secrets.Provider)

	return cfg, nil
}
