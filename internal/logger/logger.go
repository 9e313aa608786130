// Package logger builds the process zap logger from configuration.
package logger

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, destination and rotation.
type Config struct {
	Level      string `json:"level" yaml:"level"`
	Output     string `json:"output" yaml:"output"` // console, file or both
	Format     string `json:"format" yaml:"format"` // console or json
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSize    int    `json:"max_size,omitempty" yaml:"max_size,omitempty"` // megabytes
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
	MaxAge     int    `json:"max_age,omitempty" yaml:"max_age,omitempty"` // days
	Compress   bool   `json:"compress,omitempty" yaml:"compress,omitempty"`
}

func Default() Config {
	return Config{
		Level:      "info",
		Output:     "console",
		Format:     "console",
		File:       "logs/paperfund.log",
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     30,
	}
}

// New builds a logger. An unknown level falls back to info and an empty
// output set falls back to the console.
func New(cfg Config) (*zap.Logger, error) {
	return build(cfg, os.Stderr)
}

func build(cfg Config, console io.Writer) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var fileEnc, consoleEnc zapcore.Encoder
	if strings.ToLower(cfg.Format) == "json" {
		fileEnc = zapcore.NewJSONEncoder(encCfg)
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	} else {
		fileEnc = zapcore.NewConsoleEncoder(encCfg)
		colour := encCfg
		colour.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEnc = zapcore.NewConsoleEncoder(colour)
	}

	var cores []zapcore.Core
	output := strings.ToLower(cfg.Output)
	if (output == "file" || output == "both") && cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(fileEnc, zapcore.AddSync(lj), level))
	}
	if output == "console" || output == "both" || len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(consoleEnc, zapcore.AddSync(console), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
