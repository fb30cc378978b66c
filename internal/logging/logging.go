// Package logging builds the zap loggers used by the executables.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config represents logger configuration.
type Config struct {
	Level       string
	Environment string // "production" selects the JSON encoder
	OutputPaths []string
}

// New builds a logger for cfg.
func New(cfg Config) (*zap.Logger, error) {
	var zc zap.Config
	if strings.EqualFold(cfg.Environment, "production") {
		zc = zap.NewProductionConfig()
		zc.DisableStacktrace = true
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zc.Level = lvl
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}
	zc.InitialFields = map[string]interface{}{"service": "salekit"}
	return zc.Build()
}

// Tee returns a logger that also hands each entry's message and fields to sink.
// The desktop tester uses it to mirror logs into its log pane.
func Tee(base *zap.Logger, sink func(level zapcore.Level, line string)) *zap.Logger {
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:       "msg",
		LevelKey:         "level",
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		ConsoleSeparator: " ",
	})
	return base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, &sinkCore{LevelEnabler: zapcore.DebugLevel, enc: enc, sink: sink})
	}))
}

type sinkCore struct {
	zapcore.LevelEnabler
	enc  zapcore.Encoder
	sink func(zapcore.Level, string)
}

func (s *sinkCore) With(fields []zapcore.Field) zapcore.Core {
	enc := s.enc.Clone()
	for _, f := range fields {
		f.AddTo(enc)
	}
	return &sinkCore{LevelEnabler: s.LevelEnabler, enc: enc, sink: s.sink}
}

func (s *sinkCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if s.Enabled(e.Level) {
		return ce.AddCore(e, s)
	}
	return ce
}

func (s *sinkCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	buf, err := s.enc.EncodeEntry(e, fields)
	if err != nil {
		return err
	}
	line := strings.TrimRight(buf.String(), "\n")
	buf.Free()
	s.sink(e.Level, line)
	return nil
}

func (s *sinkCore) Sync() error { return nil }
