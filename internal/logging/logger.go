package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger writing to the configured output.
func New(cfg Config, opts ...Option) (*zap.Logger, error) {
	out := zapcore.Lock(os.Stderr)
	if cfg.Output == "stdout" {
		out = zapcore.Lock(os.Stdout)
	}
	return NewWithWriter(cfg, out, opts...)
}

// NewWithWriter builds a logger writing to w.
func NewWithWriter(cfg Config, w zapcore.WriteSyncer, opts ...Option) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	level, _ := LevelFromString(cfg.Level)

	encoder, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(encoder, w, level)
	if cfg.OTEL && o.provider != nil {
		core = zapcore.NewTee(core, newOTELCore(o.provider, level, encoder))
	}
	core = newSampledCore(core, cfg.Sampling)

	zopts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Caller {
		zopts = append(zopts, zap.AddCaller())
	}
	logger := zap.New(core, zopts...)

	if len(cfg.Fields) > 0 {
		fields := make([]zap.Field, 0, len(cfg.Fields))
		for k, v := range cfg.Fields {
			fields = append(fields, zap.String(k, v))
		}
		logger = logger.With(fields...)
	}
	return logger, nil
}

func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = encodeLevel

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == TraceLevel {
		enc.AppendString("trace")
		return
	}
	zapcore.LowercaseLevelEncoder(l, enc)
}
