package logging

import (
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// Option adjusts logger construction.
type Option func(*options)

type options struct {
	provider log.LoggerProvider
}

// WithLoggerProvider tees entries to provider through the otelzap bridge
// when Config.OTEL is set.
func WithLoggerProvider(provider log.LoggerProvider) Option {
	return func(o *options) { o.provider = provider }
}

// newOTELCore bridges zap entries at or above level to provider. Fields pass
// through the same redaction as the local output.
func newOTELCore(provider log.LoggerProvider, level zapcore.Level, redactor *RedactingEncoder) zapcore.Core {
	bridge := otelzap.NewCore("github.com/fyrsmithlabs/ctxgraph", otelzap.WithLoggerProvider(provider))
	return &levelFilterCore{
		Core:   &redactingCore{Core: bridge, enc: redactor},
		min:    level,
		hasMin: true,
	}
}

// redactingCore applies RedactingEncoder rules to fields before they reach a
// core that does its own encoding.
type redactingCore struct {
	zapcore.Core
	enc *RedactingEncoder
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(c.redactAll(fields)), enc: c.enc}
}

func (c *redactingCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *redactingCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(e, c.redactAll(fields))
}

func (c *redactingCore) redactAll(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = c.enc.redact(f)
	}
	return out
}
