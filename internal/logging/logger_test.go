package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ctxgraph/internal/telemetry"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Sampling.Enabled = false

	logger, err := NewWithWriter(cfg, zapcore.AddSync(&buf))
	require.NoError(t, err)
	logger.Info("context extracted", zap.Int("items", 2))
	logger.Debug("filtered out")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "context extracted", lines[0]["msg"])
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "ctxgraph", lines[0]["service"])
	assert.EqualValues(t, 2, lines[0]["items"])
	assert.Contains(t, lines[0], "ts")
	assert.Contains(t, lines[0], "caller")
}

func TestNewWithWriter_TraceLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = "trace"
	cfg.Sampling.Enabled = false

	logger, err := NewWithWriter(cfg, zapcore.AddSync(&buf))
	require.NoError(t, err)
	logger.Log(TraceLevel, "classifier span")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "trace", lines[0]["level"])
}

func TestNewWithWriter_Redaction(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Sampling.Enabled = false

	logger, err := NewWithWriter(cfg, zapcore.AddSync(&buf))
	require.NoError(t, err)
	logger.With(zap.String("dsn", "postgres://u:p@h/db")).Info("store opened",
		zap.String("password", "hunter2"),
		zap.String("header", "Bearer abc.def"),
		zap.String("path", "/tmp/snapshot.json"),
		RedactedString("api_key_value", "sk-123"),
	)

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "abc.def")
	assert.NotContains(t, out, "u:p@h")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "[REDACTED]", lines[0]["password"])
	assert.Equal(t, "[REDACTED]", lines[0]["dsn"])
	assert.Equal(t, "[REDACTED:pattern]", lines[0]["header"])
	assert.Equal(t, "/tmp/snapshot.json", lines[0]["path"])
	assert.Equal(t, "[REDACTED:6]", lines[0]["api_key_value"])
}

func TestNewWithWriter_OTELTee(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sampling.Enabled = false

	newLogger := func(cfg Config) (*zap.Logger, *bytes.Buffer, *telemetry.LogRecorder) {
		var buf bytes.Buffer
		exp := &telemetry.LogRecorder{}
		provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
		logger, err := NewWithWriter(cfg, zapcore.AddSync(&buf), WithLoggerProvider(provider))
		require.NoError(t, err)
		return logger, &buf, exp
	}

	logger, buf, exp := newLogger(cfg)
	logger.Info("context extracted", zap.Int("items", 2), zap.String("password", "hunter2"))
	logger.Debug("filtered out")

	assert.Len(t, decodeLines(t, buf), 1)
	recs := exp.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "context extracted", recs[0].Body().AsString())
	assert.Equal(t, otellog.SeverityInfo, recs[0].Severity())

	attrs := map[string]string{}
	recs[0].WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.String()
		return true
	})
	assert.Equal(t, "2", attrs["items"])
	assert.Equal(t, "[REDACTED]", attrs["password"])
	assert.Equal(t, "ctxgraph", attrs["service"])

	cfg.OTEL = false
	logger, buf, exp = newLogger(cfg)
	logger.Info("local only")
	assert.Len(t, decodeLines(t, buf), 1)
	assert.Empty(t, exp.Records())
}

func TestSampling_ErrorsNeverDropped(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Sampling = SamplingConfig{Enabled: true, Tick: 1e9, Initial: 1, Thereafter: 0}

	logger, err := NewWithWriter(cfg, zapcore.AddSync(&buf))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		logger.Info("repeated")
		logger.Error("failure")
	}

	var infos, errs int
	for _, l := range decodeLines(t, &buf) {
		switch l["level"] {
		case "info":
			infos++
		case "error":
			errs++
		}
	}
	assert.Equal(t, 1, infos)
	assert.Equal(t, 5, errs)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.Level = "loud" }, "invalid level"},
		{"bad format", func(c *Config) { c.Format = "xml" }, "format"},
		{"bad output", func(c *Config) { c.Output = "file" }, "output"},
		{"zero tick", func(c *Config) { c.Sampling.Tick = 0 }, "sampling tick"},
		{"empty field", func(c *Config) { c.Fields = map[string]string{"k": ""} }, "constant field"},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }, "invalid redaction pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"trace", TraceLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"nope", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := LevelFromString(tt.in)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTestLogger(t *testing.T) {
	tl := NewTestLogger()
	tl.Logger.Info("context extracted", zap.Int("items", 3))
	tl.Logger.Log(TraceLevel, "detail")

	tl.AssertLogged(t, zapcore.InfoLevel, "extracted")
	tl.AssertLogged(t, TraceLevel, "detail")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "extracted")
	tl.AssertField(t, "context extracted", "items", int64(3))
	assert.Len(t, tl.All(), 2)

	tl.Reset()
	assert.Empty(t, tl.All())
}
