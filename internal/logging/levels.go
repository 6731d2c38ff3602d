package logging

import (
	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below Debug for per-item pipeline detail.
const TraceLevel = zapcore.Level(-2)

// LevelFromString parses a level name, including "trace". Empty means info.
func LevelFromString(level string) (zapcore.Level, error) {
	switch level {
	case "":
		return zapcore.InfoLevel, nil
	case "trace":
		return TraceLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}
