// Package logging builds the zap loggers used across ctxgraph.
//
// Components take a *zap.Logger and default to zap.NewNop() when given nil.
// New applies the configured level, encoding, constant fields, sampling and
// field redaction. Errors and above are never sampled.
//
// In MCP stdio mode stdout carries the protocol, so Output must be "stderr".
//
// Tests use NewTestLogger, which records every entry for assertions:
//
//	tl := logging.NewTestLogger()
//	svc := memory.NewService(memory.Options{Logger: tl.Logger, ...})
//	tl.AssertLogged(t, zapcore.InfoLevel, "context extracted")
package logging
