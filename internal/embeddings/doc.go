// Package embeddings turns text into fixed-width vectors.
//
// Providers:
//   - HashProvider: deterministic, dependency-free feature hashing. Always
//     available and the fallback when a neural provider cannot start.
//   - FastEmbedProvider: local ONNX models via fastembed-go (cgo builds only).
//   - TEIProvider: a text-embeddings-inference HTTP server.
//
// Service wraps a Provider with head+tail truncation, a content-addressed
// cache keyed by sha256(model, text), chunked batch calls, and metrics.
// Provider failures surface as ctxitem.ErrEmbeddingUnavailable; callers
// decide how to degrade.
package embeddings
