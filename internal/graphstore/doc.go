// Package graphstore persists context items, chats and the typed edges
// between them, and answers the vector, keyword and neighbourhood queries
// that search and injection are built on.
//
// Two implementations are provided:
//
//   - MemoryStore keeps the graph in maps and indexes embeddings in a
//     chromem-go collection. An optional JSON snapshot makes it survive
//     restarts.
//   - PostgresStore keeps everything in PostgreSQL and searches embeddings
//     with pgvector's cosine distance operator.
//
// All writes are idempotent upserts keyed by id, so callers may retry them.
package graphstore
