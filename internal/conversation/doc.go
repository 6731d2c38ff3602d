// Package conversation turns Claude Code JSONL session files into plain
// transcripts for extraction.
//
// Each user or assistant message becomes a "Role: content" block. The parser
// records the byte offset and timestamp of every block so extracted items can
// be dated by the message they came from. Malformed lines are counted and
// skipped rather than failing the whole file.
package conversation
