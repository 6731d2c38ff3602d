// Package memory is the service facade over extraction, the graph store,
// search and injection. Transports call Service and never reach the
// components directly.
//
// Transcripts are scrubbed of secrets before extraction. Embedding failures
// during extraction are logged and the items are stored without vectors;
// they stay reachable through keyword search.
package memory
