// Package services builds the ctxgraph service graph from configuration.
//
// Build wires the graph store, token estimator, embeddings, extractor,
// search engine, injector and secret scrubber into a memory.Service, and
// returns a Registry with accessors for the parts transports need.
package services
