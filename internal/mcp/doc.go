// Package mcp exposes the context service as MCP tools over stdio.
//
// It uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp) and
// registers extract_context, search_context, find_related,
// get_evolution_chain and inject_context. Tool output never carries
// embedding vectors.
package mcp
