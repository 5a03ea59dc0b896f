// Package mcp implements the Model Context Protocol (MCP) server for embedgate.
//
// The MCP server exposes six tools to MCP clients:
//   - generate_embedding: Embed a single text, cache-first
//   - generate_batch: Embed many texts with dedup and partial-failure reporting
//   - cache_stats: Cache usage plus circuit breaker states
//   - invalidate_cache: Drop cached embeddings by provider/model/dimension
//   - health_check: Provider, circuit, memory, cache and queue checks
//   - queue_status: Deferred queue depth and item states
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server listens on stdin and writes responses to stdout, so any
// MCP-compatible client can drive it.
//
// # Basic Usage
//
// The server is typically started via the serve command:
//
//	embedgate serve
//
// # Tool: generate_embedding
//
// Embed one text. When deferred execution is enabled and the request
// carries server_id, collection_id and item_id, the work is queued and
// the response reports queued=true instead of a vector:
//
//	Request:
//	{
//	  "name": "generate_embedding",
//	  "arguments": {
//	    "text": "how circuit breakers recover",
//	    "server_id": "srv-1",
//	    "collection_id": "docs",
//	    "item_id": "doc-42"
//	  }
//	}
//
//	Response (sync):
//	{
//	  "embedding": [0.0123, -0.0456, ...],
//	  "dimension": 1536,
//	  "provider": "openai",
//	  "model": "text-embedding-3-small"
//	}
//
// # Tool: generate_batch
//
// Embed several texts in one call. Identical texts are embedded once,
// cache hits skip the provider entirely, and oversized batches are
// split before being sent. When some items fail the response carries
// both the successful embeddings and a per-item failed map, plus a
// degraded note:
//
//	Response (partial):
//	{
//	  "embeddings": {"0": [...], "2": [...]},
//	  "failed": {"1": "rate_limited (low): ..."},
//	  "cache_hits": 1,
//	  "degraded": "partial_batch (medium): some batch items failed"
//	}
//
// # Error Handling
//
// Failures surface as MCP errors with structured data: the degradation
// kind, its severity, whether a retry is worth attempting, and the
// fallback the caller should apply (for example keyword_search when no
// embedding capability is usable).
//
// Error codes:
//   - -32602: invalid parameters
//   - -32603: internal error
//   - -32001: empty text
//   - -32002: embedding capability degraded
//   - -32003: deferred execution not enabled
package mcp
