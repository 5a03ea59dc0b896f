package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// generateEmbeddingTool returns the tool definition for generate_embedding
func generateEmbeddingTool() mcp.Tool {
	return mcp.Tool{
		Name:        "generate_embedding",
		Description: "Generate an embedding vector for a single text, served from cache when possible",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Text to embed",
				},
				"server_id": map[string]interface{}{
					"type":        "string",
					"description": "Owning server ID; required for deferred execution",
				},
				"collection_id": map[string]interface{}{
					"type":        "string",
					"description": "Owning collection ID; required for deferred execution",
				},
				"item_id": map[string]interface{}{
					"type":        "string",
					"description": "Item ID the embedding belongs to; required for deferred execution",
				},
				"priority": map[string]interface{}{
					"type":        "integer",
					"description": "Queue priority when deferred; higher runs first",
					"default":     0,
				},
			},
			Required: []string{"text"},
		},
	}
}

// generateBatchTool returns the tool definition for generate_batch
func generateBatchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "generate_batch",
		Description: "Generate embeddings for multiple texts in one call, with deduplication, caching and partial-failure reporting",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"texts": map[string]interface{}{
					"type":        "array",
					"description": "Texts to embed",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"item_ids": map[string]interface{}{
					"type":        "array",
					"description": "Optional item IDs, one per text; defaults to positional indexes",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"server_id": map[string]interface{}{
					"type":        "string",
					"description": "Owning server ID; required for deferred execution",
				},
				"collection_id": map[string]interface{}{
					"type":        "string",
					"description": "Owning collection ID; required for deferred execution",
				},
				"priority": map[string]interface{}{
					"type":        "integer",
					"description": "Queue priority when deferred; higher runs first",
					"default":     0,
				},
			},
			Required: []string{"texts"},
		},
	}
}

// cacheStatsTool returns the tool definition for cache_stats
func cacheStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cache_stats",
		Description: "Report embedding cache usage and circuit breaker states",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// invalidateCacheTool returns the tool definition for invalidate_cache
func invalidateCacheTool() mcp.Tool {
	return mcp.Tool{
		Name:        "invalidate_cache",
		Description: "Remove cached embeddings matching a provider/model/dimension filter, or everything with all=true",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"provider": map[string]interface{}{
					"type":        "string",
					"description": "Provider filter (e.g. openai, jina, local); empty matches any",
				},
				"model": map[string]interface{}{
					"type":        "string",
					"description": "Model filter; empty matches any",
				},
				"dimension": map[string]interface{}{
					"type":        "integer",
					"description": "Dimension filter; zero matches any",
				},
				"all": map[string]interface{}{
					"type":        "boolean",
					"description": "Clear the entire cache regardless of filters",
					"default":     false,
				},
			},
		},
	}
}

// healthCheckTool returns the tool definition for health_check
func healthCheckTool() mcp.Tool {
	return mcp.Tool{
		Name:        "health_check",
		Description: "Run provider, circuit, memory, cache and queue health checks with recommendations",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// queueStatusTool returns the tool definition for queue_status
func queueStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "queue_status",
		Description: "Report deferred-queue depth and item states",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
