package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/embedgate/internal/cache"
	"github.com/dshills/embedgate/internal/degrade"
	"github.com/dshills/embedgate/internal/dispatch"
	"github.com/dshills/embedgate/internal/recovery"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeEmptyText        = -32001 // Text parameter is empty
	ErrorCodeDegraded         = -32002 // Embedding capability degraded
	ErrorCodeQueueUnavailable = -32003 // Deferred execution not enabled
)

// handleGenerateEmbedding handles the generate_embedding tool invocation
func (s *Server) handleGenerateEmbedding(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	text, ok := args["text"].(string)
	if !ok || text == "" {
		return nil, newMCPError(ErrorCodeEmptyText, "text parameter is required and cannot be empty", map[string]interface{}{
			"param":  "text",
			"reason": "missing or empty",
		})
	}

	req := dispatch.Request{
		ServerID:     getStringDefault(args, "server_id", ""),
		CollectionID: getStringDefault(args, "collection_id", ""),
		ItemID:       getStringDefault(args, "item_id", ""),
		Text:         text,
		Priority:     getIntDefault(args, "priority", 0),
	}

	result, err := s.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return nil, s.degradedError(ctx, err)
	}

	response := map[string]interface{}{
		"provider": s.provider.Name(),
		"model":    s.provider.Model(),
	}
	switch {
	case result.Queued:
		response["queued"] = true
	case result.Skipped:
		response["skipped"] = true
		response["reason"] = "identical text already being embedded"
	case result.Vector == nil:
		response["embedding"] = nil
		response["reason"] = "blank text embeds to nothing"
	default:
		response["embedding"] = result.Vector
		response["dimension"] = len(result.Vector)
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGenerateBatch handles the generate_batch tool invocation
func (s *Server) handleGenerateBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	rawTexts, ok := args["texts"].([]interface{})
	if !ok || len(rawTexts) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "texts parameter is required and cannot be empty", map[string]interface{}{
			"param":  "texts",
			"reason": "missing or empty",
		})
	}
	texts := make([]string, len(rawTexts))
	for i, raw := range rawTexts {
		text, ok := raw.(string)
		if !ok {
			return nil, newMCPError(ErrorCodeInvalidParams, "texts must be an array of strings", map[string]interface{}{
				"param": "texts",
				"index": i,
			})
		}
		texts[i] = text
	}

	// Items are keyed by position unless the caller supplies IDs, so
	// the batch can round-trip through the deferred queue.
	items := make(map[string]string, len(texts))
	if rawIDs, ok := args["item_ids"].([]interface{}); ok {
		if len(rawIDs) != len(texts) {
			return nil, newMCPError(ErrorCodeInvalidParams, "item_ids must match texts in length", map[string]interface{}{
				"param": "item_ids",
			})
		}
		for i, raw := range rawIDs {
			id, ok := raw.(string)
			if !ok || id == "" {
				return nil, newMCPError(ErrorCodeInvalidParams, "item_ids must be non-empty strings", map[string]interface{}{
					"param": "item_ids",
					"index": i,
				})
			}
			items[id] = texts[i]
		}
	} else {
		for i, text := range texts {
			items[strconv.Itoa(i)] = text
		}
	}

	req := dispatch.BatchRequest{
		ServerID:     getStringDefault(args, "server_id", ""),
		CollectionID: getStringDefault(args, "collection_id", ""),
		Items:        items,
		Priority:     getIntDefault(args, "priority", 0),
	}

	result, err := s.dispatcher.DispatchBatch(ctx, req)
	if err != nil && len(result.Vectors) == 0 {
		return nil, s.degradedError(ctx, err)
	}

	response := map[string]interface{}{
		"provider": s.provider.Name(),
		"model":    s.provider.Model(),
	}
	if result.Queued {
		response["queued"] = true
		response["items"] = len(items)
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	embeddings := make(map[string]interface{}, len(result.Vectors))
	for id, vector := range result.Vectors {
		embeddings[id] = vector
	}
	failed := make(map[string]interface{}, len(result.Failed))
	for id, ferr := range result.Failed {
		failed[id] = ferr.Error()
	}
	response["embeddings"] = embeddings
	response["cache_hits"] = result.CacheHits
	if len(failed) > 0 {
		response["failed"] = failed
	}
	if len(result.Skipped) > 0 {
		response["skipped"] = result.Skipped
	}
	if err != nil {
		// Partial results still go back to the caller; the error rides
		// along so the client can decide what to do with the gaps.
		response["degraded"] = err.Error()
		s.maybeRecover(ctx, err)
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCacheStats handles the cache_stats tool invocation
func (s *Server) handleCacheStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read cache stats", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"entries":       stats.Entries,
		"hits":          stats.Hits,
		"misses":        stats.Misses,
		"hit_rate":      fmt.Sprintf("%.3f", stats.HitRate),
		"avg_dimension": stats.AvgDimension,
	}
	if !stats.Oldest.IsZero() {
		response["oldest_entry"] = stats.Oldest.Format("2006-01-02T15:04:05Z07:00")
		response["newest_entry"] = stats.Newest.Format("2006-01-02T15:04:05Z07:00")
	}

	circuits := make([]map[string]interface{}, 0)
	for _, snap := range s.breakers.Snapshots() {
		circuits = append(circuits, map[string]interface{}{
			"name":                 snap.Name,
			"state":                snap.State.String(),
			"consecutive_failures": snap.ConsecutiveFailures,
		})
	}
	response["circuits"] = circuits

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleInvalidateCache handles the invalidate_cache tool invocation
func (s *Server) handleInvalidateCache(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	meta := cache.Meta{
		Provider:  getStringDefault(args, "provider", ""),
		Model:     getStringDefault(args, "model", ""),
		Dimension: getIntDefault(args, "dimension", 0),
	}
	all := getBoolDefault(args, "all", false)
	if !all && meta == (cache.Meta{}) {
		return nil, newMCPError(ErrorCodeInvalidParams, "set a filter or pass all=true to clear everything", map[string]interface{}{
			"reason": "refusing to clear the whole cache implicitly",
		})
	}

	var removed int64
	var err error
	if all {
		removed, err = s.cache.Clear(ctx)
	} else {
		removed, err = s.cache.Invalidate(ctx, meta)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "cache invalidation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"removed": removed,
	})), nil
}

// handleHealthCheck handles the health_check tool invocation
func (s *Server) handleHealthCheck(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report := s.health.Check(ctx)

	checks := make([]map[string]interface{}, 0, len(report.Checks))
	for _, c := range report.Checks {
		check := map[string]interface{}{
			"name":   c.Name,
			"status": string(c.Status),
		}
		if c.Detail != "" {
			check["detail"] = c.Detail
		}
		if c.Latency > 0 {
			check["latency_ms"] = c.Latency.Milliseconds()
		}
		checks = append(checks, check)
	}

	response := map[string]interface{}{
		"status":       string(report.Status),
		"checks":       checks,
		"generated_at": report.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if len(report.Recommendations) > 0 {
		response["recommendations"] = report.Recommendations
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleQueueStatus handles the queue_status tool invocation
func (s *Server) handleQueueStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.queue == nil {
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"enabled": false,
		})), nil
	}

	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read queue stats", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"enabled": true,
		"pending": stats.Pending,
		"claimed": stats.Claimed,
		"done":    stats.Done,
		"failed":  stats.Failed,
		"depth":   stats.Depth(),
	})), nil
}

// degradedError converts a degradation failure into an MCP error,
// triggering bounded recovery on the way out.
func (s *Server) degradedError(ctx context.Context, err error) error {
	s.maybeRecover(ctx, err)

	var f *degrade.Failure
	if errors.As(err, &f) {
		return newMCPError(ErrorCodeDegraded, "embedding capability degraded", map[string]interface{}{
			"kind":      string(f.Kind),
			"severity":  f.Severity.String(),
			"retryable": f.Retryable,
			"fallback":  string(f.Fallback),
			"error":     err.Error(),
		})
	}
	return newMCPError(ErrorCodeInternalError, "embedding generation failed", map[string]interface{}{
		"error": err.Error(),
	})
}

// maybeRecover runs the bounded self-healing path for a failure.
func (s *Server) maybeRecover(ctx context.Context, err error) {
	var f *degrade.Failure
	if !errors.As(err, &f) {
		return
	}
	c := recovery.Classify(f)
	if c.EscalationRequired || c.Severity >= degrade.SeverityMedium {
		s.recovery.AttemptRecovery(ctx, f, s.provider.Name())
	}
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
