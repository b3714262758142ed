package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/atelier-ai/atelier/pkg/models"
)

// Tool argument structs.

type userArgs struct {
	UserID string `json:"user_id"`
}

type routeArgs struct {
	Prompt         string   `json:"prompt"`
	UserID         string   `json:"user_id"`
	HasActiveImage bool     `json:"has_active_image"`
	UploadedImages []string `json:"uploaded_images"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) callResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"atelier_route":        handleRoute,
	"atelier_stats":        handleStats,
	"atelier_sessions":     handleSessions,
	"atelier_breaker":      handleBreaker,
	"atelier_cache_stats":  handleCacheStats,
	"atelier_audit_search": handleAuditSearch,
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []toolSpec{
	{
		Name:        "atelier_route",
		Description: "Classify a creative prompt and return the generation type, model, and parameters it would route to.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"prompt"},
			"properties": map[string]any{
				"prompt": map[string]any{
					"type":        "string",
					"description": "The creative generation prompt to classify",
				},
				"user_id": map[string]any{
					"type":        "string",
					"description": "User the request belongs to (optional)",
				},
				"has_active_image": map[string]any{
					"type":        "boolean",
					"description": "Whether an image is open on the canvas",
				},
				"uploaded_images": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "URLs of uploaded reference images (optional)",
				},
			},
		},
	},
	{
		Name:        "atelier_stats",
		Description: "Show aggregated routing decisions grouped by method and model, optionally filtered by user.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_id": map[string]any{
					"type":        "string",
					"description": "Filter by user (optional, omit for all users)",
				},
			},
		},
	},
	{
		Name:        "atelier_sessions",
		Description: "List tracked creative sessions, optionally filtered by user.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_id": map[string]any{
					"type":        "string",
					"description": "Filter by user (optional, omit for all users)",
				},
			},
		},
	},
	{
		Name:        "atelier_breaker",
		Description: "Show the classifier circuit breaker state and failure counters.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "atelier_cache_stats",
		Description: "Show result cache statistics (entries, counters, hits, misses, hit rate).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "atelier_audit_search",
		Description: "Search the routing audit log with optional filters.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_id": map[string]any{
					"type":        "string",
					"description": "Filter by user (optional)",
				},
				"model": map[string]any{
					"type":        "string",
					"description": "Filter by downstream model (optional)",
				},
				"method": map[string]any{
					"type":        "string",
					"description": "Filter by routing method: LLM, RULE or CORRECTED (optional)",
				},
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (optional)",
				},
			},
		},
	},
}

func textResult(text string) callResult {
	return callResult{
		Content: []contentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) callResult {
	return callResult{
		Content: []contentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func handleRoute(ctx context.Context, s *Server, rawArgs json.RawMessage) callResult {
	if s.router == nil {
		return textResult("Routing engine is not configured.")
	}
	var args routeArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Prompt == "" {
		return errorResult("prompt is required")
	}

	result, err := s.router.Route(ctx, models.RouteRequest{
		Prompt:         args.Prompt,
		UserID:         args.UserID,
		HasActiveImage: args.HasActiveImage,
		UploadedImages: args.UploadedImages,
	})
	if err != nil {
		return errorResult("Error routing prompt: " + err.Error())
	}
	return textResult(formatRouteResult(result))
}

func handleStats(ctx context.Context, s *Server, rawArgs json.RawMessage) callResult {
	var args userArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	rows, err := s.tracker.Summary(ctx, args.UserID)
	if err != nil {
		return errorResult("Error fetching stats: " + err.Error())
	}
	return textResult(formatSummary(rows))
}

func handleSessions(ctx context.Context, s *Server, rawArgs json.RawMessage) callResult {
	var args userArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	sessions, err := s.tracker.ListSessions(ctx, args.UserID)
	if err != nil {
		return errorResult("Error fetching sessions: " + err.Error())
	}
	return textResult(formatSessions(sessions))
}

func handleBreaker(_ context.Context, s *Server, _ json.RawMessage) callResult {
	if s.router == nil {
		return textResult("Routing engine is not configured.")
	}
	return textResult(formatBreaker(s.router.BreakerStatus()))
}

type auditSearchArgs struct {
	UserID string `json:"user_id"`
	Model  string `json:"model"`
	Method string `json:"method"`
	Since  string `json:"since"`
}

func handleAuditSearch(ctx context.Context, s *Server, rawArgs json.RawMessage) callResult {
	if s.auditor == nil {
		return textResult("Audit logging is not configured.")
	}
	var args auditSearchArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	opts := models.AuditQueryOpts{
		UserID: args.UserID,
		Model:  args.Model,
		Method: models.RouteMethod(args.Method),
		Limit:  50,
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	entries, err := s.auditor.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching audit log: " + err.Error())
	}
	return textResult(formatAuditEntries(entries))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) callResult {
	if s.cache == nil {
		return textResult("Cache is not configured.")
	}
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}
