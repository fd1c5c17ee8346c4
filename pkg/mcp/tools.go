package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pario-ai/quotaguard/pkg/models"
)

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"quota_usage":          handleUsage,
	"quota_ledger":         handleLedger,
	"quota_ledger_summary": handleLedgerSummary,
	"quota_cache_stats":    handleCacheStats,
	"quota_admin_actions":  handleAdminActions,
}

func sinceProperty() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Start date in YYYY-MM-DD format (optional, defaults to today UTC)",
	}
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "quota_usage",
		Description: "Show today's provider quota: limit, used, remaining, reset time and admin override.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "quota_ledger",
		Description: "List the most recent metered provider calls, newest first.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{
					"type":        "integer",
					"description": "Number of entries (optional, default 50)",
				},
			},
		},
	},
	{
		Name:        "quota_ledger_summary",
		Description: "Group metered calls by endpoint and category since a date.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"since": sinceProperty(),
			},
		},
	},
	{
		Name:        "quota_cache_stats",
		Description: "Show response cache statistics (entries, hits, misses, hit rate).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "quota_admin_actions",
		Description: "Search the audit trail of limit changes and override toggles.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type":        "string",
					"enum":        []string{string(models.ActionLimitChange), string(models.ActionOverrideToggle)},
					"description": "Filter by action (optional)",
				},
				"actor_id": map[string]any{
					"type":        "string",
					"description": "Filter by actor (optional)",
				},
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (optional)",
				},
			},
		},
	},
}

func handleUsage(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.src.Usage == nil {
		return textResult("Budget is not configured.")
	}
	return textResult(formatUsage(s.src.Usage.Stats(ctx)))
}

type ledgerArgs struct {
	Limit int `json:"limit"`
}

func handleLedger(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.src.Ledger == nil {
		return textResult("Ledger is not configured.")
	}
	var args ledgerArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}
	if args.Limit < 0 {
		return errorResult("limit must not be negative")
	}
	entries, err := s.src.Ledger.Tail(ctx, args.Limit)
	if err != nil {
		return errorResult("Error reading ledger: " + err.Error())
	}
	return textResult(formatLedger(entries))
}

type sinceArgs struct {
	Since string `json:"since"`
}

func handleLedgerSummary(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.src.Ledger == nil {
		return textResult("Ledger is not configured.")
	}
	var args sinceArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	since := startOfDay(s.now())
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		since = t
	}
	rows, err := s.src.Ledger.Summary(ctx, since)
	if err != nil {
		return errorResult("Error summarizing ledger: " + err.Error())
	}
	return textResult(formatLedgerSummary(rows))
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.src.Cache == nil {
		return textResult("Cache is not configured.")
	}
	stats, err := s.src.Cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

type adminActionsArgs struct {
	Action  string `json:"action"`
	ActorID string `json:"actor_id"`
	Since   string `json:"since"`
}

func handleAdminActions(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.src.Audit == nil {
		return textResult("Audit logging is not configured.")
	}
	var args adminActionsArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	opts := models.AdminQueryOpts{
		Action:  models.AdminActionType(args.Action),
		ActorID: args.ActorID,
		Limit:   50,
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	actions, err := s.src.Audit.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching admin actions: " + err.Error())
	}
	return textResult(formatAdminActions(actions))
}
