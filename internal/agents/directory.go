// Package agents maps characters to remote agents.
package agents

import (
	"context"
	"log/slog"

	"github.com/ashureev/statefultalk/internal/letta"
)

// PageSize is the number of agents requested per listing page.
const PageSize = 50

// ListAllAgents returns a name -> id map of every agent visible to client.
// Pages are fetched one at a time. A failing page stops pagination and the
// entries gathered so far are returned.
func ListAllAgents(ctx context.Context, client letta.Platform, logger *slog.Logger) map[string]string {
	if logger == nil {
		logger = slog.Default()
	}

	agents := make(map[string]string)
	cursor := ""
	for page := 1; ; page++ {
		resp, err := client.ListAgents(ctx, letta.ListAgentsParams{Cursor: cursor, Limit: PageSize})
		if err != nil {
			logger.Warn("agent listing stopped early",
				"page", page,
				"collected", len(agents),
				"error", err,
			)
			return agents
		}

		for _, a := range resp.Agents {
			if a.Name != "" && a.ID != "" {
				agents[a.Name] = a.ID
			}
		}
		logger.Debug("agent page fetched", "page", page, "count", len(resp.Agents), "total", len(agents))

		if resp.NextCursor == "" || resp.NextCursor == cursor {
			return agents
		}
		cursor = resp.NextCursor
	}
}

// FindAgentIDByName looks name up in the full listing.
func FindAgentIDByName(ctx context.Context, client letta.Platform, name string, logger *slog.Logger) (string, bool) {
	id, ok := ListAllAgents(ctx, client, logger)[name]
	return id, ok
}
