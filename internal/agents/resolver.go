package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/statefultalk/internal/domain"
	"github.com/ashureev/statefultalk/internal/letta"
	"github.com/containerd/errdefs"
)

// Defaults applied to newly created agents.
const (
	DefaultModel     = "anthropic/claude-sonnet-4-20250514"
	DefaultEmbedding = "openai/text-embedding-3-small"
	PersonaLabel     = "persona"
)

// DefaultTools is the toolset granted to new agents.
var DefaultTools = []string{"web_search", "run_code"}

// Characters looks characters up by handle.
type Characters interface {
	Get(handle string) (domain.Character, error)
}

// Options overrides agent creation defaults. Zero values keep the default.
type Options struct {
	Model     string
	Embedding string
	Tools     []string
}

// Resolver binds characters to remote agents named character_<handle>.
type Resolver struct {
	characters Characters
	opts       Options
	logger     *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(characters Characters, opts Options, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Embedding == "" {
		opts.Embedding = DefaultEmbedding
	}
	if len(opts.Tools) == 0 {
		opts.Tools = DefaultTools
	}
	return &Resolver{characters: characters, opts: opts, logger: logger}
}

// Resolve returns the agent id for handle, creating the agent when no live
// agent carries the character's name. sharedBlockID is attached by
// reference to new agents and is required only when one must be created.
func (r *Resolver) Resolve(ctx context.Context, client letta.Platform, handle, sharedBlockID string) (agentID string, created bool, err error) {
	char, err := r.characters.Get(handle)
	if err != nil {
		return "", false, err
	}
	name := char.AgentName()
	log := r.logger.With("character", handle, "agent_name", name)

	if id, ok := r.existing(ctx, client, name, log); ok {
		return id, false, nil
	}

	if sharedBlockID == "" {
		return "", false, domain.ErrMissingSharedProfile
	}

	agent, err := client.CreateAgent(ctx, letta.CreateAgentParams{
		Name:         name,
		MemoryBlocks: []letta.MemoryBlock{{Label: PersonaLabel, Value: char.Bio}},
		BlockIDs:     []string{sharedBlockID},
		Tools:        append([]string(nil), r.opts.Tools...),
		Model:        r.opts.Model,
		Embedding:    r.opts.Embedding,
	})
	if err != nil {
		return "", false, fmt.Errorf("create agent for %s: %w", handle, err)
	}

	log.Info("agent created", "agent_id", agent.ID)
	return agent.ID, true, nil
}

// existing finds a live agent named name. Listing and retrieve failures
// count as a miss.
func (r *Resolver) existing(ctx context.Context, client letta.Platform, name string, log *slog.Logger) (string, bool) {
	page, err := client.ListAgents(ctx, letta.ListAgentsParams{Name: name, Limit: 1})
	if err != nil {
		log.Warn("agent lookup by name failed", "error", err)
		return "", false
	}
	if len(page.Agents) == 0 || page.Agents[0].Name != name {
		return "", false
	}

	candidate := page.Agents[0].ID
	agent, err := client.RetrieveAgent(ctx, candidate)
	switch {
	case err == nil && agent.ID == candidate:
		log.Debug("agent resolved", "agent_id", candidate)
		return candidate, true
	case err == nil:
		log.Warn("retrieved agent id mismatch", "agent_id", candidate, "got", agent.ID)
	case errdefs.IsNotFound(err):
		log.Debug("listed agent no longer exists", "agent_id", candidate)
	default:
		log.Warn("verifying agent failed, creating a new one", "agent_id", candidate, "error", err)
	}
	return "", false
}

// Reset deletes the agent bound to handle. The shared profile block is not
// touched, so a new agent created later still sees the same user profile.
func (r *Resolver) Reset(ctx context.Context, client letta.Platform, handle string) (string, error) {
	char, err := r.characters.Get(handle)
	if err != nil {
		return "", err
	}
	name := char.AgentName()

	id, ok := FindAgentIDByName(ctx, client, name, r.logger)
	if !ok {
		return "", domain.AgentNotFoundError(name)
	}
	if err := client.DeleteAgent(ctx, id); err != nil {
		return "", fmt.Errorf("reset %s: %w", handle, err)
	}

	r.logger.Info("agent reset", "character", handle, "agent_id", id)
	return id, nil
}
