package letta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the hosted platform endpoint.
const DefaultBaseURL = "https://api.letta.com"

const maxErrorBody = 64 << 10

// Platform is the subset of the remote API the application depends on.
type Platform interface {
	ListAgents(ctx context.Context, params ListAgentsParams) (AgentPage, error)
	RetrieveAgent(ctx context.Context, id string) (Agent, error)
	CreateAgent(ctx context.Context, params CreateAgentParams) (Agent, error)
	DeleteAgent(ctx context.Context, id string) error

	ListMessages(ctx context.Context, agentID string) ([]Message, error)
	// StreamMessage sends one user message and yields the reply as it arrives.
	StreamMessage(ctx context.Context, agentID, text string) iter.Seq2[StreamChunk, error]

	ListBlocks(ctx context.Context, params ListBlocksParams) ([]Block, error)
	CreateBlock(ctx context.Context, params CreateBlockParams) (Block, error)
	RetrieveBlock(ctx context.Context, id string) (Block, error)
	ModifyBlock(ctx context.Context, id, value string) (Block, error)
}

// Factory builds a Platform bound to one credential.
type Factory func(token string) Platform

// Config holds client configuration.
type Config struct {
	BaseURL string
	// Timeout bounds unary requests. Streaming requests are not bounded.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client is an HTTP implementation of Platform.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	stream  *http.Client
	logger  *slog.Logger
}

var _ Platform = (*Client)(nil)

// NewClient creates a client that authenticates with token.
func NewClient(token string, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: cfg.Timeout},
		stream:  &http.Client{},
		logger:  cfg.Logger,
	}
}

// NewFactory returns a Factory producing clients with cfg.
func NewFactory(cfg Config) Factory {
	return func(token string) Platform {
		return NewClient(token, cfg)
	}
}

// ListAgents returns one page of agents.
func (c *Client) ListAgents(ctx context.Context, params ListAgentsParams) (AgentPage, error) {
	q := url.Values{}
	if params.Name != "" {
		q.Set("name", params.Name)
	}
	if params.Cursor != "" {
		q.Set("after", params.Cursor)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/v1/agents", q, nil, &raw); err != nil {
		return AgentPage{}, fmt.Errorf("list agents: %w", err)
	}
	agents, next, err := decodeList(raw, params.Limit, func(a Agent) string { return a.ID })
	if err != nil {
		return AgentPage{}, fmt.Errorf("list agents: %w", err)
	}
	return AgentPage{Agents: agents, NextCursor: next}, nil
}

// RetrieveAgent fetches one agent by id.
func (c *Client) RetrieveAgent(ctx context.Context, id string) (Agent, error) {
	var a Agent
	if err := c.do(ctx, http.MethodGet, "/v1/agents/"+url.PathEscape(id), nil, nil, &a); err != nil {
		return Agent{}, fmt.Errorf("retrieve agent %s: %w", id, err)
	}
	return a, nil
}

// CreateAgent creates an agent.
func (c *Client) CreateAgent(ctx context.Context, params CreateAgentParams) (Agent, error) {
	var a Agent
	if err := c.do(ctx, http.MethodPost, "/v1/agents", nil, params, &a); err != nil {
		return Agent{}, fmt.Errorf("create agent %s: %w", params.Name, err)
	}
	return a, nil
}

// DeleteAgent deletes an agent and its private memory.
func (c *Client) DeleteAgent(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/v1/agents/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return fmt.Errorf("delete agent %s: %w", id, err)
	}
	return nil
}

// ListMessages returns an agent's stored history, oldest first.
func (c *Client) ListMessages(ctx context.Context, agentID string) ([]Message, error) {
	var raw json.RawMessage
	path := "/v1/agents/" + url.PathEscape(agentID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &raw); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs, _, err := decodeList(raw, 0, func(m Message) string { return m.ID })
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// ListBlocks returns blocks matching params.
func (c *Client) ListBlocks(ctx context.Context, params ListBlocksParams) ([]Block, error) {
	q := url.Values{}
	if params.Label != "" {
		q.Set("label", params.Label)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/v1/blocks", q, nil, &raw); err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	blocks, _, err := decodeList(raw, params.Limit, func(b Block) string { return b.ID })
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	return blocks, nil
}

// CreateBlock creates a standalone block.
func (c *Client) CreateBlock(ctx context.Context, params CreateBlockParams) (Block, error) {
	var b Block
	if err := c.do(ctx, http.MethodPost, "/v1/blocks", nil, params, &b); err != nil {
		return Block{}, fmt.Errorf("create block %s: %w", params.Label, err)
	}
	return b, nil
}

// RetrieveBlock fetches one block by id.
func (c *Client) RetrieveBlock(ctx context.Context, id string) (Block, error) {
	var b Block
	if err := c.do(ctx, http.MethodGet, "/v1/blocks/"+url.PathEscape(id), nil, nil, &b); err != nil {
		return Block{}, fmt.Errorf("retrieve block %s: %w", id, err)
	}
	return b, nil
}

// ModifyBlock replaces a block's value.
func (c *Client) ModifyBlock(ctx context.Context, id, value string) (Block, error) {
	var b Block
	body := map[string]string{"value": value}
	if err := c.do(ctx, http.MethodPatch, "/v1/blocks/"+url.PathEscape(id), nil, body, &b); err != nil {
		return Block{}, fmt.Errorf("modify block %s: %w", id, err)
	}
	return b, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body any) (*http.Request, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, q, body)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("letta request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newAPIError(resp.StatusCode, data)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// decodeList accepts a bare array or a {data|messages, next_cursor} envelope.
// For bare arrays the cursor is the last id when the page is full.
func decodeList[T any](raw json.RawMessage, limit int, idOf func(T) string) ([]T, string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, "", nil
	}

	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, "", fmt.Errorf("decode list: %w", err)
		}
		next := ""
		if limit > 0 && len(items) == limit {
			next = idOf(items[len(items)-1])
		}
		return items, next, nil
	}

	var env struct {
		Data       []T    `json:"data"`
		Messages   []T    `json:"messages"`
		NextCursor string `json:"next_cursor"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, "", fmt.Errorf("decode list envelope: %w", err)
	}
	if env.Data == nil {
		env.Data = env.Messages
	}
	return env.Data, env.NextCursor, nil
}
