// Package lettatest provides an in-memory letta.Platform for tests.
package lettatest

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"sort"
	"sync"

	"github.com/ashureev/statefultalk/internal/letta"
)

// Fake is a concurrency-safe in-memory platform. Hooks and error fields are
// read on every call so tests can change them between operations.
type Fake struct {
	mu sync.Mutex

	agents   []letta.Agent
	blocks   []letta.Block
	messages map[string][]letta.Message
	seq      int
	calls    map[string]int

	// ListAgentsHook, when set, runs before every ListAgents call; call
	// counts from 1. A non-nil error fails the call.
	ListAgentsHook   func(call int, p letta.ListAgentsParams) error
	RetrieveAgentErr error
	CreateAgentErr   error
	ListBlocksErr    error
	CreateBlockErr   error
	RetrieveBlockErr error
	ModifyBlockErr   error
	ListMessagesErr  error

	// StreamReply produces the chunks for StreamMessage. A non-nil error is
	// yielded after the chunks.
	StreamReply func(agentID, text string) ([]letta.StreamChunk, error)

	// Created records every CreateAgent request.
	Created []letta.CreateAgentParams
}

var _ letta.Platform = (*Fake)(nil)

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		messages: make(map[string][]letta.Message),
		calls:    make(map[string]int),
	}
}

// Factory returns a letta.Factory that hands out f for any token.
func (f *Fake) Factory() letta.Factory {
	return func(string) letta.Platform { return f }
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// AddAgent seeds an agent and returns its id.
func (f *Fake) AddAgent(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addAgentLocked(name)
}

// AddBlock seeds a block and returns its id.
func (f *Fake) AddBlock(label, value string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	b := letta.Block{ID: fmt.Sprintf("block-%d", f.seq), Label: label, Value: value}
	f.blocks = append(f.blocks, b)
	return b.ID
}

// SetHistory replaces an agent's stored messages.
func (f *Fake) SetHistory(agentID string, msgs []letta.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[agentID] = msgs
}

// Agents returns a snapshot of stored agents.
func (f *Fake) Agents() []letta.Agent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]letta.Agent(nil), f.agents...)
}

// Blocks returns a snapshot of stored blocks.
func (f *Fake) Blocks() []letta.Block {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]letta.Block(nil), f.blocks...)
}

func (f *Fake) addAgentLocked(name string) string {
	f.seq++
	a := letta.Agent{ID: fmt.Sprintf("agent-%03d", f.seq), Name: name}
	f.agents = append(f.agents, a)
	sort.Slice(f.agents, func(i, j int) bool { return f.agents[i].ID < f.agents[j].ID })
	return a.ID
}

func (f *Fake) count(op string) int {
	f.calls[op]++
	return f.calls[op]
}

func notFound(kind, id string) error {
	return &letta.APIError{Status: http.StatusNotFound, Message: kind + " " + id + " not found"}
}

func (f *Fake) ListAgents(_ context.Context, p letta.ListAgentsParams) (letta.AgentPage, error) {
	f.mu.Lock()
	call := f.count("ListAgents")
	hook := f.ListAgentsHook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(call, p); err != nil {
			return letta.AgentPage{}, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var out []letta.Agent
	past := p.Cursor == ""
	for _, a := range f.agents {
		if !past {
			past = a.ID == p.Cursor
			continue
		}
		if p.Name != "" && a.Name != p.Name {
			continue
		}
		out = append(out, a)
		if p.Limit > 0 && len(out) == p.Limit {
			break
		}
	}

	page := letta.AgentPage{Agents: out}
	if p.Limit > 0 && len(out) == p.Limit {
		page.NextCursor = out[len(out)-1].ID
	}
	return page, nil
}

func (f *Fake) RetrieveAgent(_ context.Context, id string) (letta.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("RetrieveAgent")
	if f.RetrieveAgentErr != nil {
		return letta.Agent{}, f.RetrieveAgentErr
	}
	for _, a := range f.agents {
		if a.ID == id {
			return a, nil
		}
	}
	return letta.Agent{}, notFound("agent", id)
}

func (f *Fake) CreateAgent(_ context.Context, p letta.CreateAgentParams) (letta.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("CreateAgent")
	if f.CreateAgentErr != nil {
		return letta.Agent{}, f.CreateAgentErr
	}
	f.Created = append(f.Created, p)
	id := f.addAgentLocked(p.Name)
	return letta.Agent{ID: id, Name: p.Name}, nil
}

func (f *Fake) DeleteAgent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("DeleteAgent")
	for i, a := range f.agents {
		if a.ID == id {
			f.agents = append(f.agents[:i], f.agents[i+1:]...)
			delete(f.messages, id)
			return nil
		}
	}
	return notFound("agent", id)
}

func (f *Fake) ListMessages(_ context.Context, agentID string) ([]letta.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("ListMessages")
	if f.ListMessagesErr != nil {
		return nil, f.ListMessagesErr
	}
	return append([]letta.Message(nil), f.messages[agentID]...), nil
}

func (f *Fake) StreamMessage(_ context.Context, agentID, text string) iter.Seq2[letta.StreamChunk, error] {
	f.mu.Lock()
	f.count("StreamMessage")
	reply := f.StreamReply
	f.mu.Unlock()

	return func(yield func(letta.StreamChunk, error) bool) {
		if reply == nil {
			return
		}
		chunks, err := reply(agentID, text)
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
		if err != nil {
			yield(letta.StreamChunk{}, err)
		}
	}
}

func (f *Fake) ListBlocks(_ context.Context, p letta.ListBlocksParams) ([]letta.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("ListBlocks")
	if f.ListBlocksErr != nil {
		return nil, f.ListBlocksErr
	}
	var out []letta.Block
	for _, b := range f.blocks {
		if p.Label != "" && b.Label != p.Label {
			continue
		}
		out = append(out, b)
		if p.Limit > 0 && len(out) == p.Limit {
			break
		}
	}
	return out, nil
}

func (f *Fake) CreateBlock(_ context.Context, p letta.CreateBlockParams) (letta.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("CreateBlock")
	if f.CreateBlockErr != nil {
		return letta.Block{}, f.CreateBlockErr
	}
	f.seq++
	b := letta.Block{ID: fmt.Sprintf("block-%d", f.seq), Label: p.Label, Value: p.Value, Description: p.Description}
	f.blocks = append(f.blocks, b)
	return b, nil
}

func (f *Fake) RetrieveBlock(_ context.Context, id string) (letta.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("RetrieveBlock")
	if f.RetrieveBlockErr != nil {
		return letta.Block{}, f.RetrieveBlockErr
	}
	for _, b := range f.blocks {
		if b.ID == id {
			return b, nil
		}
	}
	return letta.Block{}, notFound("block", id)
}

func (f *Fake) ModifyBlock(_ context.Context, id, value string) (letta.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("ModifyBlock")
	if f.ModifyBlockErr != nil {
		return letta.Block{}, f.ModifyBlockErr
	}
	for i, b := range f.blocks {
		if b.ID == id {
			f.blocks[i].Value = value
			return f.blocks[i], nil
		}
	}
	return letta.Block{}, notFound("block", id)
}

// Text is a convenience assistant_message chunk.
func Text(s string) letta.StreamChunk {
	raw, _ := json.Marshal(s)
	return letta.StreamChunk{MessageType: letta.MessageTypeAssistant, Content: raw}
}
