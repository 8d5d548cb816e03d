package agents

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ashureev/statefultalk/internal/characters"
	"github.com/ashureev/statefultalk/internal/domain"
	"github.com/ashureev/statefultalk/internal/letta"
	"github.com/ashureev/statefultalk/internal/letta/lettatest"
	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAgents(f *lettatest.Fake, n int) {
	for i := 0; i < n; i++ {
		f.AddAgent(fmt.Sprintf("agent_%d", i))
	}
}

func TestListAllAgentsPaginates(t *testing.T) {
	f := lettatest.New()
	seedAgents(f, 110)

	got := ListAllAgents(context.Background(), f, nil)
	assert.Len(t, got, 110)
	assert.Equal(t, 3, f.Calls("ListAgents"))
}

func TestListAllAgentsPartialOnPageFailure(t *testing.T) {
	f := lettatest.New()
	seedAgents(f, 110)
	f.ListAgentsHook = func(call int, _ letta.ListAgentsParams) error {
		if call == 2 {
			return errors.New("transient")
		}
		return nil
	}

	got := ListAllAgents(context.Background(), f, nil)
	assert.Len(t, got, 50)
	assert.Equal(t, 2, f.Calls("ListAgents"))
}

func TestListAllAgentsEmpty(t *testing.T) {
	got := ListAllAgents(context.Background(), lettatest.New(), nil)
	assert.Empty(t, got)
}

func TestFindAgentIDByName(t *testing.T) {
	f := lettatest.New()
	seedAgents(f, 60)
	id := f.AddAgent("character_ada")

	got, ok := FindAgentIDByName(context.Background(), f, "character_ada", nil)
	assert.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = FindAgentIDByName(context.Background(), f, "character_nobody", nil)
	assert.False(t, ok)
}

func newResolver(t *testing.T) (*Resolver, *characters.Directory) {
	t.Helper()
	dir, err := characters.Bundled()
	require.NoError(t, err)
	return NewResolver(dir, Options{}, nil), dir
}

func TestResolveIsIdempotentForEveryCharacter(t *testing.T) {
	r, dir := newResolver(t)
	f := lettatest.New()
	ctx := context.Background()

	for _, c := range dir.All() {
		first, created, err := r.Resolve(ctx, f, c.Handle, "block-shared")
		require.NoError(t, err)
		assert.True(t, created)

		second, created, err := r.Resolve(ctx, f, c.Handle, "block-shared")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first, second, c.Handle)
	}
	assert.Len(t, f.Agents(), dir.Len())
}

func TestResolveCreatesWithDefaults(t *testing.T) {
	r, dir := newResolver(t)
	f := lettatest.New()
	ada, err := dir.Get("ada")
	require.NoError(t, err)

	_, _, err = r.Resolve(context.Background(), f, "ada", "block-shared")
	require.NoError(t, err)

	require.Len(t, f.Created, 1)
	p := f.Created[0]
	assert.Equal(t, "character_ada", p.Name)
	assert.Equal(t, []letta.MemoryBlock{{Label: "persona", Value: ada.Bio}}, p.MemoryBlocks)
	assert.Equal(t, []string{"block-shared"}, p.BlockIDs)
	assert.Equal(t, []string{"web_search", "run_code"}, p.Tools)
	assert.Equal(t, DefaultModel, p.Model)
	assert.Equal(t, DefaultEmbedding, p.Embedding)
}

func TestResolveOptionsOverrideDefaults(t *testing.T) {
	dir, err := characters.Bundled()
	require.NoError(t, err)
	r := NewResolver(dir, Options{Model: "openai/gpt-4o", Tools: []string{"web_search"}}, nil)
	f := lettatest.New()

	_, _, err = r.Resolve(context.Background(), f, "ada", "b")
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", f.Created[0].Model)
	assert.Equal(t, DefaultEmbedding, f.Created[0].Embedding)
	assert.Equal(t, []string{"web_search"}, f.Created[0].Tools)
}

func TestResolveUnknownCharacter(t *testing.T) {
	r, _ := newResolver(t)
	_, _, err := r.Resolve(context.Background(), lettatest.New(), "nobody", "b")
	assert.True(t, errdefs.IsNotFound(err))
}

func TestResolveRequiresSharedBlockOnlyToCreate(t *testing.T) {
	r, _ := newResolver(t)
	f := lettatest.New()
	ctx := context.Background()

	_, _, err := r.Resolve(ctx, f, "ada", "")
	assert.ErrorIs(t, err, domain.ErrMissingSharedProfile)
	assert.Zero(t, f.Calls("CreateAgent"))

	id := f.AddAgent("character_ada")
	got, created, err := r.Resolve(ctx, f, "ada", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, got)
}

func TestResolveRetrieveFailureFallsBackToCreate(t *testing.T) {
	r, _ := newResolver(t)
	ctx := context.Background()

	for name, retrieveErr := range map[string]error{
		"not found": &letta.APIError{Status: http.StatusNotFound},
		"other":     &letta.APIError{Status: http.StatusBadGateway},
	} {
		t.Run(name, func(t *testing.T) {
			f := lettatest.New()
			stale := f.AddAgent("character_ada")
			f.RetrieveAgentErr = retrieveErr

			id, created, err := r.Resolve(ctx, f, "ada", "b")
			require.NoError(t, err)
			assert.True(t, created)
			assert.NotEqual(t, stale, id)
		})
	}
}

func TestResolveListingFailureFallsBackToCreate(t *testing.T) {
	r, _ := newResolver(t)
	f := lettatest.New()
	f.ListAgentsHook = func(int, letta.ListAgentsParams) error { return errors.New("down") }

	_, created, err := r.Resolve(context.Background(), f, "ada", "b")
	require.NoError(t, err)
	assert.True(t, created)
}

func TestResolveCreateFailure(t *testing.T) {
	r, _ := newResolver(t)
	f := lettatest.New()
	f.CreateAgentErr = &letta.APIError{Status: http.StatusTooManyRequests, Message: "quota"}

	_, _, err := r.Resolve(context.Background(), f, "ada", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
}

func TestResetThenResolveCreatesNewAgent(t *testing.T) {
	r, _ := newResolver(t)
	f := lettatest.New()
	shared := f.AddBlock("statefultalk_shared_user_profile_v1", "profile")
	ctx := context.Background()

	before, _, err := r.Resolve(ctx, f, "ada", shared)
	require.NoError(t, err)

	deleted, err := r.Reset(ctx, f, "ada")
	require.NoError(t, err)
	assert.Equal(t, before, deleted)

	after, created, err := r.Resolve(ctx, f, "ada", shared)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, before, after)

	blocks := f.Blocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, shared, blocks[0].ID)
	assert.Equal(t, "profile", blocks[0].Value)
}

func TestResetMissingAgent(t *testing.T) {
	r, _ := newResolver(t)
	_, err := r.Reset(context.Background(), lettatest.New(), "ada")
	assert.True(t, errdefs.IsNotFound(err))
}
