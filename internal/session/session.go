// Package session owns the per-device credential, the remote client built
// from it, and the cached shared user profile block.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/statefultalk/internal/domain"
	"github.com/ashureev/statefultalk/internal/letta"
	"github.com/ashureev/statefultalk/internal/notify"
	"github.com/ashureev/statefultalk/internal/store"
	"github.com/containerd/errdefs"
)

// State is a read-only view of a Store.
type State struct {
	HasCredential        bool    `json:"hasCredential"`
	SharedProfileBlockID string  `json:"sharedProfileBlockId,omitempty"`
	SharedProfileContent *string `json:"sharedProfileContent"`
	ProfileLoading       bool    `json:"profileLoading"`
}

// Store is the session of one device. It is the only writer of the
// credential and the shared profile block id.
type Store struct {
	deviceID string
	repo     store.Repository
	factory  letta.Factory
	notices  notify.Poster
	logger   *slog.Logger

	// profileMu serializes remote profile operations so a second
	// find-or-create observes the block created by the first.
	profileMu sync.Mutex

	// writeMu orders durable writes of the credential and block id so a
	// late profile result cannot land after the credential changed.
	writeMu sync.Mutex
	bg      sync.WaitGroup

	mu       sync.Mutex
	token    string
	gen      uint64 // bumped whenever the credential is set or cleared
	client   letta.Platform
	blockID  string
	content  *string
	inflight int
	// fetchedFor records the (credential, block id) pair whose content was
	// already requested by EnsureProfileContent.
	fetchedFor string
}

// Open restores a device session from durable storage.
func Open(ctx context.Context, deviceID string, repo store.Repository, factory letta.Factory, notices notify.Poster, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		deviceID: deviceID,
		repo:     repo,
		factory:  factory,
		notices:  notices,
		logger:   logger.With("device_id", deviceID),
	}

	token, ok, err := repo.GetPreference(ctx, deviceID, store.KeyCredential)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if ok && token != "" {
		s.token = token
		s.client = factory(token)
	}

	blockID, _, err := repo.GetPreference(ctx, deviceID, store.KeySharedProfileBlockID)
	if err != nil {
		return nil, fmt.Errorf("load shared profile block id: %w", err)
	}
	s.blockID = blockID

	return s, nil
}

// DeviceID returns the device this session belongs to.
func (s *Store) DeviceID() string {
	return s.deviceID
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		HasCredential:        s.token != "",
		SharedProfileBlockID: s.blockID,
		ProfileLoading:       s.inflight > 0,
	}
	if s.content != nil {
		c := *s.content
		st.SharedProfileContent = &c
	}
	return st
}

// Client returns the remote client for the current credential.
func (s *Store) Client() (letta.Platform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, domain.ErrNoCredential
	}
	return s.client, nil
}

// SharedProfileBlockID returns the cached block id, or "" when unknown.
func (s *Store) SharedProfileBlockID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockID
}

// ValidateCredential probes the platform with token without saving it.
func (s *Store) ValidateCredential(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("api key cannot be empty: %w", errdefs.ErrInvalidArgument)
	}
	if _, err := s.factory(token).ListAgents(ctx, letta.ListAgentsParams{Limit: 1}); err != nil {
		s.logger.Info("credential rejected", "error", err)
		return fmt.Errorf("%w: %s", domain.ErrInvalidCredential, err.Error())
	}
	return nil
}

// SetCredential stores or clears the credential. Setting a credential
// starts the shared profile bootstrap in the background; clearing drops the
// client and every cached profile value.
func (s *Store) SetCredential(ctx context.Context, token *string) error {
	if token == nil || strings.TrimSpace(*token) == "" {
		return s.clearCredential(ctx)
	}
	tok := strings.TrimSpace(*token)

	s.writeMu.Lock()
	if err := s.repo.SetPreference(ctx, s.deviceID, store.KeyCredential, tok); err != nil {
		s.writeMu.Unlock()
		return fmt.Errorf("save credential: %w", err)
	}

	client := s.factory(tok)
	s.mu.Lock()
	s.token = tok
	s.client = client
	s.gen++
	gen := s.gen
	s.content = nil
	s.fetchedFor = ""
	s.mu.Unlock()
	s.writeMu.Unlock()

	s.logger.Info("credential set")

	bgCtx := context.WithoutCancel(ctx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.findOrCreate(bgCtx, client, gen)
	}()
	return nil
}

func (s *Store) clearCredential(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.gen++
	s.mu.Unlock()

	if err := s.repo.DeletePreference(ctx, s.deviceID, store.KeyCredential); err != nil {
		return fmt.Errorf("remove credential: %w", err)
	}
	if err := s.repo.DeletePreference(ctx, s.deviceID, store.KeySharedProfileBlockID); err != nil {
		return fmt.Errorf("remove shared profile block id: %w", err)
	}

	s.mu.Lock()
	s.token = ""
	s.client = nil
	s.blockID = ""
	s.content = nil
	s.fetchedFor = ""
	s.mu.Unlock()

	s.logger.Info("credential cleared")
	return nil
}

// Wait blocks until background bootstrap work has finished.
func (s *Store) Wait() {
	s.bg.Wait()
}

// FindOrCreateSharedProfileBlock looks up the shared profile block by label
// and creates it when absent. Failures are reported as a notification and
// ok=false; they never propagate as errors. A result that arrives after the
// credential changed is discarded.
func (s *Store) FindOrCreateSharedProfileBlock(ctx context.Context, client letta.Platform) (blockID string, ok bool) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	return s.findOrCreate(ctx, client, gen)
}

func (s *Store) findOrCreate(ctx context.Context, client letta.Platform, gen uint64) (string, bool) {
	if client == nil {
		s.logger.Error("find-or-create shared profile without a client")
		return "", false
	}

	s.profileMu.Lock()
	defer s.profileMu.Unlock()
	s.begin()
	defer s.end()

	blocks, err := client.ListBlocks(ctx, letta.ListBlocksParams{Label: SharedProfileLabel, Limit: 1})
	if err != nil {
		s.failProfile(ctx, gen, err)
		return "", false
	}

	if len(blocks) > 0 {
		b := blocks[0]
		if !s.storeBlock(ctx, gen, b.ID, &b.Value) {
			return "", false
		}
		s.logger.Info("shared profile block found", "block_id", b.ID)
		return b.ID, true
	}
	if !s.isCurrent(gen) {
		return "", false
	}

	b, err := client.CreateBlock(ctx, letta.CreateBlockParams{
		Label:       SharedProfileLabel,
		Value:       DefaultProfileContent,
		Description: SharedProfileDescription,
	})
	if err != nil {
		s.failProfile(ctx, gen, err)
		return "", false
	}

	if !s.storeBlock(ctx, gen, b.ID, &b.Value) {
		s.logger.Warn("credential changed while creating shared profile block", "block_id", b.ID)
		return "", false
	}
	s.logger.Info("shared profile block created", "block_id", b.ID)
	s.post("User Profile Created", "A new shared profile has been created for you.", notify.VariantDefault)
	return b.ID, true
}

func (s *Store) failProfile(ctx context.Context, gen uint64, err error) {
	if !s.storeBlock(ctx, gen, "", nil) {
		s.logger.Debug("discarding profile failure for a replaced credential", "error", err)
		return
	}
	s.logger.Error("load or create shared profile block failed", "error", err)
	s.post("Profile Error", "Could not load or create your shared user profile.", notify.VariantDestructive)
}

// EnsureProfileContent fetches the shared profile content when a credential
// and block id are known but the content is not. Each (credential, block id)
// pair is fetched at most once. It reports whether a fetch was attempted.
func (s *Store) EnsureProfileContent(ctx context.Context) bool {
	s.mu.Lock()
	key := s.token + "\x00" + s.blockID
	if s.token == "" || s.client == nil || s.blockID == "" || s.content != nil ||
		s.inflight > 0 || s.fetchedFor == key {
		s.mu.Unlock()
		return false
	}
	client, blockID, gen := s.client, s.blockID, s.gen
	s.fetchedFor = key
	s.inflight++
	s.mu.Unlock()
	defer s.end()

	s.profileMu.Lock()
	defer s.profileMu.Unlock()

	b, err := client.RetrieveBlock(ctx, blockID)
	switch {
	case err == nil:
		s.mu.Lock()
		current := s.gen == gen && s.blockID == blockID
		if current {
			v := b.Value
			s.content = &v
		}
		s.mu.Unlock()
		if current {
			s.post("User Profile Loaded", "Your profile content has been loaded.", notify.VariantDefault)
		}
	case errdefs.IsNotFound(err):
		s.logger.Warn("stored shared profile block no longer exists, clearing id", "block_id", blockID)
		s.mu.Lock()
		stale := s.blockID == blockID
		s.mu.Unlock()
		if stale {
			s.storeBlock(ctx, gen, "", nil)
		}
	default:
		s.logger.Error("fetch shared profile content failed", "block_id", blockID, "error", err)
		s.post("Profile Content Error", "Could not fetch your profile content. "+err.Error(), notify.VariantDestructive)
	}
	return true
}

// UpdateSharedProfileContent pushes new profile text. The cached content
// changes only after the remote update succeeds.
func (s *Store) UpdateSharedProfileContent(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return domain.ErrEmptyProfile
	}

	s.mu.Lock()
	client, blockID := s.client, s.blockID
	s.mu.Unlock()

	if client == nil || blockID == "" {
		s.post("Error", "Cannot update profile. Client or Block ID missing.", notify.VariantDestructive)
		if client == nil {
			return domain.ErrNoCredential
		}
		return domain.ErrMissingSharedProfile
	}

	s.profileMu.Lock()
	defer s.profileMu.Unlock()
	s.begin()
	defer s.end()

	if _, err := client.ModifyBlock(ctx, blockID, text); err != nil {
		s.logger.Error("update shared profile failed", "block_id", blockID, "error", err)
		s.post("Update Failed", "Could not save your profile. "+err.Error(), notify.VariantDestructive)
		return fmt.Errorf("update shared profile: %w", err)
	}

	s.mu.Lock()
	v := text
	s.content = &v
	s.mu.Unlock()

	s.post("Profile Updated", "Your shared profile has been saved.", notify.VariantDefault)
	return nil
}

// storeBlock records the block id and content, unless the credential
// generation moved past gen. It reports whether the values were stored.
func (s *Store) storeBlock(ctx context.Context, gen uint64, id string, content *string) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.isCurrent(gen) {
		return false
	}

	var err error
	if id == "" {
		err = s.repo.DeletePreference(ctx, s.deviceID, store.KeySharedProfileBlockID)
	} else {
		err = s.repo.SetPreference(ctx, s.deviceID, store.KeySharedProfileBlockID, id)
	}
	if err != nil {
		s.logger.Warn("persist shared profile block id failed", "block_id", id, "error", err)
	}

	s.mu.Lock()
	s.blockID = id
	if content != nil {
		v := *content
		s.content = &v
	} else {
		s.content = nil
	}
	s.mu.Unlock()
	return true
}

func (s *Store) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Store) begin() {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()
}

func (s *Store) end() {
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
}

func (s *Store) post(title, description string, variant notify.Variant) {
	if s.notices != nil {
		s.notices.Post(title, description, variant)
	}
}
