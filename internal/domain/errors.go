package domain

import (
	"fmt"

	"github.com/containerd/errdefs"
)

// Configuration errors block an action until the user configures credentials.
var (
	ErrNoCredential         = fmt.Errorf("api key is not set: %w", errdefs.ErrUnauthenticated)
	ErrMissingSharedProfile = fmt.Errorf("shared user profile block id is missing: %w", errdefs.ErrFailedPrecondition)
	ErrInvalidCredential    = fmt.Errorf("invalid api key: %w", errdefs.ErrUnauthenticated)
)

// Data integrity errors are rendered as a page-level banner.
var ErrEmptyCharacterList = fmt.Errorf("character list is unexpectedly empty: %w", errdefs.ErrDataLoss)

// Chat input errors.
var (
	ErrEmptyMessage   = fmt.Errorf("message is empty: %w", errdefs.ErrInvalidArgument)
	ErrSendInProgress = fmt.Errorf("a message is already being sent: %w", errdefs.ErrConflict)
	ErrAgentNotReady  = fmt.Errorf("chat agent is not resolved: %w", errdefs.ErrFailedPrecondition)
	ErrEmptyProfile   = fmt.Errorf("profile content is empty: %w", errdefs.ErrInvalidArgument)
)

// CharacterNotFoundError reports an unknown character handle.
func CharacterNotFoundError(handle string) error {
	return fmt.Errorf("character with handle %q not found: %w", handle, errdefs.ErrNotFound)
}

// AgentNotFoundError reports that no remote agent is bound to a character.
func AgentNotFoundError(name string) error {
	return fmt.Errorf("agent %q not found: %w", name, errdefs.ErrNotFound)
}
