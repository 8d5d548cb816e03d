// Package store provides durable per-device key-value preferences.
package store

import (
	"context"
)

// Preference keys.
const (
	// KeyCredential holds the remote platform API key.
	KeyCredential = "letta-api-key"
	// KeySharedProfileBlockID caches the id of the shared user profile block.
	KeySharedProfileBlockID = "letta-shared-profile-block-id"
)

// Repository persists small string preferences scoped by device id.
type Repository interface {
	// GetPreference returns the stored value and whether it exists.
	GetPreference(ctx context.Context, deviceID, key string) (string, bool, error)

	// SetPreference creates or replaces a value.
	SetPreference(ctx context.Context, deviceID, key, value string) error

	// DeletePreference removes a value. Deleting a missing key is not an error.
	DeletePreference(ctx context.Context, deviceID, key string) error

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases the backing storage.
	Close() error
}
