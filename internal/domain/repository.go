package domain

import "context"

// ImageRepository handles persistence for generated images and their edits.
type ImageRepository interface {
	Create(ctx context.Context, image *GeneratedImage) error
	AppendEdit(ctx context.Context, edit *EditHistoryEntry) error
	GetByID(ctx context.Context, id string) (*GeneratedImage, error)
	List(ctx context.Context, limit, offset int) ([]GeneratedImage, error)
	ListEdits(ctx context.Context, imageID string) ([]EditHistoryEntry, error)
	Delete(ctx context.Context, id string) error
}

// PromptHistoryRepository persists prompt snapshots.
type PromptHistoryRepository interface {
	Create(ctx context.Context, entry *PromptHistoryEntry) error
	List(ctx context.Context, limit, offset int) ([]PromptHistoryEntry, error)
	ListByImage(ctx context.Context, imageID string) ([]PromptHistoryEntry, error)
}

// SecretStore is opaque key/value secure storage for API credentials.
// Get returns an empty string, not an error, when no value is stored.
type SecretStore interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string) error
}
