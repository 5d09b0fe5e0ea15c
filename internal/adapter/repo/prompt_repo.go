package repo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fluxboom/internal/domain"
)

// PromptHistoryRepositoryPG implements domain.PromptHistoryRepository.
type PromptHistoryRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewPromptHistoryRepository creates a new prompt history repository backed by
// PostgreSQL.
func NewPromptHistoryRepository(pool *pgxpool.Pool) *PromptHistoryRepositoryPG {
	return &PromptHistoryRepositoryPG{pool: pool}
}

// Create inserts a prompt history entry.
func (r *PromptHistoryRepositoryPG) Create(ctx context.Context, entry *domain.PromptHistoryEntry) error {
	query := `
INSERT INTO prompt_history (id, image_id, model, prompt, guidance, aspect_ratio, steps, "interval", safety_tolerance, seed, output_format, output_quality, disable_safety_checker, image_url, mask_url, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16);
`
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		nullableString(entry.ImageID),
		entry.Model,
		entry.Prompt,
		entry.Guidance,
		entry.AspectRatio,
		entry.Steps,
		entry.Interval,
		entry.SafetyTolerance,
		entry.Seed,
		entry.OutputFormat,
		entry.OutputQuality,
		entry.DisableSafetyChecker,
		entry.ImageURL,
		entry.MaskURL,
		entry.CreatedAt,
	)
	return err
}

// List returns prompt history entries newest first.
func (r *PromptHistoryRepositoryPG) List(ctx context.Context, limit, offset int) ([]domain.PromptHistoryEntry, error) {
	query := `
SELECT id, COALESCE(image_id, ''), model, prompt, guidance, aspect_ratio, steps, "interval", safety_tolerance, seed, output_format, output_quality, disable_safety_checker, image_url, mask_url, created_at
FROM prompt_history
ORDER BY created_at DESC
LIMIT $1 OFFSET $2;
`
	rows, err := r.pool.Query(ctx, query, clampLimit(limit), maxInt(offset, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPromptRows(rows)
}

// ListByImage returns the prompt history tied to one image, newest first.
func (r *PromptHistoryRepositoryPG) ListByImage(ctx context.Context, imageID string) ([]domain.PromptHistoryEntry, error) {
	query := `
SELECT id, COALESCE(image_id, ''), model, prompt, guidance, aspect_ratio, steps, "interval", safety_tolerance, seed, output_format, output_quality, disable_safety_checker, image_url, mask_url, created_at
FROM prompt_history
WHERE image_id = $1
ORDER BY created_at DESC;
`
	rows, err := r.pool.Query(ctx, query, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPromptRows(rows)
}

func scanPromptRows(rows pgx.Rows) ([]domain.PromptHistoryEntry, error) {
	var entries []domain.PromptHistoryEntry
	for rows.Next() {
		var entry domain.PromptHistoryEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.ImageID,
			&entry.Model,
			&entry.Prompt,
			&entry.Guidance,
			&entry.AspectRatio,
			&entry.Steps,
			&entry.Interval,
			&entry.SafetyTolerance,
			&entry.Seed,
			&entry.OutputFormat,
			&entry.OutputQuality,
			&entry.DisableSafetyChecker,
			&entry.ImageURL,
			&entry.MaskURL,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
