package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fluxboom/internal/domain"
)

// ImageRepositoryPG implements domain.ImageRepository.
type ImageRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewImageRepository creates a new image repository backed by PostgreSQL.
func NewImageRepository(pool *pgxpool.Pool) *ImageRepositoryPG {
	return &ImageRepositoryPG{pool: pool}
}

// Create inserts a new generated image record.
func (r *ImageRepositoryPG) Create(ctx context.Context, image *domain.GeneratedImage) error {
	query := `
INSERT INTO generated_images (id, caption, original_image, storage_key, mime, created_at)
VALUES ($1, $2, $3, $4, $5, $6);
`
	_, err := r.pool.Exec(ctx, query,
		image.ID,
		image.Caption,
		image.OriginalImage,
		image.StorageKey,
		image.MIME,
		image.CreatedAt,
	)
	return err
}

// AppendEdit attaches an edit entry to an existing image.
func (r *ImageRepositoryPG) AppendEdit(ctx context.Context, edit *domain.EditHistoryEntry) error {
	query := `
INSERT INTO edit_history (id, image_id, prompt, mask_url, width, height, strength, output_format, guidance_scale, output_quality, num_inference_steps, edited_image, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
`
	_, err := r.pool.Exec(ctx, query,
		edit.ID,
		edit.ImageID,
		edit.Prompt,
		edit.MaskURL,
		edit.Width,
		edit.Height,
		edit.Strength,
		edit.OutputFormat,
		edit.GuidanceScale,
		edit.OutputQuality,
		edit.NumInferenceSteps,
		edit.EditedImage,
		edit.CreatedAt,
	)
	return err
}

// GetByID fetches a generated image by its identifier.
func (r *ImageRepositoryPG) GetByID(ctx context.Context, id string) (*domain.GeneratedImage, error) {
	query := `
SELECT id, caption, original_image, storage_key, mime, created_at
FROM generated_images
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, id)
	var image domain.GeneratedImage
	if err := row.Scan(
		&image.ID,
		&image.Caption,
		&image.OriginalImage,
		&image.StorageKey,
		&image.MIME,
		&image.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &image, nil
}

// List returns generated images newest first.
func (r *ImageRepositoryPG) List(ctx context.Context, limit, offset int) ([]domain.GeneratedImage, error) {
	query := `
SELECT id, caption, original_image, storage_key, mime, created_at
FROM generated_images
ORDER BY created_at DESC
LIMIT $1 OFFSET $2;
`
	rows, err := r.pool.Query(ctx, query, clampLimit(limit), maxInt(offset, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []domain.GeneratedImage
	for rows.Next() {
		var image domain.GeneratedImage
		if err := rows.Scan(
			&image.ID,
			&image.Caption,
			&image.OriginalImage,
			&image.StorageKey,
			&image.MIME,
			&image.CreatedAt,
		); err != nil {
			return nil, err
		}
		images = append(images, image)
	}
	return images, rows.Err()
}

// ListEdits returns the edit history of one image, oldest first.
func (r *ImageRepositoryPG) ListEdits(ctx context.Context, imageID string) ([]domain.EditHistoryEntry, error) {
	query := `
SELECT id, image_id, prompt, mask_url, width, height, strength, output_format, guidance_scale, output_quality, num_inference_steps, edited_image, created_at
FROM edit_history
WHERE image_id = $1
ORDER BY created_at ASC;
`
	rows, err := r.pool.Query(ctx, query, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edits []domain.EditHistoryEntry
	for rows.Next() {
		var edit domain.EditHistoryEntry
		if err := rows.Scan(
			&edit.ID,
			&edit.ImageID,
			&edit.Prompt,
			&edit.MaskURL,
			&edit.Width,
			&edit.Height,
			&edit.Strength,
			&edit.OutputFormat,
			&edit.GuidanceScale,
			&edit.OutputQuality,
			&edit.NumInferenceSteps,
			&edit.EditedImage,
			&edit.CreatedAt,
		); err != nil {
			return nil, err
		}
		edits = append(edits, edit)
	}
	return edits, rows.Err()
}

// Delete removes an image together with its edit and prompt history.
func (r *ImageRepositoryPG) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM edit_history WHERE image_id = $1;`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM prompt_history WHERE image_id = $1;`, id); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM generated_images WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit(ctx)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}

func maxInt(v, floor int) int {
	if v < floor {
		return floor
	}
	return v
}
