package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Upload is a customer print file accepted after validation.
type Upload struct {
	ID          uuid.UUID
	UserID      *uuid.UUID
	AnonID      *string
	FileName    string
	StoragePath string
	MimeType    string
	SizeBytes   int64
	WidthPx     *int
	HeightPx    *int
	CreatedAt   time.Time
}

// UploadRepo persists upload metadata; the bytes live in storage.
type UploadRepo struct {
	db     DB
	logger zerolog.Logger
}

// NewUploadRepo creates an upload repository.
func NewUploadRepo(db DB, logger zerolog.Logger) *UploadRepo {
	return &UploadRepo{db: db, logger: logger.With().Str("repo", "uploads").Logger()}
}

// WithDB returns a copy bound to the given executor.
func (r *UploadRepo) WithDB(db DB) *UploadRepo {
	return &UploadRepo{db: db, logger: r.logger}
}

const uploadColumns = `id, user_id, anon_id, file_name, storage_path, mime_type, size_bytes, width_px, height_px, created_at`

func scanUpload(row interface{ Scan(...any) error }) (Upload, error) {
	var u Upload
	err := row.Scan(&u.ID, &u.UserID, &u.AnonID, &u.FileName, &u.StoragePath,
		&u.MimeType, &u.SizeBytes, &u.WidthPx, &u.HeightPx, &u.CreatedAt)
	return u, err
}

// Create records an accepted upload.
func (r *UploadRepo) Create(ctx context.Context, u Upload) (Upload, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO uploads (user_id, anon_id, file_name, storage_path, mime_type, size_bytes, width_px, height_px)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING `+uploadColumns,
		u.UserID, u.AnonID, u.FileName, u.StoragePath, u.MimeType, u.SizeBytes, u.WidthPx, u.HeightPx)
	created, err := scanUpload(row)
	if err != nil {
		r.logger.Error().Err(err).Msg("create upload")
		return Upload{}, fmt.Errorf("create upload: %w", err)
	}
	return created, nil
}

// Get loads one upload.
func (r *UploadRepo) Get(ctx context.Context, id uuid.UUID) (Upload, error) {
	row := r.db.QueryRow(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id = $1`, id)
	u, err := scanUpload(row)
	if err != nil {
		return Upload{}, mapNoRows(err)
	}
	return u, nil
}

// GetForOwner loads one upload and checks it belongs to the given user or
// anonymous session.
func (r *UploadRepo) GetForOwner(ctx context.Context, id uuid.UUID, userID *uuid.UUID, anonID *string) (Upload, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+uploadColumns+` FROM uploads
		WHERE id = $1 AND ((user_id IS NOT NULL AND user_id = $2) OR (anon_id IS NOT NULL AND anon_id = $3))`,
		id, userID, anonID)
	u, err := scanUpload(row)
	if err != nil {
		return Upload{}, mapNoRows(err)
	}
	return u, nil
}

// ClaimForUser attaches anonymous uploads to a user after sign-in.
func (r *UploadRepo) ClaimForUser(ctx context.Context, anonID string, userID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE uploads SET user_id = $2, anon_id = NULL WHERE anon_id = $1 AND user_id IS NULL`,
		anonID, userID)
	if err != nil {
		return 0, fmt.Errorf("claim uploads: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteOrphans removes uploads never referenced by a cart item or order
// item and older than the cutoff. Returns storage paths to unlink.
func (r *UploadRepo) DeleteOrphans(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		DELETE FROM uploads u
		WHERE u.created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM cart_items ci WHERE ci.upload_id = u.id)
		  AND NOT EXISTS (SELECT 1 FROM order_items oi WHERE oi.upload_id = u.id)
		RETURNING u.storage_path`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("delete orphan uploads: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan orphan path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
