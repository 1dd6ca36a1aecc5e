package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/agency-studio/content-pipeline/internal/apperrors"
	"github.com/agency-studio/content-pipeline/internal/models"
)

// AnnotationRepository defines the interface for annotation data operations.
// Each call touches a single record and is atomic on its own.
type AnnotationRepository interface {
	// Create stores a fully built annotation.
	Create(ctx context.Context, annotation *models.Annotation) error

	// GetByID retrieves an annotation by its ID.
	GetByID(ctx context.Context, id string) (*models.Annotation, error)

	// ListByAsset returns an asset's annotations in creation order.
	ListByAsset(ctx context.Context, assetID string, includeResolved bool) ([]models.Annotation, error)

	// Resolve marks an annotation resolved and returns it. Resolving twice is allowed.
	Resolve(ctx context.Context, id string) (*models.Annotation, error)

	// Delete removes an annotation by its ID.
	Delete(ctx context.Context, id string) error
}

// PostgresAnnotationRepository implements AnnotationRepository using PostgreSQL.
type PostgresAnnotationRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

const annotationColumns = `id, asset_id, x, y, text, author, color, resolved, created_at`

func scanAnnotation(row pgx.Row) (*models.Annotation, error) {
	var a models.Annotation
	var color string
	err := row.Scan(
		&a.ID,
		&a.AssetID,
		&a.X,
		&a.Y,
		&a.Text,
		&a.Author,
		&color,
		&a.Resolved,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Color = models.Color(color)
	return &a, nil
}

// Create inserts a new annotation.
func (r *PostgresAnnotationRepository) Create(ctx context.Context, annotation *models.Annotation) error {
	query := `
		INSERT INTO annotations (id, asset_id, x, y, text, author, color, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		annotation.ID,
		annotation.AssetID,
		annotation.X,
		annotation.Y,
		annotation.Text,
		annotation.Author,
		string(annotation.Color),
		annotation.Resolved,
		annotation.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create annotation", zap.String("asset_id", annotation.AssetID), zap.Error(err))
		return fmt.Errorf("failed to create annotation: %w", err)
	}

	r.logger.Info("Created annotation",
		zap.String("id", annotation.ID),
		zap.String("asset_id", annotation.AssetID),
	)
	return nil
}

// GetByID retrieves an annotation by its ID.
func (r *PostgresAnnotationRepository) GetByID(ctx context.Context, id string) (*models.Annotation, error) {
	query := `SELECT ` + annotationColumns + ` FROM annotations WHERE id = $1`

	annotation, err := scanAnnotation(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("annotation", id)
	}
	if err != nil {
		r.logger.Error("Failed to get annotation", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get annotation: %w", err)
	}

	return annotation, nil
}

// ListByAsset returns the annotations of one asset, oldest first.
func (r *PostgresAnnotationRepository) ListByAsset(ctx context.Context, assetID string, includeResolved bool) ([]models.Annotation, error) {
	query := `
		SELECT ` + annotationColumns + `
		FROM annotations
		WHERE asset_id = $1 AND ($2 OR NOT resolved)
		ORDER BY created_at ASC, seq ASC
	`

	rows, err := r.pool.Query(ctx, query, assetID, includeResolved)
	if err != nil {
		r.logger.Error("Failed to list annotations", zap.String("asset_id", assetID), zap.Error(err))
		return nil, fmt.Errorf("failed to list annotations: %w", err)
	}
	defer rows.Close()

	annotations := []models.Annotation{}
	for rows.Next() {
		annotation, err := scanAnnotation(rows)
		if err != nil {
			r.logger.Error("Failed to scan annotation row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan annotation: %w", err)
		}
		annotations = append(annotations, *annotation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate annotations: %w", err)
	}

	return annotations, nil
}

// Resolve sets resolved=true in a single statement.
func (r *PostgresAnnotationRepository) Resolve(ctx context.Context, id string) (*models.Annotation, error) {
	query := `
		UPDATE annotations SET resolved = TRUE
		WHERE id = $1
		RETURNING ` + annotationColumns

	annotation, err := scanAnnotation(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("annotation", id)
	}
	if err != nil {
		r.logger.Error("Failed to resolve annotation", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to resolve annotation: %w", err)
	}

	r.logger.Info("Resolved annotation", zap.String("id", id))
	return annotation, nil
}

// Delete removes an annotation by its ID.
func (r *PostgresAnnotationRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM annotations WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to delete annotation", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete annotation: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.NotFound("annotation", id)
	}

	r.logger.Info("Deleted annotation", zap.String("id", id))
	return nil
}
