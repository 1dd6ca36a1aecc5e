package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/agency-studio/content-pipeline/internal/apperrors"
	"github.com/agency-studio/content-pipeline/internal/models"
)

// ContentItemRepository defines the persistence operations of the publish scheduler.
type ContentItemRepository interface {
	// Create stores a new item.
	Create(ctx context.Context, item *models.ContentItem) error

	// GetByID retrieves an item by its ID.
	GetByID(ctx context.Context, id string) (*models.ContentItem, error)

	// List returns items matching the filter ordered by schedule then creation time.
	List(ctx context.Context, filter models.ContentItemFilter) ([]models.ContentItem, error)

	// ListDue returns scheduled items whose time has arrived.
	ListDue(ctx context.Context, now time.Time) ([]models.ContentItem, error)

	// Update writes item only if the stored row still has expectedStatus and item.Version.
	// On success item.Version is incremented. A mismatch yields a ConcurrencyConflictError.
	Update(ctx context.Context, item *models.ContentItem, expectedStatus models.ItemStatus) error
}

// PostgresContentItemRepository implements ContentItemRepository using PostgreSQL.
type PostgresContentItemRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

const contentItemColumns = `id, client_id, draft, channels, status, scheduled_at, published_at,
	outcomes, metrics, claimed_until, version, created_at, updated_at`

func scanContentItem(row pgx.Row) (*models.ContentItem, error) {
	var (
		item         models.ContentItem
		draftJSON    []byte
		channels     []string
		status       string
		outcomesJSON []byte
		metricsJSON  []byte
	)

	err := row.Scan(
		&item.ID,
		&item.ClientID,
		&draftJSON,
		&channels,
		&status,
		&item.ScheduledAt,
		&item.PublishedAt,
		&outcomesJSON,
		&metricsJSON,
		&item.ClaimedUntil,
		&item.Version,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Status = models.ItemStatus(status)
	for _, ch := range channels {
		item.Channels = append(item.Channels, models.Channel(ch))
	}
	if err := json.Unmarshal(draftJSON, &item.Draft); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft: %w", err)
	}
	item.Outcomes = map[models.Channel]models.ChannelOutcome{}
	if len(outcomesJSON) > 0 {
		if err := json.Unmarshal(outcomesJSON, &item.Outcomes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outcomes: %w", err)
		}
	}
	if len(metricsJSON) > 0 && string(metricsJSON) != "null" {
		item.Metrics = &models.PublishedMetrics{}
		if err := json.Unmarshal(metricsJSON, item.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
	}

	return &item, nil
}

func encodeContentItem(item *models.ContentItem) (draft, outcomes, metrics []byte, channels []string, err error) {
	if draft, err = json.Marshal(item.Draft); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal draft: %w", err)
	}
	if outcomes, err = json.Marshal(item.Outcomes); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal outcomes: %w", err)
	}
	if item.Metrics != nil {
		if metrics, err = json.Marshal(item.Metrics); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to marshal metrics: %w", err)
		}
	}
	channels = make([]string, 0, len(item.Channels))
	for _, ch := range item.Channels {
		channels = append(channels, string(ch))
	}
	return draft, outcomes, metrics, channels, nil
}

// Create inserts a new content item.
func (r *PostgresContentItemRepository) Create(ctx context.Context, item *models.ContentItem) error {
	draft, outcomes, metrics, channels, err := encodeContentItem(item)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO content_items (id, client_id, draft, channels, status, scheduled_at, published_at,
			outcomes, metrics, claimed_until, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.pool.Exec(ctx, query,
		item.ID,
		item.ClientID,
		draft,
		channels,
		string(item.Status),
		item.ScheduledAt,
		item.PublishedAt,
		outcomes,
		metrics,
		item.ClaimedUntil,
		item.Version,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create content item", zap.Error(err))
		return fmt.Errorf("failed to create content item: %w", err)
	}

	r.logger.Info("Created content item", zap.String("id", item.ID), zap.String("client_id", item.ClientID))
	return nil
}

// GetByID retrieves a content item by its ID.
func (r *PostgresContentItemRepository) GetByID(ctx context.Context, id string) (*models.ContentItem, error) {
	query := `SELECT ` + contentItemColumns + ` FROM content_items WHERE id = $1`

	item, err := scanContentItem(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("content item", id)
	}
	if err != nil {
		r.logger.Error("Failed to get content item", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get content item: %w", err)
	}
	return item, nil
}

// List returns the items matching filter.
func (r *PostgresContentItemRepository) List(ctx context.Context, filter models.ContentItemFilter) ([]models.ContentItem, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if filter.ClientID != "" {
		add("client_id = ?", filter.ClientID)
	}
	if filter.Status != "" {
		add("status = ?", string(filter.Status))
	}
	if filter.Channel != "" {
		add("? = ANY(channels)", string(filter.Channel))
	}
	if filter.From != nil {
		add("scheduled_at >= ?", *filter.From)
	}
	if filter.To != nil {
		add("scheduled_at < ?", *filter.To)
	}

	query := `SELECT ` + contentItemColumns + ` FROM content_items`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY scheduled_at ASC NULLS LAST, created_at ASC`

	return r.query(ctx, query, args...)
}

// ListDue returns scheduled items whose time has arrived, oldest first. Items under a
// running dispatch lease are left out.
func (r *PostgresContentItemRepository) ListDue(ctx context.Context, now time.Time) ([]models.ContentItem, error) {
	query := `
		SELECT ` + contentItemColumns + `
		FROM content_items
		WHERE status = $1 AND scheduled_at <= $2 AND (claimed_until IS NULL OR claimed_until <= $2)
		ORDER BY scheduled_at ASC
	`
	return r.query(ctx, query, string(models.StatusScheduled), now)
}

func (r *PostgresContentItemRepository) query(ctx context.Context, query string, args ...any) ([]models.ContentItem, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query content items", zap.Error(err))
		return nil, fmt.Errorf("failed to query content items: %w", err)
	}
	defer rows.Close()

	items := []models.ContentItem{}
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			r.logger.Error("Failed to scan content item row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan content item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate content items: %w", err)
	}
	return items, nil
}

// Update performs a compare-and-set on (status, version).
func (r *PostgresContentItemRepository) Update(ctx context.Context, item *models.ContentItem, expectedStatus models.ItemStatus) error {
	draft, outcomes, metrics, channels, err := encodeContentItem(item)
	if err != nil {
		return err
	}

	query := `
		UPDATE content_items
		SET draft = $3, channels = $4, status = $5, scheduled_at = $6, published_at = $7,
			outcomes = $8, metrics = $9, claimed_until = $10, version = version + 1, updated_at = $11
		WHERE id = $1 AND status = $2 AND version = $12
	`

	result, err := r.pool.Exec(ctx, query,
		item.ID,
		string(expectedStatus),
		draft,
		channels,
		string(item.Status),
		item.ScheduledAt,
		item.PublishedAt,
		outcomes,
		metrics,
		item.ClaimedUntil,
		item.UpdatedAt,
		item.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update content item", zap.String("id", item.ID), zap.Error(err))
		return fmt.Errorf("failed to update content item: %w", err)
	}

	if result.RowsAffected() == 0 {
		current, getErr := r.GetByID(ctx, item.ID)
		if getErr != nil {
			return getErr
		}
		r.logger.Warn("Rejected stale content item transition",
			zap.String("id", item.ID),
			zap.String("expected", string(expectedStatus)),
			zap.String("actual", string(current.Status)),
			zap.Int("expected_version", item.Version),
			zap.Int("actual_version", current.Version),
		)
		return apperrors.StaleWrite("content item", item.ID, string(expectedStatus), string(current.Status), item.Version, current.Version)
	}

	item.Version++
	r.logger.Info("Updated content item", zap.String("id", item.ID), zap.String("status", string(item.Status)))
	return nil
}
