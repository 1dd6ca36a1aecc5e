// Package annotation implements the spatial review comments pinned to visual assets.
package annotation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agency-studio/content-pipeline/internal/apperrors"
	"github.com/agency-studio/content-pipeline/internal/cache"
	"github.com/agency-studio/content-pipeline/internal/database"
	"github.com/agency-studio/content-pipeline/internal/models"
	"github.com/agency-studio/content-pipeline/internal/validation"
)

// AddInput carries a reviewer's click on an asset. Coordinates are percentages of the
// asset's intrinsic dimensions.
type AddInput struct {
	AssetID string       `json:"asset_id" validate:"required"`
	X       float64      `json:"x" validate:"gte=0,lte=100"`
	Y       float64      `json:"y" validate:"gte=0,lte=100"`
	Text    string       `json:"text" validate:"notblank"`
	Author  string       `json:"author"`
	Color   models.Color `json:"color"`
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service owns annotation lifecycle rules on top of a repository and a list cache.
type Service struct {
	repo   database.AnnotationRepository
	cache  cache.Cache
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates an annotation service.
func NewService(repo database.AnnotationRepository, c cache.Cache, logger *zap.Logger, opts ...Option) *Service {
	if c == nil {
		c = cache.NopCache{}
	}
	s := &Service{
		repo:   repo,
		cache:  c,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add validates in and stores a new unresolved annotation.
func (s *Service) Add(ctx context.Context, in AddInput) (*models.Annotation, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	color := in.Color
	if color == "" {
		color = models.DefaultColor
	}
	if !color.Valid() {
		return nil, apperrors.Validation("color", "must be one of red, yellow, blue, green, got %q", color)
	}

	annotation := &models.Annotation{
		ID:        uuid.New().String(),
		AssetID:   in.AssetID,
		X:         in.X,
		Y:         in.Y,
		Text:      in.Text,
		Author:    in.Author,
		CreatedAt: s.now().UTC(),
		Resolved:  false,
		Color:     color,
	}
	if err := s.repo.Create(ctx, annotation); err != nil {
		return nil, err
	}

	s.invalidate(ctx, annotation.AssetID)
	return annotation, nil
}

// Resolve marks an annotation resolved. Resolving an already resolved annotation succeeds.
func (s *Service) Resolve(ctx context.Context, id string) (*models.Annotation, error) {
	annotation, err := s.repo.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, annotation.AssetID)
	return annotation, nil
}

// Delete removes an annotation permanently.
func (s *Service) Delete(ctx context.Context, id string) error {
	annotation, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, annotation.AssetID)
	return nil
}

// List returns an asset's annotations in creation order, optionally only unresolved ones.
func (s *Service) List(ctx context.Context, assetID string, includeResolved bool) ([]models.Annotation, error) {
	all, err := s.all(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if includeResolved {
		return all, nil
	}

	open := make([]models.Annotation, 0, len(all))
	for _, a := range all {
		if !a.Resolved {
			open = append(open, a)
		}
	}
	return open, nil
}

// UnresolvedCount is what the approval gate checks. It always reads the store so a
// cached list can never let a publish through.
func (s *Service) UnresolvedCount(ctx context.Context, assetID string) (int, error) {
	open, err := s.repo.ListByAsset(ctx, assetID, false)
	if err != nil {
		return 0, err
	}
	return len(open), nil
}

// Summary counts all and unresolved annotations of an asset.
func (s *Service) Summary(ctx context.Context, assetID string) (*models.AnnotationSummary, error) {
	all, err := s.all(ctx, assetID)
	if err != nil {
		return nil, err
	}
	summary := &models.AnnotationSummary{AssetID: assetID, Total: len(all)}
	for _, a := range all {
		if !a.Resolved {
			summary.Unresolved++
		}
	}
	return summary, nil
}

func (s *Service) all(ctx context.Context, assetID string) ([]models.Annotation, error) {
	if cached, found, err := s.cache.GetAsset(ctx, assetID); err == nil && found {
		s.logger.Debug("Returning cached annotations", zap.String("asset_id", assetID))
		return cached, nil
	}

	// The generation is read before the store so a mutation landing in between
	// turns the fill into a no-op.
	gen, genErr := s.cache.Generation(ctx, assetID)

	annotations, err := s.repo.ListByAsset(ctx, assetID, true)
	if err != nil {
		return nil, err
	}
	if genErr == nil {
		_ = s.cache.SetAsset(ctx, assetID, gen, annotations)
	}
	return annotations, nil
}

func (s *Service) invalidate(ctx context.Context, assetID string) {
	if err := s.cache.InvalidateAsset(ctx, assetID); err != nil {
		s.logger.Warn("Failed to invalidate annotation cache", zap.String("asset_id", assetID), zap.Error(err))
	}
}
