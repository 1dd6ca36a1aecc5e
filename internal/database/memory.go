package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agency-studio/content-pipeline/internal/apperrors"
	"github.com/agency-studio/content-pipeline/internal/models"
)

// MemoryAnnotationRepository keeps annotations in process memory. Slice order is insertion
// order, which is also creation order.
type MemoryAnnotationRepository struct {
	mu          sync.RWMutex
	annotations []models.Annotation
}

// NewMemoryAnnotationRepository creates an empty in-memory annotation repository.
func NewMemoryAnnotationRepository() *MemoryAnnotationRepository {
	return &MemoryAnnotationRepository{}
}

func (r *MemoryAnnotationRepository) indexOf(id string) int {
	for i := range r.annotations {
		if r.annotations[i].ID == id {
			return i
		}
	}
	return -1
}

// Create stores a copy of annotation.
func (r *MemoryAnnotationRepository) Create(_ context.Context, annotation *models.Annotation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.annotations = append(r.annotations, *annotation)
	return nil
}

// GetByID retrieves an annotation by its ID.
func (r *MemoryAnnotationRepository) GetByID(_ context.Context, id string) (*models.Annotation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.indexOf(id)
	if i < 0 {
		return nil, apperrors.NotFound("annotation", id)
	}
	a := r.annotations[i]
	return &a, nil
}

// ListByAsset returns an asset's annotations in creation order.
func (r *MemoryAnnotationRepository) ListByAsset(_ context.Context, assetID string, includeResolved bool) ([]models.Annotation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []models.Annotation{}
	for _, a := range r.annotations {
		if a.AssetID != assetID {
			continue
		}
		if a.Resolved && !includeResolved {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Resolve marks an annotation resolved.
func (r *MemoryAnnotationRepository) Resolve(_ context.Context, id string) (*models.Annotation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return nil, apperrors.NotFound("annotation", id)
	}
	r.annotations[i].Resolved = true
	a := r.annotations[i]
	return &a, nil
}

// Delete removes an annotation.
func (r *MemoryAnnotationRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return apperrors.NotFound("annotation", id)
	}
	r.annotations = append(r.annotations[:i], r.annotations[i+1:]...)
	return nil
}

// MemoryContentItemRepository keeps content items in process memory with the same
// compare-and-set semantics as the PostgreSQL repository.
type MemoryContentItemRepository struct {
	mu    sync.RWMutex
	items map[string]*models.ContentItem
	order []string
}

// NewMemoryContentItemRepository creates an empty in-memory content item repository.
func NewMemoryContentItemRepository() *MemoryContentItemRepository {
	return &MemoryContentItemRepository{items: make(map[string]*models.ContentItem)}
}

// Create stores a copy of item.
func (r *MemoryContentItemRepository) Create(_ context.Context, item *models.ContentItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[item.ID]; exists {
		return apperrors.Conflict("content item", item.ID, "", "")
	}
	r.items[item.ID] = item.Clone()
	r.order = append(r.order, item.ID)
	return nil
}

// GetByID returns a copy of the stored item.
func (r *MemoryContentItemRepository) GetByID(_ context.Context, id string) (*models.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok {
		return nil, apperrors.NotFound("content item", id)
	}
	return item.Clone(), nil
}

// List returns the items matching filter.
func (r *MemoryContentItemRepository) List(_ context.Context, filter models.ContentItemFilter) ([]models.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.ContentItem{}
	for _, id := range r.order {
		item := r.items[id]
		if filter.ClientID != "" && item.ClientID != filter.ClientID {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		if filter.Channel != "" && !hasChannel(item.Channels, filter.Channel) {
			continue
		}
		if filter.From != nil && (item.ScheduledAt == nil || item.ScheduledAt.Before(*filter.From)) {
			continue
		}
		if filter.To != nil && (item.ScheduledAt == nil || !item.ScheduledAt.Before(*filter.To)) {
			continue
		}
		out = append(out, *item.Clone())
	}
	sortBySchedule(out)
	return out, nil
}

// ListDue returns scheduled items whose time has arrived and that no dispatcher holds.
func (r *MemoryContentItemRepository) ListDue(_ context.Context, now time.Time) ([]models.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.ContentItem{}
	for _, id := range r.order {
		item := r.items[id]
		if item.ClaimedAt(now) {
			continue
		}
		if item.Status == models.StatusScheduled && item.ScheduledAt != nil && !item.ScheduledAt.After(now) {
			out = append(out, *item.Clone())
		}
	}
	sortBySchedule(out)
	return out, nil
}

// Update performs a compare-and-set on (status, version).
func (r *MemoryContentItemRepository) Update(_ context.Context, item *models.ContentItem, expectedStatus models.ItemStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[item.ID]
	if !ok {
		return apperrors.NotFound("content item", item.ID)
	}
	if current.Status != expectedStatus || current.Version != item.Version {
		return apperrors.StaleWrite("content item", item.ID, string(expectedStatus), string(current.Status), item.Version, current.Version)
	}

	item.Version++
	r.items[item.ID] = item.Clone()
	return nil
}

func hasChannel(channels []models.Channel, ch models.Channel) bool {
	for _, c := range channels {
		if c == ch {
			return true
		}
	}
	return false
}

func sortBySchedule(items []models.ContentItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].ScheduledAt, items[j].ScheduledAt
		switch {
		case a == nil && b == nil:
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
}
