// Package publisher moves content items through draft, scheduled, published, delayed and
// canceled, fanning dispatch out to every selected channel.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agency-studio/content-pipeline/internal/apperrors"
	"github.com/agency-studio/content-pipeline/internal/channels"
	"github.com/agency-studio/content-pipeline/internal/database"
	"github.com/agency-studio/content-pipeline/internal/models"
	"github.com/agency-studio/content-pipeline/internal/notify"
	"github.com/agency-studio/content-pipeline/internal/validation"
)

const resource = "content item"

// claimGrace is how long a dispatch claim outlives the send timeout. Storing the outcomes
// has to fit inside it.
const claimGrace = 30 * time.Second

// CreateInput describes a new content item.
type CreateInput struct {
	ClientID string           `json:"client_id" validate:"required"`
	Draft    models.Draft     `json:"draft"`
	Channels []models.Channel `json:"channels"`
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSendTimeout bounds every single channel send.
func WithSendTimeout(d time.Duration) Option {
	return func(s *Service) { s.sendTimeout = d }
}

// Service is the publish scheduler.
type Service struct {
	repo        database.ContentItemRepository
	sender      channels.Sender
	notifier    notify.Notifier
	logger      *zap.Logger
	now         func() time.Time
	sendTimeout time.Duration
}

// NewService creates a publish scheduler.
func NewService(repo database.ContentItemRepository, sender channels.Sender, notifier notify.Notifier, logger *zap.Logger, opts ...Option) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	s := &Service{
		repo:        repo,
		sender:      sender,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
		sendTimeout: 20 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new item in draft.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.ContentItem, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	chans, err := normalizeChannels(in.Channels)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	item := &models.ContentItem{
		ID:        uuid.New().String(),
		ClientID:  in.ClientID,
		Draft:     in.Draft.Clone(),
		Channels:  chans,
		Status:    models.StatusDraft,
		Outcomes:  make(map[models.Channel]models.ChannelOutcome, len(chans)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if item.Draft.Hashtags == nil {
		item.Draft.Hashtags = []string{}
	}
	for _, ch := range chans {
		item.Outcomes[ch] = models.ChannelOutcome{Channel: ch, State: models.OutcomePending}
	}

	if err := s.repo.Create(ctx, item); err != nil {
		return nil, err
	}
	s.logger.Info("Content item created", zap.String("id", item.ID), zap.Int("channels", len(chans)))
	return item, nil
}

// Get returns an item by id.
func (s *Service) Get(ctx context.Context, id string) (*models.ContentItem, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns items matching filter.
func (s *Service) List(ctx context.Context, filter models.ContentItemFilter) ([]models.ContentItem, error) {
	return s.repo.List(ctx, filter)
}

// Schedule moves a draft to scheduled at a future instant.
func (s *Service) Schedule(ctx context.Context, id string, at time.Time) (*models.ContentItem, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != models.StatusDraft {
		return nil, apperrors.Conflict(resource, id, string(models.StatusDraft), string(item.Status))
	}
	now := s.now().UTC()
	if !at.After(now) {
		return nil, apperrors.Validation("scheduled_at", "must be in the future, got %s", at.Format(time.RFC3339))
	}
	if len(item.Channels) == 0 {
		return nil, apperrors.Validation("channels", "at least one channel is required")
	}

	scheduled := at.UTC()
	item.Status = models.StatusScheduled
	item.ScheduledAt = &scheduled
	item.UpdatedAt = now
	if err := s.repo.Update(ctx, item, models.StatusDraft); err != nil {
		return nil, err
	}

	s.logger.Info("Content item scheduled", zap.String("id", id), zap.Time("scheduled_at", scheduled))
	return item, nil
}

// PublishNow schedules a draft at the current instant and dispatches it immediately.
func (s *Service) PublishNow(ctx context.Context, id string) (*models.ContentItem, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != models.StatusDraft {
		return nil, apperrors.Conflict(resource, id, string(models.StatusDraft), string(item.Status))
	}
	if len(item.Channels) == 0 {
		return nil, apperrors.Validation("channels", "at least one channel is required")
	}

	now := s.now().UTC()
	item.Status = models.StatusScheduled
	item.ScheduledAt = &now
	item.UpdatedAt = now
	if err := s.repo.Update(ctx, item, models.StatusDraft); err != nil {
		return nil, err
	}
	return s.dispatch(ctx, item)
}

// Dispatch sends a due scheduled item to every channel that has not yet succeeded. An item
// whose time has not come is left to the worker; use PublishNow on a draft to skip the wait.
func (s *Service) Dispatch(ctx context.Context, id string) (*models.ContentItem, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != models.StatusScheduled {
		return nil, apperrors.Conflict(resource, id, string(models.StatusScheduled), string(item.Status))
	}
	if item.ScheduledAt != nil && s.now().Before(*item.ScheduledAt) {
		return nil, apperrors.Validation("scheduled_at", "not due until %s", item.ScheduledAt.Format(time.RFC3339))
	}
	return s.dispatch(ctx, item)
}

// Retry re-attempts the failed channels of a delayed item.
func (s *Service) Retry(ctx context.Context, id string) (*models.ContentItem, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != models.StatusDelayed {
		return nil, apperrors.Conflict(resource, id, string(models.StatusDelayed), string(item.Status))
	}
	return s.dispatch(ctx, item)
}

// Cancel withdraws a draft or scheduled item for good.
func (s *Service) Cancel(ctx context.Context, id string) (*models.ContentItem, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := item.Status
	if expected != models.StatusDraft && expected != models.StatusScheduled {
		return nil, apperrors.Conflict(resource, id, "draft|scheduled", string(expected))
	}
	now := s.now().UTC()
	if item.ClaimedAt(now) {
		return nil, apperrors.Conflict(resource, id, "idle", "dispatch in progress")
	}

	item.Status = models.StatusCanceled
	item.UpdatedAt = now
	if err := s.repo.Update(ctx, item, expected); err != nil {
		return nil, err
	}

	s.logger.Info("Content item canceled", zap.String("id", id))
	s.notifier.StatusChanged(ctx, item)
	return item, nil
}

// DispatchDue dispatches every scheduled item whose time has arrived and returns how many
// were attempted. Items claimed by another dispatcher are skipped.
func (s *Service) DispatchDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.ListDue(ctx, now)
	if err != nil {
		return 0, err
	}

	attempted := 0
	var errs []error
	for i := range due {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		_, err := s.dispatch(ctx, &due[i])
		switch {
		case err == nil:
			attempted++
		case apperrors.IsConflict(err):
			s.logger.Debug("Skipping item claimed elsewhere", zap.String("id", due[i].ID))
		default:
			errs = append(errs, fmt.Errorf("dispatch %s: %w", due[i].ID, err))
		}
	}
	return attempted, errors.Join(errs...)
}

// dispatch claims item, fans the send out to its unfinished channels and records the
// per-channel outcomes. The claim is a lease stored with a compare-and-set. It lasts as
// long as the sends can, so any other dispatcher sees it and backs off until the outcomes
// are stored and the lease is released.
func (s *Service) dispatch(ctx context.Context, item *models.ContentItem) (*models.ContentItem, error) {
	expected := item.Status

	claimedAt := s.now().UTC()
	if item.ClaimedAt(claimedAt) {
		return nil, apperrors.Conflict(resource, item.ID, "idle", "dispatch in progress")
	}
	lease := claimedAt.Add(s.sendTimeout + claimGrace)
	item.ClaimedUntil = &lease
	item.UpdatedAt = claimedAt
	if err := s.repo.Update(ctx, item, expected); err != nil {
		return nil, err
	}

	var pending []models.Channel
	for _, ch := range item.Channels {
		if item.Outcomes[ch].State != models.OutcomeSucceeded {
			pending = append(pending, ch)
		}
	}

	payload := channels.Payload{ContentItemID: item.ID, ClientID: item.ClientID, Draft: item.Draft.Clone()}
	results := make([]channels.Result, len(pending))

	var g errgroup.Group
	for i, ch := range pending {
		i, ch := i, ch
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
			defer cancel()
			results[i] = s.sender.Send(sendCtx, ch, payload, item.ScheduledAt)
			return nil
		})
	}
	_ = g.Wait()

	now := s.now().UTC()
	if item.Outcomes == nil {
		item.Outcomes = make(map[models.Channel]models.ChannelOutcome, len(item.Channels))
	}
	for i, ch := range pending {
		attemptedAt := now
		outcome := item.Outcomes[ch]
		outcome.Channel = ch
		outcome.Attempts++
		outcome.AttemptedAt = &attemptedAt
		if results[i].Success {
			outcome.State = models.OutcomeSucceeded
			outcome.ProviderID = results[i].ProviderID
			outcome.Error = ""
		} else {
			outcome.State = models.OutcomeFailed
			outcome.Error = results[i].Error
		}
		item.Outcomes[ch] = outcome
	}

	// Only due items reach this point, so anything short of full success is delayed.
	if item.AllSucceeded() {
		item.Status = models.StatusPublished
		item.PublishedAt = &now
	} else {
		item.Status = models.StatusDelayed
	}
	item.ClaimedUntil = nil
	item.UpdatedAt = now

	if err := s.repo.Update(ctx, item, expected); err != nil {
		return nil, err
	}

	s.logger.Info("Content item dispatched",
		zap.String("id", item.ID),
		zap.String("status", string(item.Status)),
		zap.Int("attempted_channels", len(pending)),
	)
	if item.Status != expected {
		s.notifier.StatusChanged(ctx, item)
	}
	return item, nil
}

// RecordMetrics stores the engagement numbers of a published item, replacing any earlier
// reading.
func (s *Service) RecordMetrics(ctx context.Context, id string, metrics models.PublishedMetrics) (*models.ContentItem, error) {
	if err := validation.Struct(metrics); err != nil {
		return nil, err
	}
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != models.StatusPublished {
		return nil, apperrors.Conflict(resource, id, string(models.StatusPublished), string(item.Status))
	}

	item.Metrics = &metrics
	item.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, item, models.StatusPublished); err != nil {
		return nil, err
	}

	s.logger.Info("Content item metrics recorded",
		zap.String("id", id),
		zap.Int("likes", metrics.Likes),
		zap.Int("reach", metrics.Reach),
	)
	return item, nil
}

func normalizeChannels(in []models.Channel) ([]models.Channel, error) {
	out := make([]models.Channel, 0, len(in))
	seen := make(map[models.Channel]bool, len(in))
	for _, ch := range in {
		if !ch.Valid() {
			return nil, apperrors.Validation("channels", "unknown channel %q", ch)
		}
		if seen[ch] {
			continue
		}
		seen[ch] = true
		out = append(out, ch)
	}
	return out, nil
}
