package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agency-studio/content-pipeline/internal/apperrors"
	"github.com/agency-studio/content-pipeline/internal/models"
	"github.com/agency-studio/content-pipeline/internal/publisher"
	"github.com/agency-studio/content-pipeline/internal/validation"
)

// Stage names used in ExternalCallError.
const (
	generationStage = "generation"
	reviewStage     = "review"
	dispatchStage   = "dispatch"
)

var (
	errEmptyDraft  = errors.New("generator returned no draft")
	errEmptyReview = errors.New("evaluator returned no result")
	errNoGate      = errors.New("annotation gate is not configured")
)

// Generator is the opaque content generation call.
type Generator interface {
	Generate(ctx context.Context, briefing models.Briefing) (*models.Draft, error)
}

// Evaluator runs the focus group.
type Evaluator interface {
	Evaluate(ctx context.Context, clientID string, content models.EvaluationContent) (*models.FocusGroupResult, error)
}

// AnnotationGate counts the unresolved annotations of an asset.
type AnnotationGate interface {
	UnresolvedCount(ctx context.Context, assetID string) (int, error)
}

// Publisher receives the finalized draft.
type Publisher interface {
	Create(ctx context.Context, in publisher.CreateInput) (*models.ContentItem, error)
	Schedule(ctx context.Context, id string, at time.Time) (*models.ContentItem, error)
	PublishNow(ctx context.Context, id string) (*models.ContentItem, error)
	Cancel(ctx context.Context, id string) (*models.ContentItem, error)
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// Machine applies stage transitions to sessions. It holds no per-session state.
type Machine struct {
	generator Generator
	evaluator Evaluator
	gate      AnnotationGate
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewMachine creates a pipeline machine over its collaborators.
func NewMachine(generator Generator, evaluator Evaluator, gate AnnotationGate, pub Publisher, logger *zap.Logger, opts ...Option) *Machine {
	m := &Machine{
		generator: generator,
		evaluator: evaluator,
		gate:      gate,
		publisher: pub,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot returns a read-only view of s.
func (m *Machine) Snapshot(s *Session) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(m.now())
}

// SetBriefing replaces the briefing. It is locked once generation has started.
func (m *Machine) SetBriefing(s *Session, b models.Briefing) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutableLocked(); err != nil {
		return Snapshot{}, err
	}
	if err := s.requireStageLocked("set briefing", StageBriefing); err != nil {
		return Snapshot{}, err
	}
	if s.briefingLocked {
		return Snapshot{}, apperrors.Validation("briefing", "cannot change once generation has started")
	}
	if err := validation.Struct(b); err != nil {
		return Snapshot{}, err
	}
	if topicLength(b.Topic) < models.MinTopicLength {
		return Snapshot{}, apperrors.Validation("topic", "must be at least %d characters", models.MinTopicLength)
	}
	if !b.ContentKind.Valid() {
		return Snapshot{}, apperrors.Validation("content_kind", "unknown content kind %q", b.ContentKind)
	}

	s.briefing = b
	return m.touchLocked(s), nil
}

// Advance moves forward one stage when the current stage is complete.
func (m *Machine) Advance(s *Session) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutableLocked(); err != nil {
		return Snapshot{}, err
	}
	if s.stage == StageApproval {
		return Snapshot{}, apperrors.Validation("stage", "approval is the last stage, dispatch instead")
	}
	if !s.completeLocked(s.stage, m.now()) {
		return Snapshot{}, apperrors.Validation(string(s.stage), "stage is not complete")
	}

	s.stage = Stages[s.stage.index()+1]
	m.logger.Info("Pipeline advanced", zap.String("id", s.id), zap.String("stage", string(s.stage)))
	return m.touchLocked(s), nil
}

// Back returns to an earlier stage. Nothing already produced is discarded.
func (m *Machine) Back(s *Session, target Stage) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutableLocked(); err != nil {
		return Snapshot{}, err
	}
	if !target.Valid() {
		return Snapshot{}, apperrors.Validation("stage", "unknown stage %q", target)
	}
	if target.index() >= s.stage.index() {
		return Snapshot{}, apperrors.Validation("stage", "%s is not before %s", target, s.stage)
	}

	s.stage = target
	return m.touchLocked(s), nil
}

// Generate calls the generator and seeds the edit fields from the new draft. On failure the
// session keeps its previous draft and stays in generation.
func (m *Machine) Generate(ctx context.Context, s *Session) (Snapshot, error) {
	s.mu.Lock()
	if err := s.mutableLocked(); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	if err := s.requireStageLocked("generate", StageGeneration); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	briefing := s.briefing
	s.briefingLocked = true
	s.inFlight = true
	s.mu.Unlock()

	draft, err := m.generator.Generate(ctx, briefing)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false

	if s.status != StatusActive {
		return Snapshot{}, apperrors.Conflict("pipeline", s.id, string(StatusActive), string(s.status))
	}
	if err == nil && draft == nil {
		err = errEmptyDraft
	}
	if err != nil {
		m.logger.Warn("Generation failed", zap.String("id", s.id), zap.Error(err))
		return Snapshot{}, apperrors.External(generationStage, err)
	}

	m.storeDraftLocked(s, draft.Clone())
	return m.touchLocked(s), nil
}

// ManualDraft stores an operator-written draft in place of generation.
func (m *Machine) ManualDraft(s *Session, d models.Draft) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutableLocked(); err != nil {
		return Snapshot{}, err
	}
	if err := s.requireStageLocked("manual draft", StageGeneration); err != nil {
		return Snapshot{}, err
	}
	if strings.TrimSpace(d.Copy) == "" {
		return Snapshot{}, apperrors.Validation("copy", "is required")
	}

	s.briefingLocked = true
	m.storeDraftLocked(s, d.Clone())
	return m.touchLocked(s), nil
}

// storeDraftLocked keeps d and reseeds the edits. A previous review judged different
// content, so it is dropped.
func (m *Machine) storeDraftLocked(s *Session, d models.Draft) {
	if d.Hashtags == nil {
		d.Hashtags = []string{}
	}
	s.draft = &d
	s.edits = Edits{
		Copy:         d.Copy,
		Hashtags:     models.JoinHashtags(d.Hashtags),
		CallToAction: d.CallToAction,
	}
	s.review = nil
}

// Evaluate runs the focus group over the edited fields and the original visual prompt.
// A failure leaves the draft and any earlier review untouched.
func (m *Machine) Evaluate(ctx context.Context, s *Session) (Snapshot, error) {
	s.mu.Lock()
	if err := s.mutableLocked(); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	if err := s.requireStageLocked("evaluate", StageReview); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	clientID := s.briefing.ClientID
	content := models.EvaluationContent{
		Copy:         s.edits.Copy,
		Hashtags:     models.SplitHashtags(s.edits.Hashtags),
		CallToAction: s.edits.CallToAction,
	}
	if s.draft != nil {
		content.VisualPrompt = s.draft.VisualPrompt
	}
	s.inFlight = true
	s.mu.Unlock()

	result, err := m.evaluator.Evaluate(ctx, clientID, content)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false

	if s.status != StatusActive {
		return Snapshot{}, apperrors.Conflict("pipeline", s.id, string(StatusActive), string(s.status))
	}
	if err == nil && result == nil {
		err = errEmptyReview
	}
	if err != nil {
		m.logger.Warn("Focus group failed", zap.String("id", s.id), zap.Error(err))
		if apperrors.IsExternal(err) {
			return Snapshot{}, err
		}
		return Snapshot{}, apperrors.External(reviewStage, err)
	}

	s.review = models.EvaluatedReview(result)
	return m.touchLocked(s), nil
}

// SkipReview records an explicit skip. It is available whether or not an evaluation failed.
func (m *Machine) SkipReview(s *Session) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutableLocked(); err != nil {
		return Snapshot{}, err
	}
	if err := s.requireStageLocked("skip review", StageReview); err != nil {
		return Snapshot{}, err
	}

	s.review = models.SkippedReview()
	return m.touchLocked(s), nil
}

// Edit changes the editing-stage fields. It is also allowed during review, since the
// focus group reads the edited copy.
func (m *Machine) Edit(s *Session, in EditInput) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutableLocked(); err != nil {
		return Snapshot{}, err
	}
	if err := s.requireStageLocked("edit", StageReview, StageEditing); err != nil {
		return Snapshot{}, err
	}

	if in.Copy != nil {
		s.edits.Copy = *in.Copy
	}
	if in.Hashtags != nil {
		s.edits.Hashtags = *in.Hashtags
	}
	if in.CallToAction != nil {
		s.edits.CallToAction = *in.CallToAction
	}
	return m.touchLocked(s), nil
}

// SetPublishPlan records channels, timing and the annotation gate.
func (m *Machine) SetPublishPlan(s *Session, plan PublishPlan) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutableLocked(); err != nil {
		return Snapshot{}, err
	}
	if err := s.requireStageLocked("set publish plan", StageApproval); err != nil {
		return Snapshot{}, err
	}
	seen := make(map[models.Channel]bool, len(plan.Channels))
	chans := make([]models.Channel, 0, len(plan.Channels))
	for _, ch := range plan.Channels {
		if !ch.Valid() {
			return Snapshot{}, apperrors.Validation("channels", "unknown channel %q", ch)
		}
		if !seen[ch] {
			seen[ch] = true
			chans = append(chans, ch)
		}
	}
	if !plan.PublishNow && plan.ScheduledAt != nil && !plan.ScheduledAt.After(m.now()) {
		return Snapshot{}, apperrors.Validation("scheduled_at", "must be in the future")
	}
	if plan.RequireResolvedAnnotations && plan.AssetID == "" {
		return Snapshot{}, apperrors.Validation("asset_id", "is required when gating on annotations")
	}

	plan.Channels = chans
	s.plan = plan.clone()
	return m.touchLocked(s), nil
}

// Dispatch hands the finalized draft to the publish scheduler and ends the session.
func (m *Machine) Dispatch(ctx context.Context, s *Session) (Snapshot, *models.ContentItem, error) {
	s.mu.Lock()
	if err := s.mutableLocked(); err != nil {
		s.mu.Unlock()
		return Snapshot{}, nil, err
	}
	if err := s.requireStageLocked("dispatch", StageApproval); err != nil {
		s.mu.Unlock()
		return Snapshot{}, nil, err
	}
	if !s.completeLocked(StageApproval, m.now()) {
		s.mu.Unlock()
		return Snapshot{}, nil, apperrors.Validation(string(StageApproval), "select at least one channel and publish now or a future time")
	}
	plan := s.plan.clone()
	draft := s.finalDraftLocked()
	clientID := s.briefing.ClientID
	s.inFlight = true
	s.mu.Unlock()

	item, err := m.handOff(ctx, s.id, clientID, draft, plan)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if err != nil {
		return Snapshot{}, nil, err
	}

	// The item exists now; the session ends even if it was abandoned meanwhile.
	s.status = StatusDispatched
	s.contentItemID = item.ID
	m.logger.Info("Pipeline dispatched",
		zap.String("id", s.id),
		zap.String("content_item_id", item.ID),
		zap.String("item_status", string(item.Status)),
	)
	return m.touchLocked(s), item, nil
}

func (m *Machine) handOff(ctx context.Context, sessionID, clientID string, draft models.Draft, plan PublishPlan) (*models.ContentItem, error) {
	if plan.RequireResolvedAnnotations {
		if m.gate == nil {
			return nil, errNoGate
		}
		open, err := m.gate.UnresolvedCount(ctx, plan.AssetID)
		if err != nil {
			return nil, err
		}
		if open > 0 {
			m.logger.Info("Approval blocked by annotations",
				zap.String("id", sessionID),
				zap.String("asset_id", plan.AssetID),
				zap.Int("unresolved", open),
			)
			return nil, apperrors.Validation("annotations", "%d unresolved annotation(s) on asset %s", open, plan.AssetID)
		}
	}

	item, err := m.publisher.Create(ctx, publisher.CreateInput{
		ClientID: clientID,
		Draft:    draft,
		Channels: plan.Channels,
	})
	if err != nil {
		return nil, dispatchError(err)
	}

	if plan.PublishNow {
		published, err := m.publisher.PublishNow(ctx, item.ID)
		if err != nil {
			m.discard(ctx, item.ID)
			return nil, dispatchError(err)
		}
		return published, nil
	}

	scheduled, err := m.publisher.Schedule(ctx, item.ID, *plan.ScheduledAt)
	if err != nil {
		m.discard(ctx, item.ID)
		return nil, dispatchError(err)
	}
	return scheduled, nil
}

// discard cancels an item whose hand-off did not complete, so no orphan draft is left.
func (m *Machine) discard(ctx context.Context, itemID string) {
	if _, err := m.publisher.Cancel(ctx, itemID); err != nil {
		m.logger.Warn("Failed to cancel orphaned content item", zap.String("content_item_id", itemID), zap.Error(err))
	}
}

// Abandon closes the session. Items already dispatched are not touched.
func (m *Machine) Abandon(s *Session) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return Snapshot{}, apperrors.Conflict("pipeline", s.id, string(StatusActive), string(s.status))
	}
	s.status = StatusAbandoned
	m.logger.Info("Pipeline abandoned", zap.String("id", s.id), zap.String("stage", string(s.stage)))
	return m.touchLocked(s), nil
}

func (m *Machine) touchLocked(s *Session) Snapshot {
	now := m.now()
	s.updatedAt = now
	return s.snapshotLocked(now)
}

func dispatchError(err error) error {
	if apperrors.IsValidation(err) || apperrors.IsNotFound(err) || apperrors.IsConflict(err) || apperrors.IsExternal(err) {
		return err
	}
	return apperrors.External(dispatchStage, err)
}
