// Package pipeline drives one piece of content from briefing to dispatch.
package pipeline

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/agency-studio/content-pipeline/internal/apperrors"
	"github.com/agency-studio/content-pipeline/internal/models"
)

// Stage is a step of the guided workflow.
type Stage string

const (
	StageBriefing   Stage = "briefing"
	StageGeneration Stage = "generation"
	StageReview     Stage = "review"
	StageEditing    Stage = "editing"
	StageApproval   Stage = "approval"
)

// Stages lists the stages in workflow order.
var Stages = []Stage{StageBriefing, StageGeneration, StageReview, StageEditing, StageApproval}

func (s Stage) index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return s.index() >= 0
}

// Status tells whether a session can still change.
type Status string

const (
	StatusActive     Status = "active"
	StatusDispatched Status = "dispatched"
	StatusAbandoned  Status = "abandoned"
)

// PublishPlan is the operator's channel and timing decision made at approval.
type PublishPlan struct {
	Channels    []models.Channel `json:"channels"`
	PublishNow  bool             `json:"publish_now"`
	ScheduledAt *time.Time       `json:"scheduled_at,omitempty"`

	// RequireResolvedAnnotations blocks dispatch while AssetID has unresolved annotations.
	RequireResolvedAnnotations bool   `json:"require_resolved_annotations"`
	AssetID                    string `json:"asset_id,omitempty"`
}

func (p PublishPlan) clone() PublishPlan {
	out := p
	out.Channels = append([]models.Channel(nil), p.Channels...)
	if p.ScheduledAt != nil {
		t := *p.ScheduledAt
		out.ScheduledAt = &t
	}
	return out
}

// Edits are the editing-stage fields. Generation seeds them from the draft.
type Edits struct {
	Copy         string `json:"copy"`
	Hashtags     string `json:"hashtags"`
	CallToAction string `json:"call_to_action"`
}

// EditInput changes the editing-stage fields. Nil fields are left alone.
type EditInput struct {
	Copy         *string `json:"copy"`
	Hashtags     *string `json:"hashtags"`
	CallToAction *string `json:"call_to_action"`
}

// Session is the explicit state of one pipeline run. All access goes through Machine.
type Session struct {
	mu sync.Mutex

	id             string
	stage          Stage
	status         Status
	briefing       models.Briefing
	briefingLocked bool
	draft          *models.Draft
	edits          Edits
	review         *models.ReviewOutcome
	plan           PublishPlan
	contentItemID  string
	inFlight       bool
	createdAt      time.Time
	updatedAt      time.Time
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		id:        id,
		stage:     StageBriefing,
		status:    StatusActive,
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	ID            string                   `json:"id"`
	Stage         Stage                    `json:"stage"`
	Status        Status                   `json:"status"`
	Briefing      models.Briefing          `json:"briefing"`
	Draft         *models.Draft            `json:"draft,omitempty"`
	Edits         Edits                    `json:"edits"`
	ReviewSkipped bool                     `json:"review_skipped"`
	Review        *models.FocusGroupResult `json:"review,omitempty"`
	Plan          PublishPlan              `json:"plan"`
	ContentItemID string                   `json:"content_item_id,omitempty"`
	CanProceed    bool                     `json:"can_proceed"`
	Busy          bool                     `json:"busy"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

func (s *Session) snapshotLocked(now time.Time) Snapshot {
	snap := Snapshot{
		ID:            s.id,
		Stage:         s.stage,
		Status:        s.status,
		Briefing:      s.briefing,
		Edits:         s.edits,
		Plan:          s.plan.clone(),
		ContentItemID: s.contentItemID,
		CanProceed:    s.completeLocked(s.stage, now),
		Busy:          s.inFlight,
		CreatedAt:     s.createdAt,
		UpdatedAt:     s.updatedAt,
	}
	if s.draft != nil {
		d := s.draft.Clone()
		snap.Draft = &d
	}
	if s.review != nil {
		summary := s.review.Summary()
		snap.ReviewSkipped = s.review.Skipped
		snap.Review = &summary
	}
	return snap
}

// completeLocked evaluates the completion predicate of stage.
func (s *Session) completeLocked(stage Stage, now time.Time) bool {
	switch stage {
	case StageBriefing:
		return s.briefing.ClientID != "" && topicLength(s.briefing.Topic) >= models.MinTopicLength
	case StageGeneration:
		return s.draft != nil
	case StageReview:
		return s.review != nil
	case StageEditing:
		return strings.TrimSpace(s.edits.Copy) != ""
	case StageApproval:
		if len(s.plan.Channels) == 0 {
			return false
		}
		return s.plan.PublishNow || (s.plan.ScheduledAt != nil && s.plan.ScheduledAt.After(now))
	}
	return false
}

// mutableLocked rejects changes to finished or busy sessions.
func (s *Session) mutableLocked() error {
	if s.status != StatusActive {
		return apperrors.Conflict("pipeline", s.id, string(StatusActive), string(s.status))
	}
	if s.inFlight {
		return apperrors.Conflict("pipeline", s.id, "idle", "call in flight")
	}
	return nil
}

func (s *Session) requireStageLocked(op string, allowed ...Stage) error {
	for _, st := range allowed {
		if s.stage == st {
			return nil
		}
	}
	names := make([]string, len(allowed))
	for i, st := range allowed {
		names[i] = string(st)
	}
	return apperrors.Validation("stage", "%s is only available in %s, current stage is %s", op, strings.Join(names, " or "), s.stage)
}

// finalDraftLocked merges the edits into the generated draft.
func (s *Session) finalDraftLocked() models.Draft {
	var d models.Draft
	if s.draft != nil {
		d = s.draft.Clone()
	}
	d.Copy = s.edits.Copy
	d.Hashtags = models.SplitHashtags(s.edits.Hashtags)
	d.CallToAction = s.edits.CallToAction
	return d
}

func topicLength(topic string) int {
	return utf8.RuneCountInString(strings.TrimSpace(topic))
}
