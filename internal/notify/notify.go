// Package notify tells operators about publish outcomes that need their attention.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/agency-studio/content-pipeline/internal/config"
	"github.com/agency-studio/content-pipeline/internal/models"
)

// Notifier receives content items after a status change.
type Notifier interface {
	StatusChanged(ctx context.Context, item *models.ContentItem)
}

// New returns a Slack notifier when a bot token is configured, otherwise a no-op one.
func New(cfg *config.Config, logger *zap.Logger) Notifier {
	if cfg.SlackToken == "" {
		logger.Info("Slack notifications disabled")
		return Nop{}
	}
	return NewSlackNotifier(slack.New(cfg.SlackToken), cfg.SlackChannel, logger)
}

// Nop discards notifications.
type Nop struct{}

func (Nop) StatusChanged(context.Context, *models.ContentItem) {}

// SlackNotifier posts a message per notable transition.
type SlackNotifier struct {
	api       *slack.Client
	channelID string
	logger    *zap.Logger
}

// NewSlackNotifier creates a notifier posting to channelID.
func NewSlackNotifier(api *slack.Client, channelID string, logger *zap.Logger) *SlackNotifier {
	return &SlackNotifier{
		api:       api,
		channelID: channelID,
		logger:    logger,
	}
}

// StatusChanged posts published, delayed and canceled transitions. Slack failures are
// logged and never fail the transition.
func (n *SlackNotifier) StatusChanged(ctx context.Context, item *models.ContentItem) {
	switch item.Status {
	case models.StatusPublished, models.StatusDelayed, models.StatusCanceled:
	default:
		return
	}

	_, _, err := n.api.PostMessageContext(ctx,
		n.channelID,
		slack.MsgOptionText(Message(item), false),
	)
	if err != nil {
		n.logger.Warn("Failed to post Slack notification",
			zap.String("content_item_id", item.ID),
			zap.Error(err),
		)
	}
}

// Message renders the operator-facing text of an item's status.
func Message(item *models.ContentItem) string {
	var b strings.Builder

	icon := map[models.ItemStatus]string{
		models.StatusPublished: ":white_check_mark:",
		models.StatusDelayed:   ":warning:",
		models.StatusCanceled:  ":no_entry_sign:",
	}[item.Status]

	channels := make([]string, 0, len(item.Channels))
	for _, ch := range item.Channels {
		channels = append(channels, string(ch))
	}
	fmt.Fprintf(&b, "%s Content item `%s` for client %s is *%s* (%s)", icon, item.ID, item.ClientID, item.Status, strings.Join(channels, ", "))

	var failed []string
	for ch, outcome := range item.Outcomes {
		if outcome.State == models.OutcomeFailed {
			failed = append(failed, fmt.Sprintf("%s: %s", ch, outcome.Error))
		}
	}
	sort.Strings(failed)
	for _, f := range failed {
		fmt.Fprintf(&b, "\n• %s", f)
	}
	return b.String()
}
