// Package channels delivers finished content to external publishing networks.
package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agency-studio/content-pipeline/internal/config"
	"github.com/agency-studio/content-pipeline/internal/models"
)

// Payload is what a channel receives for one content item.
type Payload struct {
	ContentItemID string       `json:"content_item_id"`
	ClientID      string       `json:"client_id"`
	Draft         models.Draft `json:"draft"`
}

// Result is the outcome of one send attempt.
type Result struct {
	Success    bool
	ProviderID string
	Error      string
}

// Sender is the opaque per-channel dispatch call. Failures are reported in Result, not as
// errors, so that one channel cannot abort the others.
type Sender interface {
	Send(ctx context.Context, channel models.Channel, payload Payload, scheduledAt *time.Time) Result
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, channel models.Channel, payload Payload, scheduledAt *time.Time) Result

func (f SenderFunc) Send(ctx context.Context, channel models.Channel, payload Payload, scheduledAt *time.Time) Result {
	return f(ctx, channel, payload, scheduledAt)
}

// WebhookSender posts the payload as JSON to a publishing webhook.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender creates a sender for url.
func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	return &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type webhookBody struct {
	Channel     models.Channel `json:"channel"`
	Payload     Payload        `json:"payload"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
	Timestamp   int64          `json:"timestamp"`
}

type webhookReply struct {
	ID string `json:"id"`
}

// Send delivers payload. A 2xx status is success; a JSON body with an "id" field supplies
// the provider id.
func (s *WebhookSender) Send(ctx context.Context, channel models.Channel, payload Payload, scheduledAt *time.Time) Result {
	jsonData, err := json.Marshal(webhookBody{
		Channel:     channel,
		Payload:     payload,
		ScheduledAt: scheduledAt,
		Timestamp:   time.Now().Unix(),
	})
	if err != nil {
		return Result{Error: fmt.Sprintf("failed to marshal payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return Result{Error: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{Error: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Error: fmt.Sprintf("webhook returned status %d", resp.StatusCode)}
	}

	var reply webhookReply
	_ = json.Unmarshal(body, &reply)
	return Result{Success: true, ProviderID: reply.ID}
}

// Registry routes each channel to its configured sender.
type Registry struct {
	mu      sync.RWMutex
	senders map[models.Channel]Sender
	logger  *zap.Logger
}

// NewRegistry creates a registry from the CHANNEL_WEBHOOKS setting.
func NewRegistry(cfg *config.Config, logger *zap.Logger) *Registry {
	r := &Registry{
		senders: make(map[models.Channel]Sender),
		logger:  logger,
	}
	for name, url := range cfg.ChannelWebhooks {
		ch := models.Channel(name)
		if !ch.Valid() {
			logger.Warn("Ignoring webhook for unknown channel", zap.String("channel", name))
			continue
		}
		r.Register(ch, NewWebhookSender(url, cfg.DispatchTimeout))
	}
	logger.Info("Channel senders configured", zap.Int("count", len(r.senders)))
	return r
}

// Register sets the sender of channel.
func (r *Registry) Register(channel models.Channel, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[channel] = sender
}

// Send dispatches through the channel's sender. A channel without a sender fails.
func (r *Registry) Send(ctx context.Context, channel models.Channel, payload Payload, scheduledAt *time.Time) Result {
	r.mu.RLock()
	sender, ok := r.senders[channel]
	r.mu.RUnlock()
	if !ok {
		return Result{Error: fmt.Sprintf("no sender configured for channel %s", channel)}
	}

	result := sender.Send(ctx, channel, payload, scheduledAt)
	if !result.Success {
		r.logger.Warn("Channel dispatch failed",
			zap.String("channel", string(channel)),
			zap.String("content_item_id", payload.ContentItemID),
			zap.String("error", result.Error),
		)
	}
	return result
}
