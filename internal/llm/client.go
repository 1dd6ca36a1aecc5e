// Package llm calls the Anthropic Messages API to generate drafts and to role-play the
// focus group personas.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/agency-studio/content-pipeline/internal/config"
	"github.com/agency-studio/content-pipeline/internal/models"
)

const (
	anthropicVersion = "2023-06-01"
	maxTokens        = 2000
)

// ErrNoAPIKey is returned when a call is attempted without ANTHROPIC_API_KEY.
var ErrNoAPIKey = errors.New("ANTHROPIC_API_KEY is not configured")

// Client talks to the Anthropic Messages API.
type Client struct {
	apiKey     string
	model      string
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client from the service configuration.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		apiKey:     cfg.AnthropicKey,
		model:      cfg.AnthropicModel,
		url:        cfg.AnthropicURL,
		httpClient: &http.Client{Timeout: cfg.LLMTimeout},
		logger:     logger,
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type generatedDraft struct {
	Strategy     string   `json:"strategy"`
	Copy         string   `json:"copy"`
	Hashtags     []string `json:"hashtags"`
	CallToAction string   `json:"call_to_action"`
	VisualPrompt string   `json:"visual_prompt"`
}

type evaluationReply struct {
	Evaluations []models.PersonaEvaluation `json:"evaluations"`
}

// Generate asks the model for a draft matching the briefing. Retrying is left to the caller.
func (c *Client) Generate(ctx context.Context, briefing models.Briefing) (*models.Draft, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Client ID: %s\n", briefing.ClientID)
	fmt.Fprintf(&b, "Content kind: %s\n", briefing.ContentKind)
	fmt.Fprintf(&b, "Topic: %s\n", briefing.Topic)
	if briefing.Objective != "" {
		fmt.Fprintf(&b, "Objective: %s\n", briefing.Objective)
	}
	if briefing.AdditionalContext != "" {
		fmt.Fprintf(&b, "Additional context: %s\n", briefing.AdditionalContext)
	}
	b.WriteString(`
Write the piece described above. Reply with a single JSON object and nothing else:
{"strategy": "...", "copy": "...", "hashtags": ["#..."], "call_to_action": "...", "visual_prompt": "..."}`)

	text, err := c.callClaude(ctx, generationSystemPrompt, b.String())
	if err != nil {
		return nil, err
	}

	var out generatedDraft
	if err := decodeJSONObject(text, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Copy) == "" {
		return nil, fmt.Errorf("model returned an empty copy")
	}
	if out.Hashtags == nil {
		out.Hashtags = []string{}
	}

	return &models.Draft{
		Strategy:     out.Strategy,
		Copy:         out.Copy,
		Hashtags:     out.Hashtags,
		CallToAction: out.CallToAction,
		VisualPrompt: out.VisualPrompt,
	}, nil
}

// Evaluate has every persona score the content. The whole panel is one call.
func (c *Client) Evaluate(ctx context.Context, clientID string, content models.EvaluationContent, personas []models.Persona) ([]models.PersonaEvaluation, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Client ID: %s\n\nPanel:\n", clientID)
	for i, p := range personas {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, p.Name, p.Profile)
		if len(p.Priorities) > 0 {
			fmt.Fprintf(&b, "   Values: %s\n", strings.Join(p.Priorities, "; "))
		}
		if len(p.Skepticisms) > 0 {
			fmt.Fprintf(&b, "   Distrusts: %s\n", strings.Join(p.Skepticisms, "; "))
		}
	}
	fmt.Fprintf(&b, "\nCopy:\n%s\n\nHashtags: %s\n", content.Copy, models.JoinHashtags(content.Hashtags))
	if content.CallToAction != "" {
		fmt.Fprintf(&b, "Call to action: %s\n", content.CallToAction)
	}
	if content.VisualPrompt != "" {
		fmt.Fprintf(&b, "Visual: %s\n", content.VisualPrompt)
	}
	b.WriteString(`
Evaluate the content once per panel member. Reply with a single JSON object and nothing else:
{"evaluations": [{"persona_name": "...", "score": 0, "positives": ["..."], "negatives": ["..."],
"suggestions": ["..."], "verdict": "approved|rejected|needs_adjustment"}]}
Scores are integers from 0 to 10.`)

	text, err := c.callClaude(ctx, focusGroupSystemPrompt, b.String())
	if err != nil {
		return nil, err
	}

	var reply evaluationReply
	if err := decodeJSONObject(text, &reply); err != nil {
		return nil, err
	}
	return reply.Evaluations, nil
}

func (c *Client) callClaude(ctx context.Context, system, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}

	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages: []anthropicMessage{
			{
				Role:    "user",
				Content: prompt,
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call Anthropic API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Anthropic API error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return "", fmt.Errorf("API request failed with status %d", resp.StatusCode)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if apiResp.Error != nil {
		return "", fmt.Errorf("API error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	if len(apiResp.Content) > 0 && apiResp.Content[0].Type == "text" {
		return apiResp.Content[0].Text, nil
	}

	return "", fmt.Errorf("unexpected response format")
}

// decodeJSONObject pulls the outermost JSON object out of a model reply, which may be
// wrapped in prose or a code fence.
func decodeJSONObject(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("model reply contains no JSON object")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("failed to decode model reply: %w", err)
	}
	return nil
}

const generationSystemPrompt = `You are the copywriter of a social media agency. You write ready to publish
posts for the client's audience, matching the requested content kind. Keep hashtags relevant and
ordered by importance.`

const focusGroupSystemPrompt = `You simulate a focus group. Each panel member judges the content strictly from
their own point of view and never agrees just to be polite.`
