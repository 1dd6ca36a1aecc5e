package models

import "strings"

// ContentKind is the type of piece a briefing asks for.
type ContentKind string

const (
	KindInstagramPost   ContentKind = "instagram_post"
	KindLinkedInPost    ContentKind = "linkedin_post"
	KindFeedPost        ContentKind = "feed_post"
	KindCarousel        ContentKind = "carousel"
	KindReels           ContentKind = "reels"
	KindShortVideo      ContentKind = "short_video"
	KindYouTubeVideo    ContentKind = "youtube_video"
	KindAdCampaign      ContentKind = "ad_campaign"
	KindMetaAdsCampaign ContentKind = "meta_ads_campaign"
	KindFullCampaign    ContentKind = "full_campaign"
)

// ContentKinds lists every supported kind in display order.
var ContentKinds = []ContentKind{
	KindInstagramPost,
	KindLinkedInPost,
	KindFeedPost,
	KindCarousel,
	KindReels,
	KindShortVideo,
	KindYouTubeVideo,
	KindAdCampaign,
	KindMetaAdsCampaign,
	KindFullCampaign,
}

// Valid reports whether k is a supported kind.
func (k ContentKind) Valid() bool {
	for _, kind := range ContentKinds {
		if kind == k {
			return true
		}
	}
	return false
}

// MinTopicLength is the minimum topic length, in characters, of a usable briefing.
const MinTopicLength = 10

// Briefing describes the content the operator wants generated.
type Briefing struct {
	ClientID          string      `json:"client_id" validate:"required"`
	ContentKind       ContentKind `json:"content_kind" validate:"required"`
	Topic             string      `json:"topic" validate:"required,min=10"`
	Objective         string      `json:"objective,omitempty"`
	AdditionalContext string      `json:"additional_context,omitempty"`
}

// Draft is the generated, and later edited, content payload.
type Draft struct {
	Strategy     string   `json:"strategy,omitempty"`
	Copy         string   `json:"copy"`
	Hashtags     []string `json:"hashtags"`
	CallToAction string   `json:"call_to_action,omitempty"`
	VisualPrompt string   `json:"visual_prompt,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate shared hashtag slices.
func (d Draft) Clone() Draft {
	out := d
	out.Hashtags = append([]string(nil), d.Hashtags...)
	return out
}

// JoinHashtags renders hashtags the way the editing form shows them.
func JoinHashtags(tags []string) string {
	return strings.Join(tags, " ")
}

// SplitHashtags parses the editing form's hashtag field, preserving order and dropping blanks.
func SplitHashtags(s string) []string {
	fields := strings.Fields(s)
	if fields == nil {
		return []string{}
	}
	return fields
}
