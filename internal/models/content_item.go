package models

import (
	"time"
)

// Channel is an external publishing network.
type Channel string

const (
	ChannelInstagram Channel = "instagram"
	ChannelFacebook  Channel = "facebook"
	ChannelLinkedIn  Channel = "linkedin"
	ChannelTwitter   Channel = "twitter"
	ChannelTikTok    Channel = "tiktok"
	ChannelYouTube   Channel = "youtube"
)

// Channels lists every supported channel.
var Channels = []Channel{
	ChannelInstagram,
	ChannelFacebook,
	ChannelLinkedIn,
	ChannelTwitter,
	ChannelTikTok,
	ChannelYouTube,
}

// Valid reports whether c is a supported channel.
func (c Channel) Valid() bool {
	for _, ch := range Channels {
		if ch == c {
			return true
		}
	}
	return false
}

// ItemStatus is the publish lifecycle state of a ContentItem.
type ItemStatus string

const (
	StatusDraft     ItemStatus = "draft"
	StatusScheduled ItemStatus = "scheduled"
	StatusPublished ItemStatus = "published"
	StatusDelayed   ItemStatus = "delayed"
	StatusCanceled  ItemStatus = "canceled"
)

// Terminal reports whether no further transition may leave s.
func (s ItemStatus) Terminal() bool {
	return s == StatusPublished || s == StatusCanceled
}

// OutcomeState is the result of the latest dispatch attempt on one channel.
type OutcomeState string

const (
	OutcomePending   OutcomeState = "pending"
	OutcomeSucceeded OutcomeState = "succeeded"
	OutcomeFailed    OutcomeState = "failed"
)

// ChannelOutcome tracks dispatch for a single channel of a ContentItem.
type ChannelOutcome struct {
	Channel     Channel      `json:"channel"`
	State       OutcomeState `json:"state"`
	ProviderID  string       `json:"provider_id,omitempty"`
	Error       string       `json:"error,omitempty"`
	Attempts    int          `json:"attempts"`
	AttemptedAt *time.Time   `json:"attempted_at,omitempty"`
}

// PublishedMetrics holds engagement numbers collected after publishing.
type PublishedMetrics struct {
	Impressions int `json:"impressions" validate:"gte=0"`
	Reach       int `json:"reach" validate:"gte=0"`
	Likes       int `json:"likes" validate:"gte=0"`
	Comments    int `json:"comments" validate:"gte=0"`
	Shares      int `json:"shares" validate:"gte=0"`
	Saves       int `json:"saves" validate:"gte=0"`
	Clicks      int `json:"clicks" validate:"gte=0"`
}

// ContentItem is the publish-tracked unit produced by an approved pipeline. ClaimedUntil
// is set while a dispatcher holds the item.
type ContentItem struct {
	ID           string                     `json:"id"`
	ClientID     string                     `json:"client_id"`
	Draft        Draft                      `json:"draft"`
	Channels     []Channel                  `json:"channels"`
	Status       ItemStatus                 `json:"status"`
	ScheduledAt  *time.Time                 `json:"scheduled_at,omitempty"`
	PublishedAt  *time.Time                 `json:"published_at,omitempty"`
	Outcomes     map[Channel]ChannelOutcome `json:"outcomes"`
	Metrics      *PublishedMetrics          `json:"metrics,omitempty"`
	ClaimedUntil *time.Time                 `json:"claimed_until,omitempty"`
	Version      int                        `json:"version"`
	CreatedAt    time.Time                  `json:"created_at"`
	UpdatedAt    time.Time                  `json:"updated_at"`
}

// Clone returns a deep copy of the item.
func (i *ContentItem) Clone() *ContentItem {
	out := *i
	out.Draft = i.Draft.Clone()
	out.Channels = append([]Channel(nil), i.Channels...)
	out.Outcomes = make(map[Channel]ChannelOutcome, len(i.Outcomes))
	for ch, o := range i.Outcomes {
		out.Outcomes[ch] = o
	}
	if i.ScheduledAt != nil {
		t := *i.ScheduledAt
		out.ScheduledAt = &t
	}
	if i.PublishedAt != nil {
		t := *i.PublishedAt
		out.PublishedAt = &t
	}
	if i.Metrics != nil {
		m := *i.Metrics
		out.Metrics = &m
	}
	if i.ClaimedUntil != nil {
		t := *i.ClaimedUntil
		out.ClaimedUntil = &t
	}
	return &out
}

// ClaimedAt reports whether a dispatch lease on the item is still running at now.
func (i *ContentItem) ClaimedAt(now time.Time) bool {
	return i.ClaimedUntil != nil && now.Before(*i.ClaimedUntil)
}

// AllSucceeded reports whether every selected channel has been dispatched successfully.
func (i *ContentItem) AllSucceeded() bool {
	if len(i.Channels) == 0 {
		return false
	}
	for _, ch := range i.Channels {
		if i.Outcomes[ch].State != OutcomeSucceeded {
			return false
		}
	}
	return true
}

// ContentItemFilter narrows List queries. Zero values match everything.
type ContentItemFilter struct {
	ClientID string
	Status   ItemStatus
	Channel  Channel
	From     *time.Time
	To       *time.Time
}

// CreateContentItemRequest is the request body for creating a content item directly.
type CreateContentItemRequest struct {
	ClientID string    `json:"client_id" binding:"required"`
	Draft    Draft     `json:"draft"`
	Channels []Channel `json:"channels"`
}

// ScheduleRequest is the request body for scheduling a content item.
type ScheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
}

// ContentItemResponse wraps a single content item in the API response.
type ContentItemResponse struct {
	Data ContentItem `json:"data"`
}

// ContentItemsResponse wraps multiple content items in the API response.
type ContentItemsResponse struct {
	Data []ContentItem `json:"data"`
}

// ContentCalendar summarises a client's items for one month.
type ContentCalendar struct {
	ClientID   string             `json:"client_id"`
	Year       int                `json:"year"`
	Month      int                `json:"month"`
	Items      []ContentItem      `json:"items"`
	TotalItems int                `json:"total_items"`
	ByChannel  map[Channel]int    `json:"by_channel"`
	ByStatus   map[ItemStatus]int `json:"by_status"`
}

// PostingWindow lists recommended posting times for one weekday.
type PostingWindow struct {
	Day   time.Weekday `json:"day"`
	Times []string     `json:"times"`
}

// ContentCalendarResponse wraps a calendar in the API response.
type ContentCalendarResponse struct {
	Data ContentCalendar `json:"data"`
}

// PostingWindowsResponse wraps a channel's recommended posting times.
type PostingWindowsResponse struct {
	Channel Channel         `json:"channel"`
	Data    []PostingWindow `json:"data"`
}
