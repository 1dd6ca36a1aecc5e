package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestColor_Valid(t *testing.T) {
	tests := []struct {
		color    Color
		expected bool
	}{
		{ColorRed, true},
		{ColorYellow, true},
		{ColorBlue, true},
		{ColorGreen, true},
		{"purple", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.color), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.color.Valid())
		})
	}
}

func TestAnnotationsResponse_EmptyList(t *testing.T) {
	response := AnnotationsResponse{
		Data: []Annotation{},
	}

	data, err := json.Marshal(response)
	assert.NoError(t, err)

	var parsed map[string]interface{}
	err = json.Unmarshal(data, &parsed)
	assert.NoError(t, err)

	dataField, ok := parsed["data"].([]interface{})
	assert.True(t, ok)
	assert.Len(t, dataField, 0)
}

func TestCreateAnnotationRequest_MissingCoordinatesStayNil(t *testing.T) {
	var req CreateAnnotationRequest
	err := json.Unmarshal([]byte(`{"text": "ajustar cor"}`), &req)
	assert.NoError(t, err)
	assert.Nil(t, req.X)
	assert.Nil(t, req.Y)

	err = json.Unmarshal([]byte(`{"x": 0, "y": 0, "text": "canto"}`), &req)
	assert.NoError(t, err)
	if assert.NotNil(t, req.X) {
		assert.Equal(t, 0.0, *req.X)
	}
}

func TestErrorResponse_Structure(t *testing.T) {
	response := ErrorResponse{
		Error:   "external_call_failed",
		Message: "upstream timeout",
		Stage:   "generation",
	}

	data, err := json.Marshal(response)
	assert.NoError(t, err)

	var parsed map[string]interface{}
	err = json.Unmarshal(data, &parsed)
	assert.NoError(t, err)

	assert.Equal(t, "external_call_failed", parsed["error"])
	assert.Equal(t, "upstream timeout", parsed["message"])
	assert.Equal(t, "generation", parsed["stage"])
}

func TestSplitHashtags_PreservesOrder(t *testing.T) {
	assert.Equal(t, []string{"#b", "#a", "#c"}, SplitHashtags("  #b #a\n#c "))
	assert.Equal(t, []string{}, SplitHashtags("   "))
	assert.Equal(t, "#b #a #c", JoinHashtags([]string{"#b", "#a", "#c"}))
}

func TestContentKind_Valid(t *testing.T) {
	assert.True(t, KindCarousel.Valid())
	assert.True(t, KindMetaAdsCampaign.Valid())
	assert.False(t, ContentKind("newsletter").Valid())
}

func TestReviewOutcome_SkipIsNotAZeroScore(t *testing.T) {
	skipped := SkippedReview()
	assert.True(t, skipped.Passed())
	summary := skipped.Summary()
	assert.Equal(t, 0.0, summary.AverageScore)
	assert.True(t, summary.Passed)
	assert.Empty(t, summary.Evaluations)

	failed := EvaluatedReview(&FocusGroupResult{AverageScore: 4, Passed: false})
	assert.False(t, failed.Passed())
	assert.False(t, failed.Skipped)

	var none *ReviewOutcome
	assert.False(t, none.Passed())
}

func TestContentItem_AllSucceeded(t *testing.T) {
	item := &ContentItem{
		Channels: []Channel{ChannelInstagram, ChannelLinkedIn},
		Outcomes: map[Channel]ChannelOutcome{
			ChannelInstagram: {Channel: ChannelInstagram, State: OutcomeSucceeded},
			ChannelLinkedIn:  {Channel: ChannelLinkedIn, State: OutcomeFailed},
		},
	}
	assert.False(t, item.AllSucceeded())

	item.Outcomes[ChannelLinkedIn] = ChannelOutcome{Channel: ChannelLinkedIn, State: OutcomeSucceeded}
	assert.True(t, item.AllSucceeded())

	empty := &ContentItem{}
	assert.False(t, empty.AllSucceeded())
}

func TestContentItem_CloneIsDeep(t *testing.T) {
	at := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	item := &ContentItem{
		ID:          "item-1",
		Draft:       Draft{Copy: "copy", Hashtags: []string{"#a"}},
		Channels:    []Channel{ChannelInstagram},
		ScheduledAt: &at,
		Outcomes:    map[Channel]ChannelOutcome{ChannelInstagram: {State: OutcomePending}},
	}

	clone := item.Clone()
	clone.Draft.Hashtags[0] = "#changed"
	clone.Outcomes[ChannelInstagram] = ChannelOutcome{State: OutcomeSucceeded}
	*clone.ScheduledAt = at.Add(time.Hour)

	assert.Equal(t, "#a", item.Draft.Hashtags[0])
	assert.Equal(t, OutcomePending, item.Outcomes[ChannelInstagram].State)
	assert.Equal(t, at, *item.ScheduledAt)
}

func TestItemStatus_Terminal(t *testing.T) {
	assert.True(t, StatusPublished.Terminal())
	assert.True(t, StatusCanceled.Terminal())
	assert.False(t, StatusDelayed.Terminal())
	assert.False(t, StatusScheduled.Terminal())
	assert.False(t, StatusDraft.Terminal())
}
