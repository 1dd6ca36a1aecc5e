package publisher

import (
	"context"
	"time"

	"github.com/agency-studio/content-pipeline/internal/apperrors"
	"github.com/agency-studio/content-pipeline/internal/models"
)

// Calendar returns a client's items scheduled within one calendar month (UTC) with counts
// per channel and per status.
func (s *Service) Calendar(ctx context.Context, clientID string, year, month int) (*models.ContentCalendar, error) {
	if clientID == "" {
		return nil, apperrors.Validation("client_id", "is required")
	}
	if month < 1 || month > 12 {
		return nil, apperrors.Validation("month", "must be within 1..12, got %d", month)
	}
	if year < 1970 {
		return nil, apperrors.Validation("year", "must be >= 1970, got %d", year)
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	items, err := s.repo.List(ctx, models.ContentItemFilter{ClientID: clientID, From: &from, To: &to})
	if err != nil {
		return nil, err
	}

	cal := &models.ContentCalendar{
		ClientID:   clientID,
		Year:       year,
		Month:      month,
		Items:      items,
		TotalItems: len(items),
		ByChannel:  map[models.Channel]int{},
		ByStatus:   map[models.ItemStatus]int{},
	}
	for _, item := range items {
		for _, ch := range item.Channels {
			cal.ByChannel[ch]++
		}
		cal.ByStatus[item.Status]++
	}
	return cal, nil
}

var bestPostingTimes = map[models.Channel][]models.PostingWindow{
	models.ChannelInstagram: {
		{Day: time.Monday, Times: []string{"11:00", "14:00", "19:00"}},
		{Day: time.Tuesday, Times: []string{"10:00", "13:00", "19:00"}},
		{Day: time.Wednesday, Times: []string{"11:00", "15:00", "19:00"}},
		{Day: time.Thursday, Times: []string{"12:00", "14:00", "19:00"}},
		{Day: time.Friday, Times: []string{"10:00", "14:00", "17:00"}},
		{Day: time.Saturday, Times: []string{"10:00", "13:00"}},
		{Day: time.Sunday, Times: []string{"10:00", "19:00"}},
	},
	models.ChannelFacebook: {
		{Day: time.Monday, Times: []string{"09:00", "13:00", "16:00"}},
		{Day: time.Tuesday, Times: []string{"09:00", "13:00", "16:00"}},
		{Day: time.Wednesday, Times: []string{"09:00", "13:00", "15:00"}},
		{Day: time.Thursday, Times: []string{"09:00", "12:00", "14:00"}},
		{Day: time.Friday, Times: []string{"09:00", "11:00", "14:00"}},
		{Day: time.Saturday, Times: []string{"12:00", "13:00"}},
		{Day: time.Sunday, Times: []string{"13:00", "14:00"}},
	},
	models.ChannelLinkedIn: {
		{Day: time.Monday, Times: []string{"07:45", "10:45", "12:45"}},
		{Day: time.Tuesday, Times: []string{"07:45", "10:45", "17:00"}},
		{Day: time.Wednesday, Times: []string{"08:00", "12:00", "17:00"}},
		{Day: time.Thursday, Times: []string{"07:45", "09:45", "17:00"}},
		{Day: time.Friday, Times: []string{"07:45", "10:00", "14:00"}},
	},
	models.ChannelTwitter: {
		{Day: time.Monday, Times: []string{"08:00", "12:00", "17:00"}},
		{Day: time.Tuesday, Times: []string{"09:00", "12:00", "17:00"}},
		{Day: time.Wednesday, Times: []string{"09:00", "12:00", "17:00"}},
		{Day: time.Thursday, Times: []string{"09:00", "12:00", "17:00"}},
		{Day: time.Friday, Times: []string{"09:00", "12:00", "16:00"}},
	},
	models.ChannelTikTok: {
		{Day: time.Monday, Times: []string{"06:00", "10:00", "22:00"}},
		{Day: time.Tuesday, Times: []string{"02:00", "04:00", "09:00"}},
		{Day: time.Wednesday, Times: []string{"07:00", "08:00", "23:00"}},
		{Day: time.Thursday, Times: []string{"09:00", "12:00", "19:00"}},
		{Day: time.Friday, Times: []string{"05:00", "13:00", "15:00"}},
		{Day: time.Saturday, Times: []string{"11:00", "19:00", "20:00"}},
		{Day: time.Sunday, Times: []string{"07:00", "08:00", "16:00"}},
	},
}

// BestPostingTimes returns recommended local posting times per weekday. Channels without
// their own table fall back to Instagram's.
func BestPostingTimes(channel models.Channel) ([]models.PostingWindow, error) {
	if !channel.Valid() {
		return nil, apperrors.Validation("channel", "unknown channel %q", channel)
	}
	windows, ok := bestPostingTimes[channel]
	if !ok {
		windows = bestPostingTimes[models.ChannelInstagram]
	}

	out := make([]models.PostingWindow, len(windows))
	for i, w := range windows {
		out[i] = models.PostingWindow{Day: w.Day, Times: append([]string(nil), w.Times...)}
	}
	return out, nil
}
