package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agency-studio/content-pipeline/internal/apperrors"
	"github.com/agency-studio/content-pipeline/internal/channels"
	"github.com/agency-studio/content-pipeline/internal/database"
	"github.com/agency-studio/content-pipeline/internal/models"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSender answers per channel and counts calls.
type fakeSender struct {
	mu      sync.Mutex
	fail    map[models.Channel]bool
	calls   map[models.Channel]int
	payload channels.Payload
}

func newFakeSender() *fakeSender {
	return &fakeSender{fail: map[models.Channel]bool{}, calls: map[models.Channel]int{}}
}

func (f *fakeSender) Send(_ context.Context, ch models.Channel, payload channels.Payload, _ *time.Time) channels.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[ch]++
	f.payload = payload
	if f.fail[ch] {
		return channels.Result{Error: "provider unavailable"}
	}
	return channels.Result{Success: true, ProviderID: string(ch) + "-id"}
}

func (f *fakeSender) setFail(ch models.Channel, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[ch] = fail
}

func (f *fakeSender) count(ch models.Channel) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[ch]
}

// MockNotifier implements notify.Notifier for testing
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) StatusChanged(ctx context.Context, item *models.ContentItem) {
	m.Called(ctx, item.ID, item.Status)
}

type fixture struct {
	svc    *Service
	repo   *database.MemoryContentItemRepository
	sender *fakeSender
	clock  *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := database.NewMemoryContentItemRepository()
	sender := newFakeSender()
	clock := &testClock{now: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	svc := NewService(repo, sender, nil, zap.NewNop(), WithClock(clock.Now), WithSendTimeout(time.Second))
	return &fixture{svc: svc, repo: repo, sender: sender, clock: clock}
}

func (f *fixture) create(t *testing.T, chans ...models.Channel) *models.ContentItem {
	t.Helper()
	item, err := f.svc.Create(context.Background(), CreateInput{
		ClientID: "client-1",
		Draft:    models.Draft{Copy: "Chegou o produto novo", Hashtags: []string{"#novo"}},
		Channels: chans,
	})
	require.NoError(t, err)
	return item
}

func TestService_Create(t *testing.T) {
	f := newFixture(t)
	item := f.create(t, models.ChannelInstagram, models.ChannelInstagram, models.ChannelLinkedIn)

	assert.Equal(t, models.StatusDraft, item.Status)
	assert.Equal(t, []models.Channel{models.ChannelInstagram, models.ChannelLinkedIn}, item.Channels)
	assert.Equal(t, models.OutcomePending, item.Outcomes[models.ChannelLinkedIn].State)

	_, err := f.svc.Create(context.Background(), CreateInput{ClientID: "c", Channels: []models.Channel{"orkut"}})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.Create(context.Background(), CreateInput{})
	assert.True(t, apperrors.IsValidation(err))
}

func TestService_ScheduleRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noChannels := f.create(t)
	_, err := f.svc.Schedule(ctx, noChannels.ID, f.clock.Now().Add(time.Hour))
	var vErr *apperrors.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "channels", vErr.Field)

	item := f.create(t, models.ChannelInstagram)
	_, err = f.svc.Schedule(ctx, item.ID, f.clock.Now())
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "scheduled_at", vErr.Field)

	scheduled, err := f.svc.Schedule(ctx, item.ID, f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, scheduled.Status)

	_, err = f.svc.Schedule(ctx, item.ID, f.clock.Now().Add(2*time.Hour))
	assert.True(t, apperrors.IsConflict(err))

	_, err = f.svc.Schedule(ctx, "missing", f.clock.Now().Add(time.Hour))
	assert.True(t, apperrors.IsNotFound(err))
}

func TestService_PartialFailureThenRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item := f.create(t, models.ChannelInstagram, models.ChannelLinkedIn)
	_, err := f.svc.Schedule(ctx, item.ID, f.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	f.sender.setFail(models.ChannelLinkedIn, true)
	f.clock.Advance(time.Hour)

	n, err := f.svc.DispatchDue(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	delayed, err := f.svc.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelayed, delayed.Status)
	assert.Nil(t, delayed.PublishedAt)
	assert.Equal(t, models.OutcomeSucceeded, delayed.Outcomes[models.ChannelInstagram].State)
	assert.Equal(t, models.OutcomeFailed, delayed.Outcomes[models.ChannelLinkedIn].State)
	assert.Equal(t, "provider unavailable", delayed.Outcomes[models.ChannelLinkedIn].Error)

	f.sender.setFail(models.ChannelLinkedIn, false)
	published, err := f.svc.Retry(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, published.Status)
	require.NotNil(t, published.PublishedAt)
	assert.Equal(t, 2, published.Outcomes[models.ChannelLinkedIn].Attempts)
	assert.Equal(t, "linkedin-id", published.Outcomes[models.ChannelLinkedIn].ProviderID)

	assert.Equal(t, 1, f.sender.count(models.ChannelInstagram), "succeeded channels are not resent")
	assert.Equal(t, 2, f.sender.count(models.ChannelLinkedIn))

	_, err = f.svc.Retry(ctx, item.ID)
	assert.True(t, apperrors.IsConflict(err))
}

func TestService_FailedChannelNeverPublishes(t *testing.T) {
	for _, failing := range models.Channels {
		t.Run(string(failing), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			item := f.create(t, models.Channels...)
			f.sender.setFail(failing, true)

			out, err := f.svc.PublishNow(ctx, item.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StatusDelayed, out.Status)

			_, err = f.svc.Retry(ctx, item.ID)
			require.NoError(t, err)
			stored, err := f.svc.Get(ctx, item.ID)
			require.NoError(t, err)
			assert.NotEqual(t, models.StatusPublished, stored.Status)
		})
	}
}

func TestService_PublishNowSucceeds(t *testing.T) {
	f := newFixture(t)
	item := f.create(t, models.ChannelFacebook)

	out, err := f.svc.PublishNow(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, out.Status)
	assert.Equal(t, "Chegou o produto novo", f.sender.payload.Draft.Copy)
	assert.Equal(t, item.ID, f.sender.payload.ContentItemID)
}

func TestService_DispatchBeforeDueIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.create(t, models.ChannelTwitter)
	_, err := f.svc.Schedule(ctx, item.ID, f.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = f.svc.Dispatch(ctx, item.ID)
	var vErr *apperrors.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "scheduled_at", vErr.Field)
	assert.Zero(t, f.sender.count(models.ChannelTwitter))

	stored, err := f.svc.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, stored.Status)
	assert.Equal(t, models.OutcomePending, stored.Outcomes[models.ChannelTwitter].State)

	f.clock.Advance(time.Hour)
	f.sender.setFail(models.ChannelTwitter, true)
	out, err := f.svc.Dispatch(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelayed, out.Status)
	assert.Nil(t, out.ClaimedUntil)
}

func TestService_Cancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft := f.create(t, models.ChannelInstagram)
	canceled, err := f.svc.Cancel(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, canceled.Status)

	_, err = f.svc.Schedule(ctx, draft.ID, f.clock.Now().Add(time.Hour))
	assert.True(t, apperrors.IsConflict(err))
	_, err = f.svc.Cancel(ctx, draft.ID)
	assert.True(t, apperrors.IsConflict(err))

	scheduled := f.create(t, models.ChannelInstagram)
	_, err = f.svc.Schedule(ctx, scheduled.ID, f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, scheduled.ID)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	n, err := f.svc.DispatchDue(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, f.sender.count(models.ChannelInstagram))
}

func TestService_StaleTransitionIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.create(t, models.ChannelInstagram)
	_, err := f.svc.Schedule(ctx, item.ID, f.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	stale, err := f.repo.GetByID(ctx, item.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, item.ID)
	require.NoError(t, err)

	_, err = f.svc.dispatch(ctx, stale)
	assert.True(t, apperrors.IsConflict(err))
	assert.Zero(t, f.sender.count(models.ChannelInstagram), "a rejected claim sends nothing")
}

func TestService_ConcurrentDispatchSendsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.create(t, models.ChannelYouTube)
	_, err := f.svc.Schedule(ctx, item.ID, f.clock.Now().Add(time.Minute))
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Dispatch(ctx, item.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperrors.IsConflict(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, f.sender.count(models.ChannelYouTube))
}

// blockingSender holds every Send until release is closed.
type blockingSender struct {
	*fakeSender
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSender) Send(ctx context.Context, ch models.Channel, payload channels.Payload, at *time.Time) channels.Result {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.fakeSender.Send(ctx, ch, payload, at)
}

func TestService_DispatchInFlightHoldsTheItem(t *testing.T) {
	repo := database.NewMemoryContentItemRepository()
	sender := &blockingSender{fakeSender: newFakeSender(), entered: make(chan struct{}), release: make(chan struct{})}
	clock := &testClock{now: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	svc := NewService(repo, sender, nil, zap.NewNop(), WithClock(clock.Now), WithSendTimeout(5*time.Second))
	ctx := context.Background()

	item, err := svc.Create(ctx, CreateInput{ClientID: "client-1", Channels: []models.Channel{models.ChannelTikTok}})
	require.NoError(t, err)
	_, err = svc.Schedule(ctx, item.ID, clock.Now().Add(time.Minute))
	require.NoError(t, err)
	clock.Advance(time.Minute)

	type result struct {
		item *models.ContentItem
		err  error
	}
	first := make(chan result, 1)
	go func() {
		out, err := svc.Dispatch(ctx, item.ID)
		first <- result{out, err}
	}()
	<-sender.entered

	held, err := svc.Get(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, held.ClaimedUntil)
	assert.Equal(t, clock.Now().Add(5*time.Second+claimGrace), *held.ClaimedUntil)

	_, err = svc.Dispatch(ctx, item.ID)
	assert.True(t, apperrors.IsConflict(err), "second dispatch while sends run: %v", err)

	n, err := svc.DispatchDue(ctx, clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = svc.Cancel(ctx, item.ID)
	assert.True(t, apperrors.IsConflict(err))

	close(sender.release)
	got := <-first
	require.NoError(t, got.err)
	assert.Equal(t, models.StatusPublished, got.item.Status)
	assert.Nil(t, got.item.ClaimedUntil)
	assert.Equal(t, 1, sender.count(models.ChannelTikTok))
}

func TestService_ExpiredClaimCanBeTakenOver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.create(t, models.ChannelLinkedIn)
	_, err := f.svc.Schedule(ctx, item.ID, f.clock.Now().Add(time.Minute))
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	// A dispatcher that died after claiming leaves its lease behind.
	abandoned, err := f.repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	lease := f.clock.Now().Add(time.Minute)
	abandoned.ClaimedUntil = &lease
	require.NoError(t, f.repo.Update(ctx, abandoned, models.StatusScheduled))

	_, err = f.svc.Dispatch(ctx, item.ID)
	assert.True(t, apperrors.IsConflict(err))

	f.clock.Advance(time.Minute)
	n, err := f.svc.DispatchDue(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := f.svc.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, stored.Status)
	assert.Nil(t, stored.ClaimedUntil)
	assert.Equal(t, 1, f.sender.count(models.ChannelLinkedIn))
}

func TestService_RecordMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.create(t, models.ChannelInstagram)

	_, err := f.svc.RecordMetrics(ctx, item.ID, models.PublishedMetrics{Likes: 3})
	assert.True(t, apperrors.IsConflict(err), "drafts have no metrics")

	_, err = f.svc.PublishNow(ctx, item.ID)
	require.NoError(t, err)

	_, err = f.svc.RecordMetrics(ctx, item.ID, models.PublishedMetrics{Reach: -1})
	var vErr *apperrors.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "reach", vErr.Field)

	out, err := f.svc.RecordMetrics(ctx, item.ID, models.PublishedMetrics{Impressions: 1200, Reach: 800, Likes: 95, Comments: 7})
	require.NoError(t, err)
	require.NotNil(t, out.Metrics)
	assert.Equal(t, 95, out.Metrics.Likes)

	updated, err := f.svc.RecordMetrics(ctx, item.ID, models.PublishedMetrics{Impressions: 1500, Reach: 900, Likes: 120})
	require.NoError(t, err)
	assert.Equal(t, 120, updated.Metrics.Likes)
	assert.Zero(t, updated.Metrics.Comments, "a new reading replaces the old one")

	stored, err := f.svc.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, stored.Status)
	assert.Equal(t, 1500, stored.Metrics.Impressions)

	_, err = f.svc.RecordMetrics(ctx, "missing", models.PublishedMetrics{})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestService_NotifiesOnStatusChange(t *testing.T) {
	repo := database.NewMemoryContentItemRepository()
	sender := newFakeSender()
	notifier := new(MockNotifier)
	clock := &testClock{now: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	svc := NewService(repo, sender, notifier, zap.NewNop(), WithClock(clock.Now))
	ctx := context.Background()

	item, err := svc.Create(ctx, CreateInput{ClientID: "c", Channels: []models.Channel{models.ChannelInstagram}})
	require.NoError(t, err)

	notifier.On("StatusChanged", mock.Anything, item.ID, models.StatusPublished).Return().Once()
	_, err = svc.PublishNow(ctx, item.ID)
	require.NoError(t, err)

	notifier.AssertExpectations(t)
}

func TestService_Calendar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inMonth := f.create(t, models.ChannelInstagram, models.ChannelLinkedIn)
	_, err := f.svc.Schedule(ctx, inMonth.ID, time.Date(2026, 10, 30, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	nextMonth := f.create(t, models.ChannelInstagram)
	_, err = f.svc.Schedule(ctx, nextMonth.ID, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	f.create(t, models.ChannelInstagram)

	cal, err := f.svc.Calendar(ctx, "client-1", 2026, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, cal.TotalItems)
	assert.Equal(t, 1, cal.ByChannel[models.ChannelLinkedIn])
	assert.Equal(t, 1, cal.ByStatus[models.StatusScheduled])

	_, err = f.svc.Calendar(ctx, "client-1", 2026, 13)
	assert.True(t, apperrors.IsValidation(err))
}

func TestBestPostingTimes(t *testing.T) {
	windows, err := BestPostingTimes(models.ChannelLinkedIn)
	require.NoError(t, err)
	require.Len(t, windows, 5)
	assert.Equal(t, time.Monday, windows[0].Day)
	assert.Equal(t, []string{"07:45", "10:45", "12:45"}, windows[0].Times)

	youtube, err := BestPostingTimes(models.ChannelYouTube)
	require.NoError(t, err)
	instagram, err := BestPostingTimes(models.ChannelInstagram)
	require.NoError(t, err)
	assert.Equal(t, instagram, youtube)

	windows[0].Times[0] = "00:00"
	again, _ := BestPostingTimes(models.ChannelLinkedIn)
	assert.Equal(t, "07:45", again[0].Times[0])

	_, err = BestPostingTimes("orkut")
	assert.True(t, apperrors.IsValidation(err))
}
