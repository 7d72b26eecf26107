package publish

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosspost/internal/cache"
	"crosspost/internal/domain/entity"
	"crosspost/internal/infra/webhook"
	"crosspost/internal/platform"
	"crosspost/internal/ratelimit"
	"crosspost/internal/resilience/circuitbreaker"
	"crosspost/internal/resilience/retry"
)

// fakeAdapter is a scriptable platform adapter. Each Post call consumes
// the next scripted error; nil means success.
type fakeAdapter struct {
	cfg platform.PlatformConfig

	mu          sync.Mutex
	calls       int
	responses   []error
	lastPayload platform.Payload
}

func (a *fakeAdapter) Name() string                    { return a.cfg.Name }
func (a *fakeAdapter) Config() platform.PlatformConfig { return a.cfg }

func (a *fakeAdapter) Post(_ context.Context, payload platform.Payload) (*platform.PostReceipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls++
	a.lastPayload = payload
	var err error
	if len(a.responses) > 0 {
		err = a.responses[0]
		a.responses = a.responses[1:]
	}
	if err != nil {
		return nil, err
	}
	return &platform.PostReceipt{ExternalID: "ext-" + strconv.Itoa(a.calls)}, nil
}

func (a *fakeAdapter) ValidateCredentials(context.Context) error { return nil }

func (a *fakeAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// fakeEnqueuer records enqueued posts.
type fakeEnqueuer struct {
	mu    sync.Mutex
	posts []*entity.ScheduledPost
	err   error
}

func (e *fakeEnqueuer) Enqueue(content *entity.Content, platformName string, at time.Time) (*entity.ScheduledPost, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}
	post := &entity.ScheduledPost{
		ID:          "sp-" + strconv.Itoa(len(e.posts)+1),
		Content:     content,
		Platform:    platformName,
		ScheduledAt: at,
		Status:      entity.PostStatusScheduled,
	}
	e.posts = append(e.posts, post)
	return post, nil
}

func testPlatformConfig() platform.PlatformConfig {
	return platform.PlatformConfig{
		Name:            "mastodon",
		DisplayName:     "Mastodon",
		Endpoint:        "https://example.social/hook",
		MaxBodyLength:   500,
		MaxHashtags:     5,
		MaxMedia:        4,
		RateCapacity:    10,
		RefillPerSecond: 1,
	}
}

func fastRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:    5,
		InitialDelay:   time.Millisecond,
		MaxDelay:       4 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0,
	}
}

type testFixture struct {
	client  *Client
	adapter *fakeAdapter
	limiter *ratelimit.Limiter
	cache   *cache.Manager
}

// newFixture builds a fixture with a hair-trigger breaker: one failure
// opens the circuit.
func newFixture(t *testing.T, cfg Config, responses ...error) *testFixture {
	t.Helper()
	return newFixtureWithThreshold(t, cfg, 1, responses...)
}

func testConfig() Config {
	return Config{
		Retry:             fastRetryConfig(),
		DispatchTimeout:   5 * time.Second,
		DeliveryRecordTTL: time.Hour,
	}
}

func testContent() *entity.Content {
	return &entity.Content{ID: "c1", Body: "hello world", Hashtags: []string{"go"}}
}

func TestPublish_Success(t *testing.T) {
	f := newFixture(t, testConfig())

	result, err := f.client.Publish(context.Background(), testContent(), "mastodon", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, StatusPublished, result.Status)
	assert.Equal(t, "ext-1", result.ExternalID)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, f.adapter.callCount())

	// Delivery record lands in the cache under the content tag.
	v, ok := f.cache.Get("delivery:c1:mastodon")
	require.True(t, ok)
	record := v.(DeliveryRecord)
	assert.Equal(t, StatusPublished, record.Status)
	assert.Equal(t, "ext-1", record.ExternalID)

	stats := f.client.Stats("mastodon")
	assert.Equal(t, int64(1), stats.Published)
	assert.Equal(t, StatusPublished, stats.LastOutcome)
}

func TestPublish_OversizeContentRejectedWithoutNetwork(t *testing.T) {
	f := newFixture(t, testConfig())

	content := &entity.Content{ID: "c1", Body: strings.Repeat("a", 501)}
	before := f.limiter.Remaining("mastodon")

	result, err := f.client.Publish(context.Background(), content, "mastodon", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, StatusRejected, result.Status)
	require.NotEmpty(t, result.Issues)
	assert.Equal(t, "body", result.Issues[0].Field)
	assert.Equal(t, 0, f.adapter.callCount(), "rejection must not reach the network")
	assert.Equal(t, before, f.limiter.Remaining("mastodon"), "rejection must not consume a token")
}

func TestPublish_RetriesTransientFailuresThenSucceeds(t *testing.T) {
	f := newFixtureWithThreshold(t, testConfig(), 10,
		&webhook.ServerError{StatusCode: 502, Message: "bad gateway"},
		&webhook.ServerError{StatusCode: 502, Message: "bad gateway"},
		&webhook.ServerError{StatusCode: 502, Message: "bad gateway"},
		nil,
	)

	result, err := f.client.Publish(context.Background(), testContent(), "mastodon", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, StatusPublished, result.Status)
	assert.Equal(t, 4, result.Attempts)
	assert.Equal(t, 4, f.adapter.callCount())
	assert.Equal(t, "ext-4", result.ExternalID)
}

func TestPublish_PermanentRejectionFailsWithoutRetry(t *testing.T) {
	f := newFixture(t, testConfig(),
		&webhook.ClientError{StatusCode: 400, Message: "body too long"},
	)

	result, err := f.client.Publish(context.Background(), testContent(), "mastodon", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "permanent_rejection", result.FailureReason)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, f.adapter.callCount())
}

func TestPublish_OpenCircuitFailsFast(t *testing.T) {
	f := newFixture(t, testConfig(),
		&webhook.ClientError{StatusCode: 400, Message: "rejected"},
	)

	// First publish fails and trips the single-failure breaker.
	first, err := f.client.Publish(context.Background(), testContent(), "mastodon", time.Time{})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, first.Status)

	// Second publish is rejected by the open circuit without a call.
	second, err := f.client.Publish(context.Background(), testContent(), "mastodon", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, second.Status)
	assert.Equal(t, "circuit_open", second.FailureReason)
	assert.Equal(t, 0, second.Attempts)
	assert.Equal(t, 1, f.adapter.callCount(), "open circuit must not reach the adapter")
}

func TestPublish_RateLimited(t *testing.T) {
	cfg := testConfig()
	f := newFixture(t, cfg)
	// Drain the bucket.
	for i := 0; i < testPlatformConfig().RateCapacity; i++ {
		f.limiter.Acquire("mastodon")
	}

	result, err := f.client.Publish(context.Background(), testContent(), "mastodon", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, StatusRateLimited, result.Status)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
	assert.Empty(t, result.ScheduledPostID)
	assert.Equal(t, 0, f.adapter.callCount())
}

func TestPublish_RateLimitedAutoRequeues(t *testing.T) {
	cfg := testConfig()
	cfg.AutoRequeue = true
	f := newFixture(t, cfg)
	enqueuer := &fakeEnqueuer{}
	f.client.SetEnqueuer(enqueuer)

	for i := 0; i < testPlatformConfig().RateCapacity; i++ {
		f.limiter.Acquire("mastodon")
	}

	result, err := f.client.Publish(context.Background(), testContent(), "mastodon", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, StatusRateLimited, result.Status)
	assert.NotEmpty(t, result.ScheduledPostID)
	require.Len(t, enqueuer.posts, 1)
	assert.True(t, enqueuer.posts[0].ScheduledAt.After(time.Now().Add(-time.Second)))
}

func TestPublish_FutureScheduleAtDefersToScheduler(t *testing.T) {
	f := newFixture(t, testConfig())
	enqueuer := &fakeEnqueuer{}
	f.client.SetEnqueuer(enqueuer)

	at := time.Now().Add(time.Hour)
	result, err := f.client.Publish(context.Background(), testContent(), "mastodon", at)
	require.NoError(t, err)

	assert.Equal(t, StatusScheduled, result.Status)
	assert.Equal(t, "sp-1", result.ScheduledPostID)
	require.Len(t, enqueuer.posts, 1)
	assert.Equal(t, at, enqueuer.posts[0].ScheduledAt)
	assert.Equal(t, 0, f.adapter.callCount())
}

func TestPublish_FutureScheduleAtWithoutEnqueuer(t *testing.T) {
	f := newFixture(t, testConfig())

	_, err := f.client.Publish(context.Background(), testContent(), "mastodon", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrNoEnqueuer)
}

func TestPublish_UnknownPlatform(t *testing.T) {
	f := newFixture(t, testConfig())

	_, err := f.client.Publish(context.Background(), testContent(), "nosuch", time.Time{})
	assert.ErrorIs(t, err, entity.ErrUnknownPlatform)
}

func TestPublish_NilContent(t *testing.T) {
	f := newFixture(t, testConfig())

	_, err := f.client.Publish(context.Background(), nil, "mastodon", time.Time{})
	assert.ErrorIs(t, err, ErrNilContent)
}

func TestPublishScheduled_RateLimitedSignalsDeferral(t *testing.T) {
	f := newFixture(t, testConfig())
	for i := 0; i < testPlatformConfig().RateCapacity; i++ {
		f.limiter.Acquire("mastodon")
	}

	post := &entity.ScheduledPost{
		ID:       "sp-1",
		Content:  testContent(),
		Platform: "mastodon",
		Status:   entity.PostStatusPublishing,
	}

	result, err := f.client.PublishScheduled(context.Background(), post)
	require.NoError(t, err)

	assert.Equal(t, StatusRateLimited, result.Status)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
	assert.Equal(t, 0, f.adapter.callCount())
}

func TestPublishScheduled_Success(t *testing.T) {
	f := newFixture(t, testConfig())

	post := &entity.ScheduledPost{
		ID:       "sp-1",
		Content:  testContent(),
		Platform: "mastodon",
		Status:   entity.PostStatusPublishing,
	}

	result, err := f.client.PublishScheduled(context.Background(), post)
	require.NoError(t, err)

	assert.Equal(t, StatusPublished, result.Status)
	assert.Equal(t, "ext-1", result.ExternalID)
}

func TestPreview_NoSideEffects(t *testing.T) {
	f := newFixture(t, testConfig())
	before := f.limiter.Remaining("mastodon")

	content := &entity.Content{
		ID:       "c1",
		Body:     strings.Repeat("a", 600),
		Hashtags: []string{"go"},
		Media:    []entity.MediaRef{{URL: "u1", Kind: entity.MediaKindImage}},
	}

	preview, err := f.client.Preview(content, "mastodon")
	require.NoError(t, err)

	assert.True(t, preview.Truncated)
	assert.LessOrEqual(t, preview.BodyLength, testPlatformConfig().MaxBodyLength)
	assert.Equal(t, 1, preview.HashtagCount)
	assert.Equal(t, 1, preview.MediaCount)
	assert.NotEmpty(t, preview.Warnings, "missing alt text should warn")

	assert.Equal(t, 0, f.adapter.callCount(), "preview must not dispatch")
	assert.Equal(t, before, f.limiter.Remaining("mastodon"), "preview must not consume tokens")
	assert.Equal(t, int64(0), f.client.Stats("mastodon").Attempts)
}

func TestPublish_SupersedesCachedDeliveryRecords(t *testing.T) {
	f := newFixture(t, testConfig())

	// A prior outcome for the same content, on another platform.
	f.cache.Set("delivery:c1:bluesky", DeliveryRecord{Status: StatusFailed},
		time.Hour, "content:c1", "platform:bluesky")

	result, err := f.client.Publish(context.Background(), testContent(), "mastodon", time.Time{})
	require.NoError(t, err)
	require.Equal(t, StatusPublished, result.Status)

	_, ok := f.cache.Get("delivery:c1:bluesky")
	assert.False(t, ok, "a new publish clears every cached record for the content id")

	v, ok := f.cache.Get("delivery:c1:mastodon")
	require.True(t, ok)
	assert.Equal(t, StatusPublished, v.(DeliveryRecord).Status)
}

func TestPublish_ExhaustedRetriesFail(t *testing.T) {
	responses := make([]error, 0, 5)
	for i := 0; i < 5; i++ {
		responses = append(responses, &webhook.ServerError{StatusCode: 503, Message: "unavailable"})
	}
	f := newFixtureWithThreshold(t, testConfig(), 10, responses...)

	result, err := f.client.Publish(context.Background(), testContent(), "mastodon", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "exhausted", result.FailureReason)
	assert.Equal(t, 5, result.Attempts)
	assert.Contains(t, result.Error, "unavailable")
}

// newFixtureWithThreshold builds a fixture whose breaker tolerates more
// consecutive failures than the scripted scenario produces.
func newFixtureWithThreshold(t *testing.T, cfg Config, threshold uint32, responses ...error) *testFixture {
	t.Helper()

	pcfg := testPlatformConfig()
	adapter := &fakeAdapter{cfg: pcfg, responses: responses}

	registry := platform.NewRegistry()
	require.NoError(t, registry.Register(adapter))

	limiter := ratelimit.NewLimiter([]platform.PlatformConfig{pcfg}, nil)
	breakers := circuitbreaker.NewRegistry(func(name string) circuitbreaker.Config {
		return circuitbreaker.Config{
			Name:             name,
			FailureThreshold: threshold,
			RecoveryTimeout:  time.Hour,
			HalfOpenMaxCalls: 1,
		}
	})
	cacheMgr := cache.NewManager()

	return &testFixture{
		client:  NewClient(registry, limiter, breakers, cacheMgr, cfg),
		adapter: adapter,
		limiter: limiter,
		cache:   cacheMgr,
	}
}
