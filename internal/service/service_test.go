package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercari/monitor/internal/config"
	"mercari/monitor/internal/domain"
	"mercari/monitor/internal/domain/task"
	"mercari/monitor/internal/extract"
	"mercari/monitor/internal/faults"
	"mercari/monitor/internal/filter"
	"mercari/monitor/internal/queue"
)

type fakeClient struct {
	html string
	err  error
}

func (f *fakeClient) FetchSearchPage(context.Context, string, domain.SearchConditions) (string, error) {
	return f.html, f.err
}

type fakeRepo struct {
	mu    sync.Mutex
	saved []domain.Product
}

func (f *fakeRepo) SaveProduct(_ context.Context, product *domain.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, *product)
	return nil
}

type fakeState struct {
	checks  int
	results map[string]int
}

func (f *fakeState) GetCheckCount(context.Context) (int, error) { return f.checks, nil }
func (f *fakeState) IncrCheckCount(context.Context) (int, error) {
	f.checks++
	return f.checks, nil
}
func (f *fakeState) RecordKeywordResult(_ context.Context, keyword string, found int) error {
	if f.results == nil {
		f.results = make(map[string]int)
	}
	f.results[keyword] = found
	return nil
}
func (f *fakeState) GetKeywordFound(_ context.Context, keyword string) (int, error) {
	return f.results[keyword], nil
}

type fakeQueue struct {
	parked []task.Task
}

func (f *fakeQueue) AddTask(_ context.Context, t task.Task) (string, error) {
	f.parked = append(f.parked, t)
	return "1-0", nil
}
func (f *fakeQueue) GetTask(context.Context, string, string, string) (*redis.XMessage, error) {
	return nil, nil
}
func (f *fakeQueue) AckTask(context.Context, string, string, string) error { return nil }
func (f *fakeQueue) AutoClaim(context.Context, string, string, string, time.Duration) ([]redis.XMessage, error) {
	return nil, nil
}

type memSeenStore struct {
	ids map[string]bool
}

func (m *memSeenStore) Exists(_ context.Context, id string) (bool, error) {
	return m.ids[id], nil
}
func (m *memSeenStore) Put(_ context.Context, id string, _ time.Time) error {
	if m.ids == nil {
		m.ids = make(map[string]bool)
	}
	m.ids[id] = true
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Monitor: config.MonitorConfig{
			Interval:         time.Minute,
			MaxItemsPerCheck: 30,
		},
		Search: config.SearchConfig{Keywords: []string{"switch"}},
		Retry:  config.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 2},
	}
}

func newTestService(cfg *config.Config, fetcher *fakeClient, repo *fakeRepo, q *fakeQueue) *Service {
	return NewService(cfg, Deps{
		Client:       fetcher,
		Resolver:     extract.NewResolver(nil),
		Novelty:      filter.NewNovelty(&memSeenStore{}, 0),
		Repository:   repo,
		Queue:        q,
		StateManager: &fakeState{},
	})
}

const listingPage = `<html><body>
	<li data-testid="item-cell">
		<a href="/item/m111"><h3>Nintendo Switch 本体</h3><span class="price">¥24,800</span></a>
	</li>
	<li data-testid="item-cell">
		<a href="/item/m222"><h3>Switch ジャンク</h3><span class="price">¥3,000</span></a>
	</li>
</body></html>`

func TestProcessKeywordSavesAdmittedListings(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	svc := newTestService(testConfig(), &fakeClient{html: listingPage}, repo, &fakeQueue{})

	admitted, err := svc.processKeyword(context.Background(), "switch", domain.SearchConditions{}, 0)
	require.NoError(t, err)
	require.Len(t, admitted, 2)
	assert.Len(t, repo.saved, 2)
	assert.Equal(t, "m111", repo.saved[0].ID)
}

func TestProcessKeywordSecondSweepAdmitsNothing(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	svc := newTestService(testConfig(), &fakeClient{html: listingPage}, repo, &fakeQueue{})

	_, err := svc.processKeyword(context.Background(), "switch", domain.SearchConditions{}, 0)
	require.NoError(t, err)

	svc.novelty.Reset()
	admitted, err := svc.processKeyword(context.Background(), "switch", domain.SearchConditions{}, 0)
	require.NoError(t, err)
	assert.Empty(t, admitted, "the persisted seen set must make sweeps idempotent")
	assert.Len(t, repo.saved, 2)
}

func TestProcessKeywordParksExhaustedFetch(t *testing.T) {
	t.Parallel()

	q := &fakeQueue{}
	fetcher := &fakeClient{err: faults.New(faults.KindNetworkFailure, "connection reset")}
	svc := newTestService(testConfig(), fetcher, &fakeRepo{}, q)

	_, err := svc.processKeyword(context.Background(), "switch", domain.SearchConditions{}, 0)
	require.Error(t, err)

	require.Len(t, q.parked, 1)
	parked, ok := q.parked[0].(*task.KeywordRetryTask)
	require.True(t, ok)
	assert.Equal(t, "switch", parked.Keyword)
	assert.Equal(t, 1, parked.RetryCount)
	assert.Contains(t, parked.Error, "connection reset")
}

func TestProcessKeywordEmptyPageIsNotAnError(t *testing.T) {
	t.Parallel()

	q := &fakeQueue{}
	svc := newTestService(testConfig(), &fakeClient{html: "<html><body></body></html>"}, &fakeRepo{}, q)

	admitted, err := svc.processKeyword(context.Background(), "switch", domain.SearchConditions{}, 0)
	require.NoError(t, err)
	assert.Empty(t, admitted)
	assert.Empty(t, q.parked)
}

func TestProcessKeywordCapsItemsPerCheck(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Monitor.MaxItemsPerCheck = 1
	repo := &fakeRepo{}
	svc := newTestService(cfg, &fakeClient{html: listingPage}, repo, &fakeQueue{})

	admitted, err := svc.processKeyword(context.Background(), "switch", domain.SearchConditions{}, 0)
	require.NoError(t, err)
	assert.Len(t, admitted, 1)
}

func TestProcessMessageReplaysParkedKeyword(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	cfg := testConfig()
	cfg.Redis.ConsumerGroup = "monitor"
	svc := newTestService(cfg, &fakeClient{html: listingPage}, repo, &fakeQueue{})

	parked := &task.KeywordRetryTask{Keyword: "switch", RetryCount: 1, Error: "connection reset"}
	payload, err := parked.TaskValue()
	require.NoError(t, err)

	msg := &redis.XMessage{
		ID: "1-0",
		Values: map[string]interface{}{
			"task_type": parked.TaskType(),
			"task_data": string(payload),
		},
	}
	require.NoError(t, svc.processMessage(context.Background(), msg))
	assert.Len(t, repo.saved, 2)
}

func TestFilterWordsNGAndOK(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Monitor.NGWords = []string{"ジャンク"}
	cfg.Monitor.OKWords = []string{"本体"}
	svc := newTestService(cfg, &fakeClient{}, &fakeRepo{}, &fakeQueue{})

	products := []domain.Product{
		{ID: "m1", Title: "Nintendo Switch 本体"},
		{ID: "m2", Title: "Switch ジャンク 本体"},
		{ID: "m3", Title: "Switch ケースのみ"},
	}

	kept := svc.filterWords(products)
	require.Len(t, kept, 1)
	assert.Equal(t, "m1", kept[0].ID)
}

func TestFilterWordsCaseInsensitive(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Monitor.NGWords = []string{"JUNK"}
	svc := newTestService(cfg, &fakeClient{}, &fakeRepo{}, &fakeQueue{})

	kept := svc.filterWords([]domain.Product{
		{ID: "m1", Title: "switch junk parts"},
		{ID: "m2", Title: "switch complete"},
	})
	require.Len(t, kept, 1)
	assert.Equal(t, "m2", kept[0].ID)
}

func TestFilterWordsNoConfigKeepsEverything(t *testing.T) {
	t.Parallel()

	svc := newTestService(testConfig(), &fakeClient{}, &fakeRepo{}, &fakeQueue{})

	products := []domain.Product{{ID: "m1", Title: "anything"}}
	assert.Equal(t, products, svc.filterWords(products))
}

func TestRetryStreamName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, queue.StreamPrefix+"KeywordRetryTask", retryStream)
}
