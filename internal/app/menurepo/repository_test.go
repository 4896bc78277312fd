package menurepo

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/haksik/internal/domain"
	"github.com/John-Robertt/haksik/internal/infra/cache"
	"github.com/John-Robertt/haksik/internal/provider"
)

var kst = time.FixedZone("KST", 9*3600)

type fakeFetcher struct {
	mu    sync.Mutex
	calls map[domain.RestaurantID]int

	errs map[domain.RestaurantID]error
	hang map[domain.RestaurantID]bool
	gate chan struct{}

	// before 在返回结果前调用（例如推进时钟，模拟慢站点）。
	before func(id domain.RestaurantID)
	days   map[domain.RestaurantID]time.Time
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls: map[domain.RestaurantID]int{},
		errs:  map[domain.RestaurantID]error{},
		hang:  map[domain.RestaurantID]bool{},
		days:  map[domain.RestaurantID]time.Time{},
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, id domain.RestaurantID, day time.Time) ([]domain.MealSlot, error) {
	f.mu.Lock()
	f.calls[id]++
	f.days[id] = day
	err := f.errs[id]
	hang := f.hang[id]
	gate := f.gate
	before := f.before
	f.mu.Unlock()

	if before != nil {
		before(id)
	}
	if gate != nil {
		<-gate
	}
	if hang {
		// 故意忽略 ctx，模拟卡死的 fetcher。
		<-make(chan struct{})
	}
	if err != nil {
		return nil, err
	}
	return []domain.MealSlot{{MealTime: "중식", Dishes: []string{string(id) + "-밥"}}}, nil
}

func (f *fakeFetcher) count(id domain.RestaurantID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type failingPutKV struct{ *cache.MemoryKV }

func (failingPutKV) Put(string, []byte) error { return errors.New("disk full") }

func snapshotFor(date string) domain.MenuSnapshot {
	s := domain.MenuSnapshot{CapturedDate: date, Restaurants: map[domain.RestaurantID]domain.RestaurantMenu{}}
	for _, id := range domain.AllRestaurants() {
		s.Restaurants[id] = domain.RestaurantMenu{
			RestaurantID: id,
			Name:         string(id),
			Meals:        []domain.MealSlot{{MealTime: "중식", Dishes: []string{"어제-" + string(id)}}},
		}
	}
	return s
}

type advancingClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

type fixture struct {
	clock   advancingClock
	fetcher *fakeFetcher
	kv      cache.KV
	cache   *cache.SnapshotCache
	repo    *Repository
}

func newFixture(t *testing.T, kv cache.KV, opts Options) *fixture {
	t.Helper()
	if kv == nil {
		kv = cache.NewMemoryKV()
	}
	clk := clockwork.NewFakeClockAt(time.Date(2026, 10, 19, 9, 0, 0, 0, kst))
	f := newFakeFetcher()
	c := cache.NewSnapshotCache(kv, nil)
	opts.Clock = clk
	opts.Location = kst
	opts.Catalog = provider.DefaultCatalog()
	return &fixture{clock: clk, fetcher: f, kv: kv, cache: c, repo: New(f, c, opts)}
}

func TestGetSnapshot_FreshCacheNoNetwork(t *testing.T) {
	fx := newFixture(t, nil, Options{})
	require.NoError(t, fx.cache.Store(snapshotFor("2026-10-19")))

	s, err := fx.repo.GetSnapshot(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, snapshotFor("2026-10-19"), s)
	assert.Equal(t, 0, fx.fetcher.total())
}

func TestGetSnapshot_StaleCacheRefreshes(t *testing.T) {
	fx := newFixture(t, nil, Options{})
	require.NoError(t, fx.cache.Store(snapshotFor("2026-10-18")))

	s, err := fx.repo.GetSnapshot(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19", s.CapturedDate)
	for _, id := range domain.AllRestaurants() {
		assert.Equal(t, 1, fx.fetcher.count(id), "restaurant=%s", id)
		assert.Equal(t, []domain.MealSlot{{MealTime: "중식", Dishes: []string{string(id) + "-밥"}}}, s.Menu(id).Meals)
	}
	assert.Equal(t, "학생식당", s.Menu(domain.Student).Name)

	stored, ok := fx.cache.Load()
	require.True(t, ok)
	assert.Equal(t, s, stored)
}

func TestGetSnapshot_SameDayIsIdempotent(t *testing.T) {
	fx := newFixture(t, nil, Options{})

	first, err := fx.repo.GetSnapshot(context.Background(), false)
	require.NoError(t, err)
	fx.clock.Advance(10 * time.Hour) // 19:00，仍是同一天
	second, err := fx.repo.GetSnapshot(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	for _, id := range domain.AllRestaurants() {
		assert.Equal(t, 1, fx.fetcher.count(id), "restaurant=%s", id)
	}
}

func TestGetSnapshot_RefreshesAtLocalMidnight(t *testing.T) {
	fx := newFixture(t, nil, Options{})
	fx.clock.Advance(14*time.Hour + 59*time.Minute + 59*time.Second) // 23:59:59 KST

	s, err := fx.repo.GetSnapshot(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19", s.CapturedDate)
	assert.Equal(t, 4, fx.fetcher.total())

	fx.clock.Advance(time.Second) // 00:00:00 KST
	s, err = fx.repo.GetSnapshot(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-20", s.CapturedDate)
	assert.Equal(t, 8, fx.fetcher.total())
}

func TestGetSnapshot_RefreshAcrossMidnightUsesOneDay(t *testing.T) {
	fx := newFixture(t, nil, Options{})
	// 周六 23:59:58 KST；professor 的站点响应前时钟走过午夜。
	fx.clock.Advance(5*24*time.Hour + 14*time.Hour + 59*time.Minute + 58*time.Second)
	require.Equal(t, "2026-10-24", fx.repo.Today())

	var once sync.Once
	fx.fetcher.before = func(id domain.RestaurantID) {
		if id == domain.Professor {
			once.Do(func() { fx.clock.Advance(5 * time.Second) })
		}
	}

	s, err := fx.repo.GetSnapshot(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-24", s.CapturedDate)

	fx.fetcher.mu.Lock()
	days := fx.fetcher.days
	fx.fetcher.mu.Unlock()
	require.Len(t, days, 4)
	for id, day := range days {
		assert.Equal(t, time.Saturday, day.Weekday(), "restaurant=%s", id)
		assert.Equal(t, s.CapturedDate, domain.DateOf(day), "restaurant=%s", id)
	}

	// 时钟已到周日：下一次调用按新的一天刷新。
	assert.Equal(t, "2026-10-25", fx.repo.Today())
	s, err = fx.repo.GetSnapshot(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-25", s.CapturedDate)
	assert.Equal(t, 8, fx.fetcher.total())
}

func TestGetSnapshot_ForceRefresh(t *testing.T) {
	fx := newFixture(t, nil, Options{})
	require.NoError(t, fx.cache.Store(snapshotFor("2026-10-19")))

	s, err := fx.repo.GetSnapshot(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 4, fx.fetcher.total())
	assert.Equal(t, []string{"student-밥"}, s.Menu(domain.Student).Meals[0].Dishes)
}

func TestGetSnapshot_PartialFailureDegrades(t *testing.T) {
	fx := newFixture(t, nil, Options{})
	fx.fetcher.errs[domain.Dining27] = &provider.FetchError{Restaurant: domain.Dining27, Err: errors.New("connection reset")}

	s, err := fx.repo.GetSnapshot(context.Background(), false)
	require.NoError(t, err)
	require.NoError(t, s.Validate())

	m := s.Menu(domain.Dining27)
	assert.Equal(t, domain.Dining27, m.RestaurantID)
	assert.NotNil(t, m.Meals)
	assert.Empty(t, m.Meals)
	for _, id := range []domain.RestaurantID{domain.Student, domain.Professor, domain.Dorm1} {
		assert.Len(t, s.Menu(id).Meals, 1, "restaurant=%s", id)
	}

	_, ok := fx.cache.Load()
	assert.True(t, ok)
}

func TestGetSnapshot_AllFailedKeepsCache(t *testing.T) {
	fx := newFixture(t, nil, Options{})
	prior := snapshotFor("2026-10-18")
	require.NoError(t, fx.cache.Store(prior))
	for _, id := range domain.AllRestaurants() {
		fx.fetcher.errs[id] = errors.New("no route to host")
	}

	_, err := fx.repo.GetSnapshot(context.Background(), false)
	var re *RefreshError
	require.True(t, errors.As(err, &re), "期望 *RefreshError，实际：%T %v", err, err)
	assert.Equal(t, "2026-10-19", re.Date)
	assert.Len(t, re.Errs, 4)
	assert.True(t, provider.IsFetchError(err))

	stored, ok := fx.cache.Load()
	require.True(t, ok)
	assert.Equal(t, prior, stored)

	fb, ok := fx.repo.Fallback()
	require.True(t, ok)
	assert.Equal(t, prior, fb)
}

func TestGetSnapshot_ConcurrentCallersShareOneRefresh(t *testing.T) {
	fx := newFixture(t, nil, Options{})
	gate := make(chan struct{})
	fx.fetcher.gate = gate

	const callers = 8
	var wg sync.WaitGroup
	results := make([]domain.MenuSnapshot, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = fx.repo.GetSnapshot(context.Background(), false)
		}()
	}

	require.Eventually(t, func() bool { return fx.fetcher.total() == 4 }, 2*time.Second, 5*time.Millisecond)
	close(gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	for _, id := range domain.AllRestaurants() {
		assert.Equal(t, 1, fx.fetcher.count(id), "restaurant=%s", id)
	}
}

func TestGetSnapshot_HungFetchBoundedByTimeout(t *testing.T) {
	fx := newFixture(t, nil, Options{FetchTimeout: 50 * time.Millisecond})
	fx.fetcher.hang[domain.Dorm1] = true

	s, err := fx.repo.GetSnapshot(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, s.Menu(domain.Dorm1).Meals)
	assert.Len(t, s.Menu(domain.Student).Meals, 1)
}

func TestGetSnapshot_StoreFailureStillReturns(t *testing.T) {
	fx := newFixture(t, failingPutKV{cache.NewMemoryKV()}, Options{})

	s, err := fx.repo.GetSnapshot(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19", s.CapturedDate)

	again, err := fx.repo.GetSnapshot(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, s, again)
	assert.Equal(t, 4, fx.fetcher.total())
}

func TestGetSnapshot_FutureCacheAndStoreFailureFetchOnce(t *testing.T) {
	kv := failingPutKV{cache.NewMemoryKV()}
	seeded, err := json.Marshal(snapshotFor("2026-10-20"))
	require.NoError(t, err)
	require.NoError(t, kv.MemoryKV.Put(cache.KeySnapshot, seeded))
	fx := newFixture(t, kv, Options{})

	for range 3 {
		s, err := fx.repo.GetSnapshot(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, "2026-10-19", s.CapturedDate)
	}
	assert.Equal(t, 4, fx.fetcher.total())
}

func TestGetSnapshot_CallerCancelDoesNotAbortFlight(t *testing.T) {
	fx := newFixture(t, nil, Options{})
	gate := make(chan struct{})
	fx.fetcher.gate = gate

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := fx.repo.GetSnapshot(ctx, false)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return fx.fetcher.total() == 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(gate)
	require.Eventually(t, func() bool {
		_, ok := fx.cache.Load()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	s, err := fx.repo.GetSnapshot(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19", s.CapturedDate)
	assert.Equal(t, 4, fx.fetcher.total())
}

func TestFallback_EmptyWhenNothingCached(t *testing.T) {
	fx := newFixture(t, nil, Options{})
	_, ok := fx.repo.Fallback()
	assert.False(t, ok)
}

type recordingObserver struct {
	mu      sync.Mutex
	started int
	fetched map[domain.RestaurantID]error
	took    map[domain.RestaurantID]time.Duration
	done    []error
}

func (o *recordingObserver) OnRefreshStart(string, []domain.RestaurantID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) OnFetchDone(id domain.RestaurantID, _ int, err error, took time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fetched == nil {
		o.fetched = map[domain.RestaurantID]error{}
		o.took = map[domain.RestaurantID]time.Duration{}
	}
	o.fetched[id] = err
	o.took[id] = took
}

func (o *recordingObserver) OnRefreshDone(_ string, _ int, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.done = append(o.done, err)
}

func TestObserver_ReceivesEvents(t *testing.T) {
	obs := &recordingObserver{}
	fx := newFixture(t, nil, Options{Observer: obs})
	fx.fetcher.errs[domain.Professor] = errors.New("503")

	_, err := fx.repo.GetSnapshot(context.Background(), false)
	require.NoError(t, err)
	_, err = fx.repo.GetSnapshot(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, obs.started)
	assert.Len(t, obs.fetched, 4)
	assert.True(t, provider.IsFetchError(obs.fetched[domain.Professor]))
	assert.NoError(t, obs.fetched[domain.Student])
	assert.Equal(t, []error{nil}, obs.done)
}

func TestObserver_FetchDurationFromClock(t *testing.T) {
	obs := &recordingObserver{}
	fx := newFixture(t, nil, Options{Observer: obs})
	var once sync.Once
	fx.fetcher.before = func(id domain.RestaurantID) {
		if id == domain.Dorm1 {
			once.Do(func() { fx.clock.Advance(3 * time.Second) })
		}
	}

	_, err := fx.repo.GetSnapshot(context.Background(), false)
	require.NoError(t, err)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Len(t, obs.took, 4)
	assert.GreaterOrEqual(t, obs.took[domain.Dorm1], 3*time.Second)
	for id, d := range obs.took {
		assert.LessOrEqual(t, d, 3*time.Second, "restaurant=%s", id)
	}
}

func TestGetSnapshot_OneFailureDoesNotCancelOthers(t *testing.T) {
	fx := newFixture(t, nil, Options{})
	fx.fetcher.errs[domain.Student] = errors.New("boom")
	// 其余食堂在失败发生后才返回；若失败取消了共享 ctx，它们会拿到空菜单。
	var wg sync.WaitGroup
	wg.Add(1)
	fx.fetcher.before = func(id domain.RestaurantID) {
		if id == domain.Student {
			wg.Done()
			return
		}
		wg.Wait()
	}

	s, err := fx.repo.GetSnapshot(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, s.Menu(domain.Student).Meals)
	for _, id := range []domain.RestaurantID{domain.Dorm1, domain.Dining27, domain.Professor} {
		assert.Equal(t, []domain.MealSlot{{MealTime: "중식", Dishes: []string{string(id) + "-밥"}}}, s.Menu(id).Meals, "restaurant=%s", id)
	}
}
