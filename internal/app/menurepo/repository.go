package menurepo

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/John-Robertt/haksik/internal/domain"
	"github.com/John-Robertt/haksik/internal/infra/cache"
	"github.com/John-Robertt/haksik/internal/infra/logx"
	"github.com/John-Robertt/haksik/internal/provider"
)

// DefaultFetchTimeout 是单个食堂抓取的默认上限；超时按该食堂失败处理。
const DefaultFetchTimeout = 10 * time.Second

// Options 是 Repository 的可选依赖；零值可用。
type Options struct {
	Catalog      provider.Catalog
	FetchTimeout time.Duration
	Clock        clockwork.Clock
	Location     *time.Location
	Logger       *slog.Logger
	Observer     Observer
}

// Repository 编排 Fetcher + SnapshotCache，是展示层与 widget 唯一的入口。
//
// 约束：
// - 同一日历日内成功刷新后，再次调用直接返回同一快照，不访问网络
// - 一次刷新中的四个食堂并发抓取，整体打上同一个 CapturedDate 后一次性写入
// - 单个食堂失败降级为空列表；四个全部失败返回 *RefreshError，缓存保持不变
// - 并发调用在同一天最多只有一个刷新在飞（singleflight 共享结果）
type Repository struct {
	fetcher provider.Fetcher
	cache   *cache.SnapshotCache
	catalog provider.Catalog
	timeout time.Duration
	clock   clockwork.Clock
	loc     *time.Location
	log     *slog.Logger
	obs     Observer

	flight singleflight.Group

	mu      sync.RWMutex
	current *domain.MenuSnapshot
}

func New(f provider.Fetcher, c *cache.SnapshotCache, opts Options) *Repository {
	r := &Repository{
		fetcher: f,
		cache:   c,
		catalog: opts.Catalog,
		timeout: opts.FetchTimeout,
		clock:   opts.Clock,
		loc:     opts.Location,
		log:     logx.OrDiscard(opts.Logger),
		obs:     opts.Observer,
	}
	if r.timeout <= 0 {
		r.timeout = DefaultFetchTimeout
	}
	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	if r.loc == nil {
		r.loc = time.Local
	}
	if r.obs == nil {
		r.obs = nopObserver{}
	}
	return r
}

// Today 返回配置时区下的当前日历日（YYYY-MM-DD）。
func (r *Repository) Today() string {
	return domain.DateOf(r.now())
}

func (r *Repository) now() time.Time { return r.clock.Now().In(r.loc) }

// GetSnapshot 返回今天的快照。force=false 时优先使用内存/缓存中今天的快照。
//
// 调用方 ctx 取消只会让本次调用提前返回；已在飞的刷新继续完成（受每个食堂的超时约束），
// 以便共享同一次刷新的其他调用者仍能拿到结果。
func (r *Repository) GetSnapshot(ctx context.Context, force bool) (domain.MenuSnapshot, error) {
	// day 只取一次：CapturedDate 与每个食堂读取的星期列都来自它，跨午夜的刷新也不会混入两天。
	day := r.now()
	today := domain.DateOf(day)
	if !force {
		if s, ok := r.fresh(today); ok {
			return s, nil
		}
	}

	detached := context.WithoutCancel(ctx)
	ch := r.flight.DoChan("refresh:"+today, func() (any, error) {
		// 进入 flight 后再查一次：上一个 flight 可能刚刚写入了今天的快照。
		if !force {
			if s, ok := r.fresh(today); ok {
				return s, nil
			}
		}
		return r.refresh(detached, day)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.MenuSnapshot{}, res.Err
		}
		return res.Val.(domain.MenuSnapshot), nil
	case <-ctx.Done():
		return domain.MenuSnapshot{}, ctx.Err()
	}
}

// Fallback 返回最近一次成功的快照（不论日期），供 RefreshError 时回退展示。
func (r *Repository) Fallback() (domain.MenuSnapshot, bool) {
	r.mu.RLock()
	cur := r.current
	r.mu.RUnlock()
	if cur != nil {
		return *cur, true
	}
	s, ok := r.cache.Load()
	if ok {
		r.remember(s)
	}
	return s, ok
}

func (r *Repository) fresh(today string) (domain.MenuSnapshot, bool) {
	r.mu.RLock()
	cur := r.current
	r.mu.RUnlock()
	if cur != nil && cache.IsFresh(*cur, today) {
		return *cur, true
	}

	s, ok := r.cache.Load()
	if !ok {
		return domain.MenuSnapshot{}, false
	}
	r.remember(s)
	if !r.cache.IsFresh(s, today) {
		return domain.MenuSnapshot{}, false
	}
	return s, true
}

// remember 记住从缓存读到的快照；不会用更旧的日期覆盖内存中的快照。
func (r *Repository) remember(s domain.MenuSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && r.current.CapturedDate > s.CapturedDate {
		return
	}
	r.current = &s
}

// setCurrent 无条件记住刚刷新出的快照：即使缓存里有日期更晚的记录（时钟/时区被调整过），
// 今天也不能再次抓取。
func (r *Repository) setCurrent(s domain.MenuSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = &s
}

type fetchResult struct {
	meals []domain.MealSlot
	err   error
}

func (r *Repository) refresh(ctx context.Context, day time.Time) (domain.MenuSnapshot, error) {
	started := r.clock.Now()
	today := domain.DateOf(day)
	ids := domain.AllRestaurants()
	r.obs.OnRefreshStart(today, ids)
	r.log.Info("menu refresh started", "date", today)

	// 不用 errgroup.WithContext：一个食堂失败不能取消其他食堂的抓取。
	results := make([]fetchResult, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			results[i] = r.fetchOne(ctx, id, day)
			return results[i].err
		})
	}
	if err := g.Wait(); err != nil {
		r.log.Debug("menu refresh has failures", "date", today, "first_err", err)
	}

	snap := domain.MenuSnapshot{
		CapturedDate: today,
		Restaurants:  make(map[domain.RestaurantID]domain.RestaurantMenu, len(ids)),
	}
	var failed []error
	for i, id := range ids {
		meals := results[i].meals
		if err := results[i].err; err != nil {
			failed = append(failed, err)
			r.log.Warn("menu fetch failed, restaurant left empty", "restaurant", string(id), "err", err)
			meals = nil
		}
		if meals == nil {
			meals = []domain.MealSlot{}
		}
		snap.Restaurants[id] = domain.RestaurantMenu{
			RestaurantID: id,
			Name:         r.catalog.Label(id),
			Meals:        meals,
		}
	}

	if len(failed) == len(ids) {
		err := &RefreshError{Date: today, Errs: failed}
		r.obs.OnRefreshDone(today, len(failed), err, r.clock.Since(started))
		r.log.Error("menu refresh failed", "date", today, "err", err)
		return domain.MenuSnapshot{}, err
	}

	if err := r.cache.Store(snap); err != nil {
		// 写失败不影响本次返回；内存中的快照保证今天不会重复抓取。
		r.log.Warn("snapshot store failed", "date", today, "err", err)
	}
	r.setCurrent(snap)

	r.obs.OnRefreshDone(today, len(failed), nil, r.clock.Since(started))
	r.log.Info("menu refresh done", "date", today, "failed", len(failed))
	return snap, nil
}

func (r *Repository) fetchOne(ctx context.Context, id domain.RestaurantID, day time.Time) fetchResult {
	fctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	t0 := r.clock.Now()
	done := make(chan fetchResult, 1)
	go func() {
		meals, err := r.fetcher.Fetch(fctx, id, day)
		done <- fetchResult{meals: meals, err: err}
	}()

	var res fetchResult
	select {
	case res = <-done:
	case <-fctx.Done():
		// fetcher 没有及时响应 ctx：超时即视为该食堂失败，不再等待。
		res = fetchResult{err: fctx.Err()}
	}

	meals, err := res.meals, res.err
	if err != nil && !provider.IsFetchError(err) {
		err = &provider.FetchError{Restaurant: id, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		r.log.Debug("menu fetch timed out", "restaurant", string(id), "timeout", r.timeout)
	}
	if err != nil {
		meals = nil
	}
	r.obs.OnFetchDone(id, len(meals), err, r.clock.Since(t0))
	return fetchResult{meals: meals, err: err}
}
