package menurepo

import (
	"time"

	"github.com/John-Robertt/haksik/internal/domain"
)

// Observer 把“刷新进度”从 repository 中解耦出来（由 CLI/widget 决定是否展示）。
//
// 约束：
// - repository 只发事件，不做任何输出
// - 实现必须并发安全：OnFetchDone 来自多个 goroutine
type Observer interface {
	// OnRefreshStart 在一次真正的网络刷新开始时调用（缓存命中不会触发）。
	OnRefreshStart(date string, ids []domain.RestaurantID)
	// OnFetchDone 在单个食堂抓取结束时调用；err 非 nil 表示该食堂降级为空。
	OnFetchDone(id domain.RestaurantID, meals int, err error, dur time.Duration)
	// OnRefreshDone 在刷新结束时调用；err 为 *RefreshError 或 nil。
	OnRefreshDone(date string, failed int, err error, dur time.Duration)
}

type nopObserver struct{}

func (nopObserver) OnRefreshStart(string, []domain.RestaurantID) {}
func (nopObserver) OnFetchDone(domain.RestaurantID, int, error, time.Duration) {}
func (nopObserver) OnRefreshDone(string, int, error, time.Duration) {}
