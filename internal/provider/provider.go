package provider

import (
	"context"
	"time"

	"github.com/John-Robertt/haksik/internal/domain"
)

// Fetcher 把“站点变化”限制在 provider 包内部；上层只依赖统一接口与稳定的 MealSlot。
//
// 约束：
// - Fetch 不做缓存、不做重试（缓存由 repository 统一实现，重试只由 transport 配置决定）
// - 失败必须返回 *FetchError；“这一天没有数据”不是错误，返回空列表
// - 读哪一天由调用方的 day 决定，Fetcher 自己不看时钟：同一次刷新的四个食堂共用一个 day
type Fetcher interface {
	Fetch(ctx context.Context, id domain.RestaurantID, day time.Time) ([]domain.MealSlot, error)
}
