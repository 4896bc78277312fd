package inucoop

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/John-Robertt/haksik/internal/domain"
	"github.com/John-Robertt/haksik/internal/infra/logx"
	"github.com/John-Robertt/haksik/internal/provider"
)

var _ provider.Fetcher = Provider{}

// Provider 实现生协（inucoop.com）一周菜单页的抓取与解析。
//
// 约束：
// - 每个食堂一个固定 URL（来自 Catalog），只读 GET
// - 不做缓存/重试；失败统一包装为 *provider.FetchError
// - 读取哪一列只由 day 的星期决定（day 已是调用方时区下的本地时间）
type Provider struct {
	Catalog provider.Catalog
	Client  *http.Client
	Logger  *slog.Logger
}

// Fetch 抓取 id 对应食堂的一周菜单页，并返回 day 那一列的餐次。
func (p Provider) Fetch(ctx context.Context, id domain.RestaurantID, day time.Time) ([]domain.MealSlot, error) {
	r, ok := p.Catalog.Get(id)
	if !ok {
		return nil, &provider.FetchError{Restaurant: id, Err: provider.ErrUnknownRestaurant}
	}
	if p.Client == nil {
		return nil, &provider.FetchError{Restaurant: id, URL: r.URL, Err: errors.New("http client 不能为空")}
	}

	html, err := provider.GetPage(ctx, p.Client, r.URL)
	if err != nil {
		return nil, &provider.FetchError{Restaurant: id, URL: r.URL, Err: err}
	}

	idx := DayIndex(day)
	slots, err := ParseStrict(html, idx)
	if err != nil {
		// 页面结构变化：按“当天无数据”处理，不向上传播。
		p.logger().Debug("menu page without table", "restaurant", string(id), "url", r.URL, "err", err)
		return []domain.MealSlot{}, nil
	}
	p.logger().Debug("menu parsed", "restaurant", string(id), "day", idx, "meals", len(slots))
	return slots, nil
}

func (p Provider) logger() *slog.Logger { return logx.OrDiscard(p.Logger) }
