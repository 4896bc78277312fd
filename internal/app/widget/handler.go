package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/John-Robertt/haksik/internal/app/menurepo"
	"github.com/John-Robertt/haksik/internal/domain"
	"github.com/John-Robertt/haksik/internal/infra/cache"
	"github.com/John-Robertt/haksik/internal/infra/logx"
	"github.com/John-Robertt/haksik/internal/provider"
)

// Action 是宿主（桌面小组件）投递给 Handler 的事件类型。
type Action string

const (
	ActionAdded   Action = "added"
	ActionUpdate  Action = "update"
	ActionResized Action = "resized"
	ActionClick   Action = "click"
	ActionDeleted Action = "deleted"
)

// ParseAction 解析宿主传入的动作名（大小写不敏感）。
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionAdded, ActionUpdate, ActionResized, ActionClick, ActionDeleted:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

var ErrUnknownAction = errors.New("unknown widget action")

// Event 是一次宿主回调；ClickData 仅在 click 时有意义（目标食堂 ID）。
type Event struct {
	Action    Action
	ClickData string
}

const (
	unavailableLine = "메뉴를 불러올 수 없습니다"
	emptyMenuLine   = "오늘은 메뉴가 없습니다"
)

// View 是渲染结果；宿主只负责把它画出来。
type View struct {
	Title     string      `json:"title"`
	Date      string      `json:"date,omitempty"`
	Lines     []string    `json:"lines"`
	Available bool        `json:"available"`
	Theme     cache.Theme `json:"theme"`
}

// Source 是 Handler 依赖的快照来源；*menurepo.Repository 满足该接口。
type Source interface {
	GetSnapshot(ctx context.Context, force bool) (domain.MenuSnapshot, error)
	Fallback() (domain.MenuSnapshot, bool)
}

// ThemeSource 提供主题偏好；为 nil 时固定为 light。
type ThemeSource interface {
	Theme() (cache.Theme, error)
}

// Handler 持有当前选中的食堂与最近一次拿到的快照。
//
// 约束：
// - added/update/resized 通过 Source 取快照；全部失败时回退 Fallback，再不行渲染“不可用”
// - click 只切换食堂并用已持有的快照重绘，不触发任何抓取
// - deleted 清空持有状态，不渲染
type Handler struct {
	src     Source
	catalog provider.Catalog
	themes  ThemeSource
	log     *slog.Logger

	mu       sync.Mutex
	selected domain.RestaurantID
	snap     *domain.MenuSnapshot
}

func New(src Source, catalog provider.Catalog, themes ThemeSource, logger *slog.Logger) *Handler {
	return &Handler{
		src:      src,
		catalog:  catalog,
		themes:   themes,
		log:      logx.OrDiscard(logger),
		selected: domain.Student,
	}
}

// Selected 返回当前选中的食堂。
func (h *Handler) Selected() domain.RestaurantID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.selected
}

// Handle 处理一次事件。render=false 表示宿主无需重绘（deleted）。
func (h *Handler) Handle(ctx context.Context, ev Event) (view View, render bool, err error) {
	switch ev.Action {
	case ActionAdded, ActionUpdate, ActionResized:
		h.load(ctx)
		return h.render(), true, nil
	case ActionClick:
		id, err := domain.ParseRestaurantID(ev.ClickData)
		if err != nil {
			return h.render(), true, err
		}
		h.mu.Lock()
		h.selected = id
		h.mu.Unlock()
		return h.render(), true, nil
	case ActionDeleted:
		h.mu.Lock()
		h.snap = nil
		h.selected = domain.Student
		h.mu.Unlock()
		return View{}, false, nil
	default:
		return View{}, false, fmt.Errorf("%w: %q", ErrUnknownAction, string(ev.Action))
	}
}

func (h *Handler) load(ctx context.Context) {
	s, err := h.src.GetSnapshot(ctx, false)
	if err == nil {
		h.hold(s)
		return
	}
	if menurepo.IsRefreshError(err) {
		if fb, ok := h.src.Fallback(); ok {
			h.log.Warn("menu refresh failed, showing last snapshot", "date", fb.CapturedDate, "err", err)
			h.hold(fb)
			return
		}
	}
	h.log.Warn("menu unavailable", "err", err)
}

func (h *Handler) hold(s domain.MenuSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snap = &s
}

func (h *Handler) render() View {
	h.mu.Lock()
	id := h.selected
	snap := h.snap
	h.mu.Unlock()

	v := View{Title: h.catalog.Label(id), Theme: h.theme()}
	if snap == nil {
		v.Lines = []string{unavailableLine}
		return v
	}
	v.Available = true
	v.Date = snap.CapturedDate
	v.Lines = Lines(snap.Menu(id).Meals)
	return v
}

func (h *Handler) theme() cache.Theme {
	if h.themes == nil {
		return cache.ThemeLight
	}
	t, err := h.themes.Theme()
	if err != nil {
		h.log.Debug("theme read failed", "err", err)
	}
	return t
}

// Lines 把一组餐次排成展示行："餐次: 菜1, 菜2"。没有餐次时给出固定提示。
func Lines(meals []domain.MealSlot) []string {
	if len(meals) == 0 {
		return []string{emptyMenuLine}
	}
	out := make([]string, 0, len(meals))
	for _, m := range meals {
		out = append(out, m.MealTime+": "+strings.Join(m.Dishes, ", "))
	}
	return out
}
