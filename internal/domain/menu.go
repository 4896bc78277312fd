package domain

import (
	"fmt"
	"strings"
	"time"
)

// NoDataPlaceholder 是上游表格里表示“当天无菜品”的占位符。
const NoDataPlaceholder = "--------------"

// DateLayout 是快照日期的固定格式（本地日历日）。
const DateLayout = "2006-01-02"

// MealSlot 是某个餐次（早/午/晚等，按站点原文）当天的菜品列表。
//
// 约束：
// - Dishes 非空才会被创建；空餐次直接省略，不存为空列表
// - 每个 dish 已 trim，且不等于 NoDataPlaceholder
type MealSlot struct {
	MealTime string   `json:"meal_time"`
	Dishes   []string `json:"dishes"`
}

// RestaurantMenu 是单个食堂当天的规范化菜单。
type RestaurantMenu struct {
	RestaurantID RestaurantID `json:"restaurant_id"`
	Name         string       `json:"name"`
	Meals        []MealSlot   `json:"meals"`
}

// MenuSnapshot 是一次完整、带日期的四个食堂菜单快照。
//
// 约束：
// - 四个 RestaurantID 必须全部存在（无数据时 Meals 为空列表）
// - CapturedDate 是抓取发生的本地日期，而不是菜品供应日期
// - 构造后只读；下一次刷新整体替换，不做原地修改
type MenuSnapshot struct {
	CapturedDate string                          `json:"captured_date"`
	Restaurants  map[RestaurantID]RestaurantMenu `json:"restaurants"`
}

// DateOf 返回 t 所在时区的日历日（YYYY-MM-DD）。
func DateOf(t time.Time) string { return t.Format(DateLayout) }

// Menu 返回指定食堂的菜单；缺失时返回只带 ID 的空菜单。
func (s MenuSnapshot) Menu(id RestaurantID) RestaurantMenu {
	if m, ok := s.Restaurants[id]; ok {
		return m
	}
	return RestaurantMenu{RestaurantID: id, Meals: []MealSlot{}}
}

// Validate 检查快照的结构约束（日期格式、四个食堂齐全、无空餐次）。
func (s MenuSnapshot) Validate() error {
	if _, err := time.Parse(DateLayout, s.CapturedDate); err != nil {
		return fmt.Errorf("captured_date 无效：%q", s.CapturedDate)
	}
	for _, id := range allRestaurants {
		m, ok := s.Restaurants[id]
		if !ok {
			return fmt.Errorf("快照缺少食堂：%s", id)
		}
		if m.RestaurantID != id {
			return fmt.Errorf("食堂 ID 不一致：key=%s value=%s", id, m.RestaurantID)
		}
		for _, slot := range m.Meals {
			if len(slot.Dishes) == 0 {
				return fmt.Errorf("%s/%s：餐次不能为空", id, slot.MealTime)
			}
			for _, d := range slot.Dishes {
				if strings.TrimSpace(d) == "" || d == NoDataPlaceholder {
					return fmt.Errorf("%s/%s：非法菜品 %q", id, slot.MealTime, d)
				}
			}
		}
	}
	if len(s.Restaurants) != len(allRestaurants) {
		return fmt.Errorf("快照包含未知食堂（共 %d 个）", len(s.Restaurants))
	}
	return nil
}
