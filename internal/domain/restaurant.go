package domain

import (
	"fmt"
	"strings"
)

// RestaurantID 是食堂的唯一主键，也是查找与路由唯一使用的 key。
//
// 约束：取值是固定的封闭集合，跨快照保持稳定。
type RestaurantID string

const (
	Student   RestaurantID = "student"
	Professor RestaurantID = "professor"
	Dining27  RestaurantID = "dining27"
	Dorm1     RestaurantID = "dorm1"
)

var allRestaurants = [...]RestaurantID{Student, Professor, Dining27, Dorm1}

// AllRestaurants 按固定顺序返回全部食堂（每次返回新切片，调用方可随意修改）。
func AllRestaurants() []RestaurantID {
	out := make([]RestaurantID, len(allRestaurants))
	copy(out, allRestaurants[:])
	return out
}

// ParseRestaurantID 校验并解析食堂 ID（忽略大小写与首尾空白）。
func ParseRestaurantID(s string) (RestaurantID, error) {
	id := RestaurantID(strings.ToLower(strings.TrimSpace(s)))
	if id.Valid() {
		return id, nil
	}
	return "", fmt.Errorf("未知食堂：%q（可选：student|professor|dining27|dorm1）", s)
}

func (id RestaurantID) Valid() bool {
	for _, r := range allRestaurants {
		if r == id {
			return true
		}
	}
	return false
}
