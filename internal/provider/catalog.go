package provider

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/John-Robertt/haksik/internal/domain"
)

// Restaurant 是一条食堂配置：上游地址 + 展示名。
type Restaurant struct {
	ID    domain.RestaurantID
	Label string
	URL   string
}

// Catalog 是食堂配置的只读表（按 RestaurantID 索引），抓取层与展示层共用。
type Catalog struct {
	byID map[domain.RestaurantID]Restaurant
}

const baseURL = "https://inucoop.com/main.php?mkey=2&w=2"

// DefaultRestaurants 返回内置的四个食堂配置。
func DefaultRestaurants() []Restaurant {
	return []Restaurant{
		{ID: domain.Student, Label: "학생식당", URL: baseURL + "&l=1"},
		{ID: domain.Professor, Label: "교직원식당", URL: baseURL + "&l=2"},
		{ID: domain.Dining27, Label: "27호관식당", URL: baseURL + "&l=3"},
		{ID: domain.Dorm1, Label: "제1기숙사식당", URL: baseURL + "&l=4"},
	}
}

// DefaultCatalog 返回内置配置构成的 Catalog。
func DefaultCatalog() Catalog {
	c, err := NewCatalog(DefaultRestaurants()...)
	if err != nil {
		panic(err)
	}
	return c
}

// NewCatalog 校验并构造 Catalog：四个食堂必须齐全且不重复，URL 必须是 http/https。
func NewCatalog(rs ...Restaurant) (Catalog, error) {
	byID := make(map[domain.RestaurantID]Restaurant, len(rs))
	for _, r := range rs {
		if !r.ID.Valid() {
			return Catalog{}, fmt.Errorf("未知食堂：%q", r.ID)
		}
		if _, ok := byID[r.ID]; ok {
			return Catalog{}, fmt.Errorf("重复的食堂：%q", r.ID)
		}
		r.URL = strings.TrimSpace(r.URL)
		u, err := url.Parse(r.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return Catalog{}, fmt.Errorf("%s：URL 必须是 http/https：%q", r.ID, r.URL)
		}
		r.Label = strings.TrimSpace(r.Label)
		if r.Label == "" {
			r.Label = string(r.ID)
		}
		byID[r.ID] = r
	}
	for _, id := range domain.AllRestaurants() {
		if _, ok := byID[id]; !ok {
			return Catalog{}, fmt.Errorf("缺少食堂配置：%q", id)
		}
	}
	return Catalog{byID: byID}, nil
}

func (c Catalog) Get(id domain.RestaurantID) (Restaurant, bool) {
	if c.byID == nil {
		return Restaurant{}, false
	}
	r, ok := c.byID[id]
	return r, ok
}

// Label 返回展示名；未配置时回退为 ID 本身。
func (c Catalog) Label(id domain.RestaurantID) string {
	if r, ok := c.Get(id); ok {
		return r.Label
	}
	return string(id)
}
