package provider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/haksik/internal/domain"
)

// ErrUnknownRestaurant 表示 Catalog 中没有该食堂。
var ErrUnknownRestaurant = errors.New("unknown restaurant")

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}

// FetchError 是单个食堂抓取失败（传输错误、超时、非 2xx）。
// 这是硬失败：Fetcher 不在内部重试，由 repository 决定降级策略。
type FetchError struct {
	Restaurant domain.RestaurantID
	URL        string
	Err        error
}

func (e *FetchError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("fetch restaurant=%s: %v", e.Restaurant, e.Err)
	}
	return fmt.Sprintf("fetch restaurant=%s url=%s: %v", e.Restaurant, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchError 判断 err 链上是否有 *FetchError。
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
