package menurepo

import (
	"errors"
	"fmt"
)

// RefreshError 表示一次刷新中四个食堂全部抓取失败。
// 此时缓存保持不变，调用方应优先回退到 Repository.Fallback。
type RefreshError struct {
	Date string
	Errs []error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh %s: all %d restaurants failed: %v", e.Date, len(e.Errs), errors.Join(e.Errs...))
}

func (e *RefreshError) Unwrap() []error { return e.Errs }

// IsRefreshError 判断 err 链上是否有 *RefreshError。
func IsRefreshError(err error) bool {
	var re *RefreshError
	return errors.As(err, &re)
}
