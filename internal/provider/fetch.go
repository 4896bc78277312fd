package provider

import (
	"context"
	"io"
	"net/http"
)

// maxBodyBytes 限制单个页面的读取大小（菜单页通常只有几十 KB）。
const maxBodyBytes = 4 << 20

// GetPage 对 u 发起一次 GET，并在 2xx 时返回完整 body。
// 非 2xx 返回 *HTTPStatusError；不做重试。
func GetPage(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}
