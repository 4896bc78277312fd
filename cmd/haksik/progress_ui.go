package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/haksik/internal/app/menurepo"
	"github.com/John-Robertt/haksik/internal/domain"
	"github.com/John-Robertt/haksik/internal/provider"
)

var _ menurepo.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的刷新进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：repository 只发事件，CLI 决定如何展示
// - keepalive：慢速站点长时间无响应时也会定期输出一行，降低等待焦虑
type progressUI struct {
	w       io.Writer
	catalog provider.Catalog

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total int
	done  int
	ok    int
	fail  int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer, catalog provider.Catalog) *progressUI {
	return &progressUI{
		w:                  w,
		catalog:            catalog,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnRefreshStart(date string, ids []domain.RestaurantID) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.startedAt = now
	p.total = len(ids)
	p.done, p.ok, p.fail = 0, 0, 0

	fmt.Fprintf(p.w, "[%s] 刷新菜单 %s（%d 个食堂）\n", now.Format("15:04:05"), date, len(ids))
	for _, id := range ids {
		if r, ok := p.catalog.Get(id); ok {
			fmt.Fprintf(p.w, "  %s: %s\n", r.Label, truncate(r.URL, 120))
		}
	}

	p.lastPrinted = time.Now()
	if p.total > 0 && !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnFetchDone(id domain.RestaurantID, meals int, err error, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	name := p.catalog.Label(id)
	if err != nil {
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL: %s (%s)\n", p.done, p.total, name, truncate(err.Error(), 160), formatShortDuration(dur))
	} else {
		p.ok++
		fmt.Fprintf(p.w, "[%d/%d] %s OK meals=%d (%s)\n", p.done, p.total, name, meals, formatShortDuration(dur))
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnRefreshDone(date string, failed int, err error, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// 刷新结束：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}

	if err != nil {
		fmt.Fprintf(p.w, "刷新失败：%s 全部 %d 个食堂不可用 (%s)\n\n", date, failed, formatShortDuration(dur))
	} else {
		fmt.Fprintf(p.w, "刷新完成：%s ok=%d fail=%d (%s)\n\n", date, p.total-failed, failed, formatShortDuration(dur))
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done < p.total && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d elapsed=%s\n",
						p.done, p.total, p.ok, p.fail, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

// truncate 按 rune 截断（菜单与报错里常有韩文）。
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
