package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/John-Robertt/haksik/internal/domain"
	"github.com/John-Robertt/haksik/internal/infra/logx"
)

const (
	KeySnapshot = "menu_snapshot"
	KeyTheme    = "theme"
)

// Theme 是展示层的明暗主题偏好（只由展示层消费）。
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

func ParseTheme(s string) (Theme, error) {
	switch t := Theme(strings.ToLower(strings.TrimSpace(s))); t {
	case ThemeLight, ThemeDark:
		return t, nil
	default:
		return "", fmt.Errorf("theme 只能是 light 或 dark，实际是 %q", s)
	}
}

// StorageError 是持久化读写失败。
type StorageError struct {
	Op  string // "read" / "write" / "encode"
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage op=%s key=%s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// SnapshotCache 在 KV 之上保存“最近一次完整快照 + 抓取日期”。
//
// 约束：
// - Load 永不向上抛错：读失败/反序列化失败/结构不合法都视为“无缓存”
// - Store 整体替换；失败返回 *StorageError，由调用方决定是否只记日志
// - 新鲜度只看日历日是否相同，不是 TTL
type SnapshotCache struct {
	KV     KV
	Logger *slog.Logger
}

func NewSnapshotCache(kv KV, logger *slog.Logger) *SnapshotCache {
	return &SnapshotCache{KV: kv, Logger: logger}
}

// Load 读取最近一次持久化的快照。
func (c *SnapshotCache) Load() (domain.MenuSnapshot, bool) {
	b, ok, err := c.KV.Get(KeySnapshot)
	if err != nil {
		c.logger().Warn("snapshot read failed, treating as absent", "err", &StorageError{Op: "read", Key: KeySnapshot, Err: err})
		return domain.MenuSnapshot{}, false
	}
	if !ok {
		return domain.MenuSnapshot{}, false
	}

	var s domain.MenuSnapshot
	if err := json.Unmarshal(b, &s); err != nil {
		c.logger().Warn("snapshot decode failed, treating as absent", "err", err)
		return domain.MenuSnapshot{}, false
	}
	if err := s.Validate(); err != nil {
		c.logger().Warn("snapshot invalid, treating as absent", "err", err)
		return domain.MenuSnapshot{}, false
	}
	return s, true
}

// Store 持久化快照并替换旧值。
func (c *SnapshotCache) Store(s domain.MenuSnapshot) error {
	if err := s.Validate(); err != nil {
		return &StorageError{Op: "encode", Key: KeySnapshot, Err: err}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return &StorageError{Op: "encode", Key: KeySnapshot, Err: err}
	}
	if err := c.KV.Put(KeySnapshot, b); err != nil {
		return &StorageError{Op: "write", Key: KeySnapshot, Err: err}
	}
	return nil
}

// IsFresh 当且仅当快照抓取日期就是 today（YYYY-MM-DD）。
func IsFresh(s domain.MenuSnapshot, today string) bool {
	return s.CapturedDate != "" && s.CapturedDate == today
}

// IsFresh 见包级 IsFresh。
func (c *SnapshotCache) IsFresh(s domain.MenuSnapshot, today string) bool {
	return IsFresh(s, today)
}

// Theme 读取主题偏好；未设置或记录损坏时返回 light。
func (c *SnapshotCache) Theme() (Theme, error) {
	b, ok, err := c.KV.Get(KeyTheme)
	if err != nil {
		return ThemeLight, &StorageError{Op: "read", Key: KeyTheme, Err: err}
	}
	if !ok {
		return ThemeLight, nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return ThemeLight, nil
	}
	t, err := ParseTheme(raw)
	if err != nil {
		return ThemeLight, nil
	}
	return t, nil
}

func (c *SnapshotCache) SetTheme(t Theme) error {
	t, err := ParseTheme(string(t))
	if err != nil {
		return err
	}
	b, _ := json.Marshal(string(t))
	if err := c.KV.Put(KeyTheme, b); err != nil {
		return &StorageError{Op: "write", Key: KeyTheme, Err: err}
	}
	return nil
}

func (c *SnapshotCache) logger() *slog.Logger { return logx.OrDiscard(c.Logger) }
