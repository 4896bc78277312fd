package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"go.trai.ch/zerr"

	"github.com/John-Robertt/haksik/internal/infra/fsx"
)

// KV 是“一条 key 一条记录”的持久化存储。
//
// 约束：
// - Get 在 key 不存在时返回 ok=false、err=nil
// - Put 整体替换旧值（不做合并）
type KV interface {
	Get(key string) (value []byte, ok bool, err error)
	Put(key string, value []byte) error
}

var ErrReadOnly = errors.New("cache: read-only")

// FileKV 把每个 key 存为 <Root>/<key>.json 文件。
//
// 约束：
// - ReadOnly=true 时只允许读（Put 返回 ErrReadOnly）
// - 写入使用同目录临时文件 + rename，读者不会看到半截内容
type FileKV struct {
	Root     string
	ReadOnly bool
}

func NewFileKV(root string, readOnly bool) FileKV {
	return FileKV{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// Path 返回 key 对应的文件绝对路径。
func (s FileKV) Path(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, k+".json"), nil
}

func (s FileKV) Get(key string) ([]byte, bool, error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, zerr.With(zerr.Wrap(err, "read cache record"), "path", path)
	}
	return b, true, nil
}

func (s FileKV) Put(key string, value []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := fsx.WriteFileAtomicReplace(s.Root, k+".json", value); err != nil {
		return zerr.With(zerr.Wrap(err, "write cache record"), "dir", s.Root)
	}
	return nil
}

// MemoryKV 是进程内的 KV 实现（测试与 --no-persist 使用）。
type MemoryKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(key string) ([]byte, bool, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[k]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryKV) Put(key string, value []byte) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[k] = append([]byte(nil), value...)
	return nil
}

var keyRE = regexp.MustCompile(`^[a-z0-9_]+$`)

func cleanKey(k string) (string, error) {
	k = strings.ToLower(strings.TrimSpace(k))
	if k == "" {
		return "", fmt.Errorf("cache key 不能为空")
	}
	// 最小约束：避免路径穿越。
	if !keyRE.MatchString(k) {
		return "", fmt.Errorf("非法 cache key：%q", k)
	}
	return k, nil
}
