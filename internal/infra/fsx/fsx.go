package fsx

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// renameFunc 可在测试中替换，用于模拟 rename 失败。
var renameFunc = os.Rename

// WriteFileAtomicReplace 在 dir 下原子写入 name，已存在则覆盖。
//
// 约束：
// - 临时文件与目标在同一目录，rename 不会跨设备
// - 读者要么看到旧内容，要么看到完整的新内容
// - 任何一步失败都不留下临时文件
func WriteFileAtomicReplace(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	// os.File.Write 要么写完，要么返回错误。
	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	dst := filepath.Join(dir, name)
	if err := renameFunc(tmpName, dst); err != nil {
		return fmt.Errorf("replace %s: %w", dst, err)
	}

	// 目录 fsync 只是尽力而为；Windows 不支持对目录 Sync。
	if runtime.GOOS != "windows" {
		if d, err := os.Open(dir); err == nil {
			_ = d.Sync()
			_ = d.Close()
		}
	}
	return nil
}
