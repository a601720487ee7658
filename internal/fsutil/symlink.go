// Package fsutil 提供基于 rename 的原子文件系统操作。
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ReplaceSymlink 先在同目录创建临时符号链接，再 rename 覆盖 linkPath。
// 读取方只会看到旧链接或新链接，不会看到缺失或半写状态。
func ReplaceSymlink(target, linkPath string) error {
	dir := filepath.Dir(linkPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prepare %s: %w", dir, err)
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%d.%d.tmp", filepath.Base(linkPath), os.Getpid(), time.Now().UnixNano()))
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("create temporary link: %w", err)
	}
	if err := os.Rename(tmp, linkPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", linkPath, err)
	}
	return nil
}

// IsTempLink 判断目录项是否是 ReplaceSymlink 遗留的临时链接。
func IsTempLink(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
