// Package storagetest 提供在测试中快速发布假安装的辅助函数。
package storagetest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/liangyou/nvc/internal/storage"
	"github.com/liangyou/nvc/pkg/models"
)

// NewConfig 返回以临时目录为根的配置。
func NewConfig(t *testing.T) *models.Config {
	t.Helper()
	return &models.Config{
		BaseDir:             t.TempDir(),
		NodeDistMirror:      models.DefaultMirror,
		Arch:                models.ArchX64,
		VersionFileStrategy: models.StrategyLocal,
		LogLevel:            models.LogInfo,
	}
}

// Install 按真实流程（暂存、写 metadata、rename）发布一个只含 bin/node 的假安装。
func Install(t *testing.T, store *storage.FileStorage, raw string, lts string) models.InstalledVersion {
	t.Helper()

	v, err := models.ParseVersion(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	v.LTS = lts

	staged, err := store.NewStaging("fake-*")
	if err != nil {
		t.Fatalf("staging: %v", err)
	}
	versionDir := filepath.Join(staged, v.String())
	bin := filepath.Join(versionDir, "installation", "bin")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	if err := os.WriteFile(filepath.Join(bin, "node"), []byte("#!/bin/sh\necho "+v.String()+"\n"), 0o755); err != nil {
		t.Fatalf("write node: %v", err)
	}

	inst := models.InstalledVersion{Version: v, Arch: models.ArchX64, InstalledAt: time.Now()}
	if err := store.WriteMetadata(versionDir, inst); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if _, err := store.Publish(versionDir, v); err != nil {
		t.Fatalf("publish: %v", err)
	}
	_ = os.RemoveAll(staged)

	inst.Dir = store.VersionDir(v)
	return inst
}
