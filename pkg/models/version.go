package models

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

// Version 描述一个 Node.js 版本号，LTS 为发布时的长期支持代号（非 LTS 为空）。
type Version struct {
	Major uint64
	Minor uint64
	Patch uint64
	LTS   string
}

// ParseVersion 解析形如 v16.14.0 或 16.14.0 的完整版本号。
func ParseVersion(input string) (Version, error) {
	trimmed := strings.TrimSpace(input)
	canonical := "v" + strings.TrimPrefix(trimmed, "v")
	if !semver.IsValid(canonical) || strings.Count(canonical, ".") != 2 {
		return Version{}, fmt.Errorf("invalid version %q", input)
	}
	if semver.Prerelease(canonical) != "" || semver.Build(canonical) != "" {
		return Version{}, fmt.Errorf("invalid version %q: pre-release versions are not published", input)
	}

	parts := strings.Split(strings.TrimPrefix(canonical, "v"), ".")
	nums := make([]uint64, 3)
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", input, err)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// String 返回规范形式 vMAJOR.MINOR.PATCH。
func (v Version) String() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare 按数值比较，返回 -1、0、1；LTS 代号不参与比较。
func (v Version) Compare(other Version) int {
	if c := cmp.Compare(v.Major, other.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Minor, other.Minor); c != 0 {
		return c
	}
	return cmp.Compare(v.Patch, other.Patch)
}

// Same 判断两个版本号的三元组是否一致。
func (v Version) Same(other Version) bool {
	return v.Compare(other) == 0
}

// IsLTS 表示该版本是否属于某条 LTS 线。
func (v Version) IsLTS() bool {
	return v.LTS != ""
}

// RemoteVersion 是 Catalog 中的一条发布记录。
type RemoteVersion struct {
	Version Version
	Date    string
	Files   []string
}

// InstalledVersion 是 LocalStore 中已完整发布的一个版本。
type InstalledVersion struct {
	Version     Version
	Arch        Arch
	Dir         string // node-versions/<version>
	InstalledAt time.Time
}

// Alias 是用户命名的版本指针，default 是保留的默认别名。
type Alias struct {
	Name    string
	Version Version
}

// DefaultAlias 是新 shell 会话使用的默认别名名称。
const DefaultAlias = "default"
