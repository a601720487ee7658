package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/liangyou/nvc/internal/nvcerr"
)

// Specifier 是用户或版本文件给出的版本描述，取值只能是本文件中定义的几种类型。
type Specifier interface {
	fmt.Stringer
	isSpecifier()
}

// Exact 指定完整版本号。
type Exact struct {
	Version Version
}

// Partial 指定版本前缀，例如 16 或 16.14。
type Partial struct {
	Major    uint64
	Minor    uint64
	HasMinor bool
}

// LtsCodename 指定某条 LTS 线，例如 lts/hydrogen。
type LtsCodename struct {
	Name string
}

// LatestLts 指定最新的 LTS 版本（lts/*）。
type LatestLts struct{}

// Latest 指定最新版本，不区分 LTS。
type Latest struct{}

// Bypass 表示不接管 PATH，沿用系统已有的 node（system）。
type Bypass struct{}

// AliasName 指向 AliasStore 中的一个别名。
type AliasName struct {
	Name string
}

// Range 是 npm 风格的 semver 范围，通常来自 package.json 的 engines.node。
type Range struct {
	Raw        string
	Constraint *semver.Constraints
}

func (Exact) isSpecifier()       {}
func (Partial) isSpecifier()     {}
func (LtsCodename) isSpecifier() {}
func (LatestLts) isSpecifier()   {}
func (Latest) isSpecifier()      {}
func (Bypass) isSpecifier()      {}
func (AliasName) isSpecifier()   {}
func (Range) isSpecifier()       {}

func (s Exact) String() string { return s.Version.String() }

func (s Partial) String() string {
	if s.HasMinor {
		return fmt.Sprintf("v%d.%d", s.Major, s.Minor)
	}
	return fmt.Sprintf("v%d", s.Major)
}

func (s LtsCodename) String() string { return "lts/" + s.Name }
func (LatestLts) String() string     { return "lts/*" }
func (Latest) String() string        { return "latest" }
func (Bypass) String() string        { return "system" }
func (s AliasName) String() string   { return s.Name }
func (s Range) String() string       { return s.Raw }

// Matches 判断版本是否以该前缀开头。
func (s Partial) Matches(v Version) bool {
	if v.Major != s.Major {
		return false
	}
	return !s.HasMinor || v.Minor == s.Minor
}

// Matches 判断版本属于该 LTS 线（代号不区分大小写）。
func (s LtsCodename) Matches(v Version) bool {
	return v.LTS != "" && strings.EqualFold(v.LTS, s.Name)
}

// Matches 判断版本满足范围约束。
func (s Range) Matches(v Version) bool {
	if s.Constraint == nil {
		return false
	}
	return s.Constraint.Check(semver.New(v.Major, v.Minor, v.Patch, "", ""))
}

var aliasNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// ParseSpecifier 将一行用户输入解析为 Specifier。
func ParseSpecifier(input string) (Specifier, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return nil, nvcerr.New(nvcerr.SpecifierUnparseable, "empty version specifier")
	}

	lower := strings.ToLower(raw)
	switch {
	case lower == "system":
		return Bypass{}, nil
	case lower == "latest" || lower == "node":
		return Latest{}, nil
	case lower == "lts/*" || lower == "lts":
		return LatestLts{}, nil
	case strings.HasPrefix(lower, "lts/"):
		name := strings.TrimPrefix(lower, "lts/")
		if !aliasNamePattern.MatchString(name) {
			return nil, nvcerr.Newf(nvcerr.SpecifierUnparseable, "invalid LTS codename %q", raw)
		}
		return LtsCodename{Name: name}, nil
	}

	if looksNumeric(raw) {
		if spec, ok := parseNumeric(raw); ok {
			return spec, nil
		}
	} else if aliasNamePattern.MatchString(raw) {
		return AliasName{Name: raw}, nil
	}

	if r, err := ParseRange(raw); err == nil {
		return r, nil
	}
	return nil, nvcerr.Newf(nvcerr.SpecifierUnparseable, "cannot parse version specifier %q", raw)
}

// ParseRange 解析 npm 风格的 semver 范围，支持 ||、^、~、x 以及比较符组合。
func ParseRange(input string) (Range, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Range{}, nvcerr.New(nvcerr.SpecifierUnparseable, "empty version range")
	}
	c, err := semver.NewConstraint(raw)
	if err != nil {
		return Range{}, nvcerr.Wrapf(err, nvcerr.SpecifierUnparseable, "cannot parse version range %q", raw)
	}
	return Range{Raw: raw, Constraint: c}, nil
}

// ValidateAliasName 拒绝会被解析成版本号、LTS 或 system 的别名。
func ValidateAliasName(name string) error {
	spec, err := ParseSpecifier(name)
	if err != nil {
		return nvcerr.Newf(nvcerr.InvalidInput, "invalid alias name %q", name)
	}
	if _, ok := spec.(AliasName); !ok {
		return nvcerr.Newf(nvcerr.InvalidInput, "alias name %q collides with version specifier %s", name, spec)
	}
	return nil
}

func looksNumeric(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "v"), "V")
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

func parseNumeric(raw string) (Specifier, bool) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(raw, "v"), "V")
	parts := strings.Split(trimmed, ".")
	if len(parts) > 3 {
		return nil, false
	}
	nums := make([]uint64, len(parts))
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, false
		}
		nums[i] = n
	}
	switch len(nums) {
	case 1:
		return Partial{Major: nums[0]}, true
	case 2:
		return Partial{Major: nums[0], Minor: nums[1], HasMinor: true}, true
	default:
		return Exact{Version: Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}}, true
	}
}
