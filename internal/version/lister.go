package version

import (
	"context"
	"fmt"
	"strings"

	"github.com/liangyou/nvc/internal/remote"
	"github.com/liangyou/nvc/internal/storage"
	"github.com/liangyou/nvc/pkg/models"
)

// AliasLister 返回所有别名。
type AliasLister interface {
	List() ([]models.Alias, error)
}

// LocalEntry 是 ls 的一行。
type LocalEntry struct {
	Installed models.InstalledVersion
	Aliases   []string
	Current   bool
}

// RemoteFilter 控制 ls-remote 的输出。
type RemoteFilter struct {
	// LTS 只保留 LTS 版本。
	LTS bool
	// Codename 只保留指定 LTS 代号的版本，隐含 LTS。
	Codename string
	// Prefix 只保留以该前缀开头的版本，例如 18 或 v18.1。
	Prefix string
	// Latest 只返回过滤后最新的一个版本。
	Latest bool
}

// Lister 聚合远程与本地版本信息。
type Lister struct {
	cfg     *models.Config
	catalog remote.Catalog
	storage storage.LocalStorage
	aliases AliasLister
	link    SessionLink
}

// NewLister 创建版本列表服务。
func NewLister(cfg *models.Config, catalog remote.Catalog, store storage.LocalStorage, aliases AliasLister, link SessionLink) *Lister {
	return &Lister{cfg: cfg, catalog: catalog, storage: store, aliases: aliases, link: link}
}

// RemoteVersions 返回按版本升序排列并过滤后的远程版本。
func (l *Lister) RemoteVersions(ctx context.Context, filter RemoteFilter) ([]models.RemoteVersion, error) {
	versions, err := l.catalog.FetchVersions(ctx)
	if err != nil {
		return nil, err
	}

	prefix := normalizePrefix(filter.Prefix)
	out := make([]models.RemoteVersion, 0, len(versions))
	for _, rv := range versions {
		if (filter.LTS || filter.Codename != "") && !rv.Version.IsLTS() {
			continue
		}
		if filter.Codename != "" && !strings.EqualFold(rv.Version.LTS, filter.Codename) {
			continue
		}
		if prefix != "" && !matchesPrefix(rv.Version, prefix) {
			continue
		}
		out = append(out, rv)
	}

	if filter.Latest && len(out) > 1 {
		out = out[len(out)-1:]
	}
	return out, nil
}

// LocalVersions 返回本地安装版本，附带别名并标记当前会话的版本。
func (l *Lister) LocalVersions() ([]LocalEntry, error) {
	installed, err := l.storage.List()
	if err != nil {
		return nil, err
	}
	aliases, err := l.aliases.List()
	if err != nil {
		return nil, err
	}
	current, hasCurrent, err := l.CurrentVersion()
	if err != nil {
		return nil, err
	}

	entries := make([]LocalEntry, 0, len(installed))
	for _, inst := range installed {
		entry := LocalEntry{Installed: inst, Current: hasCurrent && current.Same(inst.Version)}
		for _, a := range aliases {
			if a.Version.Same(inst.Version) {
				entry.Aliases = append(entry.Aliases, a.Name)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// CurrentVersion 返回当前会话链接指向的版本。
func (l *Lister) CurrentVersion() (models.Version, bool, error) {
	return l.link.Current(l.cfg.MultishellPath)
}

// FormatRemoteVersion 格式化远程版本输出，包含 LTS 代号。
func FormatRemoteVersion(rv models.RemoteVersion) string {
	if rv.Version.IsLTS() {
		return fmt.Sprintf("%s (%s)", rv.Version, rv.Version.LTS)
	}
	return rv.Version.String()
}

// FormatLocalVersion 格式化本地版本输出，标记当前版本并列出别名。
func FormatLocalVersion(entry LocalEntry) string {
	marker := " "
	if entry.Current {
		marker = "*"
	}
	line := fmt.Sprintf("%s %s", marker, entry.Installed.Version)
	if len(entry.Aliases) > 0 {
		line += " " + strings.Join(entry.Aliases, ", ")
	}
	return line
}

func normalizePrefix(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return strings.TrimPrefix(strings.TrimPrefix(p, "v"), "V")
}

// matchesPrefix 按点分段比较，18 不会匹配 180.0.0。
func matchesPrefix(v models.Version, prefix string) bool {
	s := strings.TrimPrefix(v.String(), "v")
	return s == prefix || strings.HasPrefix(s, prefix+".")
}
