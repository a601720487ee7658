package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/liangyou/nvc/internal/nvcerr"
	"github.com/liangyou/nvc/pkg/models"
)

const defaultCacheTTL = 5 * time.Minute

// Catalog 定义远程版本目录应具备的能力。
type Catalog interface {
	FetchVersions(ctx context.Context) ([]models.RemoteVersion, error)
	Lookup(ctx context.Context, version models.Version) (models.RemoteVersion, error)
}

// HTTPClient 描述最小化的 HTTP 客户端接口，方便测试时替换。
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option 用于配置 Client。
type Option func(*Client)

// WithMirror 设置发布源地址。
func WithMirror(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.mirror = strings.TrimRight(base, "/")
		}
	}
}

// WithHTTPClient 设置 HTTP 客户端。
func WithHTTPClient(h HTTPClient) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithCacheTTL 设置进程内缓存时间。
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithLogger 设置日志。
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client 从发布源的 index.json 读取版本目录。
type Client struct {
	mirror     string
	httpClient HTTPClient
	cacheTTL   time.Duration
	logger     zerolog.Logger

	mu       sync.Mutex
	cached   []models.RemoteVersion
	cachedAt time.Time
}

// NewClient 创建远程版本目录客户端。
func NewClient(opts ...Option) *Client {
	c := &Client{
		mirror:     models.DefaultMirror,
		httpClient: http.DefaultClient,
		cacheTTL:   defaultCacheTTL,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mirror 返回当前使用的发布源地址。
func (c *Client) Mirror() string {
	return c.mirror
}

// FetchVersions 获取全部可发布版本，按版本号升序排列。
func (c *Client) FetchVersions(ctx context.Context) ([]models.RemoteVersion, error) {
	if versions, ok := c.getCached(); ok {
		return versions, nil
	}

	url := c.mirror + "/index.json"
	c.logger.Debug().Str("url", url).Msg("Fetching remote versions")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nvcerr.Wrap(err, nvcerr.NetworkError, "remote: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nvcerr.Wrap(err, nvcerr.NetworkError, "remote: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nvcerr.Newf(nvcerr.NetworkError, "remote: unexpected status %d from %s", resp.StatusCode, url)
	}

	var releases []release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, nvcerr.Wrap(err, nvcerr.NetworkError, "remote: decode index")
	}

	versions := c.toVersions(releases)
	c.setCache(versions)
	return c.clone(versions), nil
}

// Lookup 在目录中确认版本存在，并返回带 LTS 代号的记录。
func (c *Client) Lookup(ctx context.Context, version models.Version) (models.RemoteVersion, error) {
	versions, err := c.FetchVersions(ctx)
	if err != nil {
		return models.RemoteVersion{}, err
	}
	for _, rv := range versions {
		if rv.Version.Same(version) {
			return rv, nil
		}
	}
	return models.RemoteVersion{}, nvcerr.Newf(nvcerr.RemoteVersionNotFound, "remote: version %s not found on %s", version, c.mirror)
}

func (c *Client) toVersions(releases []release) []models.RemoteVersion {
	versions := make([]models.RemoteVersion, 0, len(releases))
	for _, rel := range releases {
		v, err := models.ParseVersion(rel.Version)
		if err != nil {
			c.logger.Debug().Str("version", rel.Version).Msg("Skipping unparseable remote version")
			continue
		}
		v.LTS = string(rel.LTS)
		versions = append(versions, models.RemoteVersion{
			Version: v,
			Date:    rel.Date,
			Files:   rel.Files,
		})
	}

	slices.SortStableFunc(versions, func(a, b models.RemoteVersion) int {
		return a.Version.Compare(b.Version)
	})
	return versions
}

func (c *Client) getCached() ([]models.RemoteVersion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cached) == 0 {
		return nil, false
	}
	if c.cacheTTL > 0 && time.Since(c.cachedAt) > c.cacheTTL {
		c.cached = nil
		return nil, false
	}
	return c.clone(c.cached), true
}

func (c *Client) setCache(versions []models.RemoteVersion) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cached = c.clone(versions)
	c.cachedAt = time.Now()
}

func (c *Client) clone(versions []models.RemoteVersion) []models.RemoteVersion {
	out := make([]models.RemoteVersion, len(versions))
	copy(out, versions)
	return out
}

// ArtifactKey 返回 index.json files 字段中对应平台与架构的条目名。
func ArtifactKey(platform string, arch models.Arch) string {
	switch platform {
	case "darwin":
		return fmt.Sprintf("osx-%s-tar", arch)
	case "win":
		return fmt.Sprintf("win-%s-zip", arch)
	default:
		return fmt.Sprintf("%s-%s", platform, arch)
	}
}

// HasArtifact 判断该版本是否发布了指定平台的安装包。目录未提供 files 时视为存在。
func HasArtifact(rv models.RemoteVersion, platform string, arch models.Arch) bool {
	if len(rv.Files) == 0 {
		return true
	}
	return slices.Contains(rv.Files, ArtifactKey(platform, arch))
}

// release 表示 index.json 中的一条发布记录。
type release struct {
	Version string   `json:"version"`
	Date    string   `json:"date"`
	Files   []string `json:"files"`
	LTS     ltsField `json:"lts"`
}

// ltsField 兼容 "lts": false 与 "lts": "Hydrogen" 两种取值。
type ltsField string

func (l *ltsField) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("false")) || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = ""
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("lts field: %w", err)
	}
	*l = ltsField(name)
	return nil
}
