package region

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/liangyou/nvc/internal/nvcerr"
)

const (
	defaultEndpoint = "https://ipinfo.io/country"
	defaultFallback = "https://ipapi.co/json"
	defaultTimeout  = 3 * time.Second
)

// HTTPClient 最小化 HTTP 客户端接口，便于测试替换。
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type lookupSource struct {
	endpoint string
	parse    func([]byte) (string, error)
}

// Detector 探测公网 IP 所在国家，结果在进程内缓存。
type Detector struct {
	sources []lookupSource
	client  HTTPClient
	timeout time.Duration

	once    sync.Once
	country string
	err     error
}

// Option 用于配置 Detector。
type Option func(*Detector)

// WithEndpoints 替换主探测接口与备选接口（纯文本国家码、ipapi 风格 JSON）。
func WithEndpoints(primary, fallback string) Option {
	return func(d *Detector) {
		d.sources = d.sources[:0]
		if primary != "" {
			d.sources = append(d.sources, lookupSource{endpoint: primary, parse: parsePlainCountry})
		}
		if fallback != "" {
			d.sources = append(d.sources, lookupSource{endpoint: fallback, parse: parseJSONCountry})
		}
	}
}

// WithHTTPClient 设置自定义 HTTP 客户端。
func WithHTTPClient(client HTTPClient) Option {
	return func(d *Detector) {
		if client != nil {
			d.client = client
		}
	}
}

// WithTimeout 设置单次探测请求的超时时间。
func WithTimeout(timeout time.Duration) Option {
	return func(d *Detector) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewDetector 创建 Detector 实例。
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		sources: []lookupSource{
			{endpoint: defaultEndpoint, parse: parsePlainCountry},
			{endpoint: defaultFallback, parse: parseJSONCountry},
		},
		client:  http.DefaultClient,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CountryCode 返回 ISO 国家代码（如 CN、US），依次尝试各个探测接口。
func (d *Detector) CountryCode(ctx context.Context) (string, error) {
	d.once.Do(func() {
		d.country, d.err = d.lookup(ctx)
	})
	return d.country, d.err
}

func (d *Detector) lookup(ctx context.Context) (string, error) {
	if len(d.sources) == 0 {
		return "", nvcerr.New(nvcerr.NetworkError, "region: no lookup endpoint configured")
	}
	var errs []error
	for _, src := range d.sources {
		code, err := d.fetchCountry(ctx, src)
		if err == nil {
			return code, nil
		}
		errs = append(errs, err)
	}
	return "", nvcerr.Wrap(errors.Join(errs...), nvcerr.NetworkError, "region: detect country")
}

func (d *Detector) fetchCountry(ctx context.Context, src lookupSource) (string, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request %s: %w", src.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("request %s: unexpected status %d", src.endpoint, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", src.endpoint, err)
	}
	return src.parse(data)
}

func parsePlainCountry(data []byte) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(string(data)))
	if code == "" {
		return "", errors.New("empty country code")
	}
	return code, nil
}

func parseJSONCountry(data []byte) (string, error) {
	var payload struct {
		CountryCode string `json:"country_code"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return parsePlainCountry([]byte(payload.CountryCode))
}
