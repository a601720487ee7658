package version

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/liangyou/nvc/internal/nvcerr"
)

// ProgressFunc 在下载过程中回调当前已完成的字节数以及总字节数；总数未知时为 -1。
type ProgressFunc func(downloaded, total int64)

// ArtifactDownloader 将发布包下载到指定目录并返回文件路径。
type ArtifactDownloader interface {
	Download(ctx context.Context, url, destDir string, progress ProgressFunc) (string, error)
}

// HTTPClient 定义 Downloader 所需的 HTTP 客户端能力。
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Downloader 以流式方式下载发布包，不在内存中缓存整个文件。
type Downloader struct {
	httpClient HTTPClient
	logger     zerolog.Logger
}

// DownloaderOption 配置 Downloader。
type DownloaderOption func(*Downloader)

// WithHTTPClient 指定自定义 HTTP 客户端。
func WithHTTPClient(client HTTPClient) DownloaderOption {
	return func(d *Downloader) {
		if client != nil {
			d.httpClient = client
		}
	}
}

// WithDownloaderLogger 指定日志。
func WithDownloaderLogger(logger zerolog.Logger) DownloaderOption {
	return func(d *Downloader) {
		d.logger = logger
	}
}

// NewDownloader 创建 Downloader。
func NewDownloader(opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		httpClient: http.DefaultClient,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download 将 url 写入 destDir 下的文件。服务端给出 Content-Length 时校验长度是否一致。
func (d *Downloader) Download(ctx context.Context, url, destDir string, progress ProgressFunc) (string, error) {
	d.logger.Debug().Str("url", url).Msg("Downloading archive")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nvcerr.Wrap(err, nvcerr.NetworkError, "downloader: build request")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", nvcerr.Wrap(err, nvcerr.NetworkError, "downloader: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nvcerr.Newf(nvcerr.NetworkError, "downloader: unexpected status %d from %s", resp.StatusCode, url)
	}

	target := filepath.Join(destDir, path.Base(req.URL.Path))
	file, err := os.Create(target)
	if err != nil {
		return "", nvcerr.Wrap(err, nvcerr.FilesystemError, "downloader: create file")
	}
	defer file.Close()

	total := resp.ContentLength
	reader := d.wrapProgress(resp.Body, total, progress)

	written, err := io.Copy(file, reader)
	if err != nil {
		if ctx.Err() != nil {
			return "", nvcerr.Wrap(ctx.Err(), nvcerr.NetworkError, "downloader: interrupted")
		}
		return "", nvcerr.Wrap(err, nvcerr.NetworkError, "downloader: read body")
	}
	if total >= 0 && written != total {
		return "", nvcerr.Newf(nvcerr.NetworkError, "downloader: incomplete download, got %d of %d bytes", written, total)
	}

	if err := file.Sync(); err != nil {
		return "", nvcerr.Wrap(err, nvcerr.FilesystemError, "downloader: sync file")
	}
	d.logger.Debug().Str("file", target).Int64("bytes", written).Msg("Download finished")
	return target, nil
}

func (d *Downloader) wrapProgress(reader io.Reader, total int64, progress ProgressFunc) io.Reader {
	if progress == nil {
		return reader
	}
	return &progressReader{r: reader, total: total, report: progress}
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.report(p.read, p.total)
	}
	return n, err
}

// DownloadURL 按 {mirror}/{version}/node-{version}-{platform}-{arch}.{ext} 拼接发布包地址。
func DownloadURL(mirror, version, platform, arch, ext string) string {
	return fmt.Sprintf("%s/%s/node-%s-%s-%s.%s", mirror, version, version, platform, arch, ext)
}
