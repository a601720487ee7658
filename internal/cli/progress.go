package cli

import (
	"io"

	"github.com/pterm/pterm"

	"github.com/liangyou/nvc/internal/logging"
	"github.com/liangyou/nvc/internal/nvcerr"
	"github.com/liangyou/nvc/pkg/models"
)

type progressMode string

const (
	progressAuto   progressMode = "auto"
	progressAlways progressMode = "always"
	progressNever  progressMode = "never"
)

func parseProgressMode(s string) (progressMode, error) {
	switch m := progressMode(s); m {
	case progressAuto, progressAlways, progressNever:
		return m, nil
	}
	return "", nvcerr.Newf(nvcerr.InvalidInput, "invalid progress mode %q, expected auto, always or never", s)
}

// downloadProgress 将下载进度渲染为 pterm 进度条，首个回调到达时才创建。
type downloadProgress struct {
	w       io.Writer
	enabled bool
	title   string
	bar     *pterm.ProgressbarPrinter
	current int64
}

func newProgress(w io.Writer, mode progressMode, v models.Version) *downloadProgress {
	enabled := mode == progressAlways || (mode == progressAuto && logging.IsTerminal(w))
	title := "Downloading Node.js"
	if v != (models.Version{}) {
		title = "Downloading Node " + v.String()
	}
	return &downloadProgress{w: w, enabled: enabled, title: title}
}

// Update 满足 version.ProgressFunc。
func (p *downloadProgress) Update(downloaded, total int64) {
	if !p.enabled || total <= 0 {
		return
	}
	if p.bar == nil {
		bar, err := pterm.DefaultProgressbar.
			WithTotal(int(total)).
			WithTitle(p.title).
			WithWriter(p.w).
			WithRemoveWhenDone(true).
			Start()
		if err != nil {
			p.enabled = false
			return
		}
		p.bar = bar
	}
	if delta := downloaded - p.current; delta > 0 {
		p.bar.Add(int(delta))
		p.current = downloaded
	}
}

// Stop 结束进度条，可重复调用。
func (p *downloadProgress) Stop() {
	if p.bar == nil {
		return
	}
	_, _ = p.bar.Stop()
	p.bar = nil
}
