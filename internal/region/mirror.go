package region

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/liangyou/nvc/pkg/models"
)

// ChinaMirror 是国内常用的 Node.js 发布镜像。
const ChinaMirror = "https://npmmirror.com/mirrors/node"

// CountryDetector 抽象国家探测能力。
type CountryDetector interface {
	CountryCode(ctx context.Context) (string, error)
}

// SelectMirror 根据国家代码返回发布源地址。
func SelectMirror(countryCode string) string {
	if strings.EqualFold(strings.TrimSpace(countryCode), "CN") {
		return ChinaMirror
	}
	return models.DefaultMirror
}

// ApplyAutoMirror 在开启 auto_mirror 且用户未显式配置发布源时，按探测结果改写 cfg.NodeDistMirror。
// 只在 config.Load 返回配置之前调用，配置交给各组件后不再修改。
// 探测失败不影响命令执行，保留默认发布源。
func ApplyAutoMirror(ctx context.Context, cfg *models.Config, detector CountryDetector, logger zerolog.Logger) {
	if cfg == nil || !cfg.AutoMirror || cfg.MirrorExplicit || detector == nil {
		return
	}
	code, err := detector.CountryCode(ctx)
	if err != nil {
		logger.Debug().Err(err).Msg("Region detection failed, keeping default mirror")
		return
	}
	cfg.NodeDistMirror = SelectMirror(code)
	logger.Debug().Str("country", code).Str("mirror", cfg.NodeDistMirror).Msg("Selected mirror by region")
}
