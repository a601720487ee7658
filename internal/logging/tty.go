package logging

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// IsTerminal 判断 w 是否为交互式终端。
func IsTerminal(w io.Writer) bool {
	return isTerminal(w)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
