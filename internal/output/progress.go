package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// ProgressBar renders done/total as a fixed-width bar with a percentage.
func ProgressBar(done, total int64, width int) string {
	if width <= 0 {
		width = 30
	}
	if total <= 0 {
		total = 1
	}
	done = max(0, min(done, total))
	percent := float64(done) / float64(total)
	filled := max(0, min(int(percent*float64(width)), width))
	bar := StyleSymbols["bullet"] + strings.Repeat(StyleSymbols["hline"], filled) + strings.Repeat(" ", width-filled) + StyleSymbols["bullet"]
	return debugStyle.Render(fmt.Sprintf("%s %.1f%% %s ", bar, percent*100, StyleSymbols["bullet"]))
}

// isTerminal reports whether w is an interactive terminal. Anything that is
// not an *os.File, such as a buffer in tests, counts as non-interactive.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func terminalSize(w io.Writer) (width, height int) {
	width, height = 80, 24
	if f, ok := w.(*os.File); ok {
		if tw, th, err := term.GetSize(int(f.Fd())); err == nil {
			if tw > 0 {
				width = tw
			}
			if th > 0 {
				height = th
			}
		}
	}
	return width, height
}

func wrapText(text string, width, indent int) []string {
	maxWidth := width - indent - 2
	if maxWidth <= 10 {
		maxWidth = 80
	}
	if utf8.RuneCountInString(text) <= maxWidth {
		return []string{text}
	}
	var lines []string
	var current strings.Builder
	n := 0
	for _, r := range text {
		if n == maxWidth {
			lines = append(lines, current.String())
			current.Reset()
			n = 0
		}
		current.WriteRune(r)
		n++
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
