package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner writes the callboard banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{`            _ _ _                         _ `, "#34d399"},
		{`   ___ __ _| | | |__   ___   __ _ _ __ __| |`, "#2dd4bf"},
		{`  / __/ _' | | | '_ \ / _ \ / _' | '__/ _' |`, "#22d3ee"},
		{` | (_| (_| | | | |_) | (_) | (_| | | | (_| |`, "#38bdf8"},
		{`  \___\__,_|_|_|_.__/ \___/ \__,_|_|  \__,_|`, "#60a5fa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  v"+strings.TrimSpace(version)).Faint())
	fmt.Fprintln(w)
}
