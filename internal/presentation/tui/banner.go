package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner writes the ason banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	lines := []struct {
		text  string
		color string
	}{
		{"    _    ____   ___  _   _ ", "#818cf8"},
		{"   / \\  / ___| / _ \\| \\ | |", "#a78bfa"},
		{"  / _ \\ \\___ \\| | | |  \\| |", "#c084fc"},
		{" / ___ \\ ___) | |_| | |\\  |", "#e879f9"},
		{"/_/   \\_\\____/ \\___/|_| \\_|", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  v"+strings.TrimSpace(version)).Faint())
	fmt.Fprintln(w)
}
