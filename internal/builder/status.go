package builder

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// snapshot is the set of counters formatStatus renders into a NINJA_STATUS
// string.
type snapshot struct {
	Started     int
	Total       int
	Running     int
	Unstarted   int
	Finished    int
	OverallRate float64
	CurrentRate float64
	Percent     int
	Elapsed     float64
}

// formatStatus expands format's %-placeholders against s. Unknown
// placeholders pass through their percent sign and letter unchanged, so a
// typo in NINJA_STATUS degrades visibly rather than eating a character.
func formatStatus(format string, s snapshot) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 >= len(format) {
			b.WriteByte(c)
			continue
		}
		i++
		switch format[i] {
		case 's':
			fmt.Fprintf(&b, "%d", s.Started)
		case 't':
			fmt.Fprintf(&b, "%d", s.Total)
		case 'r':
			fmt.Fprintf(&b, "%d", s.Running)
		case 'u':
			fmt.Fprintf(&b, "%d", s.Unstarted)
		case 'f':
			fmt.Fprintf(&b, "%d", s.Finished)
		case 'o':
			fmt.Fprintf(&b, "%.1f", s.OverallRate)
		case 'c':
			fmt.Fprintf(&b, "%.1f", s.CurrentRate)
		case 'p':
			fmt.Fprintf(&b, "%3d%%", s.Percent)
		case 'e':
			fmt.Fprintf(&b, "%.3f", s.Elapsed)
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(format[i])
		}
	}
	return b.String()
}

// statusPrinter renders one status line per event, redrawing in place on a
// terminal (carriage return, no trailing newline) and appending a plain
// newline-terminated line otherwise, so piped/CI output stays one line per
// update instead of accumulating control characters.
type statusPrinter struct {
	out    io.Writer
	tty    bool
	format string
}

func newStatusPrinter(out io.Writer, format string) *statusPrinter {
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	if format == "" {
		format = "[%f/%t] "
	}
	return &statusPrinter{out: out, tty: tty, format: format}
}

func (p *statusPrinter) print(s snapshot) {
	line := formatStatus(p.format, s)
	if p.tty {
		fmt.Fprintf(p.out, "\r%s", line)
		return
	}
	fmt.Fprintln(p.out, line)
}

// done finishes the redrawn line with a trailing newline once the build
// loop exits, so a following log line does not overwrite the last status.
func (p *statusPrinter) done() {
	if p.tty {
		fmt.Fprintln(p.out)
	}
}
