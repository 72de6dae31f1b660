package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ASCII logo for the application
const ASCIILogo = `
    ╔═══════════════════════════════════════════════════════╗
    ║  ██████╗ ██╗███╗   ██╗███████╗ ██████╗██████╗  █████╗  ║
    ║  ██╔══██╗██║████╗  ██║██╔════╝██╔════╝██╔══██╗██╔══██╗ ║
    ║  ██████╔╝██║██╔██╗ ██║███████╗██║     ██████╔╝███████║ ║
    ║  ██╔═══╝ ██║██║╚██╗██║╚════██║██║     ██╔══██╗██╔══██║ ║
    ║  ██║     ██║██║ ╚████║███████║╚██████╗██║  ██║██║  ██║ ║
    ║  ╚═╝     ╚═╝╚═╝  ╚═══╝╚══════╝ ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝ ║
    ║        BOARD DISCOVERY AND PIN EXTRACTION PIPELINE     ║
    ╚═══════════════════════════════════════════════════════╝
`

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		return fmt.Sprintf(colorString, text)
	}
}

// Console writes the human-facing output of a run. Logs go through the
// logger; the console only carries the banner, stage headers and summaries.
type Console struct {
	out   io.Writer
	color bool
	quiet bool
}

// NewConsole creates a console on out. Color is used only when out is a
// terminal. A quiet console prints summaries and errors only.
func NewConsole(out io.Writer, quiet bool) *Console {
	color := false
	if f, ok := out.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Console{out: out, color: color, quiet: quiet}
}

// Discard returns a console that prints nothing
func Discard() *Console {
	return &Console{out: io.Discard, quiet: true}
}

func (c *Console) paint(fn func(string) string, s string) string {
	if !c.color {
		return s
	}
	return fn(s)
}

// PrintLogo prints the ASCII logo with color
func (c *Console) PrintLogo() {
	if c.quiet {
		return
	}
	fmt.Fprint(c.out, c.paint(Cyan, ASCIILogo))
}

// PrintError prints an error message in red
func (c *Console) PrintError(msg string, err error) {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	fmt.Fprintln(c.out, c.paint(Red, msg))
}

// PrintSuccess prints a success message in green
func (c *Console) PrintSuccess(msg string) {
	fmt.Fprintln(c.out, c.paint(Green, msg))
}

// PrintInfo prints a label and value pair
func (c *Console) PrintInfo(label string, value string) {
	if c.quiet {
		return
	}
	fmt.Fprintf(c.out, "%s: %s\n", c.paint(Cyan, label), c.paint(Yellow, value))
}

// PrintWarning prints a warning message in yellow
func (c *Console) PrintWarning(msg string) {
	fmt.Fprintln(c.out, c.paint(Yellow, msg))
}

// PrintStageHeader announces a stage before it runs
func (c *Console) PrintStageHeader(stage int, name string) {
	if c.quiet {
		return
	}
	title := fmt.Sprintf("[STAGE %d] %s", stage, strings.ToUpper(strings.ReplaceAll(name, "_", " ")))
	fmt.Fprintln(c.out, "\n"+c.paint(Magenta, title))
}

// SummaryLine is one labelled counter in a stage summary
type SummaryLine struct {
	Label string
	Value interface{}
}

// PrintSummary prints an aligned block of counters under a title
func (c *Console) PrintSummary(title string, lines ...SummaryLine) {
	width := 0
	for _, l := range lines {
		if len(l.Label) > width {
			width = len(l.Label)
		}
	}

	fmt.Fprintln(c.out, c.paint(Green, title))
	for _, l := range lines {
		label := fmt.Sprintf("  %-*s", width, l.Label)
		fmt.Fprintf(c.out, "%s  %s\n", c.paint(Dim, label), c.paint(Yellow, fmt.Sprint(l.Value)))
	}
}
