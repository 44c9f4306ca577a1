package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
)

func setColor(on bool) {
	for _, c := range []*color.Color{green, red, yellow, cyan, bold} {
		if on {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, green.Sprint("✓ "+fmt.Sprintf(format, args...)))
}

func printError(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, red.Sprint("✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, yellow.Sprint("⚠ "+fmt.Sprintf(format, args...)))
}

func printStatus(w io.Writer, label string, format string, args ...any) {
	fmt.Fprintf(w, "  %s %s\n", bold.Sprint(label+":"), fmt.Sprintf(format, args...))
}
