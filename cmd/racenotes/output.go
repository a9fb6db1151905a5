package main

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/kalambet/racenotes/internal/store"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

var stderr io.Writer = os.Stderr

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorCyan, "→ "+msg))
}

// cliNotifier renders store notifications as status lines on stderr.
type cliNotifier struct {
	errors atomic.Int32
}

var notifier = &cliNotifier{}

func (n *cliNotifier) Notify(note store.Notification) {
	switch note.Kind {
	case store.Success:
		printSuccess("%s", note.Message)
	case store.Info:
		printStep("%s", note.Message)
	case store.Warning:
		printWarning("%s", note.Message)
	case store.Error:
		n.errors.Add(1)
		printError("%s: %s", note.Op, note.Message)
	}
}

// reported tells whether an error notification has been shown.
func (n *cliNotifier) reported() bool { return n.errors.Load() > 0 }
