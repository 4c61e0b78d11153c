package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/zzdxppq/shop-video-scout/internal/script"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func colorize(writer io.Writer, color, line string) string {
	if !isTerminal(writer) {
		return line
	}
	return color + line + ansiReset
}

func printOK(out io.Writer, format string, args ...any) {
	fmt.Fprintln(out, colorize(out, ansiGreen, fmt.Sprintf(format, args...)))
}

func printWarn(out io.Writer, format string, args ...any) {
	fmt.Fprintln(out, colorize(out, ansiYellow, fmt.Sprintf(format, args...)))
}

// operationError turns the controller's current error into a command
// error, prefixed by its kind.
func operationError(err error) error {
	if err == nil {
		return fmt.Errorf("operation failed")
	}
	kind := script.KindOf(err)
	if kind == "" {
		return err
	}
	return fmt.Errorf("%s: %s", strings.ReplaceAll(string(kind), "_", " "), script.MessageOf(err))
}

func counterLabel(info script.CharCountInfo) string {
	label := fmt.Sprintf("%d/%d", info.Current, info.Suggested)
	if info.IsOverLimit {
		label += " (over)"
	}
	return label
}

func preview(text string, limit int) string {
	flat := strings.ReplaceAll(text, "\n", " / ")
	runes := []rune(flat)
	if len(runes) <= limit {
		return flat
	}
	return string(runes[:limit]) + "…"
}

func printError(out io.Writer, format string, args ...any) {
	fmt.Fprintln(out, colorize(out, ansiRed, fmt.Sprintf(format, args...)))
}
