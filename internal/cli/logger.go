package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

const logTimeFormat = "2006-01-02 15:04:05.000Z07:00"

// newLogger renders colored text for an interactive terminal and JSON lines
// when output is piped or redirected. NO_COLOR disables color on a terminal.
func newLogger(output io.Writer, level slog.Level) *slog.Logger {
	if isTerminal(output) {
		return slog.New(newTintHandler(output, level, os.Getenv("NO_COLOR") != ""))
	}
	return slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
}

func newTintHandler(output io.Writer, level slog.Level, noColor bool) slog.Handler {
	return tint.NewHandler(output, &tint.Options{
		Level:      level,
		TimeFormat: logTimeFormat,
		NoColor:    noColor,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindAny {
				if _, ok := a.Value.Any().(error); ok {
					return tint.Attr(9, a)
				}
			}
			return a
		},
	})
}

func isTerminal(output io.Writer) bool {
	file, ok := output.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
