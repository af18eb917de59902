package log

import (
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// NewCLI builds a logrus logger for human-facing banners and command
// output, distinct from the slog logger the agent and media engine use
// operationally. Colour is enabled only when stdout is a real terminal.
// No command calls it: serve logs through slog and status prints with
// fmt.
func NewCLI() *logrus.Logger {
	l := logrus.New()
	l.Formatter = &prefixed.TextFormatter{
		ForceColors:     isatty.IsTerminal(os.Stdout.Fd()),
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	}
	if isatty.IsTerminal(os.Stdout.Fd()) {
		l.Out = colorable.NewColorableStdout()
	} else {
		l.Out = os.Stdout
	}
	return l
}
