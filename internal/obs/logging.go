package obs

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogOptions selects the output encoding, level and destination of a logger.
type LogOptions struct {
	Format    string
	Level     string
	Component string
	Out       io.Writer
}

// NewLogger configures a zerolog logger using the provided options. Unknown
// levels fall back to info; "console" and "text" formats use the human
// readable writer, everything else is JSON.
func NewLogger(opts LogOptions) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stdout
	if opts.Out != nil {
		out = opts.Out
	}
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	ctx := zerolog.New(out).With().Timestamp()
	if component := strings.TrimSpace(opts.Component); component != "" {
		ctx = ctx.Str("component", component)
	}
	return ctx.Logger()
}
