package bootstrap

import (
	"io"
	"os"
	"time"

	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
)

// DefaultGracefulTimeout bounds shutdown when WithGracefulTimeout is not given.
const DefaultGracefulTimeout = 15 * time.Second

// Option adjusts how NewApp builds the App.
type Option func(*settings)

type settings struct {
	log     *logger.Logger
	grace   time.Duration
	summary io.Writer
}

func newSettings(opts []Option) settings {
	s := settings{grace: DefaultGracefulTimeout, summary: os.Stdout}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithLogger uses l instead of initializing the global logger from the
// config's logging section.
func WithLogger(l *logger.Logger) Option {
	return func(s *settings) { s.log = l }
}

// WithGracefulTimeout bounds stop hooks and component shutdown together.
func WithGracefulTimeout(d time.Duration) Option {
	return func(s *settings) { s.grace = d }
}

// WithSummaryOutput sends the startup summary to w. io.Discard silences it.
func WithSummaryOutput(w io.Writer) Option {
	return func(s *settings) { s.summary = w }
}
