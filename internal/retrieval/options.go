package retrieval

import (
	"log/slog"
	"time"
)

type settings struct {
	logger *slog.Logger
	now    func() time.Time
}

func defaultSettings() settings {
	return settings{
		logger: slog.Default(),
		now:    time.Now,
	}
}

// Option configures a Ranker, Session or EmbeddingCache.
type Option func(*settings)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
	}
}

// WithClock overrides the time source used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

func applyOptions(opts []Option) settings {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
