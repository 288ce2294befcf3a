package queue

import "time"

type settings struct {
	notifier  Notifier
	sequencer *Sequencer
	now       func() time.Time
	location  *time.Location
}

// Option configures an Engine or a QueryService.
type Option func(*settings)

// WithNotifier sets the post-commit event sink
func WithNotifier(n Notifier) Option {
	return func(s *settings) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSequencer replaces the default sequencer
func WithSequencer(seq *Sequencer) Option {
	return func(s *settings) {
		if seq != nil {
			s.sequencer = seq
		}
	}
}

// WithLocation sets the time zone that delimits "today" in statistics
func WithLocation(loc *time.Location) Option {
	return func(s *settings) {
		if loc != nil {
			s.location = loc
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		notifier:  nopNotifier{},
		sequencer: &Sequencer{},
		now:       func() time.Time { return time.Now().UTC() },
		location:  time.UTC,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
