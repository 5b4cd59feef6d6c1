package driver

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Cycler is anything that can run one dispatch cycle.
type Cycler interface {
	Name() string
	RunCycle(ctx context.Context) error
}

// partial is implemented by cycle errors that report work left behind by a
// cycle that otherwise completed. Such errors are returned from Tick but do
// not count toward backoff.
type partial interface {
	Partial() bool
}

func isPartial(err error) bool {
	var p partial
	return errors.As(err, &p) && p.Partial()
}

// CycleFunc adapts a plain function to Cycler.
type CycleFunc struct {
	ID string
	Fn func(ctx context.Context) error
}

func (f CycleFunc) Name() string {
	return f.ID
}

func (f CycleFunc) RunCycle(ctx context.Context) error {
	return f.Fn(ctx)
}

type Config struct {
	Interval time.Duration
	Backoff  BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Interval: 100 * time.Millisecond,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// Health is the backoff bookkeeping for one cycler.
type Health struct {
	Name        string
	Failures    int
	LastError   string
	NextAttempt time.Time
}

type entry struct {
	cycler Cycler
	health Health
}

// Ticker invokes every registered cycler once per tick, in registration
// order.
type Ticker struct {
	cfg Config
	rng *rand.Rand
	now func() time.Time

	mu      sync.Mutex
	entries []*entry
}

func New(cfg Config, cyclers ...Cycler) *Ticker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	t := &Ticker{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
	for _, c := range cyclers {
		t.Add(c)
	}
	return t
}

func (t *Ticker) Add(c Cycler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, &entry{cycler: c, health: Health{Name: c.Name()}})
}

// Health returns a snapshot in registration order.
func (t *Ticker) Health() []Health {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Health, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.health)
	}
	return out
}

// Tick runs one pass over all cyclers that are not backing off and returns
// the joined cycle errors.
func (t *Ticker) Tick(ctx context.Context) error {
	t.mu.Lock()
	entries := make([]*entry, len(t.entries))
	copy(entries, t.entries)
	t.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		now := t.now()
		t.mu.Lock()
		skip := now.Before(e.health.NextAttempt)
		t.mu.Unlock()
		if skip {
			continue
		}

		err := e.cycler.RunCycle(ctx)

		failed := err != nil && !isPartial(err)
		t.mu.Lock()
		if failed {
			e.health.Failures++
			e.health.LastError = err.Error()
			e.health.NextAttempt = now.Add(t.cfg.Backoff.Delay(e.health.Failures, t.rng))
		} else {
			e.health.Failures = 0
			e.health.LastError = ""
			e.health.NextAttempt = time.Time{}
		}
		health := e.health
		t.mu.Unlock()

		switch {
		case failed:
			log.Warn().Str("cycler", health.Name).Int("failures", health.Failures).Time("next_attempt", health.NextAttempt).Err(err).Msg("driver.Ticker cycle failed")
			errs = append(errs, err)
		case err != nil:
			log.Warn().Str("cycler", health.Name).Err(err).Msg("driver.Ticker cycle incomplete")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run ticks on the configured interval until ctx is done.
func (t *Ticker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()
	log.Info().Dur("interval", t.cfg.Interval).Int("cyclers", len(t.Health())).Msg("driver.Ticker started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("driver.Ticker stopped")
			return ctx.Err()
		case <-ticker.C:
			_ = t.Tick(ctx)
		}
	}
}
