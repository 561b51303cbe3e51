// Package guard decorates a RosterStore with per-call timeouts, read retries
// and a consecutive-failure circuit breaker.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/garnizeh/staffdir/internal/metrics"
	"github.com/garnizeh/staffdir/pkg/models"
	"github.com/garnizeh/staffdir/pkg/repository"
)

var ErrCircuitOpen = errors.New("roster store circuit open")

// package-level logger for guard; can be replaced by callers
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger sets the logger used by guard. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// Config holds the resilience settings for store calls.
type Config struct {
	// Timeout bounds every single store call
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Retries is the number of extra attempts for reads
	Retries int `yaml:"retries" json:"retries"`
	// Backoff is the base backoff between retries
	Backoff time.Duration `yaml:"backoff" json:"backoff"`
	// CircuitFailureThreshold opens circuit after this many consecutive failures
	CircuitFailureThreshold int `yaml:"circuit_failure_threshold" json:"circuit_failure_threshold"`
	// CircuitReset is the duration after which the circuit attempts to half-open
	CircuitReset time.Duration `yaml:"circuit_reset" json:"circuit_reset"`
}

func DefaultConfig() Config {
	return Config{
		Timeout:                 10 * time.Second,
		Retries:                 2,
		Backoff:                 200 * time.Millisecond,
		CircuitFailureThreshold: 5,
		CircuitReset:            30 * time.Second,
	}
}

var _ repository.RosterStore = (*Store)(nil)

// Store wraps a RosterStore. Reads are retried, writes are attempted once.
type Store struct {
	next repository.RosterStore
	cfg  Config

	failures  int32
	openUntil int64 // unix nano
	// probing is 1 while the single half-open trial call runs
	probing int32
}

func New(next repository.RosterStore, cfg Config) *Store {
	d := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.CircuitFailureThreshold <= 0 {
		cfg.CircuitFailureThreshold = d.CircuitFailureThreshold
	}
	if cfg.CircuitReset <= 0 {
		cfg.CircuitReset = d.CircuitReset
	}
	return &Store{next: next, cfg: cfg}
}

func (s *Store) tripped() bool {
	return atomic.LoadInt32(&s.failures) >= int32(s.cfg.CircuitFailureThreshold)
}

// admit reports whether a call may reach the store and whether it is the
// half-open trial. Once the reset period is over exactly one caller wins the
// trial; everyone else is rejected until it settles.
func (s *Store) admit() (ok, trial bool) {
	if !s.tripped() {
		return true, false
	}
	if time.Now().UnixNano() < atomic.LoadInt64(&s.openUntil) {
		return false, false
	}
	if atomic.CompareAndSwapInt32(&s.probing, 0, 1) {
		return true, true
	}
	return false, false
}

func (s *Store) recordFailure() {
	v := atomic.AddInt32(&s.failures, 1)
	if v >= int32(s.cfg.CircuitFailureThreshold) {
		atomic.StoreInt64(&s.openUntil, time.Now().Add(s.cfg.CircuitReset).UnixNano())
		if v == int32(s.cfg.CircuitFailureThreshold) {
			logger.Warn("guard: circuit opened", slog.Int("failures", int(v)), slog.Duration("reset", s.cfg.CircuitReset))
		}
	}
}

// countsAsFailure reports whether err says something about store health.
// Caller cancellation and addressing errors do not.
func countsAsFailure(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, repository.ErrRowOutOfRange)
}

func (s *Store) call(ctx context.Context, op string, attempts int, fn func(context.Context) error) error {
	ok, trial := s.admit()
	if !ok {
		metrics.StoreCircuitRejections.WithLabelValues(op).Inc()
		return ErrCircuitOpen
	}
	if trial {
		defer atomic.StoreInt32(&s.probing, 0)
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		err := fn(callCtx)
		cancel()

		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.StoreCallDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())

		if err == nil {
			atomic.StoreInt32(&s.failures, 0)
			return nil
		}
		lastErr = err
		if !countsAsFailure(ctx, err) {
			return err
		}
		s.recordFailure()
		logger.Warn("guard: store call failed", slog.String("op", op), slog.Int("attempt", attempt+1), slog.Any("err", err))

		if attempt+1 == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.Backoff * time.Duration(attempt+1)):
		}
		if s.tripped() {
			metrics.StoreCircuitRejections.WithLabelValues(op).Inc()
			return ErrCircuitOpen
		}
	}
	if attempts > 1 {
		return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
	}
	return lastErr
}

func (s *Store) read(ctx context.Context, op string, fn func(context.Context) error) error {
	return s.call(ctx, op, s.cfg.Retries+1, fn)
}

func (s *Store) write(ctx context.Context, op string, fn func(context.Context) error) error {
	return s.call(ctx, op, 1, fn)
}

func (s *Store) ListAll(ctx context.Context) ([]models.Person, error) {
	var out []models.Person
	err := s.read(ctx, "list_all", func(ctx context.Context) error {
		var err error
		out, err = s.next.ListAll(ctx)
		return err
	})
	return out, err
}

func (s *Store) ListPositions(ctx context.Context) ([]models.Label, error) {
	var out []models.Label
	err := s.read(ctx, "list_positions", func(ctx context.Context) error {
		var err error
		out, err = s.next.ListPositions(ctx)
		return err
	})
	return out, err
}

func (s *Store) ListDepartments(ctx context.Context) ([]models.Label, error) {
	var out []models.Label
	err := s.read(ctx, "list_departments", func(ctx context.Context) error {
		var err error
		out, err = s.next.ListDepartments(ctx)
		return err
	})
	return out, err
}

func (s *Store) AppendRow(ctx context.Context, p *models.Person) (int, error) {
	var row int
	err := s.write(ctx, "append_row", func(ctx context.Context) error {
		var err error
		row, err = s.next.AppendRow(ctx, p)
		return err
	})
	return row, err
}

func (s *Store) UpdateRow(ctx context.Context, row int, p *models.Person) error {
	return s.write(ctx, "update_row", func(ctx context.Context) error {
		return s.next.UpdateRow(ctx, row, p)
	})
}

func (s *Store) ClearRow(ctx context.Context, row int) error {
	return s.write(ctx, "clear_row", func(ctx context.Context) error {
		return s.next.ClearRow(ctx, row)
	})
}

func (s *Store) ReplaceRange(ctx context.Context, people []models.Person) error {
	return s.write(ctx, "replace_range", func(ctx context.Context) error {
		return s.next.ReplaceRange(ctx, people)
	})
}
