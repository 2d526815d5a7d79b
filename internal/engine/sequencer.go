package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/koindex/koindex/internal/domain"
)

// job is one unit of work submitted to a pair lane.
type job struct {
	fn   func() error
	done chan error
}

// lane is the worker owning a single pair. Its jobs channel is unbuffered:
// callers blocked on the send are admitted in the order they arrived.
type lane struct {
	jobs chan job
}

// Sequencer serializes work per pair. At most one function runs for a given
// pair at any time, and distinct pairs never contend with each other.
type Sequencer struct {
	logger *slog.Logger

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewSequencer creates a Sequencer with no active lanes.
func NewSequencer(logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		logger: logger,
		lanes:  make(map[string]*lane),
		quit:   make(chan struct{}),
	}
}

// RunExclusive runs fn inside the exclusive region of pair and returns its
// error. If ctx is done before fn is admitted, fn is never run and ctx.Err()
// is returned. Once admitted, fn runs to completion regardless of ctx.
// A panic inside fn is recovered and reported as domain.ErrInternal.
func (s *Sequencer) RunExclusive(ctx context.Context, pair string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l, err := s.lane(domain.NormalizePair(pair))
	if err != nil {
		return err
	}

	j := job{fn: fn, done: make(chan error, 1)}
	select {
	case l.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return domain.ErrSequencerClosed
	}
	return <-j.done
}

// lane returns the worker for pair, starting it on first use.
func (s *Sequencer) lane(pair string) (*lane, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, domain.ErrSequencerClosed
	}
	if l, ok := s.lanes[pair]; ok {
		return l, nil
	}
	l := &lane{jobs: make(chan job)}
	s.lanes[pair] = l
	s.wg.Add(1)
	go s.run(pair, l)
	return l, nil
}

func (s *Sequencer) run(pair string, l *lane) {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		case j := <-l.jobs:
			j.done <- s.call(pair, j.fn)
		}
	}
}

func (s *Sequencer) call(pair string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in exclusive region",
				"pair", pair,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: panic on %s: %v", domain.ErrInternal, pair, r)
		}
	}()
	return fn()
}

// Pairs returns the pairs that currently have a running lane, sorted.
func (s *Sequencer) Pairs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	pairs := make([]string, 0, len(s.lanes))
	for p := range s.lanes {
		pairs = append(pairs, p)
	}
	sort.Strings(pairs)
	return pairs
}

// Close stops every lane after its in-flight function returns. Calls made
// after Close return domain.ErrSequencerClosed. Close is idempotent.
func (s *Sequencer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.quit)
	s.mu.Unlock()

	s.wg.Wait()
}
