// Package session runs the processing state machine for one detection job at
// a time against a media source and target set.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/google/uuid"

	"video-detector/internal/domain"
	"video-detector/internal/media"
)

var (
	// ErrCannotProcess is returned when no source is present or no targets are selected.
	ErrCannotProcess = errors.New("a media source and at least one target are required")

	// ErrProcessingFailed wraps errors reported by the collaborator.
	ErrProcessingFailed = errors.New("processing failed")
)

// Request is one detection job handed to the collaborator.
type Request struct {
	SessionID string
	Source    media.Source
	Targets   []string
	// OnProgress receives percentages in [0,100].
	OnProgress func(progress float64)
}

// Result is the collaborator output for a successful run.
type Result struct {
	Reference string
}

// Collaborator performs inference. Process blocks until the run completes,
// fails, or ctx is cancelled.
type Collaborator interface {
	Process(ctx context.Context, req Request) (Result, error)
}

// Listener observes every state change. Calls are serialized and in commit
// order, and run without the session lock held, so a listener may read the
// session. A transition committed while a listener is running is delivered
// by the goroutine that is already notifying, after the listener returns.
type Listener func(domain.Session)

// Session tracks the single allowed running job and its transitions.
type Session struct {
	collab   Collaborator
	log      logs.Log
	listener Listener
	newID    func() string
	now      func() time.Time

	mu      sync.Mutex
	current domain.Session
	run     uint64
	cancel  context.CancelFunc
	done    chan struct{}

	// pending holds committed snapshots not yet delivered. notifying is set
	// while one goroutine drains it.
	pending   []domain.Session
	notifying bool
}

// New creates a session in idle state.
func New(collab Collaborator, log logs.Log, listener Listener) *Session {
	return &Session{
		collab:   collab,
		log:      log,
		listener: listener,
		newID:    uuid.NewString,
		now:      time.Now,
		current:  domain.Session{Status: domain.SessionStatusIdle},
	}
}

// CanProcess reports whether a job may be started for the given inputs.
func CanProcess(src media.Source, targets []string) bool {
	return src != nil && len(targets) > 0
}

// Start begins a run. Starting while a run is active is a no-op that returns
// the current snapshot. Completed and Failed sessions may be restarted.
func (s *Session) Start(src media.Source, targets []string) (domain.Session, error) {
	if !CanProcess(src, targets) {
		return s.Current(), ErrCannotProcess
	}

	s.mu.Lock()
	if s.current.Status == domain.SessionStatusRunning {
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		return snapshot, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.run++
	run := s.run
	s.cancel = cancel
	s.done = make(chan struct{})
	s.current = domain.Session{
		ID:         s.newID(),
		Status:     domain.SessionStatusRunning,
		StartedAt:  s.now().UTC(),
		SourceKind: src.Kind(),
		Targets:    append([]string(nil), targets...),
	}
	req := Request{
		SessionID:  s.current.ID,
		Source:     src,
		Targets:    append([]string(nil), targets...),
		OnProgress: func(p float64) { s.progress(run, p) },
	}
	done := s.done
	snapshot := s.commitLocked()

	go s.execute(ctx, run, req, done)
	return snapshot, nil
}

// execute runs the collaborator and applies its outcome if run is still current.
func (s *Session) execute(ctx context.Context, run uint64, req Request, done chan struct{}) {
	defer close(done)

	result, err := s.collab.Process(ctx, req)

	s.mu.Lock()
	if run != s.run || s.current.Status != domain.SessionStatusRunning {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.cancel = nil
	s.current.FinishedAt = s.now().UTC()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.mu.Unlock()
			return
		}
		s.current.Status = domain.SessionStatusFailed
		s.current.ErrorMessage = err.Error()
		if s.log != nil {
			s.log.Warnf("Session %v failed: %v", req.SessionID, err)
		}
	} else {
		s.current.Status = domain.SessionStatusCompleted
		s.current.Progress = 100
		s.current.ResultRef = result.Reference
		if s.log != nil {
			s.log.Infof("Session %v completed: %v", req.SessionID, result.Reference)
		}
	}
	s.commitLocked()
}

// progress applies a collaborator report. Reports are clamped to [0,100] and
// never move progress backwards. Reports from superseded runs are dropped.
func (s *Session) progress(run uint64, p float64) {
	s.mu.Lock()
	if run != s.run || s.current.Status != domain.SessionStatusRunning {
		s.mu.Unlock()
		return
	}
	p = clamp(p)
	if p <= s.current.Progress {
		s.mu.Unlock()
		return
	}
	s.current.Progress = p
	s.commitLocked()
}

// Stop cancels a running job and returns the session to idle with zero progress.
// Stopping a session that is not running is a no-op.
func (s *Session) Stop() domain.Session {
	s.mu.Lock()
	if s.current.Status != domain.SessionStatusRunning {
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		return snapshot
	}

	s.cancel()
	s.cancel = nil
	s.run++
	s.current = domain.Session{Status: domain.SessionStatusIdle}
	return s.commitLocked()
}

// Fail moves a running job to failed with message, cancelling the collaborator.
func (s *Session) Fail(message string) domain.Session {
	s.mu.Lock()
	if s.current.Status != domain.SessionStatusRunning {
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		return snapshot
	}

	s.cancel()
	s.cancel = nil
	s.run++
	s.current.Status = domain.SessionStatusFailed
	s.current.ErrorMessage = message
	s.current.FinishedAt = s.now().UTC()
	return s.commitLocked()
}

// Reset returns a completed or failed session to idle. Running and idle
// sessions are left unchanged. Reports whether the state changed.
func (s *Session) Reset() bool {
	s.mu.Lock()
	switch s.current.Status {
	case domain.SessionStatusCompleted, domain.SessionStatusFailed:
		s.current = domain.Session{Status: domain.SessionStatusIdle}
		s.commitLocked()
		return true
	default:
		s.mu.Unlock()
		return false
	}
}

// Current returns a snapshot of the session.
func (s *Session) Current() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// IsRunning reports whether a job is active.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Status == domain.SessionStatusRunning
}

// Wait blocks until the collaborator goroutine of the latest run has returned
// or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the failure of the current session wrapped in ErrProcessingFailed,
// or nil when the session has not failed.
func (s *Session) Err() error {
	cur := s.Current()
	if cur.Status != domain.SessionStatusFailed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrProcessingFailed, cur.ErrorMessage)
}

// commitLocked queues the new state for the listener and releases mu. If no
// other goroutine is notifying, it drains the queue itself with mu released.
func (s *Session) commitLocked() domain.Session {
	snapshot := s.snapshotLocked()
	s.pending = append(s.pending, snapshot)
	if s.notifying {
		s.mu.Unlock()
		return snapshot
	}

	s.notifying = true
	for len(s.pending) > 0 {
		next := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()
		if s.listener != nil {
			s.listener(next)
		}
		s.mu.Lock()
	}
	s.notifying = false
	s.pending = nil
	s.mu.Unlock()
	return snapshot
}

func (s *Session) snapshotLocked() domain.Session {
	snapshot := s.current
	snapshot.Targets = append([]string(nil), s.current.Targets...)
	return snapshot
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
