// Package inference provides collaborators that perform (or stand in for)
// object detection on a media source.
package inference

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/cyclopcam/logs"

	"video-detector/internal/session"
)

// minIncrement keeps every tick strictly increasing progress.
const minIncrement = 0.01

// Simulator advances progress by a randomized increment on a fixed cadence and
// returns a passthrough reference to the source once progress would reach 100.
type Simulator struct {
	Interval  time.Duration
	Increment func() float64
	log       logs.Log
}

// NewSimulator ticks every interval with increments uniform in [0, maxIncrement).
func NewSimulator(interval time.Duration, maxIncrement float64, log logs.Log) *Simulator {
	return &Simulator{
		Interval:  interval,
		Increment: RandomIncrement(maxIncrement),
		log:       log,
	}
}

// RandomIncrement returns a generator of uniform increments in [0, max).
func RandomIncrement(max float64) func() float64 {
	return func() float64 {
		return rand.Float64() * max
	}
}

// Process reports progress until completion or cancellation. The tick that
// would reach or exceed 100 is not reported; it returns the result instead.
func (s *Simulator) Process(ctx context.Context, req session.Request) (session.Result, error) {
	if req.Source == nil {
		return session.Result{}, errors.New("no media source")
	}
	if len(req.Targets) == 0 {
		return session.Result{}, errors.New("no detection targets")
	}

	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if s.log != nil {
		s.log.Infof("Simulating detection of %v on %v", req.Targets, req.Source.Reference())
	}

	progress := 0.0
	for {
		select {
		case <-ctx.Done():
			return session.Result{}, ctx.Err()
		case <-ticker.C:
			step := s.Increment()
			if step < minIncrement {
				step = minIncrement
			}
			next := progress + step
			if next >= 100 {
				return session.Result{Reference: req.Source.Reference()}, nil
			}
			progress = next
			if req.OnProgress != nil {
				req.OnProgress(progress)
			}
		}
	}
}
