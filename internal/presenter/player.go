// Package presenter exposes read-only playback state for the original source
// and the processed result.
package presenter

import (
	"errors"
	"sync"
	"time"

	"video-detector/internal/domain"
)

// ErrNoMedia is returned by transport controls when nothing is loaded.
var ErrNoMedia = errors.New("no media loaded")

// Player tracks transport controls for one media reference.
type Player struct {
	mu         sync.Mutex
	title      string
	ref        string
	live       bool
	playing    bool
	position   time.Duration
	duration   time.Duration
	volume     float64
	muted      bool
	fullscreen bool
}

// NewPlayer creates an empty player at full volume.
func NewPlayer(title string) *Player {
	return &Player{title: title, volume: 1}
}

// Load replaces the reference and rewinds. Loading the same reference only
// refreshes a known duration.
func (p *Player) Load(ref string, duration time.Duration, live bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ref == p.ref {
		if duration > 0 {
			p.duration = duration
		}
		return
	}
	p.ref = ref
	p.live = live
	p.duration = duration
	p.position = 0
	p.playing = false
	p.fullscreen = false
}

// Unload clears the reference.
func (p *Player) Unload() {
	p.Load("", 0, false)
}

// Play starts playback.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ref == "" {
		return ErrNoMedia
	}
	p.playing = true
	return nil
}

// Pause stops playback at the current position.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ref == "" {
		return ErrNoMedia
	}
	p.playing = false
	return nil
}

// TogglePlay flips between playing and paused.
func (p *Player) TogglePlay() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ref == "" {
		return ErrNoMedia
	}
	p.playing = !p.playing
	return nil
}

// Seek moves to offset, clamped to [0, duration] when the duration is known.
// Live references cannot seek.
func (p *Player) Seek(offset time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ref == "" {
		return ErrNoMedia
	}
	if p.live {
		return nil
	}
	p.position = p.clampLocked(offset)
	return nil
}

// ReportProgress records the position and duration observed by the surface.
func (p *Player) ReportProgress(position, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if duration > 0 {
		p.duration = duration
	}
	p.position = p.clampLocked(position)
	if p.duration > 0 && p.position >= p.duration {
		p.playing = false
	}
}

// SetVolume sets the volume fraction clamped to [0,1]. Zero mutes.
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case v < 0:
		v = 0
	case v > 1:
		v = 1
	}
	p.volume = v
	p.muted = v == 0
}

// ToggleMute mutes, or unmutes back to the previous volume.
func (p *Player) ToggleMute() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.muted {
		p.muted = false
		if p.volume == 0 {
			p.volume = 1
		}
		return
	}
	p.muted = true
}

// ToggleFullscreen flips fullscreen presentation.
func (p *Player) ToggleFullscreen() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ref == "" {
		return ErrNoMedia
	}
	p.fullscreen = !p.fullscreen
	return nil
}

// State returns a snapshot of the player.
func (p *Player) State() domain.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return domain.PlayerState{
		Title:      p.title,
		Reference:  p.ref,
		Live:       p.live,
		Playing:    p.playing,
		PositionMs: p.position.Milliseconds(),
		DurationMs: p.duration.Milliseconds(),
		Volume:     p.volume,
		Muted:      p.muted,
		Fullscreen: p.fullscreen,
	}
}

func (p *Player) clampLocked(offset time.Duration) time.Duration {
	if offset < 0 {
		return 0
	}
	if p.duration > 0 && offset > p.duration {
		return p.duration
	}
	return offset
}
