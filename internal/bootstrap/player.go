package bootstrap

import (
	"fmt"
	"math"
	"time"

	"video-detector/internal/domain"
	"video-detector/internal/presenter"
)

// Player actions accepted by PlayerControl.
const (
	PlayerActionPlay       = "play"
	PlayerActionPause      = "pause"
	PlayerActionToggle     = "toggle"
	PlayerActionSeek       = "seek"
	PlayerActionVolume     = "volume"
	PlayerActionMute       = "mute"
	PlayerActionFullscreen = "fullscreen"
	PlayerActionPosition   = "position"
)

// PlayerControl applies a transport action to the original or processed
// player. Seek and position take seconds, volume a fraction in [0,1].
func (a *App) PlayerControl(which, action string, value float64) (domain.PlayerState, error) {
	p, err := a.Presenter.Player(presenter.Which(which))
	if err != nil {
		return domain.PlayerState{}, err
	}

	switch action {
	case PlayerActionPlay:
		err = p.Play()
	case PlayerActionPause:
		err = p.Pause()
	case PlayerActionToggle:
		err = p.TogglePlay()
	case PlayerActionSeek:
		err = p.Seek(seconds(value))
	case PlayerActionVolume:
		p.SetVolume(value)
	case PlayerActionMute:
		p.ToggleMute()
	case PlayerActionFullscreen:
		err = p.ToggleFullscreen()
	case PlayerActionPosition:
		p.ReportProgress(seconds(value), 0)
	default:
		return p.State(), fmt.Errorf("unknown player action %q", action)
	}
	return p.State(), err
}

func seconds(v float64) time.Duration {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}
