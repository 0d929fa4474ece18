package domain

// TargetOption is one quick-pick entry with its current selection state.
type TargetOption struct {
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// PlayerState is the transport state of one media reference.
type PlayerState struct {
	Title      string  `json:"title"`
	Reference  string  `json:"reference,omitempty"`
	Live       bool    `json:"live"`
	Playing    bool    `json:"playing"`
	PositionMs int64   `json:"positionMs"`
	DurationMs int64   `json:"durationMs"`
	Volume     float64 `json:"volume"`
	Muted      bool    `json:"muted"`
	Fullscreen bool    `json:"fullscreen"`
}

// PlayersState is the snapshot of the original and processed players.
type PlayersState struct {
	Original  PlayerState `json:"original"`
	Processed PlayerState `json:"processed"`
}

// AppState is everything the UI renders.
type AppState struct {
	Source        SourceInfo     `json:"source"`
	StreamPending bool           `json:"streamPending"`
	Targets       []string       `json:"targets"`
	CommonTargets []TargetOption `json:"commonTargets"`
	CanProcess    bool           `json:"canProcess"`
	Session       Session        `json:"session"`
	StatusText    string         `json:"statusText"`
	Remaining     string         `json:"remaining,omitempty"`
	Players       PlayersState   `json:"players"`
	LastSeq       int64          `json:"lastSeq"`
}
