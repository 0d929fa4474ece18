package domain

import "time"

// SourceKind discriminates the active media origin.
type SourceKind string

const (
	SourceKindNone   SourceKind = "none"
	SourceKindFile   SourceKind = "file"
	SourceKindStream SourceKind = "stream"
)

// SourceInfo is the UI-facing description of the current media source.
type SourceInfo struct {
	Kind       SourceKind `json:"kind"`
	Name       string     `json:"name,omitempty"`
	SizeBytes  int64      `json:"sizeBytes,omitempty"`
	SizeLabel  string     `json:"sizeLabel,omitempty"`
	MimeType   string     `json:"mimeType,omitempty"`
	DurationMs int64      `json:"durationMs,omitempty"`
	StreamID   string     `json:"streamId,omitempty"`
	StartedAt  time.Time  `json:"startedAt,omitempty"`
	Reference  string     `json:"reference,omitempty"`
}

// SessionStatus tracks the lifecycle of one detection run.
type SessionStatus string

const (
	SessionStatusIdle      SessionStatus = "idle"
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// Session is a snapshot of the processing state machine.
type Session struct {
	ID           string        `json:"id,omitempty"`
	Status       SessionStatus `json:"status"`
	Progress     float64       `json:"progress"`
	StartedAt    time.Time     `json:"startedAt,omitempty"`
	FinishedAt   time.Time     `json:"finishedAt,omitempty"`
	SourceKind   SourceKind    `json:"sourceKind,omitempty"`
	Targets      []string      `json:"targets,omitempty"`
	ResultRef    string        `json:"resultRef,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	OutputDir         string  `json:"outputDir"`
	UploadDir         string  `json:"uploadDir"`
	CameraDevice      string  `json:"cameraDevice"`
	CaptureWidth      int     `json:"captureWidth"`
	CaptureHeight     int     `json:"captureHeight"`
	CaptureFPS        int     `json:"captureFps"`
	AcquireTimeoutSec int     `json:"acquireTimeoutSec"`
	TickIntervalMs    int     `json:"tickIntervalMs"`
	MaxIncrement      float64 `json:"maxIncrement"`
	ListenAddr        string  `json:"listenAddr"`
}

// AcquireTimeout returns the camera acquisition deadline.
func (s Settings) AcquireTimeout() time.Duration {
	return time.Duration(s.AcquireTimeoutSec) * time.Second
}

// TickInterval returns the simulated progress cadence.
func (s Settings) TickInterval() time.Duration {
	return time.Duration(s.TickIntervalMs) * time.Millisecond
}
