package bootstrap

import (
	"fmt"
	"time"

	"video-detector/internal/domain"
)

var nowFunc = time.Now

// StatusText is the one-line label shown under the progress bar.
func StatusText(s domain.Session) string {
	switch s.Status {
	case domain.SessionStatusRunning:
		return "Processing video..."
	case domain.SessionStatusCompleted:
		return "Processing completed!"
	case domain.SessionStatusFailed:
		if s.ErrorMessage != "" {
			return s.ErrorMessage
		}
		return "Processing failed"
	default:
		return "Ready to process"
	}
}

// Remaining estimates time left as elapsed*(100-p)/p, formatted m:ss.
// It is empty unless the session is running with positive progress.
func Remaining(s domain.Session, now time.Time) string {
	if s.Status != domain.SessionStatusRunning || s.Progress <= 0 || s.StartedAt.IsZero() {
		return ""
	}
	elapsed := now.Sub(s.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	left := time.Duration(float64(elapsed) * (100 - s.Progress) / s.Progress)
	return formatClock(left)
}

func formatClock(d time.Duration) string {
	total := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
