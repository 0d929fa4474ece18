package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/wailsapp/mimetype"
)

var (
	// ErrInvalidMediaKind is returned when a selected file is not a video.
	ErrInvalidMediaKind = errors.New("invalid media kind")

	// ErrMediaAccessDenied is returned when camera permission is refused.
	ErrMediaAccessDenied = errors.New("media access denied")

	// ErrDeviceUnavailable is returned when the camera cannot be started.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrStreamPending is returned while another camera acquisition is in flight.
	ErrStreamPending = errors.New("camera acquisition already in progress")

	// ErrStreamSuperseded is returned when a file selection or stop arrived
	// while the camera was still starting.
	ErrStreamSuperseded = errors.New("camera acquisition superseded")
)

// Options configures a Manager.
type Options struct {
	Constraints    Constraints
	AcquireTimeout time.Duration
	Prober         Prober
	Log            logs.Log
	Now            func() time.Time
	// OnStreamLost is called when a stream's capture ends without a release.
	// The stream has already been cleared.
	OnStreamLost   func(*StreamSource)
}

// Manager owns the single current media source and the camera handle.
type Manager struct {
	camera         Camera
	constraints    Constraints
	acquireTimeout time.Duration
	prober         Prober
	log            logs.Log
	now            func() time.Time
	onStreamLost   func(*StreamSource)

	mu        sync.Mutex
	current   Source
	acquiring bool
	gen       uint64
}

// NewManager creates a manager with no active source.
func NewManager(camera Camera, opts Options) *Manager {
	if opts.Constraints == (Constraints{}) {
		opts.Constraints = DefaultConstraints()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Manager{
		camera:         camera,
		constraints:    opts.Constraints,
		acquireTimeout: opts.AcquireTimeout,
		prober:         opts.Prober,
		log:            opts.Log,
		now:            opts.Now,
		onStreamLost:   opts.OnStreamLost,
	}
}

// SelectFile validates in and makes it the current source, stopping any
// active stream first. An invalid file leaves the current source unchanged.
func (m *Manager) SelectFile(ctx context.Context, in FileInput) (*FileSource, error) {
	src, err := m.inspect(ctx, in)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.releaseLocked()
	m.current = src
	m.gen++
	return src, nil
}

// inspect stats the file, resolves its MIME type and probes duration.
func (m *Manager) inspect(ctx context.Context, in FileInput) (*FileSource, error) {
	path := strings.TrimSpace(in.Path)
	if path == "" {
		return nil, fmt.Errorf("%w: file path is empty", ErrInvalidMediaKind)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open media file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrInvalidMediaKind, path)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = filepath.Base(path)
	}

	mimeType := strings.ToLower(strings.TrimSpace(in.MimeType))
	if mimeType == "" {
		detected, err := mimetype.DetectFile(path)
		if err != nil {
			return nil, fmt.Errorf("detect media type: %w", err)
		}
		mimeType = detected.String()
	}
	if !IsVideoType(mimeType) {
		return nil, fmt.Errorf("%w: %s has type %q", ErrInvalidMediaKind, name, mimeType)
	}

	src := &FileSource{
		Path:       path,
		Name:       name,
		SizeBytes:  info.Size(),
		MimeType:   mimeType,
		SelectedAt: m.now(),
	}

	if m.prober != nil {
		probe, err := m.prober.Probe(ctx, path)
		if err != nil {
			if m.log != nil {
				m.log.Warnf("Probe %v: %v", path, err)
			}
		} else {
			src.Duration = probe.Duration
		}
	}
	return src, nil
}

// IsVideoType reports whether a MIME type denotes video.
func IsVideoType(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "video/")
}

// StartStream acquires the camera and makes it the current source. An active
// stream is returned as is. On failure the prior source is left unchanged.
func (m *Manager) StartStream(ctx context.Context) (*StreamSource, error) {
	m.mu.Lock()
	if stream, ok := m.current.(*StreamSource); ok {
		m.mu.Unlock()
		return stream, nil
	}
	if m.acquiring {
		m.mu.Unlock()
		return nil, ErrStreamPending
	}
	m.acquiring = true
	gen := m.gen
	m.mu.Unlock()

	if m.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.acquireTimeout)
		defer cancel()
	}
	handle, err := m.camera.Open(ctx, m.constraints)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquiring = false

	if err != nil {
		return nil, classifyCameraError(err)
	}
	if m.gen != gen {
		if relErr := handle.Release(); relErr != nil && m.log != nil {
			m.log.Warnf("Release superseded camera handle: %v", relErr)
		}
		return nil, ErrStreamSuperseded
	}

	m.releaseLocked()
	stream := &StreamSource{Handle: handle, StartedAt: m.now()}
	m.current = stream
	m.gen++
	if frames, ok := handle.(FrameSource); ok {
		go m.watchStream(stream, frames.Done())
	}
	return stream, nil
}

// watchStream clears stream if its capture ends while it is still current.
func (m *Manager) watchStream(stream *StreamSource, done <-chan struct{}) {
	<-done

	m.mu.Lock()
	if m.current != Source(stream) {
		m.mu.Unlock()
		return
	}
	m.current = nil
	m.gen++
	m.mu.Unlock()

	if err := stream.Handle.Release(); err != nil && m.log != nil {
		m.log.Warnf("Release lost camera %v: %v", stream.Handle.ID(), err)
	}
	if m.log != nil {
		m.log.Warnf("Camera %v stopped delivering frames", stream.Handle.ID())
	}
	if m.onStreamLost != nil {
		m.onStreamLost(stream)
	}
}

// classifyCameraError guarantees camera failures carry a media error kind.
func classifyCameraError(err error) error {
	if errors.Is(err, ErrMediaAccessDenied) || errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %v", ErrMediaAccessDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}

// StopStream releases the active stream and clears it. Also abandons an
// acquisition in flight. Reports whether a stream was stopped.
func (m *Manager) StopStream() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	stream, ok := m.current.(*StreamSource)
	if !ok {
		return false, nil
	}
	m.current = nil
	return true, stream.Handle.Release()
}

// ClearFile clears a file source without touching a stream.
// Reports whether a file was cleared.
func (m *Manager) ClearFile() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.current.(*FileSource); !ok {
		return false
	}
	m.current = nil
	return true
}

// Current returns the active source, or nil when none is present.
func (m *Manager) Current() Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Acquiring reports whether a camera acquisition is in flight.
func (m *Manager) Acquiring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquiring
}

// Close releases any active stream.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	stream, ok := m.current.(*StreamSource)
	m.current = nil
	if !ok {
		return nil
	}
	return stream.Handle.Release()
}

// releaseLocked releases the current stream handle, if any. Caller holds mu.
func (m *Manager) releaseLocked() {
	stream, ok := m.current.(*StreamSource)
	if !ok {
		return
	}
	if err := stream.Handle.Release(); err != nil && m.log != nil {
		m.log.Warnf("Release camera %v: %v", stream.Handle.ID(), err)
	}
	m.current = nil
}
