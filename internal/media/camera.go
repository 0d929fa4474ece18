package media

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/google/uuid"
)

// Constraints are the capture hints passed to the camera.
type Constraints struct {
	Width  int  `json:"width"`
	Height int  `json:"height"`
	FPS    int  `json:"fps"`
	Audio  bool `json:"audio"`
}

// DefaultConstraints requests 1280x720 video without audio.
func DefaultConstraints() Constraints {
	return Constraints{Width: 1280, Height: 720, FPS: 15}
}

// Camera acquires exclusive access to a capture device. Open may block until
// the device delivers its first frame or ctx is done.
type Camera interface {
	Open(ctx context.Context, c Constraints) (Handle, error)
}

// Handle is a live camera acquisition. Release stops all capture tracks.
type Handle interface {
	ID() string
	Release() error
}

// FrameSource is implemented by handles that expose a live JPEG preview.
type FrameSource interface {
	// LatestFrame returns the newest JPEG frame and its sequence number.
	LatestFrame() ([]byte, uint64)
	Done() <-chan struct{}
}

// FFmpegCamera captures from a local device by running ffmpeg with MJPEG output.
type FFmpegCamera struct {
	Device      string
	ffmpegPath  string
	goos        string
	stat        func(string) (os.FileInfo, error)
	openDevice  func(string) (io.Closer, error)
	// procContext scopes the capture process.
	procContext func() (context.Context, context.CancelFunc)
	log         logs.Log
}

func backgroundProcContext() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}

// NewFFmpegCamera builds a camera bound to device using ffmpeg from PATH.
func NewFFmpegCamera(device string, log logs.Log) *FFmpegCamera {
	return &FFmpegCamera{
		Device:      device,
		ffmpegPath:  "ffmpeg",
		goos:        runtime.GOOS,
		stat:        os.Stat,
		openDevice:  func(path string) (io.Closer, error) { return os.OpenFile(path, os.O_RDONLY, 0) },
		procContext: backgroundProcContext,
		log:         log,
	}
}

// Open starts ffmpeg and waits for the first frame.
func (c *FFmpegCamera) Open(ctx context.Context, cons Constraints) (Handle, error) {
	if err := c.checkDevice(); err != nil {
		return nil, err
	}

	procCtx, cancel := c.procContext()
	cmd := exec.CommandContext(procCtx, c.ffmpegPath, buildCaptureArgs(c.goos, c.Device, cons)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	h := &ffmpegHandle{
		id:         uuid.NewString(),
		cancel:     cancel,
		firstFrame: make(chan struct{}),
		done:       make(chan struct{}),
		log:        c.log,
	}
	cmd.Stderr = &h.stderr

	if err := cmd.Start(); err != nil {
		cancel()
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: ffmpeg not found in PATH", ErrDeviceUnavailable)
		}
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrDeviceUnavailable, err)
	}
	go h.run(cmd, stdout)

	select {
	case <-h.firstFrame:
		c.log.Infof("Camera %v started (%vx%v@%v)", c.Device, cons.Width, cons.Height, cons.FPS)
		return h, nil
	case <-h.done:
		cancel()
		return nil, classifyCaptureFailure(h.stderr.String())
	case <-ctx.Done():
		if err := h.Release(); err != nil {
			c.log.Warnf("Release camera %v after timeout: %v", c.Device, err)
		}
		return nil, fmt.Errorf("%w: camera did not deliver a frame: %v", ErrDeviceUnavailable, ctx.Err())
	}
}

// checkDevice maps device-node access problems to media errors. Only
// meaningful where the device is a filesystem path.
func (c *FFmpegCamera) checkDevice() error {
	if !strings.HasPrefix(c.Device, "/dev/") {
		return nil
	}

	if _, err := c.stat(c.Device); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("%w: %s", ErrMediaAccessDenied, c.Device)
		}
		return fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, c.Device, err)
	}

	f, err := c.openDevice(c.Device)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("%w: %s", ErrMediaAccessDenied, c.Device)
		}
		return fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, c.Device, err)
	}
	return f.Close()
}

// buildCaptureArgs returns ffmpeg arguments for the platform capture backend.
func buildCaptureArgs(goos, device string, cons Constraints) []string {
	size := fmt.Sprintf("%dx%d", cons.Width, cons.Height)
	fps := strconv.Itoa(cons.FPS)

	args := []string{"-hide_banner", "-loglevel", "error"}
	switch goos {
	case "windows":
		args = append(args, "-f", "dshow", "-video_size", size, "-framerate", fps, "-i", "video="+device)
	case "darwin":
		input := device
		if !cons.Audio {
			input += ":none"
		}
		args = append(args, "-f", "avfoundation", "-video_size", size, "-framerate", fps, "-i", input)
	default:
		args = append(args, "-f", "v4l2", "-video_size", size, "-framerate", fps, "-i", device)
	}
	if !cons.Audio {
		args = append(args, "-an")
	}
	return append(args, "-f", "mjpeg", "-q:v", "5", "pipe:1")
}

// classifyCaptureFailure maps ffmpeg stderr of an early exit to a media error.
func classifyCaptureFailure(stderr string) error {
	msg := lastLine(stderr)
	if msg == "" {
		msg = "capture process exited"
	}
	lower := strings.ToLower(stderr)
	if strings.Contains(lower, "permission denied") || strings.Contains(lower, "not authorized") {
		return fmt.Errorf("%w: %s", ErrMediaAccessDenied, msg)
	}
	return fmt.Errorf("%w: %s", ErrDeviceUnavailable, msg)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// ffmpegHandle owns one running capture process.
type ffmpegHandle struct {
	id     string
	cancel context.CancelFunc
	stderr syncBuffer
	log    logs.Log

	mu       sync.RWMutex
	frame    []byte
	frameSeq uint64

	firstOnce   sync.Once
	firstFrame  chan struct{}
	done        chan struct{}
	releaseOnce sync.Once
}

func (h *ffmpegHandle) ID() string { return h.id }

func (h *ffmpegHandle) Done() <-chan struct{} { return h.done }

func (h *ffmpegHandle) LatestFrame() ([]byte, uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.frame, h.frameSeq
}

// Release kills the capture process and waits briefly for it to exit.
func (h *ffmpegHandle) Release() error {
	var err error
	h.releaseOnce.Do(func() {
		h.cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			err = fmt.Errorf("capture %s did not exit after release", h.id)
		}
	})
	return err
}

// run splits stdout into JPEG frames until the process exits.
func (h *ffmpegHandle) run(cmd *exec.Cmd, stdout io.Reader) {
	defer close(h.done)

	var splitter frameSplitter
	reader := bufio.NewReaderSize(stdout, 64*1024)
	buf := make([]byte, 32*1024)
	for {
		n, err := reader.Read(buf)
		for _, frame := range splitter.Feed(buf[:n]) {
			h.mu.Lock()
			h.frame = frame
			h.frameSeq++
			h.mu.Unlock()
			h.firstOnce.Do(func() { close(h.firstFrame) })
		}
		if err != nil {
			break
		}
	}

	if err := cmd.Wait(); err != nil && h.log != nil {
		h.log.Debugf("Capture %v exited: %v", h.id, err)
	}
}

// syncBuffer is a bytes.Buffer safe for the exec writer goroutine and readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// NewFFmpegCameraForTests creates a camera with injected OS dependencies.
func NewFFmpegCameraForTests(
	device, ffmpegPath, goos string,
	stat func(string) (os.FileInfo, error),
	openDevice func(string) (io.Closer, error),
	log logs.Log,
) *FFmpegCamera {
	return &FFmpegCamera{
		Device:      device,
		ffmpegPath:  ffmpegPath,
		goos:        goos,
		stat:        stat,
		openDevice:  openDevice,
		procContext: backgroundProcContext,
		log:         log,
	}
}
