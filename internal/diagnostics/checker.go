package diagnostics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"video-detector/internal/domain"
)

// Checker validates external tools, the camera device and writable paths.
type Checker struct {
	goos       string
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		goos:       runtime.GOOS,
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool("ffmpeg", "Live camera capture is unavailable without ffmpeg."),
		c.checkTool("ffprobe", "Video durations will not be shown without ffprobe."),
		c.checkCameraDevice(settings.CameraDevice),
		c.checkWritableDir("output_dir", "Output directory", settings.OutputDir),
		c.checkWritableDir("upload_dir", "Upload directory", settings.UploadDir),
	}

	report := domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		Items:       items,
	}
	for _, item := range items {
		switch item.Status {
		case domain.DiagnosticStatusFail:
			report.HasFailures = true
		case domain.DiagnosticStatusWarn:
			report.HasWarnings = true
		}
	}
	return report
}

// checkTool looks for an optional CLI executable on PATH. Missing tools warn.
func (c *Checker) checkTool(name, impact string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusWarn,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    impact + " Install it and ensure the binary is on PATH.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkCameraDevice verifies the configured capture device. Only linux
// devices are filesystem paths; elsewhere the name is passed to ffmpeg as is.
func (c *Checker) checkCameraDevice(device string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "camera_device",
		Name: "Camera device",
	}

	if strings.TrimSpace(device) == "" {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "Camera device is empty."
		item.Hint = "Set a capture device in settings to use the live camera."
		return item
	}

	if c.goos != "linux" {
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Using capture device %q", device)
		return item
	}

	if _, err := c.stat(device); err != nil {
		item.Status = domain.DiagnosticStatusWarn
		switch {
		case errors.Is(err, fs.ErrNotExist):
			item.Message = fmt.Sprintf("Camera device not found: %s", device)
			item.Hint = "Connect a camera or choose another /dev/video* device."
		case errors.Is(err, fs.ErrPermission):
			item.Message = fmt.Sprintf("No permission to access camera device: %s", device)
			item.Hint = "Add your user to the video group."
		default:
			item.Message = fmt.Sprintf("Cannot access camera device: %s", device)
		}
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Camera device present: %s", device)
	return item
}

// checkWritableDir validates directory existence and write access.
func (c *Checker) checkWritableDir(id, name, dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   id,
		Name: name,
	}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = name + " is empty."
		item.Hint = "Set a directory where video files can be written."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = "Choose a writable directory."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	goos string,
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		goos:       goos,
		lookPath:   lookPath,
		stat:       stat,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}
