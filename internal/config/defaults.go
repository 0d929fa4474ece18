package config

import (
	"os"
	"path/filepath"
	"runtime"

	"video-detector/internal/domain"
)

const (
	DefaultCaptureWidth      = 1280
	DefaultCaptureHeight     = 720
	DefaultCaptureFPS        = 15
	DefaultAcquireTimeoutSec = 15
	DefaultTickIntervalMs    = 1000
	DefaultMaxIncrement      = 15
	DefaultListenAddr        = "127.0.0.1:8420"
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		OutputDir:         filepath.Join(homeDir, "Videos", "Detections"),
		UploadDir:         filepath.Join(homeDir, ".video-detector", "uploads"),
		CameraDevice:      defaultCameraDevice(),
		CaptureWidth:      DefaultCaptureWidth,
		CaptureHeight:     DefaultCaptureHeight,
		CaptureFPS:        DefaultCaptureFPS,
		AcquireTimeoutSec: DefaultAcquireTimeoutSec,
		TickIntervalMs:    DefaultTickIntervalMs,
		MaxIncrement:      DefaultMaxIncrement,
		ListenAddr:        DefaultListenAddr,
	}
}

// Normalize trims string fields and fills zero values from defaults.
func Normalize(settings domain.Settings) domain.Settings {
	defaults := DefaultSettings()

	settings.OutputDir = trimOr(settings.OutputDir, defaults.OutputDir)
	settings.UploadDir = trimOr(settings.UploadDir, defaults.UploadDir)
	settings.CameraDevice = trimOr(settings.CameraDevice, defaults.CameraDevice)
	settings.ListenAddr = trimOr(settings.ListenAddr, defaults.ListenAddr)
	if settings.CaptureWidth <= 0 {
		settings.CaptureWidth = defaults.CaptureWidth
	}
	if settings.CaptureHeight <= 0 {
		settings.CaptureHeight = defaults.CaptureHeight
	}
	if settings.CaptureFPS <= 0 {
		settings.CaptureFPS = defaults.CaptureFPS
	}
	if settings.AcquireTimeoutSec <= 0 {
		settings.AcquireTimeoutSec = defaults.AcquireTimeoutSec
	}
	if settings.TickIntervalMs <= 0 {
		settings.TickIntervalMs = defaults.TickIntervalMs
	}
	if settings.MaxIncrement <= 0 {
		settings.MaxIncrement = defaults.MaxIncrement
	}
	return settings
}

// defaultCameraDevice picks the platform's conventional first capture device.
func defaultCameraDevice() string {
	switch runtime.GOOS {
	case "windows":
		return "Integrated Camera"
	case "darwin":
		return "0"
	default:
		return "/dev/video0"
	}
}
