package config

import (
	"os"
	"path/filepath"
	"testing"

	"video-detector/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()
	if cfg.CaptureWidth != 1280 || cfg.CaptureHeight != 720 {
		t.Fatalf("capture = %dx%d, want 1280x720", cfg.CaptureWidth, cfg.CaptureHeight)
	}
	if cfg.TickIntervalMs != 1000 {
		t.Fatalf("tick interval = %d, want 1000", cfg.TickIntervalMs)
	}
	if cfg.OutputDir == "" || cfg.UploadDir == "" {
		t.Fatal("expected non-empty output and upload dirs")
	}
	if cfg.CameraDevice == "" {
		t.Fatal("expected non-empty camera device")
	}
}

// TestJSONStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestJSONStoreLoadMissingReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "settings.json")
	store := NewJSONStore(path)

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != DefaultSettings() {
		t.Fatalf("settings = %+v, want defaults", got)
	}
}

// TestJSONStoreSaveAndLoadRoundTrip checks persisted settings fidelity.
func TestJSONStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	store := NewJSONStore(path)
	want := domain.Settings{
		OutputDir:         "/out",
		UploadDir:         "/uploads",
		CameraDevice:      "/dev/video2",
		CaptureWidth:      640,
		CaptureHeight:     480,
		CaptureFPS:        10,
		AcquireTimeoutSec: 5,
		TickIntervalMs:    250,
		MaxIncrement:      20,
		ListenAddr:        ":9000",
	}

	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
}

// TestJSONStoreLoadPartialFillsDefaults checks that zero fields are normalized.
func TestJSONStoreLoadPartialFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"outputDir":"  /custom  "}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewJSONStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.OutputDir != "/custom" {
		t.Fatalf("output dir = %q, want /custom", got.OutputDir)
	}
	if got.CaptureWidth != DefaultCaptureWidth || got.MaxIncrement != DefaultMaxIncrement {
		t.Fatalf("defaults not applied: %+v", got)
	}
}

// TestJSONStoreLoadInvalidJSON checks parse error handling.
func TestJSONStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewJSONStore(path)
	if _, err := store.Load(); err == nil {
		t.Fatal("expected json parse error")
	}
}
