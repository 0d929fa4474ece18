package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cyclopcam/logs"

	"video-detector/internal/domain"
	"video-detector/internal/events"
	"video-detector/internal/inference"
	"video-detector/internal/media"
	"video-detector/internal/session"
)

// fakeStore keeps settings in memory for App tests.
type fakeStore struct {
	mu       sync.Mutex
	settings domain.Settings
	saves    int
}

// Load returns the stored settings.
func (s *fakeStore) Load() (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

// Save records settings in memory.
func (s *fakeStore) Save(settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.saves++
	return nil
}

// fakeHandle counts releases.
type fakeHandle struct {
	id       string
	released atomic.Int32
}

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Release() error {
	h.released.Add(1)
	return nil
}

// fakeCamera delegates Open to an injected function.
type fakeCamera struct {
	open func(ctx context.Context) (media.Handle, error)
}

func (c *fakeCamera) Open(ctx context.Context, _ media.Constraints) (media.Handle, error) {
	return c.open(ctx)
}

// funcCollaborator delegates Process to an injected function.
type funcCollaborator struct {
	process func(ctx context.Context, req session.Request) (session.Result, error)
}

func (c *funcCollaborator) Process(ctx context.Context, req session.Request) (session.Result, error) {
	return c.process(ctx, req)
}

// newTestApp composes an App with in-memory settings.
func newTestApp(t *testing.T, camera media.Camera, collab session.Collaborator) *App {
	t.Helper()
	root := t.TempDir()
	store := &fakeStore{settings: domain.Settings{
		OutputDir: filepath.Join(root, "out"),
		UploadDir: filepath.Join(root, "uploads"),
	}}
	if camera == nil {
		camera = &fakeCamera{open: func(context.Context) (media.Handle, error) {
			return nil, media.ErrDeviceUnavailable
		}}
	}
	return Compose(Deps{
		Store:        store,
		Settings:     store.settings,
		Camera:       camera,
		Collaborator: collab,
		Log:          logs.NewTestingLog(t),
	})
}

// writeVideo creates a sparse file of the given size.
func writeVideo(t *testing.T, name string, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.Truncate(size); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return path
}

func stepSimulator(step float64) *inference.Simulator {
	return &inference.Simulator{
		Interval:  time.Millisecond,
		Increment: func() float64 { return step },
	}
}

func blockUntilCancel(ctx context.Context, _ session.Request) (session.Result, error) {
	<-ctx.Done()
	return session.Result{}, ctx.Err()
}

// TestUploadAndProcessToCompletion walks the file upload scenario end to end.
func TestUploadAndProcessToCompletion(t *testing.T) {
	app := newTestApp(t, nil, stepSimulator(20))
	path := writeVideo(t, "clip.mp4", 5*1024*1024)

	info, err := app.SelectFile(media.FileInput{Path: path, Name: "clip.mp4", MimeType: "video/mp4"})
	if err != nil {
		t.Fatalf("select file: %v", err)
	}
	if info.SizeLabel != "5.00 MB" || info.Kind != domain.SourceKindFile {
		t.Fatalf("info = %+v", info)
	}
	if app.CanProcess() {
		t.Fatal("canProcess should be false without targets")
	}

	app.AddTarget("person")
	app.AddTarget(" Car ")
	if got := app.Targets(); len(got) != 2 || got[1] != "car" {
		t.Fatalf("targets = %v", got)
	}
	if !app.CanProcess() {
		t.Fatal("canProcess should be true")
	}

	if _, err := app.StartProcessing(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, app, domain.SessionStatusCompleted)

	cur := app.CurrentSession()
	if cur.Progress != 100 || cur.ResultRef == "" {
		t.Fatalf("session = %+v", cur)
	}
	state := app.State()
	if state.Players.Processed.Reference != cur.ResultRef {
		t.Fatalf("processed player = %q, want %q", state.Players.Processed.Reference, cur.ResultRef)
	}
	if state.StatusText != "Processing completed!" {
		t.Fatalf("status text = %q", state.StatusText)
	}

	evts := app.Events(0)
	assertEventTypeExists(t, evts, events.TypeStatus)
	assertEventTypeExists(t, evts, events.TypeProgress)
	assertEventTypeExists(t, evts, events.TypeResult)
	for _, e := range evts {
		if e.Type == events.TypeProgress && e.Progress > 100 {
			t.Fatalf("progress event above 100: %+v", e)
		}
	}

	exported, err := app.ExportResult()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if filepath.Base(exported) != "processed_results.mp4" {
		t.Fatalf("exported = %q", exported)
	}
}

// TestStreamStartStopClearsSource covers the camera round trip.
func TestStreamStartStopClearsSource(t *testing.T) {
	handle := &fakeHandle{id: "cam-1"}
	camera := &fakeCamera{open: func(context.Context) (media.Handle, error) { return handle, nil }}
	app := newTestApp(t, camera, &funcCollaborator{process: blockUntilCancel})
	app.AddTarget("dog")

	info, err := app.StartStream()
	if err != nil {
		t.Fatalf("start stream: %v", err)
	}
	if info.Kind != domain.SourceKindStream || !app.CanProcess() {
		t.Fatalf("info = %+v, canProcess = %v", info, app.CanProcess())
	}
	if !app.State().Players.Original.Live {
		t.Fatal("original player should be live")
	}

	state := app.StopStream()
	if state.Source.Kind != domain.SourceKindNone {
		t.Fatalf("source = %+v, want none", state.Source)
	}
	if state.CanProcess {
		t.Fatal("canProcess should be false after stopping the stream")
	}
	if got := handle.released.Load(); got != 1 {
		t.Fatalf("released = %d, want 1", got)
	}

	assertNotice(t, app.Events(0), noticeCameraStarted)
	assertNotice(t, app.Events(0), noticeCameraStopped)
}

// TestFailureThenRetry checks the failed run and a clean restart.
func TestFailureThenRetry(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	collab := &funcCollaborator{process: func(ctx context.Context, req session.Request) (session.Result, error) {
		if calls.Add(1) == 1 {
			req.OnProgress(40)
			<-release
			return session.Result{}, errors.New("detector crashed")
		}
		return blockUntilCancel(ctx, req)
	}}
	app := newTestApp(t, nil, collab)
	path := writeVideo(t, "clip.mp4", 1024)
	if _, err := app.SelectFile(media.FileInput{Path: path, MimeType: "video/mp4"}); err != nil {
		t.Fatalf("select: %v", err)
	}
	app.AddTarget("person")

	if _, err := app.StartProcessing(); err != nil {
		t.Fatalf("start: %v", err)
	}
	close(release)
	waitForStatus(t, app, domain.SessionStatusFailed)

	cur := app.CurrentSession()
	if cur.ErrorMessage != "detector crashed" || app.State().StatusText != "detector crashed" {
		t.Fatalf("session = %+v", cur)
	}
	assertEventTypeExists(t, app.Events(0), events.TypeError)

	restarted, err := app.StartProcessing()
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if restarted.Status != domain.SessionStatusRunning || restarted.Progress != 0 || restarted.ErrorMessage != "" {
		t.Fatalf("restarted = %+v", restarted)
	}
	app.StopProcessing()
}

// TestStartProcessingRequiresInputs rejects and notifies.
func TestStartProcessingRequiresInputs(t *testing.T) {
	app := newTestApp(t, nil, &funcCollaborator{process: blockUntilCancel})
	if _, err := app.StartProcessing(); !errors.Is(err, session.ErrCannotProcess) {
		t.Fatalf("error = %v, want %v", err, session.ErrCannotProcess)
	}
	assertEventTypeExists(t, app.Events(0), events.TypeNotice)
}

// TestSelectInvalidFileKeepsSource leaves the prior file in place.
func TestSelectInvalidFileKeepsSource(t *testing.T) {
	app := newTestApp(t, nil, &funcCollaborator{process: blockUntilCancel})
	video := writeVideo(t, "clip.mp4", 1024)
	if _, err := app.SelectFile(media.FileInput{Path: video, MimeType: "video/mp4"}); err != nil {
		t.Fatalf("select: %v", err)
	}

	text := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(text, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	info, err := app.SelectFile(media.FileInput{Path: text, MimeType: "text/plain"})
	if !errors.Is(err, media.ErrInvalidMediaKind) {
		t.Fatalf("error = %v, want %v", err, media.ErrInvalidMediaKind)
	}
	if info.Name != "clip.mp4" {
		t.Fatalf("source = %+v, want clip.mp4 kept", info)
	}
	assertNotice(t, app.Events(0), noticeInvalidFile)
}

// TestCameraDeniedNotice surfaces the permission message.
func TestCameraDeniedNotice(t *testing.T) {
	camera := &fakeCamera{open: func(context.Context) (media.Handle, error) {
		return nil, media.ErrMediaAccessDenied
	}}
	app := newTestApp(t, camera, &funcCollaborator{process: blockUntilCancel})

	if _, err := app.StartStream(); !errors.Is(err, media.ErrMediaAccessDenied) {
		t.Fatalf("error = %v, want %v", err, media.ErrMediaAccessDenied)
	}
	if app.State().Source.Kind != domain.SourceKindNone {
		t.Fatal("source should be unchanged")
	}
	assertNotice(t, app.Events(0), noticeCameraDenied)
}

// TestSourceChangeInvalidatesSession cancels a running session and resets
// a completed one.
func TestSourceChangeInvalidatesSession(t *testing.T) {
	app := newTestApp(t, nil, &funcCollaborator{process: blockUntilCancel})
	first := writeVideo(t, "a.mp4", 1024)
	second := writeVideo(t, "b.mp4", 1024)
	if _, err := app.SelectFile(media.FileInput{Path: first, MimeType: "video/mp4"}); err != nil {
		t.Fatalf("select: %v", err)
	}
	app.AddTarget("cat")
	if _, err := app.StartProcessing(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := app.SelectFile(media.FileInput{Path: second, MimeType: "video/mp4"}); err != nil {
		t.Fatalf("select second: %v", err)
	}
	if cur := app.CurrentSession(); cur.Status != domain.SessionStatusIdle || cur.Progress != 0 {
		t.Fatalf("session = %+v, want idle", cur)
	}

	app.ClearFile()
	if app.CanProcess() {
		t.Fatal("canProcess should be false after clearing the file")
	}
}

// TestTargetChangeResetsCompletedSession returns a finished session to idle.
func TestTargetChangeResetsCompletedSession(t *testing.T) {
	app := newTestApp(t, nil, stepSimulator(50))
	path := writeVideo(t, "clip.mp4", 1024)
	if _, err := app.SelectFile(media.FileInput{Path: path, MimeType: "video/mp4"}); err != nil {
		t.Fatalf("select: %v", err)
	}
	app.AddTarget("bird")
	if _, err := app.StartProcessing(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, app, domain.SessionStatusCompleted)

	app.ToggleTarget("cow")
	if cur := app.CurrentSession(); cur.Status != domain.SessionStatusIdle {
		t.Fatalf("status = %s, want idle", cur.Status)
	}
	if app.State().Players.Processed.Reference != "" {
		t.Fatal("processed player should be cleared")
	}
}

// TestPlayerControl routes actions to the named player.
func TestPlayerControl(t *testing.T) {
	app := newTestApp(t, nil, &funcCollaborator{process: blockUntilCancel})
	if _, err := app.PlayerControl("original", PlayerActionPlay, 0); err == nil {
		t.Fatal("expected error without media")
	}

	path := writeVideo(t, "clip.mp4", 1024)
	if _, err := app.SelectFile(media.FileInput{Path: path, MimeType: "video/mp4"}); err != nil {
		t.Fatalf("select: %v", err)
	}
	st, err := app.PlayerControl("original", PlayerActionVolume, 0.25)
	if err != nil || st.Volume != 0.25 {
		t.Fatalf("volume = %+v, %v", st, err)
	}
	if _, err := app.PlayerControl("original", "rewind", 0); err == nil {
		t.Fatal("expected unknown action error")
	}
	if _, err := app.PlayerControl("sideways", PlayerActionPlay, 0); err == nil {
		t.Fatal("expected unknown player error")
	}
}

// TestSaveSettingsNormalizes fills defaults before persisting.
func TestSaveSettingsNormalizes(t *testing.T) {
	app := newTestApp(t, nil, &funcCollaborator{process: blockUntilCancel})
	saved, err := app.SaveSettings(domain.Settings{OutputDir: "  /tmp/out  "})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.OutputDir != "/tmp/out" || saved.TickIntervalMs == 0 || saved.CaptureWidth != 1280 {
		t.Fatalf("saved = %+v", saved)
	}
	if got := app.UploadDir(); got != saved.UploadDir {
		t.Fatalf("upload dir = %q, want %q", got, saved.UploadDir)
	}
}

// waitForStatus polls until the session reaches desired status or times out.
func waitForStatus(t *testing.T, app *App, want domain.SessionStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if app.CurrentSession().Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", app.CurrentSession().Status, want)
}

// assertEventTypeExists verifies at least one event of given type exists.
func assertEventTypeExists(t *testing.T, evts []events.Event, want events.Type) {
	t.Helper()
	for _, event := range evts {
		if event.Type == want {
			return
		}
	}
	t.Fatalf("event type %s not found", want)
}

// assertNotice verifies a notice with message was published.
func assertNotice(t *testing.T, evts []events.Event, message string) {
	t.Helper()
	for _, event := range evts {
		if event.Type == events.TypeNotice && event.Message == message {
			return
		}
	}
	t.Fatalf("notice %q not found", message)
}

// liveHandle is a stream handle whose capture can end on its own.
type liveHandle struct {
	*fakeHandle
	done chan struct{}
}

func (h *liveHandle) LatestFrame() ([]byte, uint64) { return nil, 0 }

func (h *liveHandle) Done() <-chan struct{} { return h.done }

// TestFileReplacingStreamClearsStreamGauge checks the stream gauge follows the
// released camera when a file takes over.
func TestFileReplacingStreamClearsStreamGauge(t *testing.T) {
	handle := &fakeHandle{id: "cam-1"}
	camera := &fakeCamera{open: func(context.Context) (media.Handle, error) { return handle, nil }}
	app := newTestApp(t, camera, &funcCollaborator{process: blockUntilCancel})

	if _, err := app.StartStream(); err != nil {
		t.Fatalf("start stream: %v", err)
	}
	if got := app.Metrics.StreamActive.Load(); got != 1 {
		t.Fatalf("stream active = %d, want 1", got)
	}

	path := writeVideo(t, "a.mp4", 1024)
	if _, err := app.SelectFile(media.FileInput{Path: path, MimeType: "video/mp4"}); err != nil {
		t.Fatalf("select: %v", err)
	}
	if got := handle.released.Load(); got != 1 {
		t.Fatalf("released = %d, want 1", got)
	}
	if got := app.Metrics.StreamActive.Load(); got != 0 {
		t.Fatalf("stream active = %d, want 0", got)
	}
}

// TestLostStreamClearsSource checks a camera that stops on its own is dropped.
func TestLostStreamClearsSource(t *testing.T) {
	handle := &liveHandle{fakeHandle: &fakeHandle{id: "cam-1"}, done: make(chan struct{})}
	camera := &fakeCamera{open: func(context.Context) (media.Handle, error) { return handle, nil }}
	app := newTestApp(t, camera, &funcCollaborator{process: blockUntilCancel})
	app.AddTarget("person")

	if _, err := app.StartStream(); err != nil {
		t.Fatalf("start stream: %v", err)
	}
	if _, err := app.StartProcessing(); err != nil {
		t.Fatalf("start: %v", err)
	}

	close(handle.done)

	deadline := time.Now().Add(2 * time.Second)
	for app.CurrentSource() != nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if app.CurrentSource() != nil {
		t.Fatal("source should be cleared after the capture ended")
	}
	waitForStatus(t, app, domain.SessionStatusIdle)

	deadline = time.Now().Add(2 * time.Second)
	for app.Metrics.StreamActive.Load() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if app.CanProcess() {
		t.Fatal("canProcess should be false once the stream is gone")
	}
	if got := app.Metrics.StreamActive.Load(); got != 0 {
		t.Fatalf("stream active = %d, want 0", got)
	}
	waitForNotice(t, app, noticeCameraLost)
}

// TestReplacedUploadIsRemoved checks uploads are deleted once superseded and
// files picked from elsewhere are kept.
func TestReplacedUploadIsRemoved(t *testing.T) {
	app := newTestApp(t, nil, stepSimulator(20))
	dir := app.UploadDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	first := filepath.Join(dir, "first.mp4")
	second := filepath.Join(dir, "second.mp4")
	for _, p := range []string{first, second} {
		if err := os.WriteFile(p, []byte("video"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	external := writeVideo(t, "external.mp4", 1024)

	sel := func(path string) {
		t.Helper()
		if _, err := app.SelectFile(media.FileInput{Path: path, MimeType: "video/mp4"}); err != nil {
			t.Fatalf("select %s: %v", path, err)
		}
	}

	sel(first)
	sel(second)
	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Fatalf("first upload stat error = %v, want not exist", err)
	}

	sel(external)
	if _, err := os.Stat(second); !os.IsNotExist(err) {
		t.Fatalf("second upload stat error = %v, want not exist", err)
	}

	app.ClearFile()
	if _, err := os.Stat(external); err != nil {
		t.Fatalf("external file should be kept: %v", err)
	}
}

// waitForNotice polls the event history for a notice message.
func waitForNotice(t *testing.T, app *App, message string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, e := range app.Events(0) {
			if e.Type == events.TypeNotice && e.Message == message {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("notice %q not published", message)
}
