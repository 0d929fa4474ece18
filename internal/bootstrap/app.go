package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cyclopcam/logs"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"video-detector/internal/config"
	"video-detector/internal/diagnostics"
	"video-detector/internal/domain"
	"video-detector/internal/events"
	"video-detector/internal/inference"
	"video-detector/internal/media"
	"video-detector/internal/metrics"
	"video-detector/internal/presenter"
	"video-detector/internal/session"
	"video-detector/internal/targets"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// RuntimeEvent is the Wails event name carrying every published events.Event.
const RuntimeEvent = "app:event"

const (
	noticeCameraStarted = "Camera started"
	noticeCameraDenied  = "Failed to access camera. Please check permissions."
	noticeCameraStopped = "Camera stopped"
	noticeInvalidFile   = "Please select a valid video file"
	noticeCameraLost    = "Camera unavailable: capture stopped"
)

var videoDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Video files",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.webm;*.m4v;*.mpeg;*.mpg;*.wmv;*.3gp",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// Options configures New.
type Options struct {
	// ConfigPath overrides ~/.video-detector/settings.json.
	ConfigPath string
	// CameraDevice overrides the persisted capture device.
	CameraDevice string
	Assets       fs.FS
	Log          logs.Log
}

// Deps are the collaborators composed by Compose.
type Deps struct {
	Store        config.Store
	Settings     domain.Settings
	Camera       media.Camera
	Prober       media.Prober
	Collaborator session.Collaborator
	Checker      *diagnostics.Checker
	HTTPClient   *http.Client
	Assets       fs.FS
	Log          logs.Log
}

// App composes media, targets, session and presenter, derives canProcess
// and routes UI intent. It is bound to the Wails webview and served over HTTP.
type App struct {
	Store     config.Store
	Media     *media.Manager
	TargetSet *targets.Store
	Session   *session.Session
	Presenter *presenter.Presenter
	Metrics   *metrics.Metrics

	log     logs.Log
	checker *diagnostics.Checker
	events  *events.Bus
	assets  fs.FS

	mu          sync.Mutex
	settings    domain.Settings
	diagnostics domain.DiagnosticReport
	runtimeCtx  context.Context
	lastSession domain.Session
	lastSource  media.Source

	presentMu sync.Mutex
}

// New builds the application with persisted settings, the ffmpeg camera and
// the simulated detector.
func New(opts Options) (*App, error) {
	log := opts.Log
	if log == nil {
		log, _ = logs.NewLog()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	configPath := strings.TrimSpace(opts.ConfigPath)
	if configPath == "" {
		configPath = filepath.Join(homeDir, ".video-detector", "settings.json")
	}
	store := config.NewJSONStore(configPath)
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if device := strings.TrimSpace(opts.CameraDevice); device != "" {
		settings.CameraDevice = device
	}

	return Compose(Deps{
		Store:        store,
		Settings:     settings,
		Camera:       media.NewFFmpegCamera(settings.CameraDevice, log),
		Prober:       media.NewFFProbe(),
		Collaborator: inference.NewSimulator(settings.TickInterval(), settings.MaxIncrement, log),
		Checker:      diagnostics.NewChecker(),
		Assets:       opts.Assets,
		Log:          log,
	}), nil
}

// Compose wires an App from explicit dependencies.
func Compose(deps Deps) *App {
	settings := config.Normalize(deps.Settings)
	a := &App{
		Store:     deps.Store,
		TargetSet: targets.NewStore(),
		Presenter: presenter.New(deps.HTTPClient),
		Metrics:   metrics.New(),
		log:       deps.Log,
		checker:   deps.Checker,
		events:    events.NewBus(1000),
		assets:    deps.Assets,
		settings:  settings,
	}
	a.Media = media.NewManager(deps.Camera, media.Options{
		Constraints: media.Constraints{
			Width:  settings.CaptureWidth,
			Height: settings.CaptureHeight,
			FPS:    settings.CaptureFPS,
		},
		AcquireTimeout: settings.AcquireTimeout(),
		Prober:         deps.Prober,
		Log:            deps.Log,
		OnStreamLost:   a.streamLost,
	})
	a.Session = session.New(deps.Collaborator, deps.Log, a.onSession)
	a.lastSession = a.Session.Current()
	if a.checker != nil {
		a.diagnostics = a.checker.Run(settings)
	}
	return a
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Video Detector",
		Width:       1280,
		Height:      860,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			a.runtimeCtx = nil
			a.mu.Unlock()
			a.Close()
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events and dialogs.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Close stops processing and releases the camera.
func (a *App) Close() {
	a.Session.Stop()
	if err := a.Media.Close(); err != nil {
		a.logf("warn", "Release camera on close: %v", err)
	}
	a.Metrics.SetStreamActive(false)
}

// State returns a snapshot of everything the UI renders.
func (a *App) State() domain.AppState {
	src := a.Media.Current()
	list := a.TargetSet.List()
	cur := a.Session.Current()
	return domain.AppState{
		Source:        media.InfoOf(src),
		StreamPending: a.Media.Acquiring(),
		Targets:       list,
		CommonTargets: a.TargetSet.Common(),
		CanProcess:    session.CanProcess(src, list),
		Session:       cur,
		StatusText:    StatusText(cur),
		Remaining:     Remaining(cur, nowFunc()),
		Players:       a.Presenter.State(),
		LastSeq:       a.events.LastSeq(),
	}
}

// CanProcess reports whether a source is present and targets are selected.
func (a *App) CanProcess() bool {
	return session.CanProcess(a.Media.Current(), a.TargetSet.List())
}

// CurrentSource returns the active media source, or nil.
func (a *App) CurrentSource() media.Source {
	return a.Media.Current()
}

// PickVideoFile opens a native file dialog and selects the chosen video.
// A cancelled dialog leaves the source unchanged.
func (a *App) PickVideoFile() (domain.SourceInfo, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return domain.SourceInfo{}, err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select video file",
		Filters: videoDialogFilter,
	})
	if err != nil {
		return domain.SourceInfo{}, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return media.InfoOf(a.Media.Current()), nil
	}
	return a.SelectFile(media.FileInput{Path: path})
}

// SelectFile makes a video file the current source, releasing any stream.
func (a *App) SelectFile(in media.FileInput) (domain.SourceInfo, error) {
	src, err := a.Media.SelectFile(context.Background(), in)
	if err != nil {
		if errors.Is(err, media.ErrInvalidMediaKind) {
			a.notice(events.LevelError, noticeInvalidFile)
		} else {
			a.notice(events.LevelError, fmt.Sprintf("Cannot open video file: %v", err))
		}
		return media.InfoOf(a.Media.Current()), err
	}

	a.logf("info", "Selected %v (%v, %v)", src.Name, src.MimeType, media.SizeLabel(src.SizeBytes))
	a.sourceChanged()
	return src.Info(), nil
}

// ClearFile removes a file source. A stream is left untouched.
func (a *App) ClearFile() domain.AppState {
	if a.Media.ClearFile() {
		a.sourceChanged()
	}
	return a.State()
}

// StartStream acquires the camera and makes it the current source.
func (a *App) StartStream() (domain.SourceInfo, error) {
	stream, err := a.Media.StartStream(context.Background())
	if err != nil {
		switch {
		case errors.Is(err, media.ErrMediaAccessDenied):
			a.notice(events.LevelError, noticeCameraDenied)
		case errors.Is(err, media.ErrStreamPending):
			a.notice(events.LevelInfo, "Camera is already starting")
		case errors.Is(err, media.ErrStreamSuperseded):
			a.notice(events.LevelInfo, "Camera start was cancelled")
		default:
			a.notice(events.LevelError, fmt.Sprintf("Camera unavailable: %v", err))
		}
		a.logf("warn", "Start camera: %v", err)
		return media.InfoOf(a.Media.Current()), err
	}

	a.sourceChanged()
	a.notice(events.LevelSuccess, noticeCameraStarted)
	return stream.Info(), nil
}

// StopStream releases the camera. Stopping without a stream is a no-op.
func (a *App) StopStream() domain.AppState {
	stopped, err := a.Media.StopStream()
	if err != nil {
		a.logf("warn", "Release camera: %v", err)
	}
	if stopped {
		a.sourceChanged()
		a.notice(events.LevelSuccess, noticeCameraStopped)
	}
	return a.State()
}

// Targets returns the selected labels in insertion order.
func (a *App) Targets() []string {
	return a.TargetSet.List()
}

// CommonTargets returns the quick-pick list with selection flags.
func (a *App) CommonTargets() []domain.TargetOption {
	return a.TargetSet.Common()
}

// AddTarget adds a normalized label.
func (a *App) AddTarget(label string) []string {
	if a.TargetSet.Add(label) {
		a.targetsChanged()
	}
	return a.TargetSet.List()
}

// RemoveTarget removes an exact label.
func (a *App) RemoveTarget(label string) []string {
	if a.TargetSet.Remove(label) {
		a.targetsChanged()
	}
	return a.TargetSet.List()
}

// ToggleTarget flips a quick-pick label.
func (a *App) ToggleTarget(label string) []string {
	if targets.Normalize(label) != "" {
		a.TargetSet.Toggle(label)
		a.targetsChanged()
	}
	return a.TargetSet.List()
}

// StartProcessing starts detection against the current source and targets.
func (a *App) StartProcessing() (domain.Session, error) {
	src := a.Media.Current()
	list := a.TargetSet.List()
	if !session.CanProcess(src, list) {
		a.notice(events.LevelError, "Select a video source and at least one target first")
		return a.Session.Current(), session.ErrCannotProcess
	}
	return a.Session.Start(src, list)
}

// StopProcessing cancels a running session back to idle.
func (a *App) StopProcessing() domain.Session {
	return a.Session.Stop()
}

// CurrentSession returns the session snapshot.
func (a *App) CurrentSession() domain.Session {
	return a.Session.Current()
}

// Events returns all events with sequence greater than sinceSeq.
func (a *App) Events(sinceSeq int64) []events.Event {
	return a.events.Since(sinceSeq)
}

// SubscribeEvents registers fn for future events.
func (a *App) SubscribeEvents(fn func(events.Event)) func() {
	return a.events.Subscribe(fn)
}

// ExportResult saves the processed output to the configured output directory.
func (a *App) ExportResult() (string, error) {
	a.mu.Lock()
	dir := a.settings.OutputDir
	a.mu.Unlock()

	path, err := a.Presenter.Export(context.Background(), dir)
	if err != nil {
		a.notice(events.LevelError, fmt.Sprintf("Export failed: %v", err))
		return "", err
	}
	a.Metrics.Exports.Inc()
	a.notice(events.LevelSuccess, "Saved "+path)
	return path, nil
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
// Capture and pacing fields apply on the next launch.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	a.refreshDiagnosticsFromSettings(normalized)
	return normalized, nil
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	return a.refreshDiagnosticsFromSettings(settings), nil
}

// UploadDir is where browser uploads are stored.
func (a *App) UploadDir() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings.UploadDir
}

// onSession observes every session transition. Calls are serialized.
func (a *App) onSession(cur domain.Session) {
	a.mu.Lock()
	prev := a.lastSession
	a.lastSession = cur
	a.mu.Unlock()

	a.Metrics.ObserveSession(prev, cur)
	a.syncPresenter()

	if cur.Status != prev.Status || cur.ID != prev.ID {
		a.publishEvent(events.Event{
			Type:      events.TypeStatus,
			SessionID: cur.ID,
			Status:    cur.Status,
			Progress:  cur.Progress,
			Message:   StatusText(cur),
		})
	} else if cur.Progress != prev.Progress {
		a.publishEvent(events.Event{
			Type:      events.TypeProgress,
			SessionID: cur.ID,
			Status:    cur.Status,
			Progress:  cur.Progress,
			Message:   Remaining(cur, nowFunc()),
		})
	}

	if cur.Status == prev.Status {
		return
	}
	switch cur.Status {
	case domain.SessionStatusCompleted:
		a.publishEvent(events.Event{
			Type:      events.TypeResult,
			SessionID: cur.ID,
			Status:    cur.Status,
			Progress:  cur.Progress,
			ResultRef: cur.ResultRef,
		})
		a.notice(events.LevelSuccess, StatusText(cur))
	case domain.SessionStatusFailed:
		a.publishEvent(events.Event{
			Type:      events.TypeError,
			SessionID: cur.ID,
			Status:    cur.Status,
			Message:   cur.ErrorMessage,
		})
		a.notice(events.LevelError, StatusText(cur))
	}
}

// streamLost reacts to a camera whose capture ended on its own.
func (a *App) streamLost(*media.StreamSource) {
	a.sourceChanged()
	a.notice(events.LevelError, noticeCameraLost)
}

// sourceChanged invalidates the session and republishes derived state.
func (a *App) sourceChanged() {
	cur := a.Media.Current()
	_, streaming := cur.(*media.StreamSource)
	a.Metrics.SetStreamActive(streaming)
	a.Session.Stop()
	a.Session.Reset()

	a.mu.Lock()
	prev := a.lastSource
	a.lastSource = cur
	uploadDir := a.settings.UploadDir
	a.mu.Unlock()
	if prev != cur {
		a.removeUpload(prev, uploadDir)
	}

	a.syncPresenter()
	a.publishState()
}

// removeUpload deletes a superseded file source stored in the upload
// directory. Files selected from elsewhere are left alone.
func (a *App) removeUpload(src media.Source, uploadDir string) {
	file, ok := src.(*media.FileSource)
	if !ok || uploadDir == "" {
		return
	}
	rel, err := filepath.Rel(uploadDir, file.Path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return
	}
	if err := os.Remove(file.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		a.logf("warn", "Remove superseded upload %v: %v", file.Path, err)
		return
	}
	a.logf("info", "Removed superseded upload %v", file.Name)
}

// targetsChanged resets a finished session. A running session keeps the
// targets it started with.
func (a *App) targetsChanged() {
	a.Metrics.TargetCount.Store(uint64(a.TargetSet.Len()))
	a.Session.Reset()
	a.publishState()
}

// syncPresenter reloads both players from the latest source and session.
func (a *App) syncPresenter() {
	a.presentMu.Lock()
	defer a.presentMu.Unlock()
	a.Presenter.Sync(a.Media.Current(), a.Session.Current())
}

// publishState announces the current session state and canProcess.
func (a *App) publishState() {
	cur := a.Session.Current()
	canProcess := a.CanProcess()
	a.publishEvent(events.Event{
		Type:       events.TypeState,
		SessionID:  cur.ID,
		Status:     cur.Status,
		Progress:   cur.Progress,
		Message:    StatusText(cur),
		CanProcess: &canProcess,
	})
}

// notice publishes a transient, dismissible message.
func (a *App) notice(level events.Level, message string) {
	a.publishEvent(events.Event{
		Type:    events.TypeNotice,
		Level:   level,
		Message: message,
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event events.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, RuntimeEvent, published)
	}
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings = settings
	if a.checker != nil {
		a.diagnostics = a.checker.Run(settings)
	}
	return a.diagnostics
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

func (a *App) logf(level, format string, args ...any) {
	if a.log == nil {
		return
	}
	switch level {
	case "warn":
		a.log.Warnf(format, args...)
	default:
		a.log.Infof(format, args...)
	}
}
