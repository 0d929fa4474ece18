// Package httpapi serves the application controller to a plain browser:
// JSON endpoints, a websocket event stream, media files and live MJPEG.
package httpapi

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/julienschmidt/httprouter"

	"video-detector/internal/domain"
	"video-detector/internal/events"
	"video-detector/internal/media"
	"video-detector/internal/metrics"
)

// Controller is the application surface exposed over HTTP.
type Controller interface {
	State() domain.AppState
	CurrentSource() media.Source
	CurrentSession() domain.Session

	SelectFile(in media.FileInput) (domain.SourceInfo, error)
	ClearFile() domain.AppState
	StartStream() (domain.SourceInfo, error)
	StopStream() domain.AppState

	Targets() []string
	CommonTargets() []domain.TargetOption
	AddTarget(label string) []string
	RemoveTarget(label string) []string
	ToggleTarget(label string) []string

	StartProcessing() (domain.Session, error)
	StopProcessing() domain.Session

	Events(since int64) []events.Event
	SubscribeEvents(fn func(events.Event)) func()

	PlayerControl(which, action string, value float64) (domain.PlayerState, error)
	ExportResult() (string, error)

	GetSettings() (domain.Settings, error)
	SaveSettings(settings domain.Settings) (domain.Settings, error)
	GetDiagnostics() domain.DiagnosticReport
	RefreshDiagnostics() (domain.DiagnosticReport, error)
	FixDiagnostic(itemID string) (domain.DiagnosticReport, error)
	UploadDir() string
}

// Options configures a Server.
type Options struct {
	Metrics *metrics.Metrics
	// Assets is served for any path not matched by the API. It must contain index.html.
	Assets         fs.FS
	Log            logs.Log
	MaxUploadBytes int64
}

// Server routes HTTP requests to a Controller.
type Server struct {
	ctrl           Controller
	log            logs.Log
	metrics        *metrics.Metrics
	hub            *Hub
	router         *httprouter.Router
	maxUploadBytes int64
	unsubscribe    func()
}

// New builds the router and subscribes the websocket hub to controller events.
func New(ctrl Controller, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log, _ = logs.NewLog()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 4 << 30
	}

	s := &Server{
		ctrl:           ctrl,
		log:            log,
		metrics:        opts.Metrics,
		hub:            NewHub(log, opts.Metrics),
		router:         httprouter.New(),
		maxUploadBytes: opts.MaxUploadBytes,
	}
	s.unsubscribe = ctrl.SubscribeEvents(s.hub.Broadcast)
	s.routes(opts.Assets)
	return s
}

func (s *Server) routes(assets fs.FS) {
	r := s.router

	r.GET("/api/state", s.httpState)
	r.POST("/api/source/file", s.httpSelectFile)
	r.DELETE("/api/source/file", s.httpClearFile)
	r.POST("/api/source/stream", s.httpStartStream)
	r.DELETE("/api/source/stream", s.httpStopStream)

	r.GET("/api/targets", s.httpTargets)
	r.POST("/api/targets", s.httpAddTarget)
	r.DELETE("/api/targets/:label", s.httpRemoveTarget)
	r.POST("/api/targets/:label/toggle", s.httpToggleTarget)

	r.POST("/api/session/start", s.httpStartSession)
	r.POST("/api/session/stop", s.httpStopSession)
	r.GET("/api/events", s.httpEventHistory)

	r.POST("/api/player/:which/:action", s.httpPlayer)
	r.POST("/api/export", s.httpExport)

	r.GET("/api/settings", s.httpGetSettings)
	r.PUT("/api/settings", s.httpSaveSettings)
	r.GET("/api/diagnostics", s.httpDiagnostics)
	r.POST("/api/diagnostics/refresh", s.httpRefreshDiagnostics)
	r.POST("/api/diagnostics/fix/:id", s.httpFixDiagnostic)

	r.GET("/ws/events", s.httpEvents)

	r.GET("/media/original", s.httpMediaOriginal)
	r.GET("/media/result", s.httpMediaResult)
	r.GET("/media/live", s.httpMediaLive)

	if s.metrics != nil {
		r.Handler(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	if assets != nil {
		r.NotFound = http.FileServer(http.FS(assets))
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close detaches the hub from controller events.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Infof("Listening on %v", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Close()
		return srv.Shutdown(shutdownCtx)
	}
}
