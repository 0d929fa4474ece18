package httpapi

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/julienschmidt/httprouter"

	"video-detector/internal/domain"
	"video-detector/internal/media"
)

const livePollInterval = 40 * time.Millisecond

// httpMediaOriginal serves the selected file, or redirects to the live feed.
func (s *Server) httpMediaOriginal(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	switch src := s.ctrl.CurrentSource().(type) {
	case *media.FileSource:
		if src.MimeType != "" {
			w.Header().Set("Content-Type", src.MimeType)
		}
		http.ServeFile(w, r, src.Path)
	case *media.StreamSource:
		http.Redirect(w, r, "/media/live", http.StatusTemporaryRedirect)
	default:
		http.Error(w, "no media source", http.StatusNotFound)
	}
}

// httpMediaResult serves the processed output of a completed session.
func (s *Server) httpMediaResult(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sess := s.ctrl.CurrentSession()
	if sess.Status != domain.SessionStatusCompleted || sess.ResultRef == "" {
		http.Error(w, "no processed result", http.StatusNotFound)
		return
	}

	u, err := url.Parse(sess.ResultRef)
	if err != nil {
		http.Error(w, "invalid result reference", http.StatusInternalServerError)
		return
	}
	switch u.Scheme {
	case "file":
		http.ServeFile(w, r, filepath.FromSlash(u.Path))
	case "http", "https":
		http.Redirect(w, r, sess.ResultRef, http.StatusTemporaryRedirect)
	case "stream":
		http.Redirect(w, r, "/media/live", http.StatusTemporaryRedirect)
	default:
		http.Error(w, "unsupported result reference", http.StatusNotFound)
	}
}

// httpMediaLive streams the camera's latest JPEG frames as MJPEG until the
// client disconnects or the stream is released.
func (s *Server) httpMediaLive(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stream, ok := s.ctrl.CurrentSource().(*media.StreamSource)
	if !ok {
		http.Error(w, "no live stream", http.StatusNotFound)
		return
	}
	frames, ok := stream.Handle.(media.FrameSource)
	if !ok {
		http.Error(w, "stream has no preview", http.StatusNotImplemented)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")

	ticker := time.NewTicker(livePollInterval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-frames.Done():
			return
		case <-ticker.C:
		}

		jpeg, seq := frames.LatestFrame()
		if len(jpeg) == 0 || seq == lastSeq {
			continue
		}
		lastSeq = seq

		if err := writeFrame(w, jpeg); err != nil {
			s.log.Debugf("MJPEG client disconnected: %v", err)
			return
		}
		flusher.Flush()
	}
}

func writeFrame(w http.ResponseWriter, jpeg []byte) error {
	header := fmt.Sprintf("--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg))
	if _, err := w.Write([]byte(header)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}
