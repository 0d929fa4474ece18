package httpapi

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"video-detector/internal/domain"
	"video-detector/internal/media"
)

type targetsBody struct {
	Targets []string              `json:"targets"`
	Common  []domain.TargetOption `json:"common"`
}

type labelBody struct {
	Label string `json:"label"`
}

type exportBody struct {
	Path string `json:"path"`
}

var playerActions = map[string]string{
	"play":       "",
	"pause":      "",
	"toggle":     "",
	"seek":       "offset",
	"volume":     "value",
	"mute":       "",
	"fullscreen": "",
	"position":   "value",
}

func (s *Server) httpState(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.sendOK(w, s.ctrl.State())
}

// httpSelectFile accepts a multipart upload in field "file", or a JSON
// {path,name,mimeType} naming a file already on this machine.
func (s *Server) httpSelectFile(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var in media.FileInput
		if err := readJSON(w, r, &in); err != nil {
			s.sendError(w, err)
			return
		}
		info, err := s.ctrl.SelectFile(in)
		if err != nil {
			s.sendError(w, err)
			return
		}
		s.sendOK(w, info)
		return
	}

	in, err := s.receiveUpload(w, r)
	if err != nil {
		s.sendError(w, err)
		return
	}
	info, err := s.ctrl.SelectFile(in)
	if err != nil {
		os.Remove(in.Path)
		s.sendError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.Uploads.Inc()
	}
	s.sendOK(w, info)
}

// receiveUpload streams the "file" part into the upload directory.
func (s *Server) receiveUpload(w http.ResponseWriter, r *http.Request) (media.FileInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	reader, err := r.MultipartReader()
	if err != nil {
		return media.FileInput{}, badRequest("expected multipart upload: %v", err)
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return media.FileInput{}, badRequest("missing file field")
		}
		if err != nil {
			return media.FileInput{}, badRequest("read upload: %v", err)
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		name := filepath.Base(part.FileName())
		dir := s.ctrl.UploadDir()
		if err := os.MkdirAll(dir, 0o755); err != nil {
			part.Close()
			return media.FileInput{}, err
		}
		dst := filepath.Join(dir, uuid.NewString()+strings.ToLower(filepath.Ext(name)))
		if err := saveFile(dst, part); err != nil {
			part.Close()
			return media.FileInput{}, err
		}
		part.Close()

		return media.FileInput{
			Path:     dst,
			Name:     name,
			MimeType: part.Header.Get("Content-Type"),
		}, nil
	}
}

func saveFile(dst string, r io.Reader) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return err
	}
	return f.Close()
}

func (s *Server) httpClearFile(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.sendOK(w, s.ctrl.ClearFile())
}

func (s *Server) httpStartStream(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	info, err := s.ctrl.StartStream()
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendOK(w, info)
}

func (s *Server) httpStopStream(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.sendOK(w, s.ctrl.StopStream())
}

func (s *Server) sendTargets(w http.ResponseWriter, list []string) {
	s.sendOK(w, targetsBody{Targets: list, Common: s.ctrl.CommonTargets()})
}

func (s *Server) httpTargets(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.sendTargets(w, s.ctrl.Targets())
}

func (s *Server) httpAddTarget(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body labelBody
	if err := readJSON(w, r, &body); err != nil {
		s.sendError(w, err)
		return
	}
	s.sendTargets(w, s.ctrl.AddTarget(body.Label))
}

func (s *Server) httpRemoveTarget(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.sendTargets(w, s.ctrl.RemoveTarget(params.ByName("label")))
}

func (s *Server) httpToggleTarget(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.sendTargets(w, s.ctrl.ToggleTarget(params.ByName("label")))
}

func (s *Server) httpStartSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sess, err := s.ctrl.StartProcessing()
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendOK(w, sess)
}

func (s *Server) httpStopSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.sendOK(w, s.ctrl.StopProcessing())
}

func (s *Server) httpEventHistory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.sendError(w, badRequest("since must be an integer"))
			return
		}
		since = v
	}
	s.sendOK(w, s.ctrl.Events(since))
}

func (s *Server) httpPlayer(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	which := params.ByName("which")
	if which != "original" && which != "processed" {
		s.sendError(w, badRequest("unknown player %q", which))
		return
	}
	action := params.ByName("action")
	field, ok := playerActions[action]
	if !ok {
		s.sendError(w, badRequest("unknown player action %q", action))
		return
	}

	var value float64
	if field != "" {
		v, err := strconv.ParseFloat(r.URL.Query().Get(field), 64)
		if err != nil {
			s.sendError(w, badRequest("%s must be a number", field))
			return
		}
		value = v
	}

	state, err := s.ctrl.PlayerControl(which, action, value)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendOK(w, state)
}

func (s *Server) httpExport(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	path, err := s.ctrl.ExportResult()
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendOK(w, exportBody{Path: path})
}

func (s *Server) httpGetSettings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	settings, err := s.ctrl.GetSettings()
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendOK(w, settings)
}

func (s *Server) httpSaveSettings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var settings domain.Settings
	if err := readJSON(w, r, &settings); err != nil {
		s.sendError(w, err)
		return
	}
	saved, err := s.ctrl.SaveSettings(settings)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendOK(w, saved)
}

func (s *Server) httpDiagnostics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.sendOK(w, s.ctrl.GetDiagnostics())
}

func (s *Server) httpRefreshDiagnostics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	report, err := s.ctrl.RefreshDiagnostics()
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendOK(w, report)
}

func (s *Server) httpFixDiagnostic(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	report, err := s.ctrl.FixDiagnostic(params.ByName("id"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendOK(w, report)
}
