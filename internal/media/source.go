// Package media acquires and owns the single active video source: an uploaded
// file or a live camera stream.
package media

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"video-detector/internal/domain"
)

// Source is the current media origin. Implemented only by *FileSource and
// *StreamSource.
type Source interface {
	Kind() domain.SourceKind
	Info() domain.SourceInfo
	Reference() string
	isSource()
}

// FileInput describes a user-supplied file before validation.
type FileInput struct {
	Path     string `json:"path"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// FileSource is a validated video file on local disk.
type FileSource struct {
	Path       string
	Name       string
	SizeBytes  int64
	MimeType   string
	Duration   time.Duration
	SelectedAt time.Time
}

func (*FileSource) isSource() {}

// Kind reports SourceKindFile.
func (*FileSource) Kind() domain.SourceKind { return domain.SourceKindFile }

// Reference returns a file:// URL for the presentation surface.
func (f *FileSource) Reference() string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(f.Path)}).String()
}

// Info returns the UI description of the file.
func (f *FileSource) Info() domain.SourceInfo {
	return domain.SourceInfo{
		Kind:       domain.SourceKindFile,
		Name:       f.Name,
		SizeBytes:  f.SizeBytes,
		SizeLabel:  SizeLabel(f.SizeBytes),
		MimeType:   f.MimeType,
		DurationMs: f.Duration.Milliseconds(),
		StartedAt:  f.SelectedAt,
		Reference:  f.Reference(),
	}
}

// StreamSource is a live camera acquisition. The manager owns Handle.
type StreamSource struct {
	Handle    Handle
	StartedAt time.Time
}

func (*StreamSource) isSource() {}

// Kind reports SourceKindStream.
func (*StreamSource) Kind() domain.SourceKind { return domain.SourceKindStream }

// Reference returns a stream:// reference naming the live handle.
func (s *StreamSource) Reference() string {
	return "stream://" + s.Handle.ID()
}

// Info returns the UI description of the stream.
func (s *StreamSource) Info() domain.SourceInfo {
	return domain.SourceInfo{
		Kind:      domain.SourceKindStream,
		Name:      "Live camera",
		StreamID:  s.Handle.ID(),
		StartedAt: s.StartedAt,
		Reference: s.Reference(),
	}
}

// InfoOf describes src, or the empty source when src is nil.
func InfoOf(src Source) domain.SourceInfo {
	if src == nil {
		return domain.SourceInfo{Kind: domain.SourceKindNone}
	}
	return src.Info()
}

// SizeLabel formats a byte count in megabytes with two decimals.
func SizeLabel(size int64) string {
	return fmt.Sprintf("%.2f MB", float64(size)/(1024*1024))
}
