package presenter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"video-detector/internal/domain"
	"video-detector/internal/media"
)

// ErrNotExportable is returned when the processed output cannot be saved.
var ErrNotExportable = errors.New("processed output is not exportable")

const (
	OriginalTitle  = "Original Video"
	ProcessedTitle = "Processed Results"
)

// Which selects one of the two players.
type Which string

const (
	WhichOriginal  Which = "original"
	WhichProcessed Which = "processed"
)

// Presenter derives playback references from the media source and session.
// It never mutates either.
type Presenter struct {
	Original  *Player
	Processed *Player
	client    *http.Client
}

// New creates a presenter with empty players.
func New(client *http.Client) *Presenter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Presenter{
		Original:  NewPlayer(OriginalTitle),
		Processed: NewPlayer(ProcessedTitle),
		client:    client,
	}
}

// Player returns the player selected by which.
func (p *Presenter) Player(which Which) (*Player, error) {
	switch which {
	case WhichOriginal:
		return p.Original, nil
	case WhichProcessed:
		return p.Processed, nil
	default:
		return nil, fmt.Errorf("unknown player %q", which)
	}
}

// Sync loads the original from src and the processed output from a completed session.
func (p *Presenter) Sync(src media.Source, sess domain.Session) {
	switch s := src.(type) {
	case *media.FileSource:
		p.Original.Load(s.Reference(), s.Duration, false)
	case *media.StreamSource:
		p.Original.Load(s.Reference(), 0, true)
	default:
		p.Original.Unload()
	}

	if sess.Status == domain.SessionStatusCompleted && sess.ResultRef != "" {
		p.Processed.Load(sess.ResultRef, 0, strings.HasPrefix(sess.ResultRef, "stream://"))
	} else {
		p.Processed.Unload()
	}
}

// State returns both player snapshots.
func (p *Presenter) State() domain.PlayersState {
	return domain.PlayersState{Original: p.Original.State(), Processed: p.Processed.State()}
}

// ExportFileName derives the download name from a player title.
func ExportFileName(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), "_") + ".mp4"
}

// Export saves the processed output into dir and returns the written path.
func (p *Presenter) Export(ctx context.Context, dir string) (string, error) {
	ref := p.Processed.State().Reference
	if ref == "" {
		return "", ErrNoMedia
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse result reference: %w", err)
	}

	var body io.ReadCloser
	switch u.Scheme {
	case "file", "":
		path := u.Path
		if u.Scheme == "" {
			path = ref
		}
		f, err := os.Open(filepath.FromSlash(path))
		if err != nil {
			return "", fmt.Errorf("open result: %w", err)
		}
		body = f
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return "", err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return "", fmt.Errorf("download result: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return "", fmt.Errorf("download result: unexpected status %s", resp.Status)
		}
		body = resp.Body
	default:
		return "", fmt.Errorf("%w: %s", ErrNotExportable, ref)
	}
	defer body.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	dst := filepath.Join(dir, ExportFileName(ProcessedTitle))
	if err := writeFileAtomic(dst, body); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return dst, nil
}

func writeFileAtomic(dst string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".export-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, dst)
}
