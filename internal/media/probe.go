package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeResult holds the properties of the first video stream in a file.
type ProbeResult struct {
	Duration time.Duration `json:"duration"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Codec    string        `json:"codec"`
}

// Prober inspects a media file on disk.
type Prober interface {
	Probe(ctx context.Context, path string) (ProbeResult, error)
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// FFProbe reads stream metadata with the ffprobe CLI.
type FFProbe struct {
	path   string
	runner commandRunner
}

// NewFFProbe uses ffprobe from PATH.
func NewFFProbe() *FFProbe {
	return &FFProbe{path: "ffprobe", runner: &execRunner{}}
}

type probeOutput struct {
	Streams []struct {
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns duration, dimensions and codec of the first video stream.
func (p *FFProbe) Probe(ctx context.Context, path string) (ProbeResult, error) {
	res, err := p.runner.Run(ctx, p.path,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height:format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe %s (exit=%d): %s: %w", path, res.ExitCode, strings.TrimSpace(res.Stderr), err)
	}

	var out probeOutput
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return ProbeResult{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return ProbeResult{}, fmt.Errorf("no video streams found in %s", path)
	}

	result := ProbeResult{
		Width:  out.Streams[0].Width,
		Height: out.Streams[0].Height,
		Codec:  out.Streams[0].CodecName,
	}
	if out.Format.Duration != "" {
		seconds, err := strconv.ParseFloat(out.Format.Duration, 64)
		if err != nil {
			return ProbeResult{}, fmt.Errorf("parse duration %q: %w", out.Format.Duration, err)
		}
		result.Duration = time.Duration(seconds * float64(time.Second))
	}
	return result, nil
}

// NewFFProbeForTests creates a prober with an injected runner.
func NewFFProbeForTests(path string, runner commandRunner) *FFProbe {
	return &FFProbe{path: path, runner: runner}
}
