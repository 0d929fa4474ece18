package media

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeRunner simulates command execution outcomes.
type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (commandResult, error)
}

// Run delegates to injected behavior.
func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

// TestFFProbeParsesStreamAndDuration checks the happy path.
func TestFFProbeParsesStreamAndDuration(t *testing.T) {
	var gotName string
	var gotArgs []string
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		gotName = name
		gotArgs = args
		return commandResult{Stdout: `{"streams":[{"codec_name":"h264","width":1280,"height":720}],"format":{"duration":"12.500000"}}`}, nil
	}}

	res, err := NewFFProbeForTests("ffprobe-custom", runner).Probe(context.Background(), "/videos/clip.mp4")
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if gotName != "ffprobe-custom" {
		t.Fatalf("command = %q, want ffprobe-custom", gotName)
	}
	if gotArgs[len(gotArgs)-1] != "/videos/clip.mp4" {
		t.Fatalf("last arg = %q, want input path", gotArgs[len(gotArgs)-1])
	}
	if res.Width != 1280 || res.Height != 720 || res.Codec != "h264" {
		t.Fatalf("result = %+v", res)
	}
	if res.Duration != 12500*time.Millisecond {
		t.Fatalf("duration = %v, want 12.5s", res.Duration)
	}
}

// TestFFProbeNoVideoStream reports files without a video stream.
func TestFFProbeNoVideoStream(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		return commandResult{Stdout: `{"streams":[],"format":{"duration":"3.0"}}`}, nil
	}}

	_, err := NewFFProbeForTests("ffprobe", runner).Probe(context.Background(), "/audio.mp3")
	if err == nil || !strings.Contains(err.Error(), "no video streams") {
		t.Fatalf("error = %v, want no video streams", err)
	}
}

// TestFFProbeCommandFailure includes stderr in the returned error.
func TestFFProbeCommandFailure(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		return commandResult{Stderr: "Invalid data found when processing input\n", ExitCode: 1}, errors.New("exit status 1")
	}}

	_, err := NewFFProbeForTests("ffprobe", runner).Probe(context.Background(), "/broken.mp4")
	if err == nil || !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("error = %v, want stderr context", err)
	}
}
