package bootstrap

import (
	"context"

	"video-detector/internal/httpapi"
)

// Serve exposes the App over HTTP on addr until ctx is cancelled, then
// releases the camera and stops any running session.
func (a *App) Serve(ctx context.Context, addr string) error {
	srv := httpapi.New(a, httpapi.Options{
		Metrics: a.Metrics,
		Assets:  a.assets,
		Log:     a.log,
	})
	defer a.Close()
	return srv.ListenAndServe(ctx, addr)
}
