// Package frontend embeds the single-page UI served by the webview and the
// HTTP server.
package frontend

import "embed"

//go:embed index.html app.js style.css
var Assets embed.FS
