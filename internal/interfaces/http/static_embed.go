package http

import "embed"

// staticFiles holds the dashboard CSS and JS.
//
//go:embed static
var staticFiles embed.FS
