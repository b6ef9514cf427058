// Package server exposes the HTTP API handlers.
package server

import (
	"github.com/onnwee/streamsync/app"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	app *app.App
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(a *app.App) *Handlers {
	return &Handlers{app: a}
}
