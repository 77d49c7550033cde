package main

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RouteConfig holds information for registering a route
type RouteConfig struct {
	Path    string
	Handler http.HandlerFunc
	Methods []string
}

// RegisterRoutes registers all application routes with the router
func RegisterRoutes(r *mux.Router, app *AppContext) {
	h := app.Handler
	routes := []RouteConfig{
		{"/healthcheck", h.HealthcheckHandler, []string{"GET"}},

		// Editing sessions. "current" must precede the {id} routes.
		{"/api/sessions", h.OpenSessionHandler, []string{"POST"}},
		{"/api/sessions", h.ListSessionsHandler, []string{"GET"}},
		{"/api/sessions/current", h.CurrentSessionHandler, []string{"GET"}},
		{"/api/sessions/{id}", h.SessionHandler, []string{"GET"}},
		{"/api/sessions/{id}", h.CloseSessionHandler, []string{"DELETE"}},
		{"/api/sessions/{id}/pages/{index:[0-9]+}/image", h.PageImageHandler, []string{"GET"}},
		{"/api/sessions/{id}/toggle", h.ToggleHandler, []string{"POST"}},
		{"/api/sessions/{id}/select", h.SelectHandler, []string{"POST"}},
		{"/api/sessions/{id}/mask", h.MaskHandler, []string{"POST"}},
		{"/api/sessions/{id}/save", h.SaveHandler, []string{"POST"}},

		// Archive operations
		{"/api/revert", h.RevertHandler, []string{"POST"}},
		{"/api/backups", h.BackupsHandler, []string{"GET"}},
		{"/api/siblings", h.SiblingsHandler, []string{"GET"}},
		{"/api/tools", h.ToolsHandler, []string{"GET"}},
		{"/api/batch", h.BatchHandler, []string{"POST"}},

		// Processes
		{"/api/processes", h.ProcessesAPIHandler, []string{"GET"}},
		{"/api/processes/{id}", h.ProcessHandler, []string{"GET"}},
		{"/api/processes/{id}/cancel", h.ProcessCancelHandler, []string{"POST"}},
		{"/api/processes/{id}/delete", h.ProcessDeleteHandler, []string{"POST"}},
	}

	for _, route := range routes {
		r.HandleFunc(route.Path, route.Handler).Methods(route.Methods...)
	}
}
