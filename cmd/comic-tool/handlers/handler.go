// Package handlers serves the collaborator HTTP API over the editing
// engine.
package handlers

import (
	"net/http"

	"github.com/gorilla/sessions"

	"comic-tool/cmd/comic-tool/processors"
	"comic-tool/internal"
	"comic-tool/internal/archive"
	"comic-tool/internal/backup"
	"comic-tool/internal/batch"
	"comic-tool/internal/editor"
	"comic-tool/internal/session"
)

const (
	cookieName       = "comic-tool"
	cookieSessionKey = "editing_session"
)

// Handler contains dependencies for the API handlers
type Handler struct {
	Sessions  *session.Registry
	Saver     *editor.Saver
	Backups   *backup.Manager
	Processes *internal.ProcessManager
	Runner    *processors.Runner
	// Pipeline is copied for every batch run.
	Pipeline batch.Pipeline
	// BackupByDefault applies when a batch request leaves backups unset.
	BackupByDefault bool
	Tools           archive.Tools
	Cookies         sessions.Store
	Logger          func(level, message string)
}

func (h *Handler) log(level, message string) {
	if h.Logger != nil {
		h.Logger(level, message)
	}
}

// rememberSession stores the caller's current editing session in the
// cookie. Failures only lose the convenience lookup, so they are logged.
func (h *Handler) rememberSession(w http.ResponseWriter, r *http.Request, id string) {
	if h.Cookies == nil {
		return
	}
	cookie, err := h.Cookies.Get(r, cookieName)
	if err != nil && cookie == nil {
		h.log("WARNING", "Cookie session unavailable: "+err.Error())
		return
	}
	if id == "" {
		delete(cookie.Values, cookieSessionKey)
	} else {
		cookie.Values[cookieSessionKey] = id
	}
	if err := cookie.Save(r, w); err != nil {
		h.log("WARNING", "Failed to save cookie session: "+err.Error())
	}
}

func (h *Handler) rememberedSession(r *http.Request) string {
	if h.Cookies == nil {
		return ""
	}
	cookie, err := h.Cookies.Get(r, cookieName)
	if err != nil || cookie == nil {
		return ""
	}
	id, _ := cookie.Values[cookieSessionKey].(string)
	return id
}
