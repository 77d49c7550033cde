package handlers

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"comic-tool/internal"
	"comic-tool/internal/editor"
	"comic-tool/internal/pages"
	"comic-tool/internal/session"
	"comic-tool/internal/util"
)

// SessionView is the JSON shape of an open editing session.
type SessionView struct {
	ID      string       `json:"id"`
	Path    string       `json:"path"`
	Opened  time.Time    `json:"opened"`
	Pages   []pages.Page `json:"pages"`
	Total   int          `json:"total"`
	Kept    int          `json:"kept"`
	Removed int          `json:"removed"`
}

func viewOf(s *session.Session) SessionView {
	return SessionView{
		ID:      s.ID,
		Path:    s.Path,
		Opened:  s.Opened,
		Pages:   s.Set.Pages(),
		Total:   s.Set.Len(),
		Kept:    s.Set.KeptCount(),
		Removed: s.Set.RemovedCount(),
	}
}

func (h *Handler) sessionFromRequest(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.Sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		respondOperationError(w, err)
		return nil, false
	}
	return s, true
}

// OpenSessionHandler extracts an archive and starts an editing session
func (h *Handler) OpenSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		respondJSONError(w, http.StatusBadRequest, "path is required")
		return
	}

	var s *session.Session
	proc, err := h.Runner.Track(r.Context(), internal.ProcessTypeExtract, req.Path, func(ctx context.Context, logger util.Logger) (string, error) {
		opened, err := h.Sessions.Open(ctx, req.Path)
		if err != nil {
			logger.Error(fmt.Sprintf("Failed to open %s: %v", req.Path, err))
			return "", err
		}
		s = opened
		return fmt.Sprintf("Extracted %d pages", opened.Set.Len()), nil
	})
	if err != nil {
		respondOperationError(w, err)
		return
	}
	h.rememberSession(w, r, s.ID)
	h.log("INFO", fmt.Sprintf("Editing session %s opened for %s", s.ID, s.Path))
	respondJSONSuccess(w, map[string]interface{}{"session": viewOf(s), "process": proc})
}

// ListSessionsHandler lists open editing sessions
func (h *Handler) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	open := h.Sessions.List()
	views := make([]SessionView, 0, len(open))
	for _, s := range open {
		views = append(views, viewOf(s))
	}
	respondJSON(w, map[string]interface{}{"sessions": views})
}

// CurrentSessionHandler returns the session remembered in the caller's cookie
func (h *Handler) CurrentSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := h.rememberedSession(r)
	if id == "" {
		respondJSONError(w, http.StatusNotFound, "No current editing session")
		return
	}
	s, err := h.Sessions.Get(id)
	if err != nil {
		h.rememberSession(w, r, "")
		respondOperationError(w, err)
		return
	}
	respondJSONSuccess(w, map[string]interface{}{"session": viewOf(s)})
}

// SessionHandler returns the pages of a session with their keep flags
func (h *Handler) SessionHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	respondJSONSuccess(w, map[string]interface{}{"session": viewOf(s)})
}

// CloseSessionHandler discards a session and its staged pages
func (h *Handler) CloseSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.Sessions.Close(id); err != nil {
		respondOperationError(w, err)
		return
	}
	if h.rememberedSession(r) == id {
		h.rememberSession(w, r, "")
	}
	h.log("INFO", "Editing session closed: "+id)
	respondJSONSuccess(w, nil)
}

// PageImageHandler serves the staged bytes of one page
func (h *Handler) PageImageHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "page index must be a number")
		return
	}
	page, err := s.Set.At(index)
	if err != nil {
		respondOperationError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("ETag", `"`+page.Checksum+`"`)
	http.ServeFile(w, r, page.Path)
}

// ToggleHandler flips the keep flag of one page
func (h *Handler) ToggleHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	keep, err := s.Set.Toggle(req.ID)
	if err != nil {
		respondOperationError(w, err)
		return
	}
	respondJSONSuccess(w, map[string]interface{}{
		"id":   req.ID,
		"keep": keep,
		"kept": s.Set.KeptCount(),
	})
}

// SelectHandler keeps or removes every page at once
func (h *Handler) SelectHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	var req struct {
		All *bool `json:"all"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.All == nil {
		respondJSONError(w, http.StatusBadRequest, "all is required")
		return
	}
	if *req.All {
		s.Set.SelectAll()
	} else {
		s.Set.SelectNone()
	}
	respondJSONSuccess(w, map[string]interface{}{"session": viewOf(s)})
}

// MaskHandler replaces every keep flag with the given mask
func (h *Handler) MaskHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	var req struct {
		Keep   []bool `json:"keep"`
		Remove string `json:"remove"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	var err error
	switch {
	case req.Remove != "":
		err = applyRemoveSelection(s.Set, req.Remove)
	case req.Keep != nil:
		err = s.Set.ApplyMask(req.Keep)
	default:
		respondJSONError(w, http.StatusBadRequest, "keep or remove is required")
		return
	}
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSONSuccess(w, map[string]interface{}{"session": viewOf(s)})
}

// applyRemoveSelection removes the pages named by a 1-based range
// selection such as "1-3,5".
func applyRemoveSelection(set *pages.Set, selection string) error {
	picked, err := util.ParseSelection(selection, set.Len())
	if err != nil {
		return err
	}
	indices := make([]int, 0, len(picked))
	for i := range picked {
		indices = append(indices, i)
	}
	return set.ApplyRemovals(indices)
}

// SaveHandler writes the kept pages in place or to a new path
func (h *Handler) SaveHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	var req struct {
		Destination string `json:"destination"`
		Path        string `json:"path"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	var save func(ctx context.Context) (*editor.Result, error)
	title := s.Path
	switch req.Destination {
	case "", "in_place":
		save = func(ctx context.Context) (*editor.Result, error) { return h.Saver.SaveInPlace(ctx, s.Set) }
	case "save_as":
		if strings.TrimSpace(req.Path) == "" {
			respondJSONError(w, http.StatusBadRequest, "path is required for save_as")
			return
		}
		title = req.Path
		save = func(ctx context.Context) (*editor.Result, error) { return h.Saver.SaveAs(ctx, s.Set, req.Path) }
	default:
		respondJSONError(w, http.StatusBadRequest, "destination must be in_place or save_as")
		return
	}

	var result *editor.Result
	proc, err := h.Runner.Track(r.Context(), internal.ProcessTypeSave, title, func(ctx context.Context, logger util.Logger) (string, error) {
		res, err := save(ctx)
		if err != nil {
			logger.Error(fmt.Sprintf("Save failed: %v", err))
			return "", err
		}
		result = res
		if abs, err := filepath.Abs(res.Built.Path); err == nil && abs == s.Path {
			if err := h.Sessions.Resync(s.ID); err != nil {
				logger.Warning(fmt.Sprintf("Session %s no longer tracks %s: %v", s.ID, s.Path, err))
			}
		}
		msg := fmt.Sprintf("Saved %d pages to %s", res.Built.Pages, res.Built.Path)
		if res.Built.FellBack {
			msg += " (ZIP content, no RAR encoder)"
		}
		logger.Info(msg)
		return msg, nil
	})
	if err != nil {
		respondOperationError(w, err)
		return
	}
	respondJSONSuccess(w, map[string]interface{}{
		"result":  result,
		"process": proc,
	})
}
