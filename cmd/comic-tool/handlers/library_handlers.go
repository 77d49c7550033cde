package handlers

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"comic-tool/internal"
	"comic-tool/internal/archive"
	"comic-tool/internal/backup"
	"comic-tool/internal/batch"
	"comic-tool/internal/library"
	"comic-tool/internal/util"
)

// RevertHandler restores an archive from its newest backup
func (h *Handler) RevertHandler(w http.ResponseWriter, r *http.Request) {
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

	var restored *backup.Record
	proc, err := h.Runner.Track(r.Context(), internal.ProcessTypeRevert, req.Path, func(ctx context.Context, logger util.Logger) (string, error) {
		rec, err := h.Backups.Revert(ctx, req.Path)
		if err != nil {
			logger.Error(fmt.Sprintf("Revert failed: %v", err))
			return "", err
		}
		restored = rec
		return "Restored from " + rec.Name(), nil
	})
	if err != nil {
		respondOperationError(w, err)
		return
	}
	respondJSONSuccess(w, map[string]interface{}{
		"backup":  restored,
		"process": proc,
	})
}

// BackupsHandler lists the backups of an archive, newest first
func (h *Handler) BackupsHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		respondJSONError(w, http.StatusBadRequest, "path is required")
		return
	}
	records, err := h.Backups.List(path)
	if err != nil {
		respondOperationError(w, err)
		return
	}
	if records == nil {
		records = []backup.Record{}
	}
	respondJSON(w, map[string]interface{}{
		"path":    path,
		"dir":     h.Backups.DirFor(path),
		"backups": records,
	})
}

// SiblingsHandler reports the previous and next archives in a directory
func (h *Handler) SiblingsHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		respondJSONError(w, http.StatusBadRequest, "path is required")
		return
	}
	n, err := library.Siblings(path)
	if err != nil {
		respondOperationError(w, err)
		return
	}
	respondJSON(w, n)
}

// ToolsHandler reports which RAR facilities are available
func (h *Handler) ToolsHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]interface{}{
		"decoder":        h.Tools.Decoder,
		"rar_reader":     h.Tools.RarDecoder(),
		"unrar":          h.Tools.Unrar,
		"rar":            h.Tools.Rar,
		"can_decode_rar": h.Tools.CanDecodeRar(),
		"can_encode_rar": h.Tools.CanEncodeRar(),
	})
}

// BatchRequest starts a batch conversion.
type BatchRequest struct {
	Root          string `json:"root"`
	Recursive     bool   `json:"recursive"`
	CreateBackups *bool  `json:"create_backups"`
	Overwrite     bool   `json:"overwrite"`
	SourceExt     string `json:"source_ext"`
	// Target is the output container, "cbz" (default) or "cbr".
	Target string `json:"target"`
}

func (req BatchRequest) options(backupByDefault bool) (batch.Options, error) {
	opts := batch.Options{
		Recursive:     req.Recursive,
		CreateBackups: backupByDefault,
		Overwrite:     req.Overwrite,
		SourceExt:     req.SourceExt,
	}
	if req.CreateBackups != nil {
		opts.CreateBackups = *req.CreateBackups
	}
	if req.Target != "" {
		kind, err := archive.ParseKind(req.Target)
		if err != nil {
			return opts, err
		}
		opts.TargetKind = kind
		opts.TargetExt = ".cbz"
		if kind == archive.KindRar {
			opts.TargetExt = ".cbr"
		}
	}
	return opts, nil
}

// BatchHandler converts every archive under a directory in the background
func (h *Handler) BatchHandler(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Root) == "" {
		respondJSONError(w, http.StatusBadRequest, "root is required")
		return
	}
	if !util.DirExists(req.Root) {
		respondJSONError(w, http.StatusNotFound, "root is not a directory")
		return
	}
	opts, err := req.options(h.BackupByDefault)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	root, _ := filepath.Abs(req.Root)
	proc := h.Runner.StartBatch(h.Pipeline, root, opts)
	h.log("INFO", fmt.Sprintf("Batch process %s started for %s", proc.ID, root))

	w.Header().Set("Location", "/api/processes/"+proc.ID)
	w.WriteHeader(http.StatusAccepted)
	respondJSON(w, map[string]interface{}{
		"success": true,
		"process": proc,
	})
}

// HealthcheckHandler answers liveness probes
func (h *Handler) HealthcheckHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := w.Write([]byte("OK")); err != nil {
		h.log("ERROR", "Unable to write healthcheck: "+err.Error())
	}
}
