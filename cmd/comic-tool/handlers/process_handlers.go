package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"comic-tool/internal"
)

// ProcessResponse is a process as the API reports it.
type ProcessResponse struct {
	internal.Process
	Percent float64 `json:"progress_percentage"`
	Seconds float64 `json:"duration_seconds"`
}

func processResponse(p internal.Process) ProcessResponse {
	return ProcessResponse{
		Process: p,
		Percent: float64(p.ProgressPercentage()),
		Seconds: p.Duration().Round(time.Millisecond).Seconds(),
	}
}

// ProcessesAPIHandler lists tracked processes, newest first
func (h *Handler) ProcessesAPIHandler(w http.ResponseWriter, r *http.Request) {
	var list []internal.Process
	if r.URL.Query().Get("active") == "true" {
		list = h.Processes.ListActiveProcesses()
	} else {
		list = h.Processes.ListProcesses()
	}

	out := make([]ProcessResponse, 0, len(list))
	for _, p := range list {
		out = append(out, processResponse(p))
	}
	respondJSON(w, map[string]interface{}{
		"processes": out,
	})
}

// ProcessHandler returns one process
func (h *Handler) ProcessHandler(w http.ResponseWriter, r *http.Request) {
	proc, ok := h.Processes.GetProcess(mux.Vars(r)["id"])
	if !ok {
		respondJSONError(w, http.StatusNotFound, "Process not found")
		return
	}
	respondJSON(w, processResponse(proc))
}

// ProcessCancelHandler cancels a running process
func (h *Handler) ProcessCancelHandler(w http.ResponseWriter, r *http.Request) {
	processID := mux.Vars(r)["id"]
	if !h.Processes.CancelProcess(processID) {
		respondJSONError(w, http.StatusNotFound, "Process not found or not running")
		return
	}
	h.log("INFO", fmt.Sprintf("Process %s cancelled", processID))
	respondJSONSuccess(w, nil)
}

// ProcessDeleteHandler removes a finished process from history
func (h *Handler) ProcessDeleteHandler(w http.ResponseWriter, r *http.Request) {
	processID := mux.Vars(r)["id"]

	proc, exists := h.Processes.GetProcess(processID)
	if !exists {
		respondJSONError(w, http.StatusNotFound, "Process not found")
		return
	}
	if proc.Status == internal.ProcessStatusRunning {
		respondJSONError(w, http.StatusBadRequest, "Cannot delete a running process")
		return
	}
	if !h.Processes.DeleteProcess(processID) {
		respondJSONError(w, http.StatusInternalServerError, "Failed to delete process")
		return
	}

	h.log("INFO", fmt.Sprintf("Process %s deleted from history", processID))
	respondJSONSuccess(w, nil)
}
