package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProcessType represents different types of processes
type ProcessType string

const (
	ProcessTypeBatch   ProcessType = "batch"
	ProcessTypeExtract ProcessType = "extract"
	ProcessTypeSave    ProcessType = "save"
	ProcessTypeRevert  ProcessType = "revert"
)

// ProcessStatus represents the current status of a process
type ProcessStatus string

const (
	ProcessStatusRunning   ProcessStatus = "running"
	ProcessStatusComplete  ProcessStatus = "complete"
	ProcessStatusFailed    ProcessStatus = "failed"
	ProcessStatusCancelled ProcessStatus = "cancelled"
)

// Process is a background operation tracked by the manager.
type Process struct {
	ID        string         `json:"id"`
	Type      ProcessType    `json:"type"`
	Title     string         `json:"title"` // archive or directory being processed
	Status    ProcessStatus  `json:"status"`
	Progress  int            `json:"progress"`
	Total     int            `json:"total"`
	Message   string         `json:"message"`
	Error     string         `json:"error"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ProcessManager tracks processes and persists their history as JSON.
type ProcessManager struct {
	processes   map[string]*Process
	cancels     map[string]func()
	mu          sync.RWMutex
	storagePath string
}

// NewProcessManager loads the history at storagePath (empty for an
// in-memory manager). Processes still marked running were interrupted by a
// restart and are marked failed.
func NewProcessManager(storagePath string) (*ProcessManager, error) {
	pm := &ProcessManager{
		processes:   make(map[string]*Process),
		cancels:     make(map[string]func()),
		storagePath: storagePath,
	}
	if storagePath == "" {
		return pm, nil
	}
	if err := os.MkdirAll(filepath.Dir(storagePath), 0755); err != nil {
		return nil, fmt.Errorf("error creating process history dir: %w", err)
	}
	if err := pm.LoadProcesses(); err != nil {
		return nil, err
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, p := range pm.processes {
		if p.Status == ProcessStatusRunning {
			p.Status = ProcessStatusFailed
			p.Message = "Process interrupted by service restart"
			p.EndTime = time.Now()
		}
	}
	return pm, pm.saveLocked()
}

// SaveProcesses persists all processes to disk
func (pm *ProcessManager) SaveProcesses() error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.saveLocked()
}

func (pm *ProcessManager) saveLocked() error {
	if pm.storagePath == "" {
		return nil
	}
	processes := make([]*Process, 0, len(pm.processes))
	for _, p := range pm.processes {
		processes = append(processes, p)
	}
	sortProcesses(processes)

	data, err := json.MarshalIndent(processes, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling processes: %w", err)
	}

	tmp := pm.storagePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("error writing processes to file: %w", err)
	}
	if err := os.Rename(tmp, pm.storagePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("error writing processes to file: %w", err)
	}
	return nil
}

// LoadProcesses loads processes from disk
func (pm *ProcessManager) LoadProcesses() error {
	data, err := os.ReadFile(pm.storagePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error reading processes file: %w", err)
	}

	var processes []*Process
	if err := json.Unmarshal(data, &processes); err != nil {
		return fmt.Errorf("error unmarshaling processes: %w", err)
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, p := range processes {
		pm.processes[p.ID] = p
	}
	return nil
}

// NewProcess creates a new running process. cancel, if not nil, is called
// when the process is cancelled.
func (pm *ProcessManager) NewProcess(processType ProcessType, title string, cancel func()) Process {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	process := &Process{
		ID:        uuid.NewString(),
		Type:      processType,
		Title:     title,
		Status:    ProcessStatusRunning,
		StartTime: time.Now(),
	}
	pm.processes[process.ID] = process
	if cancel != nil {
		pm.cancels[process.ID] = cancel
	}
	_ = pm.saveLocked()
	return *process
}

// GetProcess returns a snapshot of a process by ID
func (pm *ProcessManager) GetProcess(id string) (Process, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	process, exists := pm.processes[id]
	if !exists {
		return Process{}, false
	}
	return *process, true
}

// ListProcesses returns snapshots of all processes, newest first
func (pm *ProcessManager) ListProcesses() []Process {
	return pm.list(func(*Process) bool { return true })
}

// ListActiveProcesses returns only running processes
func (pm *ProcessManager) ListActiveProcesses() []Process {
	return pm.list(func(p *Process) bool { return p.Status == ProcessStatusRunning })
}

func (pm *ProcessManager) list(keep func(*Process) bool) []Process {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	matched := make([]*Process, 0, len(pm.processes))
	for _, p := range pm.processes {
		if keep(p) {
			matched = append(matched, p)
		}
	}
	sortProcesses(matched)

	out := make([]Process, len(matched))
	for i, p := range matched {
		out[i] = *p
	}
	return out
}

func sortProcesses(ps []*Process) {
	slices.SortFunc(ps, func(a, b *Process) int { return b.StartTime.Compare(a.StartTime) })
}

// UpdateProcess applies update to a running process
func (pm *ProcessManager) UpdateProcess(id string, update func(*Process)) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	process, exists := pm.processes[id]
	if !exists || process.Status != ProcessStatusRunning {
		return false
	}
	update(process)
	_ = pm.saveLocked()
	return true
}

// CompleteProcess marks a process as complete
func (pm *ProcessManager) CompleteProcess(id string, message string) bool {
	return pm.finish(id, func(p *Process) {
		p.Status = ProcessStatusComplete
		p.Progress = p.Total
		p.Message = message
	})
}

// FailProcess marks a process as failed
func (pm *ProcessManager) FailProcess(id string, err string) bool {
	return pm.finish(id, func(p *Process) {
		p.Status = ProcessStatusFailed
		p.Error = err
	})
}

// CancelProcess cancels a running process
func (pm *ProcessManager) CancelProcess(id string) bool {
	pm.mu.Lock()
	cancel := pm.cancels[id]
	pm.mu.Unlock()

	ok := pm.finish(id, func(p *Process) {
		p.Status = ProcessStatusCancelled
		p.Message = "Process cancelled"
	})
	if ok && cancel != nil {
		cancel()
	}
	return ok
}

func (pm *ProcessManager) finish(id string, update func(*Process)) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	process, exists := pm.processes[id]
	if !exists || process.Status != ProcessStatusRunning {
		return false
	}
	update(process)
	process.EndTime = time.Now()
	delete(pm.cancels, id)
	_ = pm.saveLocked()
	return true
}

// AnnotateProcess replaces a process's metadata. Unlike UpdateProcess it
// also applies to processes that already finished, so results computed
// after a cancel are still recorded.
func (pm *ProcessManager) AnnotateProcess(id string, metadata map[string]any) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	process, exists := pm.processes[id]
	if !exists {
		return false
	}
	process.Metadata = metadata
	_ = pm.saveLocked()
	return true
}

// DeleteProcess removes a finished process from history
func (pm *ProcessManager) DeleteProcess(id string) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	process, exists := pm.processes[id]
	if !exists || process.Status == ProcessStatusRunning {
		return false
	}
	delete(pm.processes, id)
	_ = pm.saveLocked()
	return true
}

// CleanupOldProcesses removes completed/failed processes older than the given duration
func (pm *ProcessManager) CleanupOldProcesses(age time.Duration) int {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	now := time.Now()
	deleted := 0
	for id, process := range pm.processes {
		if process.Status != ProcessStatusRunning && now.Sub(process.EndTime) > age {
			delete(pm.processes, id)
			deleted++
		}
	}
	if deleted > 0 {
		_ = pm.saveLocked()
	}
	return deleted
}

// Update updates a process's progress and message
func (p *Process) Update(progress int, total int, message string) {
	p.Progress = progress
	p.Total = total
	p.Message = message
}

// Duration returns the duration of the process
func (p Process) Duration() time.Duration {
	if p.Status == ProcessStatusRunning {
		return time.Since(p.StartTime)
	}
	return p.EndTime.Sub(p.StartTime)
}

// ProgressPercentage returns the progress as a percentage
func (p Process) ProgressPercentage() int {
	if p.Total <= 0 {
		return 0
	}
	return (p.Progress * 100) / p.Total
}
