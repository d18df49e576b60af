package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/tubefetch/internal/delivery"
	"github.com/iconidentify/tubefetch/internal/repository"
)

var startTime = time.Now()

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	jobRepo  repository.JobRepository
	workPath string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(jobRepo repository.JobRepository, workPath string) *HealthHandler {
	return &HealthHandler{
		jobRepo:  jobRepo,
		workPath: workPath,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Queue     *repository.QueueStats `json:"queue,omitempty"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Check job repository is accessible
	stats, err := h.jobRepo.Stats(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "error",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Queue:     stats,
	})
}

// SystemStats contains process and work directory statistics.
type SystemStats struct {
	Uptime        int64                  `json:"uptime_seconds"`
	UptimeHuman   string                 `json:"uptime_human"`
	MemAllocMB    int64                  `json:"mem_alloc_mb"`
	MemSysMB      int64                  `json:"mem_sys_mb"`
	NumGoroutines int                    `json:"num_goroutines"`
	NumCPU        int                    `json:"num_cpu"`
	WorkPath      string                 `json:"work_path"`
	DiskFreeBytes int64                  `json:"disk_free_bytes"`
	DiskFreeHuman string                 `json:"disk_free_human"`
	Queue         *repository.QueueStats `json:"queue,omitempty"`
	Pending       []PendingJob           `json:"pending,omitempty"`
}

// PendingJob is a queued request waiting for a worker.
type PendingJob struct {
	JobID     string `json:"job_id"`
	RequestID string `json:"request_id"`
	URL       string `json:"url"`
	Quality   string `json:"quality"`
	QueuedFor string `json:"queued_for"`
}

// Stats handles GET /api/v1/stats - system statistics.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)
	free := delivery.FreeSpace(h.workPath)

	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		WorkPath:      h.workPath,
		DiskFreeBytes: free,
		DiskFreeHuman: humanize.IBytes(uint64(free)),
	}

	if queue, err := h.jobRepo.Stats(r.Context()); err == nil {
		stats.Queue = queue
	}
	if jobs, err := h.jobRepo.ListPending(r.Context()); err == nil {
		for _, job := range jobs {
			stats.Pending = append(stats.Pending, PendingJob{
				JobID:     string(job.ID),
				RequestID: string(job.Request.ID),
				URL:       job.Request.URL,
				Quality:   job.Request.RequestedQuality,
				QueuedFor: time.Since(job.CreatedAt).Round(time.Second).String(),
			})
		}
	}

	writeJSON(w, http.StatusOK, stats)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
