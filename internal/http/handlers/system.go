package handlers

import (
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/jmylchreest/streampulse/internal/database"
)

// SystemHandler serves the health check and runtime status endpoints.
type SystemHandler struct {
	version   string
	startTime time.Time
	db        *database.DB
	logger    *slog.Logger
}

// NewSystemHandler creates a system handler.
func NewSystemHandler(version string, db *database.DB, logger *slog.Logger) *SystemHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemHandler{
		version:   version,
		startTime: time.Now(),
		db:        db,
		logger:    logger.With("component", "system_handler"),
	}
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// StatusResponse is the runtime status body.
type StatusResponse struct {
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	GoVersion     string  `json:"goVersion"`
	Goroutines    int     `json:"goroutines"`

	MemoryUsedPercent  float64 `json:"memoryUsedPercent,omitempty"`
	MemoryTotalBytes   uint64  `json:"memoryTotalBytes,omitempty"`
	ProcessMemoryBytes uint64  `json:"processMemoryBytes,omitempty"`
	LoadAverage1       float64 `json:"loadAverage1,omitempty"`
}

// RegisterHealth mounts the health check at the router root.
func (h *SystemHandler) RegisterHealth(r chi.Router) {
	r.Get("/healthz", h.GetHealth)
}

// Register mounts the status route on the API router.
func (h *SystemHandler) Register(r chi.Router) {
	r.Get("/status", h.GetStatus)
}

// GetHealth reports liveness plus database reachability.
func (h *SystemHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Database: "up"}
	status := http.StatusOK

	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Warn("database ping failed", slog.String("error", err.Error()))
			resp.Status = "degraded"
			resp.Database = "down"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}

// GetStatus reports version, uptime, and host resource usage. Host metrics
// are best-effort; collection failures leave their fields zeroed.
func (h *SystemHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Version:       h.version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
	}

	if vm, err := mem.VirtualMemoryWithContext(r.Context()); err == nil {
		resp.MemoryUsedPercent = vm.UsedPercent
		resp.MemoryTotalBytes = vm.Total
	}
	if avg, err := load.AvgWithContext(r.Context()); err == nil {
		resp.LoadAverage1 = avg.Load1
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfoWithContext(r.Context()); err == nil {
			resp.ProcessMemoryBytes = info.RSS
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
