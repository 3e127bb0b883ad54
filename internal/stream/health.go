package stream

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

var startedAt = time.Now()

// HealthReport is the /api/health payload: liveness plus enough process
// and stream numbers to see whether the broadcaster is keeping up.
type HealthReport struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	Sessions      int     `json:"sessions"`
	Subscribers   int     `json:"subscribers"`
	CPUPercent    float64 `json:"cpu_percent,omitempty"`
	RSSBytes      uint64  `json:"rss_bytes,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.handleCORSPreflight(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	report := HealthReport{
		Status:        "ok",
		UptimeSeconds: time.Since(startedAt).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		Sessions:      s.supervisor.Count(),
		Subscribers:   s.notifier.SubscriberCount(),
	}

	// Process stats are best effort; the report stays useful without them.
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			report.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			report.RSSBytes = mem.RSS
		}
	}

	writeJSON(w, http.StatusOK, report)
}
