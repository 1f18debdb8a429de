package relay

import "time"

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is returned by the health endpoint.
type StatusResponse struct {
	Status string `json:"status"`
}

// StatsResponse is returned by the stats endpoint.
type StatsResponse struct {
	Uptime        string                `json:"uptime"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	StartTime     time.Time             `json:"start_time"`
	StoredPackets int64                 `json:"stored_packets"`
	GoRoutines    int                   `json:"goroutines"`
	MemoryAllocMB float64               `json:"memory_alloc_mb"`
	NumCPU        int                   `json:"num_cpu"`
	SystemMemory  *SystemMemoryResponse `json:"system_memory,omitempty"`
}

// SystemMemoryResponse reports host-level memory figures.
type SystemMemoryResponse struct {
	TotalMB     float64 `json:"total_mb"`
	AvailableMB float64 `json:"available_mb"`
	UsedPercent float64 `json:"used_percent"`
}
