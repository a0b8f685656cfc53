package models

import "time"

// CPUStats contains system CPU statistics.
type CPUStats struct {
	NumCPU      int     `json:"num_cpu"`
	UsedPercent float64 `json:"used_percent"`
	IdlePercent float64 `json:"idle_percent"`
}

// MemoryStats contains system memory statistics.
type MemoryStats struct {
	TotalMB     float64 `json:"total_mb"`
	FreeMB      float64 `json:"free_mb"`
	UsedMB      float64 `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// ProxyStatsResponse contains the JSON-RPC proxy's running request
// statistics.
type ProxyStatsResponse struct {
	RequestsTotal  uint64  `json:"requests_total"`
	BatchesTotal   uint64  `json:"batches_total"`
	CacheHits      uint64  `json:"cache_hits"`
	UpstreamErrors uint64  `json:"upstream_errors"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
}

// ServerStatsResponse contains server runtime statistics.
type ServerStatsResponse struct {
	Uptime              string             `json:"uptime"`
	UptimeSeconds       int64              `json:"uptime_seconds"`
	StartTime           time.Time          `json:"start_time"`
	CPU                 CPUStats           `json:"cpu"`
	Memory              MemoryStats        `json:"memory"`
	Proxy               ProxyStatsResponse `json:"proxy"`
	LastIrreversible    uint32             `json:"last_irreversible_block_num"`
	RegisteredUpstreams int                `json:"registered_upstreams"`
}
