package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dpays/jefferson/internal/httpapi/models"
)

// Health returns a minimal liveness status. No auth, no dependency
// checks: a process that can answer this handler at all is alive.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok", Version: h.version, Commit: h.commit})
}

// WellKnownHealthcheck serves a richer liveness document at the
// conventional /.well-known/healthcheck.json path: status, build
// identity, uptime, and the registry's size, so a load balancer or
// operator can distinguish "up" from "up but registry failed to load"
// without hitting the authenticated stats endpoint.
func (h *Handler) WellKnownHealthcheck(c *gin.Context) {
	uptime := time.Since(h.startTime)

	var lastIrreversible uint32
	if h.tracker != nil {
		lastIrreversible = h.tracker.Last()
	}

	registeredUpstreams := 0
	if h.registry != nil {
		registeredUpstreams = h.registry.Len()
	}

	var cacheTiers []string
	if h.cache != nil {
		cacheTiers = h.cache.BackendNames()
	}

	var pools []gin.H
	if h.dispatcher != nil {
		for _, ps := range h.dispatcher.UpstreamPoolStats() {
			pools = append(pools, gin.H{
				"url":      ps.URL,
				"total":    ps.Total,
				"idle":     ps.Idle,
				"in_use":   ps.InUse,
				"max_size": ps.MaxSize,
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":                      "ok",
		"version":                     h.version,
		"commit":                      h.commit,
		"uptime_seconds":              int64(uptime.Seconds()),
		"registered_upstreams":        registeredUpstreams,
		"last_irreversible_block_num": lastIrreversible,
		"cache_tiers":                 cacheTiers,
		"upstream_pools":              pools,
	})
}

// Stats returns runtime statistics: system CPU/memory usage sampled the
// same way as the teacher's health handler, plus the proxy's own
// request/cache/error counters and the last observed irreversible
// block number.
func (h *Handler) Stats(c *gin.Context) {
	uptime := time.Since(h.startTime)

	memStats := models.MemoryStats{}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		memStats.TotalMB = float64(vmStat.Total) / 1024 / 1024
		memStats.FreeMB = float64(vmStat.Available) / 1024 / 1024
		memStats.UsedMB = float64(vmStat.Used) / 1024 / 1024
		memStats.UsedPercent = vmStat.UsedPercent
	}

	cpuStats := models.CPUStats{NumCPU: runtime.NumCPU()}
	if cpuPercent, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		cpuStats.UsedPercent = cpuPercent[0]
		cpuStats.IdlePercent = 100.0 - cpuPercent[0]
	}

	var proxyStats models.ProxyStatsResponse
	if h.stats != nil {
		snap := h.stats.Snapshot()
		proxyStats = models.ProxyStatsResponse{
			RequestsTotal:  snap.RequestsTotal,
			BatchesTotal:   snap.BatchesTotal,
			CacheHits:      snap.CacheHits,
			UpstreamErrors: snap.UpstreamErrors,
			AvgLatencyMs:   snap.AvgLatencyMs,
		}
	}

	var lastIrreversible uint32
	if h.tracker != nil {
		lastIrreversible = h.tracker.Last()
	}

	registeredUpstreams := 0
	if h.registry != nil {
		registeredUpstreams = h.registry.Len()
	}

	c.JSON(http.StatusOK, models.ServerStatsResponse{
		Uptime:              uptime.Round(time.Second).String(),
		UptimeSeconds:       int64(uptime.Seconds()),
		StartTime:           h.startTime,
		CPU:                 cpuStats,
		Memory:              memStats,
		Proxy:               proxyStats,
		LastIrreversible:    lastIrreversible,
		RegisteredUpstreams: registeredUpstreams,
	})
}
