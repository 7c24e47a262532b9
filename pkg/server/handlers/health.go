package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/kgpath/pkg/driver"
)

// Build information - can be set at build time using ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

const serviceName = "kgpath"

// ReadinessProbeID is the id looked up to check the graph backend.
const ReadinessProbeID = "P31"

// HealthHandler handles health check requests
type HealthHandler struct {
	graph   driver.GraphDriver
	scorer  Scorer
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(graph driver.GraphDriver, scorer Scorer) *HealthHandler {
	return &HealthHandler{graph: graph, scorer: scorer, started: time.Now()}
}

// HealthCheck handles GET /health - basic liveness check
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

// LivenessCheck handles GET /live - Kubernetes liveness probe endpoint
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadinessCheck handles GET /ready. The service is ready when the graph
// backend answers a label lookup within five seconds.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true

	graphCheck := h.checkGraph(ctx)
	checks["graph"] = graphCheck
	if graphCheck["status"] != "healthy" {
		ready = false
	}
	if h.scorer != nil {
		checks["scorer"] = h.scorerStatus()
	}
	checks["system"] = gin.H{
		"status": "healthy",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}

	response := gin.H{
		"status":    "ready",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}
	if !ready {
		response["status"] = "not_ready"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// DetailedHealthCheck handles GET /health/detailed - comprehensive health information
func (h *HealthHandler) DetailedHealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	start := time.Now()
	checks := gin.H{}
	healthy := true

	graphCheck := h.checkGraph(ctx)
	checks["graph"] = graphCheck
	if graphCheck["status"] != "healthy" {
		healthy = false
	}
	if h.scorer != nil {
		checks["scorer"] = h.scorerStatus()
	}

	sys := getSystemMetrics()
	checks["system"] = gin.H{
		"status":       "healthy",
		"uptime":       time.Since(h.started).Round(time.Second).String(),
		"memory_usage": sys.MemoryUsage,
		"goroutines":   sys.Goroutines,
		"gc_cycles":    sys.GCCycles,
		"heap_objects": sys.HeapObjects,
		"stack_usage":  sys.StackUsage,
	}

	response := gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": Version,
		"build_info": gin.H{
			"git_commit": GitCommit,
			"build_time": BuildTime,
		},
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"environment": gin.H{"go_version": GoVersion},
		"checks":      checks,
		"metrics":     gin.H{"response_time_ms": time.Since(start).Milliseconds()},
	}
	if !healthy {
		response["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *HealthHandler) checkGraph(ctx context.Context) gin.H {
	if h.graph == nil {
		return gin.H{"status": "unhealthy", "error": "graph driver not initialized"}
	}
	start := time.Now()
	_, err := h.graph.Label(ctx, ReadinessProbeID)
	check := gin.H{
		"status":      "healthy",
		"provider":    string(h.graph.Provider()),
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		check["status"] = "unhealthy"
		check["error"] = err.Error()
	}
	return check
}

func (h *HealthHandler) scorerStatus() gin.H {
	status := gin.H{"status": "healthy"}
	if s, ok := h.scorer.(scorerStats); ok {
		status["cache_entries"] = s.CacheLen()
		status["scores_computed"] = s.ComputeCount()
	}
	return status
}

// SystemMetrics holds system runtime metrics
type SystemMetrics struct {
	MemoryUsage string `json:"memory_usage"`
	Goroutines  int    `json:"goroutines"`
	GCCycles    uint32 `json:"gc_cycles"`
	HeapObjects uint64 `json:"heap_objects"`
	StackUsage  string `json:"stack_usage"`
}

func getSystemMetrics() SystemMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return SystemMetrics{
		MemoryUsage: fmt.Sprintf("%.2f MB", float64(m.Alloc)/(1024*1024)),
		Goroutines:  runtime.NumGoroutine(),
		GCCycles:    m.NumGC,
		HeapObjects: m.HeapObjects,
		StackUsage:  fmt.Sprintf("%.2f MB", float64(m.StackSys)/(1024*1024)),
	}
}
