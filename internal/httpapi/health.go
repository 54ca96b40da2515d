package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transitline/ticketing-core/pkg/redis"
)

// HealthHandlers serves the liveness/readiness probes named in §6, grounded
// on the reference HealthHandler's component-by-component check shape.
type HealthHandlers struct {
	writeDB *pgxpool.Pool
	readDB  *pgxpool.Pool
	cache   *redis.Client
}

// NewHealthHandlers builds a HealthHandlers. Any dependency may be nil.
func NewHealthHandlers(writeDB, readDB *pgxpool.Pool, cache *redis.Client) *HealthHandlers {
	return &HealthHandlers{writeDB: writeDB, readDB: readDB, cache: cache}
}

// Register mounts GET /health, /health/live and /health/ready under r.
func (h *HealthHandlers) Register(r gin.IRouter) {
	r.GET("/health", h.Live)
	r.GET("/health/live", h.Live)
	r.GET("/health/ready", h.Ready)
}

// Live is a liveness probe: the process is up and can answer HTTP.
func (h *HealthHandlers) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

// Ready is a readiness probe: every configured dependency must answer.
func (h *HealthHandlers) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	components := map[string]string{}
	healthy := true

	checkPool := func(name string, pool *pgxpool.Pool) {
		if pool == nil {
			components[name] = "not configured"
			return
		}
		if err := pool.Ping(ctx); err != nil {
			components[name] = "unhealthy: " + err.Error()
			healthy = false
			return
		}
		components[name] = "healthy"
	}
	checkPool("writeDb", h.writeDB)
	checkPool("readDb", h.readDB)

	if h.cache == nil {
		components["cache"] = "not configured"
	} else if err := h.cache.HealthCheck(ctx); err != nil {
		components["cache"] = "unhealthy: " + err.Error()
		healthy = false
	} else {
		components["cache"] = "healthy"
	}

	status := http.StatusOK
	statusText := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		statusText = "not ready"
	}
	c.JSON(status, gin.H{
		"status":     statusText,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"components": components,
	})
}
