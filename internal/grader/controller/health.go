package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is anything with a liveness probe (cache, db, queue).
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthController reports service liveness and dependency health.
type HealthController struct {
	deps map[string]Pinger
}

// NewHealthController creates a health controller over named dependencies.
func NewHealthController(deps map[string]Pinger) *HealthController {
	return &HealthController{deps: deps}
}

// RegisterRoutes mounts the health endpoint.
func (hc *HealthController) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", hc.Check)
}

// Check probes every dependency with a short timeout.
func (hc *HealthController) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(hc.deps))
	for name, dep := range hc.deps {
		if err := dep.Ping(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			deps[name] = "ok"
		}
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "dependencies": deps})
}
