package common

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// HealthResponse represents health check response
type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HealthCheck returns a liveness handler
func HealthCheck(serviceName, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{Status: statusHealthy, Service: serviceName, Version: version})
	}
}

// HealthCheckWithDeps returns a readiness handler. Checks run concurrently and any failure answers 503.
func HealthCheckWithDeps(serviceName, version string, checks map[string]func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		results, healthy := runChecks(checks)

		response := HealthResponse{Status: statusHealthy, Service: serviceName, Version: version, Checks: results}
		if !healthy {
			response.Status = statusUnhealthy
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}
		c.JSON(http.StatusOK, response)
	}
}

func runChecks(checks map[string]func() error) (map[string]string, bool) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		healthy = true
		results = make(map[string]string, len(checks))
	)

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check func() error) {
			defer wg.Done()
			err := check()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[name] = statusUnhealthy + ": " + err.Error()
				healthy = false
				return
			}
			results[name] = statusHealthy
		}(name, check)
	}
	wg.Wait()

	return results, healthy
}
