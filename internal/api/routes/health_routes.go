package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskstream/backend/internal/domain/task"
)

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Tasks      int64     `json:"tasks"`
	Activities int64     `json:"activities"`
}

// SetupHealthRoutes registers the health check endpoint
func SetupHealthRoutes(router *gin.Engine, tasks task.Service) {
	router.GET("/health", func(c *gin.Context) {
		taskCount, activityCount, err := tasks.Counts(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, HealthResponse{
				Status:    "unhealthy",
				Timestamp: time.Now().UTC(),
			})
			return
		}

		c.JSON(http.StatusOK, HealthResponse{
			Status:     "healthy",
			Timestamp:  time.Now().UTC(),
			Tasks:      taskCount,
			Activities: activityCount,
		})
	})
}
