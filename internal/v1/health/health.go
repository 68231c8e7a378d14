// Package health exposes liveness and readiness probes plus the public
// health summary endpoint.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/peercall/broker/internal/v1/logging"
)

// Pinger reports whether the durable store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RoomCounter reports the number of live rooms for the public summary.
type RoomCounter interface {
	ActiveRoomCount() int
}

// Handler serves the health endpoints.
type Handler struct {
	db    Pinger
	redis *redis.Client // nil when Redis is disabled
	rooms RoomCounter
}

func NewHandler(db Pinger, redisClient *redis.Client, rooms RoomCounter) *Handler {
	return &Handler{db: db, redis: redisClient, rooms: rooms}
}

// Summary handles GET /health, the public status endpoint clients poll.
func (h *Handler) Summary(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"activeRooms": h.rooms.ActiveRoomCount(),
	})
}

// Liveness handles GET /health/live. It checks nothing beyond the process
// being able to answer.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /health/ready. Returns 503 when any critical
// dependency is unreachable so the orchestrator stops routing traffic here.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	ready := true

	if err := h.db.Ping(ctx); err != nil {
		logging.Error(ctx, "readiness: database unreachable", zap.Error(err))
		checks["database"] = "unhealthy"
		ready = false
	} else {
		checks["database"] = "healthy"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			logging.Error(ctx, "readiness: redis unreachable", zap.Error(err))
			checks["redis"] = "unhealthy"
			ready = false
		} else {
			checks["redis"] = "healthy"
		}
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not ready"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
