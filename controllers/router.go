package controllers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/parolam/breach-checker/models"
	"github.com/parolam/breach-checker/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const requestIDHeader = "X-Request-ID"

// Checker is the lookup surface the handlers need; *services.QueryService
// implements it.
type Checker interface {
	CheckEmail(ctx context.Context, email string) (services.EmailResult, error)
	CheckPasswordPrefix(ctx context.Context, prefix string) ([]models.SuffixCount, error)
	Stats(ctx context.Context) (models.Stats, error)
	Ping(ctx context.Context) error
}

func NewRouter(q Checker) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), RequestID(), CountRequests())

	router.GET("/api/stats", GetStats(q))
	router.POST("/check-email", CheckEmail(q))
	router.GET("/check-password/:prefix", CheckPassword(q))
	router.GET("/healthz", Health(q))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// RequestID tags every request with an id, keeping one supplied by a proxy.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func CountRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		services.CounterRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
