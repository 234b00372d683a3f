package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/parolam/breach-checker/utils"
	"github.com/pterm/pterm"
)

func GetStats(q Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := q.Stats(c.Request.Context())
		if err != nil {
			pterm.Error.Printf("stats failed: %v\n", err)
			c.JSON(http.StatusInternalServerError, utils.GenerateErrorResponse(500, "error computing stats"))
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func Health(q Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := q.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, utils.GenerateErrorResponse(503, err.Error()))
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
