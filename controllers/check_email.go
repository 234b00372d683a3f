package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/parolam/breach-checker/utils"
	"github.com/pterm/pterm"
)

func CheckEmail(q Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email string `json:"email"`
		}

		if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
			c.JSON(http.StatusBadRequest, utils.GenerateErrorResponse(400, "email address is required"))
			return
		}

		res, err := q.CheckEmail(c.Request.Context(), req.Email)
		if err != nil {
			pterm.Error.Printf("email check failed: %v\n", err)
			c.JSON(http.StatusInternalServerError, utils.GenerateErrorResponse(500, "database error"))
			return
		}

		if !res.Pwned {
			c.JSON(http.StatusOK, utils.GenerateSafeResponse())
			return
		}
		c.JSON(http.StatusOK, utils.GeneratePwnedResponse(res.Breaches))
	}
}
