package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/parolam/breach-checker/services"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
)

const textPlain = "text/plain; charset=utf-8"

// CheckPassword serves the anonymity set for a 6-char hash prefix as
// SUFFIX:COUNT lines.
func CheckPassword(q Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := q.CheckPasswordPrefix(c.Request.Context(), c.Param("prefix"))
		if errors.Is(err, services.ErrInvalidPrefix) {
			c.Data(http.StatusBadRequest, textPlain, []byte("invalid prefix."))
			return
		}
		if err != nil {
			pterm.Error.Printf("password range lookup failed: %v\n", err)
			c.Data(http.StatusInternalServerError, textPlain, []byte("database error."))
			return
		}

		c.Data(http.StatusOK, textPlain, []byte(services.FormatRange(rows)))
	}
}
