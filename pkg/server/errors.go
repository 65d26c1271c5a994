package server

import (
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/flaboy/aira-checkout/pkg/errors"
	"github.com/gin-gonic/gin"
)

// renderError maps user errors to 4xx with their code and hides everything
// else behind a 500.
func renderError(c *gin.Context, err error) {
	if stderrors.Is(err, errors.ErrJobRunning) {
		c.JSON(http.StatusConflict, errors.ErrJobRunning)
		return
	}
	if ue, ok := errors.AsUserError(err); ok {
		status := http.StatusBadRequest
		if ue.NotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, &errors.UserError{Code: ue.Code, Message: err.Error()})
		return
	}
	slog.Error("[Server] Request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "Internal server error"})
}

func bindJSON(c *gin.Context, target interface{}) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		renderError(c, errors.Wrap(errors.ErrInvalidRequest, err.Error()))
		return false
	}
	return true
}
