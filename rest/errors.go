package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-connections/core"
	goerrors "github.com/goliatone/go-errors"
)

// writeError maps broker errors onto the JSON envelope the UI expects.
// Status comes from the error category; the message stays the rich error
// message, which the broker keeps free of secrets and transport detail.
func (h *Handler) writeError(c *gin.Context, err error) {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		h.logger.Error("unmapped handler error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	status := core.BrokerHTTPStatus(rich)
	if status >= http.StatusInternalServerError {
		h.logger.Error("handler error",
			"text_code", rich.TextCode,
			"error", err,
		)
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{
		"error": rich.Message,
		"code":  rich.TextCode,
	})
}
