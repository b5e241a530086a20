package rest

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

const minSessionIDLength = 10

func (h *Handler) history(c *gin.Context) {
	query := url.Values{}
	query.Set("user_id", subjectFrom(c))
	h.relayGET(c, h.agentRelay.endpoint("/api/history")+"?"+query.Encode())
}

func (h *Handler) historySession(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("id"))
	// The UI sends the literal string "undefined" when its session state
	// is missing.
	if sessionID == "" || sessionID == "undefined" || len(sessionID) < minSessionIDLength {
		c.String(http.StatusBadRequest, "Invalid session ID")
		return
	}
	h.relayGET(c, h.agentRelay.endpoint("/api/history/"+url.PathEscape(sessionID)))
}

func (h *Handler) relayGET(c *gin.Context, target string) {
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, target, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	resp, err := h.agentRelay.client.Do(req)
	if err != nil {
		h.logger.Error("history relay request failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "agent service unavailable"})
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, relayBodyLimit))
	if err != nil {
		h.logger.Error("history relay read failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "agent service unavailable"})
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		h.logger.Error("history relay rejected",
			"status", resp.StatusCode,
			"detail", string(body),
		)
		c.String(resp.StatusCode, "Backend Error: %s", string(body))
		return
	}

	c.Data(http.StatusOK, "application/json", body)
}
