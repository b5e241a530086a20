package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const relayBodyLimit = 1 << 20

// AgentRelay proxies authenticated requests to the downstream agent
// service, attaching the caller's user id. Chat responses stream back
// as-is so server-sent events survive the hop.
type AgentRelay struct {
	baseURL string
	client  *http.Client
}

func NewAgentRelay(baseURL string, client *http.Client) (*AgentRelay, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("rest: agent service url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &AgentRelay{baseURL: baseURL, client: client}, nil
}

func (r *AgentRelay) endpoint(path string) string {
	return r.baseURL + path
}

type chatPayload struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

func (h *Handler) chat(c *gin.Context) {
	var payload chatPayload
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	body, err := json.Marshal(map[string]any{
		"user_id":    subjectFrom(c),
		"message":    payload.Message,
		"session_id": nullableString(payload.SessionID),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, h.agentRelay.endpoint("/api/chat"), bytes.NewReader(body))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.agentRelay.client.Do(req)
	if err != nil {
		h.logger.Error("chat relay request failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "agent service unavailable"})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, relayBodyLimit))
		h.logger.Error("chat relay rejected",
			"status", resp.StatusCode,
			"detail", string(detail),
		)
		c.String(resp.StatusCode, "Backend Error: %s", string(detail))
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		h.logger.Error("chat relay stream interrupted", "error", err)
	}
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
