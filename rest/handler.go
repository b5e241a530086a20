package rest

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-connections/core"
	glog "github.com/goliatone/go-logger/glog"
)

// SubjectHeader carries the authenticated caller identity. The value is
// trusted: the API gateway in front of this service validates the session
// and injects the header.
const SubjectHeader = "X-Auth-Subject"

type Handler struct {
	broker core.ConnectionBroker
	logger core.Logger

	webhookVerifier WebhookVerifier
	agentRelay      *AgentRelay
}

type HandlerOption func(*Handler)

func WithLogger(logger core.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithWebhookVerifier enables POST /webhooks/identity.
func WithWebhookVerifier(verifier WebhookVerifier) HandlerOption {
	return func(h *Handler) {
		h.webhookVerifier = verifier
	}
}

// WithAgentRelay enables POST /chat and the GET /history pass-throughs.
func WithAgentRelay(relay *AgentRelay) HandlerOption {
	return func(h *Handler) {
		h.agentRelay = relay
	}
}

func NewHandler(broker core.ConnectionBroker, opts ...HandlerOption) (*Handler, error) {
	if broker == nil {
		return nil, fmt.Errorf("rest: connection broker is required")
	}
	handler := &Handler{broker: broker}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(handler)
	}
	handler.logger = glog.Ensure(handler.logger)
	return handler, nil
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.health)

	authed := r.Group("/", h.requireSubject)
	authed.GET("/auth/:provider", h.initiate)
	authed.GET("/connections", h.listConnections)
	authed.POST("/connections/disconnect", h.disconnect)

	// The provider redirects the browser here; the subject rides in the
	// state parameter, not the header.
	r.GET("/auth/:provider/callback", h.callback)

	if h.webhookVerifier != nil {
		r.POST("/webhooks/identity", h.identityWebhook)
	}
	if h.agentRelay != nil {
		authed.POST("/chat", h.chat)
		authed.GET("/history", h.history)
		authed.GET("/history/:id", h.historySession)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) initiate(c *gin.Context) {
	service, ok := h.serviceParam(c)
	if !ok {
		return
	}
	out, err := h.broker.Initiate(c.Request.Context(), core.InitiateRequest{
		Subject: subjectFrom(c),
		Service: service,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authUrl": out.AuthURL})
}

func (h *Handler) callback(c *gin.Context) {
	service, ok := h.serviceParam(c)
	if !ok {
		return
	}
	out, err := h.broker.HandleCallback(c.Request.Context(), core.CallbackRequest{
		Service: service,
		Code:    c.Query("code"),
		State:   c.Query("state"),
	})
	if err != nil {
		h.logger.Error("oauth callback failed",
			"service", string(service),
			"error", err,
		)
	}
	// The broker always resolves a UI redirect, error paths included.
	c.Redirect(http.StatusFound, out.RedirectURL)
}

func (h *Handler) listConnections(c *gin.Context) {
	summary, err := h.broker.ListConnections(c.Request.Context(), subjectFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": summaryPayload(summary)})
}

type disconnectPayload struct {
	Service string `json:"service"`
}

func (h *Handler) disconnect(c *gin.Context) {
	var payload disconnectPayload
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.Service) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Service name required"})
		return
	}
	service, err := core.ParseServiceKey(payload.Service)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid service"})
		return
	}
	out, err := h.broker.Disconnect(c.Request.Context(), core.DisconnectRequest{
		Subject: subjectFrom(c),
		Service: service,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": out.Message,
	})
}

func (h *Handler) serviceParam(c *gin.Context) (core.ServiceKey, bool) {
	service, err := core.ParseServiceKey(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown service"})
		return "", false
	}
	return service, true
}

// summaryPayload mirrors the summary the UI consumes: connected flag,
// connection time, and the one identity display field for the service.
func summaryPayload(summary core.ConnectionsSummary) gin.H {
	out := gin.H{}
	for _, service := range core.KnownServices() {
		status := summary.Status(service)
		entry := gin.H{"connected": status.Connected}
		if status.ConnectedAt != nil {
			entry["connectedAt"] = status.ConnectedAt
		}
		if status.Username != "" {
			entry["username"] = status.Username
		}
		if status.Email != "" {
			entry["email"] = status.Email
		}
		if status.TeamName != "" {
			entry["teamName"] = status.TeamName
		}
		out[string(service)] = entry
	}
	return out
}
