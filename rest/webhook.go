package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-connections/core"
	svix "github.com/svix/svix-webhooks/go"
)

const webhookBodyLimit = 1 << 20

// WebhookVerifier checks the raw payload against the transport signature
// headers before any event handling runs.
type WebhookVerifier interface {
	Verify(payload []byte, headers http.Header) error
}

// NewSvixVerifier builds the production verifier from the endpoint's
// signing secret.
func NewSvixVerifier(secret string) (WebhookVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("rest: webhook signing secret is required")
	}
	webhook, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("rest: invalid webhook signing secret: %w", err)
	}
	return webhook, nil
}

// identityEvent is the clerk-style envelope the identity provider posts:
// a type discriminator plus the user payload.
type identityEvent struct {
	Type string            `json:"type"`
	Data identityEventData `json:"data"`
}

type identityEventData struct {
	ID             string                 `json:"id"`
	Username       string                 `json:"username"`
	FirstName      string                 `json:"first_name"`
	LastName       string                 `json:"last_name"`
	ImageURL       string                 `json:"image_url"`
	EmailAddresses []identityEmailAddress `json:"email_addresses"`
}

type identityEmailAddress struct {
	EmailAddress string `json:"email_address"`
}

func (d identityEventData) primaryEmail() string {
	if len(d.EmailAddresses) == 0 {
		return ""
	}
	return d.EmailAddresses[0].EmailAddress
}

func (h *Handler) identityWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookBodyLimit))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}
	if err := h.webhookVerifier.Verify(payload, c.Request.Header); err != nil {
		h.logger.Error("identity webhook signature rejected", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	var event identityEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(event.Data.ID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user id"})
		return
	}

	ctx := c.Request.Context()
	switch event.Type {
	case "user.created", "user.updated":
		user, err := h.broker.SyncUserProfile(ctx, core.UserProfileInput{
			Subject:   event.Data.ID,
			Email:     event.Data.primaryEmail(),
			Username:  event.Data.Username,
			FirstName: event.Data.FirstName,
			LastName:  event.Data.LastName,
			PhotoURL:  event.Data.ImageURL,
		})
		if err != nil {
			h.writeError(c, err)
			return
		}
		status := http.StatusOK
		if event.Type == "user.created" {
			status = http.StatusCreated
		}
		c.JSON(status, gin.H{"message": "User synced", "subject": user.Subject})
	case "user.deleted":
		if err := h.broker.RemoveUser(ctx, event.Data.ID); err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
	default:
		// Unknown event types are acknowledged so the sender stops
		// retrying them.
		c.Status(http.StatusOK)
	}
}
