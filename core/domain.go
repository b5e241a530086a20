package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownService  = errors.New("core: unknown service")
	ErrServiceRequired = errors.New("core: service is required")
)

// ServiceKey identifies one of the connectable third-party services. The
// values are wire-level identifiers: they appear in route parameters,
// disconnect payloads, and the connections summary.
type ServiceKey string

const (
	ServiceGoogleDrive ServiceKey = "googleDrive"
	ServiceSlack       ServiceKey = "slack"
	ServiceGitHub      ServiceKey = "github"
	ServiceGmail       ServiceKey = "gmail"
	ServiceGoogleChat  ServiceKey = "googleChat"
)

func KnownServices() []ServiceKey {
	return []ServiceKey{
		ServiceGoogleDrive,
		ServiceSlack,
		ServiceGitHub,
		ServiceGmail,
		ServiceGoogleChat,
	}
}

func ParseServiceKey(value string) (ServiceKey, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", ErrServiceRequired
	}
	for _, key := range KnownServices() {
		if strings.EqualFold(trimmed, string(key)) {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownService, value)
}

func (k ServiceKey) String() string {
	return string(k)
}

// Label returns a human-facing service name used in messages.
func (k ServiceKey) Label() string {
	switch k {
	case ServiceGoogleDrive:
		return "Google Drive"
	case ServiceSlack:
		return "Slack"
	case ServiceGitHub:
		return "GitHub"
	case ServiceGmail:
		return "Gmail"
	case ServiceGoogleChat:
		return "Google Chat"
	default:
		return string(k)
	}
}

// User is the local account a connection belongs to. Subject is the opaque
// identifier issued by the external identity provider and is the only value
// request handlers ever see.
type User struct {
	ID        string
	Subject   string
	Email     string
	Username  string
	FirstName string
	LastName  string
	PhotoURL  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CredentialRecord holds the outcome of one completed OAuth flow. At most
// one record exists per (user, service); reconnecting overwrites the record
// in place and keeps its id stable.
type CredentialRecord struct {
	ID        string
	UserID    string
	Service   ServiceKey
	TokenType string

	// Secrets. Excluded from default store reads and from PublicView.
	AccessToken  string
	RefreshToken string

	Scopes    []string
	ExpiresAt *time.Time

	// Provider identity fields. Which ones are populated depends on the
	// service: GitHub sets ExternalID/Username/Email, Slack sets the team
	// fields, the Google family sets Email.
	ExternalID string
	Username   string
	Email      string
	TeamID     string
	TeamName   string
	BotUserID  string

	Connected   bool
	ConnectedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PublicView returns a copy with both token secrets cleared. Everything
// that leaves the broker via list or callback results goes through it.
func (r CredentialRecord) PublicView() CredentialRecord {
	view := r
	view.AccessToken = ""
	view.RefreshToken = ""
	view.Scopes = append([]string(nil), r.Scopes...)
	if r.ExpiresAt != nil {
		expires := *r.ExpiresAt
		view.ExpiresAt = &expires
	}
	return view
}

// IdentityLabel returns the per-service display field and its value:
// username for GitHub, team name for Slack, email for the Google family.
func (r CredentialRecord) IdentityLabel() (string, string) {
	switch r.Service {
	case ServiceGitHub:
		return "username", strings.TrimSpace(r.Username)
	case ServiceSlack:
		return "teamName", strings.TrimSpace(r.TeamName)
	default:
		return "email", strings.TrimSpace(r.Email)
	}
}

func (r CredentialRecord) Expired(now time.Time) bool {
	if r.ExpiresAt == nil {
		return false
	}
	return !now.Before(*r.ExpiresAt)
}

// ConnectionHub aggregates a user's connections: one nullable credential
// reference per service plus the connected-services list. The list always
// mirrors the set of non-nil references.
type ConnectionHub struct {
	ID     string
	UserID string

	GoogleDriveCredentialID *string
	SlackCredentialID       *string
	GitHubCredentialID      *string
	GmailCredentialID       *string
	GoogleChatCredentialID  *string

	ConnectedServices []ServiceKey

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (h *ConnectionHub) CredentialRef(service ServiceKey) *string {
	if h == nil {
		return nil
	}
	switch service {
	case ServiceGoogleDrive:
		return h.GoogleDriveCredentialID
	case ServiceSlack:
		return h.SlackCredentialID
	case ServiceGitHub:
		return h.GitHubCredentialID
	case ServiceGmail:
		return h.GmailCredentialID
	case ServiceGoogleChat:
		return h.GoogleChatCredentialID
	default:
		return nil
	}
}

// SetCredentialRef points the service slot at a credential record and adds
// the service to ConnectedServices if absent. Both mutations happen
// together so the list never drifts from the slots.
func (h *ConnectionHub) SetCredentialRef(service ServiceKey, credentialID string, now time.Time) error {
	if h == nil {
		return fmt.Errorf("core: connection hub is nil")
	}
	credentialID = strings.TrimSpace(credentialID)
	if credentialID == "" {
		return fmt.Errorf("core: credential id is required")
	}
	ref := &credentialID
	switch service {
	case ServiceGoogleDrive:
		h.GoogleDriveCredentialID = ref
	case ServiceSlack:
		h.SlackCredentialID = ref
	case ServiceGitHub:
		h.GitHubCredentialID = ref
	case ServiceGmail:
		h.GmailCredentialID = ref
	case ServiceGoogleChat:
		h.GoogleChatCredentialID = ref
	default:
		return fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	if !h.IsConnected(service) {
		h.ConnectedServices = append(h.ConnectedServices, service)
	}
	h.UpdatedAt = now
	return nil
}

// ClearCredentialRef nils the service slot and removes the service from
// ConnectedServices in the same mutation.
func (h *ConnectionHub) ClearCredentialRef(service ServiceKey, now time.Time) error {
	if h == nil {
		return fmt.Errorf("core: connection hub is nil")
	}
	switch service {
	case ServiceGoogleDrive:
		h.GoogleDriveCredentialID = nil
	case ServiceSlack:
		h.SlackCredentialID = nil
	case ServiceGitHub:
		h.GitHubCredentialID = nil
	case ServiceGmail:
		h.GmailCredentialID = nil
	case ServiceGoogleChat:
		h.GoogleChatCredentialID = nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	filtered := make([]ServiceKey, 0, len(h.ConnectedServices))
	for _, connected := range h.ConnectedServices {
		if connected != service {
			filtered = append(filtered, connected)
		}
	}
	h.ConnectedServices = filtered
	h.UpdatedAt = now
	return nil
}

func (h *ConnectionHub) IsConnected(service ServiceKey) bool {
	if h == nil {
		return false
	}
	for _, connected := range h.ConnectedServices {
		if connected == service {
			return true
		}
	}
	return false
}
