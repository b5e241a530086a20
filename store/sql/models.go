package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type userRecord struct {
	bun.BaseModel `bun:"table:connection_users,alias:cu"`

	ID        string    `bun:"id,pk"`
	Subject   string    `bun:"subject,notnull,unique"`
	Email     string    `bun:"email"`
	Username  string    `bun:"username"`
	FirstName string    `bun:"first_name"`
	LastName  string    `bun:"last_name"`
	PhotoURL  string    `bun:"photo_url"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// credentialRecord holds one row per (user, service). Reconnects update
// the row in place; the unique pair constraint is what keeps the id
// stable under concurrent callbacks.
type credentialRecord struct {
	bun.BaseModel `bun:"table:connection_credentials,alias:cc"`

	ID           string     `bun:"id,pk"`
	UserID       string     `bun:"user_id,notnull,unique:user_service"`
	Service      string     `bun:"service,notnull,unique:user_service"`
	TokenType    string     `bun:"token_type,notnull"`
	AccessToken  string     `bun:"access_token,notnull"`
	RefreshToken string     `bun:"refresh_token"`
	Scopes       []string   `bun:"scopes,type:jsonb,notnull"`
	ExpiresAt    *time.Time `bun:"expires_at,nullzero"`
	ExternalID   string     `bun:"external_id"`
	Username     string     `bun:"username"`
	Email        string     `bun:"email"`
	TeamID       string     `bun:"team_id"`
	TeamName     string     `bun:"team_name"`
	BotUserID    string     `bun:"bot_user_id"`
	Connected    bool       `bun:"connected,notnull"`
	ConnectedAt  time.Time  `bun:"connected_at,nullzero,notnull"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type hubRecord struct {
	bun.BaseModel `bun:"table:connection_hubs,alias:ch"`

	ID     string `bun:"id,pk"`
	UserID string `bun:"user_id,notnull,unique"`

	GoogleDriveCredentialID *string `bun:"google_drive_credential_id"`
	SlackCredentialID       *string `bun:"slack_credential_id"`
	GitHubCredentialID      *string `bun:"github_credential_id"`
	GmailCredentialID       *string `bun:"gmail_credential_id"`
	GoogleChatCredentialID  *string `bun:"google_chat_credential_id"`

	ConnectedServices []string `bun:"connected_services,type:jsonb,notnull"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
