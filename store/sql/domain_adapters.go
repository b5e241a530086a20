package sqlstore

import (
	"time"

	"github.com/goliatone/go-connections/core"
)

func newUserRecord(in core.CreateUserInput, now time.Time) *userRecord {
	return &userRecord{
		Subject:   in.Subject,
		Email:     in.Email,
		Username:  in.Username,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		PhotoURL:  in.PhotoURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *userRecord) toDomain() core.User {
	if r == nil {
		return core.User{}
	}
	return core.User{
		ID:        r.ID,
		Subject:   r.Subject,
		Email:     r.Email,
		Username:  r.Username,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		PhotoURL:  r.PhotoURL,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func newCredentialRecord(in core.UpsertCredentialInput, now time.Time) *credentialRecord {
	record := &credentialRecord{
		UserID:       in.UserID,
		Service:      string(in.Service),
		TokenType:    in.TokenType,
		AccessToken:  in.AccessToken,
		RefreshToken: in.RefreshToken,
		Scopes:       append([]string(nil), in.Scopes...),
		ExternalID:   in.ExternalID,
		Username:     in.Username,
		Email:        in.Email,
		TeamID:       in.TeamID,
		TeamName:     in.TeamName,
		BotUserID:    in.BotUserID,
		Connected:    true,
		ConnectedAt:  now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if record.Scopes == nil {
		record.Scopes = []string{}
	}
	if in.ExpiresAt != nil {
		expiresAt := *in.ExpiresAt
		record.ExpiresAt = &expiresAt
	}
	return record
}

func (r *credentialRecord) toDomain() core.CredentialRecord {
	if r == nil {
		return core.CredentialRecord{}
	}
	record := core.CredentialRecord{
		ID:           r.ID,
		UserID:       r.UserID,
		Service:      core.ServiceKey(r.Service),
		TokenType:    r.TokenType,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		Scopes:       append([]string(nil), r.Scopes...),
		ExternalID:   r.ExternalID,
		Username:     r.Username,
		Email:        r.Email,
		TeamID:       r.TeamID,
		TeamName:     r.TeamName,
		BotUserID:    r.BotUserID,
		Connected:    r.Connected,
		ConnectedAt:  r.ConnectedAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.ExpiresAt != nil {
		expiresAt := *r.ExpiresAt
		record.ExpiresAt = &expiresAt
	}
	return record
}

func (r *hubRecord) toDomain() core.ConnectionHub {
	if r == nil {
		return core.ConnectionHub{}
	}
	hub := core.ConnectionHub{
		ID:                      r.ID,
		UserID:                  r.UserID,
		GoogleDriveCredentialID: clonePtr(r.GoogleDriveCredentialID),
		SlackCredentialID:       clonePtr(r.SlackCredentialID),
		GitHubCredentialID:      clonePtr(r.GitHubCredentialID),
		GmailCredentialID:       clonePtr(r.GmailCredentialID),
		GoogleChatCredentialID:  clonePtr(r.GoogleChatCredentialID),
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}
	hub.ConnectedServices = make([]core.ServiceKey, 0, len(r.ConnectedServices))
	for _, service := range r.ConnectedServices {
		hub.ConnectedServices = append(hub.ConnectedServices, core.ServiceKey(service))
	}
	return hub
}

func (r *hubRecord) applyDomain(hub core.ConnectionHub) {
	if r == nil {
		return
	}
	r.GoogleDriveCredentialID = clonePtr(hub.GoogleDriveCredentialID)
	r.SlackCredentialID = clonePtr(hub.SlackCredentialID)
	r.GitHubCredentialID = clonePtr(hub.GitHubCredentialID)
	r.GmailCredentialID = clonePtr(hub.GmailCredentialID)
	r.GoogleChatCredentialID = clonePtr(hub.GoogleChatCredentialID)
	connected := make([]string, 0, len(hub.ConnectedServices))
	for _, service := range hub.ConnectedServices {
		connected = append(connected, string(service))
	}
	r.ConnectedServices = connected
	r.UpdatedAt = hub.UpdatedAt
}

func clonePtr(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
