package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-connections/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type CredentialStore struct {
	db   *bun.DB
	repo repository.Repository[*credentialRecord]
}

// Upsert writes the credential for one (user, service) pair. Reconnecting
// updates the existing row in place so the hub reference stays valid.
func (s *CredentialStore) Upsert(ctx context.Context, in core.UpsertCredentialInput) (core.CredentialRecord, error) {
	if s == nil || s.repo == nil || s.db == nil {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: user id is required")
	}
	service, err := core.ParseServiceKey(string(in.Service))
	if err != nil {
		return core.CredentialRecord{}, err
	}
	in.Service = service
	if strings.TrimSpace(in.AccessToken) == "" {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: access token is required")
	}
	now := time.Now().UTC()

	var saved core.CredentialRecord
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := new(credentialRecord)
		findErr := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.user_id = ?", in.UserID).
			Where("?TableAlias.service = ?", string(in.Service)).
			Limit(1).
			Scan(ctx)
		if findErr == nil {
			replacement := newCredentialRecord(in, now)
			replacement.ID = existing.ID
			replacement.CreatedAt = existing.CreatedAt
			_, updateErr := tx.NewUpdate().
				Model(replacement).
				WherePK().
				Exec(ctx)
			if updateErr != nil {
				return updateErr
			}
			saved = replacement.toDomain()
			return nil
		}
		if !isNoRows(findErr) {
			return findErr
		}

		record := newCredentialRecord(in, now)
		inserted, createErr := s.repo.CreateTx(ctx, tx, record)
		if createErr != nil {
			return createErr
		}
		saved = inserted.toDomain()
		return nil
	})
	if err != nil {
		return core.CredentialRecord{}, err
	}
	return saved, nil
}

// excludeSecretColumns keeps token material out of default reads at the
// query level instead of scanning secrets and blanking them afterwards.
func excludeSecretColumns() repository.SelectCriteria {
	return repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.ExcludeColumn("access_token", "refresh_token")
	})
}

func (s *CredentialStore) FindByUser(ctx context.Context, userID string, service core.ServiceKey) (core.CredentialRecord, error) {
	return s.findByUser(ctx, userID, service, excludeSecretColumns())
}

func (s *CredentialStore) FindByUserWithSecrets(ctx context.Context, userID string, service core.ServiceKey) (core.CredentialRecord, error) {
	return s.findByUser(ctx, userID, service)
}

func (s *CredentialStore) findByUser(ctx context.Context, userID string, service core.ServiceKey, criteria ...repository.SelectCriteria) (core.CredentialRecord, error) {
	if s == nil || s.repo == nil {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: user id is required")
	}
	selectors := append([]repository.SelectCriteria{
		repository.SelectBy("user_id", "=", userID),
		repository.SelectBy("service", "=", string(service)),
		repository.SelectPaginate(1, 0),
	}, criteria...)
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.CredentialRecord{}, err
	}
	if len(records) == 0 {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: %s credential for user %q: %w", service, userID, core.ErrNotConnected)
	}
	return records[0].toDomain(), nil
}

func (s *CredentialStore) GetByID(ctx context.Context, id string) (core.CredentialRecord, error) {
	if s == nil || s.repo == nil {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: credential id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", id),
		repository.SelectPaginate(1, 0),
		excludeSecretColumns(),
	)
	if err != nil {
		return core.CredentialRecord{}, err
	}
	if len(records) == 0 {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: credential %q not found", id)
	}
	return records[0].toDomain(), nil
}

func (s *CredentialStore) DeleteByID(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: credential id is required")
	}
	result, err := s.db.NewDelete().
		Model((*credentialRecord)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: credential %q not found", id)
	}
	return nil
}

func (s *CredentialStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: credential store is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("sqlstore: user id is required")
	}
	result, err := s.db.NewDelete().
		Model((*credentialRecord)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
