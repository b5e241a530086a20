package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-connections/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type HubStore struct {
	db   *bun.DB
	repo repository.Repository[*hubRecord]
}

func (s *HubStore) GetOrCreate(ctx context.Context, userID string) (core.ConnectionHub, error) {
	if s == nil || s.repo == nil {
		return core.ConnectionHub{}, fmt.Errorf("sqlstore: hub store is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return core.ConnectionHub{}, fmt.Errorf("sqlstore: user id is required")
	}

	hub, err := s.FindByUser(ctx, userID)
	if err == nil {
		return hub, nil
	}
	if !errors.Is(err, core.ErrHubNotFound) {
		return core.ConnectionHub{}, err
	}

	now := time.Now().UTC()
	record := &hubRecord{
		UserID:            userID,
		ConnectedServices: []string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	created, createErr := s.repo.Create(ctx, record)
	if createErr != nil {
		return core.ConnectionHub{}, createErr
	}
	return created.toDomain(), nil
}

func (s *HubStore) FindByUser(ctx context.Context, userID string) (core.ConnectionHub, error) {
	if s == nil || s.repo == nil {
		return core.ConnectionHub{}, fmt.Errorf("sqlstore: hub store is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return core.ConnectionHub{}, fmt.Errorf("sqlstore: user id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", userID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.ConnectionHub{}, err
	}
	if len(records) == 0 {
		return core.ConnectionHub{}, fmt.Errorf("sqlstore: hub for user %q: %w", userID, core.ErrHubNotFound)
	}
	return records[0].toDomain(), nil
}

func (s *HubStore) SetCredentialRef(ctx context.Context, hubID string, service core.ServiceKey, credentialID string) (core.ConnectionHub, error) {
	return s.mutate(ctx, hubID, func(hub *core.ConnectionHub, now time.Time) error {
		return hub.SetCredentialRef(service, credentialID, now)
	})
}

func (s *HubStore) ClearCredentialRef(ctx context.Context, hubID string, service core.ServiceKey) (core.ConnectionHub, error) {
	return s.mutate(ctx, hubID, func(hub *core.ConnectionHub, now time.Time) error {
		return hub.ClearCredentialRef(service, now)
	})
}

// mutate reads the hub row, applies the domain mutation, and writes the
// refreshed slot columns and connected-services list back in one
// transaction.
func (s *HubStore) mutate(ctx context.Context, hubID string, apply func(hub *core.ConnectionHub, now time.Time) error) (core.ConnectionHub, error) {
	if s == nil || s.repo == nil || s.db == nil {
		return core.ConnectionHub{}, fmt.Errorf("sqlstore: hub store is not configured")
	}
	hubID = strings.TrimSpace(hubID)
	if hubID == "" {
		return core.ConnectionHub{}, fmt.Errorf("sqlstore: hub id is required")
	}

	var updated core.ConnectionHub
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := new(hubRecord)
		findErr := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", hubID).
			Limit(1).
			Scan(ctx)
		if findErr != nil {
			if isNoRows(findErr) {
				return fmt.Errorf("sqlstore: hub %q: %w", hubID, core.ErrHubNotFound)
			}
			return findErr
		}

		hub := record.toDomain()
		if applyErr := apply(&hub, time.Now().UTC()); applyErr != nil {
			return applyErr
		}
		record.applyDomain(hub)

		if _, updateErr := tx.NewUpdate().
			Model(record).
			WherePK().
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		updated = record.toDomain()
		return nil
	})
	if err != nil {
		return core.ConnectionHub{}, err
	}
	return updated, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
