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

type UserStore struct {
	db   *bun.DB
	repo repository.Repository[*userRecord]
}

func (s *UserStore) Create(ctx context.Context, in core.CreateUserInput) (core.User, error) {
	if s == nil || s.repo == nil {
		return core.User{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	in.Subject = strings.TrimSpace(in.Subject)
	if in.Subject == "" {
		return core.User{}, fmt.Errorf("sqlstore: subject is required")
	}

	record := newUserRecord(in, time.Now().UTC())
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.User{}, err
	}
	return created.toDomain(), nil
}

func (s *UserStore) FindBySubject(ctx context.Context, subject string) (core.User, error) {
	if s == nil || s.repo == nil {
		return core.User{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return core.User{}, fmt.Errorf("sqlstore: subject is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("subject", "=", subject),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.User{}, err
	}
	if len(records) == 0 {
		return core.User{}, fmt.Errorf("sqlstore: subject %q: %w", subject, core.ErrUserNotFound)
	}
	return records[0].toDomain(), nil
}

func (s *UserStore) UpdateBySubject(ctx context.Context, subject string, in core.UpdateUserInput) (core.User, error) {
	if s == nil || s.repo == nil {
		return core.User{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return core.User{}, fmt.Errorf("sqlstore: subject is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("subject", "=", subject),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.User{}, err
	}
	if len(records) == 0 {
		return core.User{}, fmt.Errorf("sqlstore: subject %q: %w", subject, core.ErrUserNotFound)
	}

	current := records[0]
	current.Email = in.Email
	current.Username = in.Username
	current.FirstName = in.FirstName
	current.LastName = in.LastName
	current.PhotoURL = in.PhotoURL
	current.UpdatedAt = time.Now().UTC()

	updated, err := s.repo.Update(ctx, current, repository.UpdateByID(current.ID))
	if err != nil {
		return core.User{}, err
	}
	return updated.toDomain(), nil
}

func (s *UserStore) DeleteBySubject(ctx context.Context, subject string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: user store is not configured")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return fmt.Errorf("sqlstore: subject is required")
	}
	result, err := s.db.NewDelete().
		Model((*userRecord)(nil)).
		Where("subject = ?", subject).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: subject %q: %w", subject, core.ErrUserNotFound)
	}
	return nil
}
