package sqlstore

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// EnsureSchema creates the broker tables when they do not exist yet.
// Deployments that manage schema through their own migration pipeline can
// skip it; nothing else in the package depends on having called it.
func EnsureSchema(ctx context.Context, db *bun.DB) error {
	if db == nil {
		return fmt.Errorf("sqlstore: bun db is required")
	}
	models := []any{
		(*userRecord)(nil),
		(*credentialRecord)(nil),
		(*hubRecord)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("sqlstore: create table for %T: %w", model, err)
		}
	}
	return nil
}
