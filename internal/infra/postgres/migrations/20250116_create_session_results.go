package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS session_results (
    code     TEXT PRIMARY KEY,
    data     JSONB NOT NULL,
    ended_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS session_results`)
			return err
		},
	)
}
