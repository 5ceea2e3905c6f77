package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"arena-session-service/internal/domain"
)

// ResultsArchive persists final leaderboards, replacing the client-held
// result token the original flow relied on.
type ResultsArchive struct {
	db *bun.DB
}

func NewResultsArchive(db *bun.DB) *ResultsArchive {
	return &ResultsArchive{db: db}
}

type sessionResultRow struct {
	bun.BaseModel `bun:"table:session_results"`

	Code    string    `bun:"code,pk"`
	Data    []byte    `bun:"data,type:jsonb"`
	EndedAt time.Time `bun:"ended_at"`
}

func (a *ResultsArchive) Archive(ctx context.Context, code string, final domain.Leaderboard) error {
	payload, err := json.Marshal(final)
	if err != nil {
		return fmt.Errorf("marshal leaderboard: %w", err)
	}
	row := &sessionResultRow{Code: code, Data: payload, EndedAt: final.UpdatedAt}
	_, err = a.db.NewInsert().
		Model(row).
		On("CONFLICT (code) DO UPDATE").
		Set("data = EXCLUDED.data").
		Set("ended_at = EXCLUDED.ended_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("archive session %s: %w", code, err)
	}
	return nil
}

// Load returns an archived final leaderboard, if present.
func (a *ResultsArchive) Load(ctx context.Context, code string) (domain.Leaderboard, error) {
	row := new(sessionResultRow)
	err := a.db.NewSelect().Model(row).Where("code = ?", code).Scan(ctx)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("load archived results: %w", err)
	}
	var lb domain.Leaderboard
	if err := json.Unmarshal(row.Data, &lb); err != nil {
		return domain.Leaderboard{}, fmt.Errorf("unmarshal archived results: %w", err)
	}
	return lb, nil
}
