package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/propbot/core/dialog"
	"github.com/m3rciful/propbot/core/logger"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const insertLead = `INSERT INTO leads (id, user_id, kind, fields, created_at)
VALUES (:id, :user_id, :kind, :fields, :created_at)`

type leadRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Kind      string    `db:"kind"`
	Fields    string    `db:"fields"`
	CreatedAt time.Time `db:"created_at"`
}

// LeadRepository stores captured leads in postgres.
type LeadRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewLeadRepository wraps db.
func NewLeadRepository(db *sqlx.DB) *LeadRepository {
	return &LeadRepository{db: db, now: time.Now}
}

// SaveLead inserts lead with a fresh id.
func (r *LeadRepository) SaveLead(ctx context.Context, lead dialog.Lead) error {
	row, err := newLeadRow(lead, r.now())
	if err != nil {
		return err
	}
	start := time.Now()
	if _, err := r.db.NamedExecContext(ctx, insertLead, row); err != nil {
		logger.LogEvent(ctx, logger.DB, slog.LevelError, "lead.insert",
			slog.String("status", "fail"),
			slog.String("kind", row.Kind),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("database: insert lead: %w", err)
	}
	logger.LogEvent(ctx, logger.DB, slog.LevelDebug, "lead.insert",
		slog.String("status", "ok"),
		slog.String("lead_id", row.ID),
		slog.String("kind", row.Kind),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}

func newLeadRow(lead dialog.Lead, at time.Time) (leadRow, error) {
	fields := lead.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return leadRow{}, fmt.Errorf("database: encode lead fields: %w", err)
	}
	return leadRow{
		ID:        uuid.NewString(),
		UserID:    lead.UserID,
		Kind:      string(lead.Kind),
		Fields:    string(raw),
		CreatedAt: at.UTC(),
	}, nil
}
