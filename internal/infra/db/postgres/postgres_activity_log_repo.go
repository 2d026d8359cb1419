package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/domain/model"
	"telegram-group-subscription/internal/domain/ports/repository"
)

var _ repository.ActivityLogRepository = (*PostgresActivityLogRepo)(nil)

type PostgresActivityLogRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresActivityLogRepo(pool *pgxpool.Pool) *PostgresActivityLogRepo {
	return &PostgresActivityLogRepo{pool: pool}
}

func (r *PostgresActivityLogRepo) Append(ctx context.Context, qx any, e *model.ActivityLogEntry) error {
	if e == nil || e.TelegramID == 0 || e.Action == "" {
		return domain.ErrInvalidArgument
	}
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	const q = `
INSERT INTO activity_log (telegram_id, action, details, timestamp)
VALUES ($1,$2,$3,$4)
RETURNING id;`
	return pickRow(ctx, r.pool, qx, q, e.TelegramID, string(e.Action), details, ts).Scan(&e.ID)
}

func (r *PostgresActivityLogRepo) ListByUser(ctx context.Context, qx any, tgID int64, action model.ActivityAction, limit int) ([]*model.ActivityLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, telegram_id, action, details, timestamp
  FROM activity_log
 WHERE telegram_id=$1 AND ($2 = '' OR action=$2)
 ORDER BY timestamp DESC, id DESC
 LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, qx, q, tgID, string(action), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ActivityLogEntry
	for rows.Next() {
		var (
			e      model.ActivityLogEntry
			act    string
			detail []byte
		)
		if err := rows.Scan(&e.ID, &e.TelegramID, &act, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		e.Action = model.ActivityAction(act)
		e.Details = map[string]any{}
		if len(detail) > 0 {
			_ = json.Unmarshal(detail, &e.Details)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *PostgresActivityLogRepo) ExistsSince(ctx context.Context, qx any, tgID int64, action model.ActivityAction, since time.Time) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM activity_log WHERE telegram_id=$1 AND action=$2 AND timestamp >= $3);`
	var ok bool
	if err := pickRow(ctx, r.pool, qx, q, tgID, string(action), since).Scan(&ok); err != nil {
		return false, fmt.Errorf("exists since: %w", err)
	}
	return ok, nil
}

func (r *PostgresActivityLogRepo) DeleteOlderThan(ctx context.Context, qx any, before time.Time) (int64, error) {
	return execSQL(ctx, r.pool, qx, `DELETE FROM activity_log WHERE timestamp < $1;`, before)
}

// PaymentStatsSince aggregates payment_successful / payment_failed rows.
// Card revenue comes from details.amount_usd, Stars totals from details.stars.
func (r *PostgresActivityLogRepo) PaymentStatsSince(ctx context.Context, qx any, since time.Time) (*model.PaymentStats, error) {
	const q = `
SELECT
  COUNT(*) FILTER (WHERE action='payment_successful'),
  COUNT(*) FILTER (WHERE action='payment_failed'),
  COUNT(*) FILTER (WHERE action='payment_successful' AND details->>'method'='card'),
  COALESCE(SUM((details->>'amount_usd')::numeric) FILTER (WHERE action='payment_successful' AND details->>'method'='card'), 0)::float8,
  COUNT(*) FILTER (WHERE action='payment_successful' AND details->>'method'='stars'),
  COALESCE(SUM((details->>'stars')::bigint) FILTER (WHERE action='payment_successful' AND details->>'method'='stars'), 0)::bigint
FROM activity_log
WHERE timestamp >= $1 AND action IN ('payment_successful','payment_failed');`
	var st model.PaymentStats
	err := pickRow(ctx, r.pool, qx, q, since).Scan(
		&st.Successful, &st.Failed, &st.CardCount, &st.CardUSD, &st.StarsCount, &st.StarsTotal,
	)
	if err != nil {
		return nil, fmt.Errorf("payment stats: %w", err)
	}
	return &st, nil
}
