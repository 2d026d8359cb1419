package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/domain/model"
	"telegram-group-subscription/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

// undefined_function
const sqlStateUndefinedFunction = "42883"

const userColumns = `telegram_id, username, subscription_status, payment_method, next_payment_date,
       card_payment_id, stars_transaction_id, created_at, updated_at`

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func userArgs(u *model.User) []interface{} {
	var method *string
	if u.PaymentMethod != model.PaymentMethodNone {
		m := string(u.PaymentMethod)
		method = &m
	}
	return []interface{}{
		u.TelegramID, u.Username, string(u.Status), method, u.NextPaymentDate,
		nullable(u.CardPaymentID), nullable(u.StarsTransactionID),
	}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u            model.User
		status       string
		method, card *string
		stars        *string
		next         *time.Time
	)
	if err := row.Scan(&u.TelegramID, &u.Username, &status, &method, &next, &card, &stars, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Status = model.SubscriptionStatus(status)
	if method != nil {
		u.PaymentMethod = model.PaymentMethod(*method)
	}
	if next != nil {
		d := model.DateOf(*next)
		u.NextPaymentDate = &d
	}
	if card != nil {
		u.CardPaymentID = *card
	}
	if stars != nil {
		u.StarsTransactionID = *stars
	}
	return &u, nil
}

func (r *PostgresUserRepo) Save(ctx context.Context, qx any, u *model.User) error {
	if u.IsZero() {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO users (
  telegram_id, username, subscription_status, payment_method, next_payment_date,
  card_payment_id, stars_transaction_id
) VALUES (
  $1,$2,$3,$4,$5,$6,$7
) ON CONFLICT (telegram_id) DO UPDATE SET
  username=$2, subscription_status=$3, payment_method=$4, next_payment_date=$5,
  card_payment_id=$6, stars_transaction_id=$7, updated_at=now();
`
	args := userArgs(u)
	switch v := qx.(type) {
	case pgx.Tx:
		_, err := v.Exec(ctx, q, args...)
		return err
	case *pgxpool.Conn:
		_, err := v.Exec(ctx, q, args...)
		return err
	default:
		_, err := r.pool.Exec(ctx, q, args...)
		return err
	}
}

func (r *PostgresUserRepo) FindByTelegramID(ctx context.Context, qx any, tgID int64) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE telegram_id=$1;`
	u, err := scanUser(pickRow(ctx, r.pool, qx, q, tgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// LockUser takes a transaction-scoped advisory lock on the telegram id. The
// stored extension procedure locks the same key.
func (r *PostgresUserRepo) LockUser(ctx context.Context, qx any, tgID int64) error {
	if _, ok := qx.(pgx.Tx); !ok {
		return fmt.Errorf("lock user %d: %w", tgID, domain.ErrInvalidExecContext)
	}
	_, err := execSQL(ctx, r.pool, qx, `SELECT pg_advisory_xact_lock($1);`, tgID)
	return err
}

// SaveMany upserts users with one multi-row statement per batch.
func (r *PostgresUserRepo) SaveMany(ctx context.Context, qx any, users []*model.User, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	saved := 0
	for start := 0; start < len(users); start += batchSize {
		end := start + batchSize
		if end > len(users) {
			end = len(users)
		}
		batch := users[start:end]

		var (
			sb   strings.Builder
			args = make([]interface{}, 0, len(batch)*7)
		)
		sb.WriteString(`INSERT INTO users (telegram_id, username, subscription_status, payment_method, next_payment_date, card_payment_id, stars_transaction_id) VALUES `)
		for i, u := range batch {
			if i > 0 {
				sb.WriteString(",")
			}
			n := i * 7
			fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7)
			args = append(args, userArgs(u)...)
		}
		sb.WriteString(` ON CONFLICT (telegram_id) DO UPDATE SET
  username=CASE WHEN EXCLUDED.username <> '' THEN EXCLUDED.username ELSE users.username END,
  subscription_status=EXCLUDED.subscription_status, payment_method=EXCLUDED.payment_method,
  next_payment_date=EXCLUDED.next_payment_date, updated_at=now();`)

		n, err := execSQL(ctx, r.pool, qx, sb.String(), args...)
		if err != nil {
			return saved, fmt.Errorf("upsert batch at %d: %w", start, err)
		}
		saved += int(n)
	}
	return saved, nil
}

func (r *PostgresUserRepo) list(ctx context.Context, qx any, where string, args ...interface{}) ([]*model.User, error) {
	rows, err := queryRows(ctx, r.pool, qx, `SELECT `+userColumns+` FROM users WHERE `+where+` ORDER BY telegram_id;`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *PostgresUserRepo) ListByStatus(ctx context.Context, qx any, status model.SubscriptionStatus) ([]*model.User, error) {
	return r.list(ctx, qx, `subscription_status=$1`, string(status))
}

func (r *PostgresUserRepo) ListExpiringBetween(ctx context.Context, qx any, from, to time.Time) ([]*model.User, error) {
	return r.list(ctx, qx, `subscription_status='active' AND next_payment_date BETWEEN $1 AND $2`, model.DateOf(from), model.DateOf(to))
}

func (r *PostgresUserRepo) ListOverdue(ctx context.Context, qx any, before time.Time) ([]*model.User, error) {
	return r.list(ctx, qx, `subscription_status='active' AND next_payment_date < $1`, model.DateOf(before))
}

func (r *PostgresUserRepo) CountByStatus(ctx context.Context, qx any) (map[model.SubscriptionStatus]int, error) {
	rows, err := queryRows(ctx, r.pool, qx, `SELECT subscription_status, COUNT(*) FROM users GROUP BY subscription_status;`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	out := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var (
			s string
			n int
		)
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		out[model.SubscriptionStatus(s)] = n
	}
	return out, rows.Err()
}

func (r *PostgresUserRepo) ExtendSubscription(ctx context.Context, qx any, req repository.ExtendRequest) (time.Time, error) {
	details, err := json.Marshal(req.Details)
	if err != nil {
		return time.Time{}, fmt.Errorf("marshal details: %w", err)
	}
	const q = `SELECT extend_subscription($1,$2,$3,$4,$5,$6,$7);`
	var next time.Time
	err = pickRow(ctx, r.pool, qx, q,
		req.TelegramID, req.Username, string(req.Method), req.TransactionID,
		req.Days, model.DateOf(req.Today), details,
	).Scan(&next)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == sqlStateUndefinedFunction {
			return time.Time{}, domain.ErrProcedureUnavailable
		}
		return time.Time{}, fmt.Errorf("extend_subscription: %w", err)
	}
	return model.DateOf(next), nil
}
