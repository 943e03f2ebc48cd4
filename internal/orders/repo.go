package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the Postgres order store.
type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, user_id, session_id, amount, items, shipping, gateway_token, status, payment_status,
	authorization_code, card_number, response_code, vci, transaction_date, payment_type_code, installments,
	gateway_status, created_at, confirmed_at`

const uniqueViolation = "23505"

func (r *Repo) CreateOrder(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	shipping, err := json.Marshal(o.Shipping)
	if err != nil {
		return fmt.Errorf("encode shipping: %w", err)
	}

	_, err = r.DB.Exec(ctx, `
		INSERT INTO orders(id, user_id, session_id, amount, items, shipping, gateway_token, status, payment_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.UserID, o.SessionID, o.Amount, items, shipping, o.GatewayToken,
		string(o.Status), string(o.PaymentStatus), o.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "orders_gateway_token_key" {
			return ErrDuplicateToken
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *Repo) GetOrder(ctx context.Context, id string) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (r *Repo) GetOrderByToken(ctx context.Context, token string) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE gateway_token=$1`, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (r *Repo) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// SettleOrder writes s onto the order holding token, but only while that order is still pending.
// An approving settlement empties the owner's cart in the same transaction.
// Returns ErrAlreadySettled when another confirm got there first.
func (r *Repo) SettleOrder(ctx context.Context, token string, s Settlement) (*Order, error) {
	if !CanTransition(StatusPending, s.Status) {
		return nil, fmt.Errorf("invalid settlement status %q", s.Status)
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET status=$2, payment_status=$3, authorization_code=$4, card_number=$5, response_code=$6,
			vci=$7, transaction_date=$8, payment_type_code=$9, installments=$10, gateway_status=$11, confirmed_at=$12
		WHERE gateway_token=$1 AND status='pending'
		RETURNING `+orderColumns,
		token, string(s.Status), string(s.PaymentStatus()), s.AuthorizationCode, s.CardNumber, s.ResponseCode,
		s.VCI, s.TransactionDate, s.PaymentTypeCode, s.Installments, s.GatewayStatus, s.ConfirmedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE gateway_token=$1)`, token).Scan(&exists); err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrAlreadySettled
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("settle order: %w", err)
	}

	if s.Status == StatusApproved {
		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1`, o.UserID); err != nil {
			return nil, fmt.Errorf("clear cart: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                     Order
		items, shipping       []byte
		status, paymentStatus string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.SessionID, &o.Amount, &items, &shipping, &o.GatewayToken,
		&status, &paymentStatus, &o.AuthorizationCode, &o.CardNumber, &o.ResponseCode, &o.VCI,
		&o.TransactionDate, &o.PaymentTypeCode, &o.Installments, &o.GatewayStatus, &o.CreatedAt, &o.ConfirmedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal(shipping, &o.Shipping); err != nil {
		return nil, fmt.Errorf("decode shipping: %w", err)
	}
	o.Status = Status(status)
	o.PaymentStatus = PaymentStatus(paymentStatus)
	return &o, nil
}
