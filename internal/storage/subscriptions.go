package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/karanvats/scripalert/internal/core/domain"
)

// ListSweepTargets enumerates every (subscription, recipient-set) pair for
// the orchestrator. Tenants without recipients produce targets with an empty
// recipient slice; the orchestrator logs and skips those.
func (db *DB) ListSweepTargets(ctx context.Context) ([]domain.SweepTarget, error) {
	subs, err := db.listAllSubscriptions(ctx)
	if err != nil {
		return nil, err
	}

	recipientsByUser, err := db.listAllRecipients(ctx)
	if err != nil {
		return nil, err
	}

	targets := make([]domain.SweepTarget, 0, len(subs))
	for _, sub := range subs {
		targets = append(targets, domain.SweepTarget{
			Subscription: sub,
			Recipients:   recipientsByUser[sub.UserID],
		})
	}

	return targets, nil
}

func (db *DB) listAllSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT user_id, scrip_code, company_name
		FROM subscriptions
		ORDER BY user_id, scrip_code
	`)
	if err != nil {
		return nil, storeErr("list subscriptions", err)
	}
	defer rows.Close()

	var subs []domain.Subscription

	for rows.Next() {
		var sub domain.Subscription

		if err := rows.Scan(&sub.UserID, &sub.ScripCode, &sub.CompanyName); err != nil {
			return nil, storeErr("scan subscription", err)
		}

		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate subscriptions", err)
	}

	return subs, nil
}

func (db *DB) listAllRecipients(ctx context.Context) (map[string][]domain.Recipient, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT user_id, chat_id
		FROM recipients
		ORDER BY user_id, created_at
	`)
	if err != nil {
		return nil, storeErr("list recipients", err)
	}
	defer rows.Close()

	byUser := make(map[string][]domain.Recipient)

	for rows.Next() {
		var rcpt domain.Recipient

		if err := rows.Scan(&rcpt.UserID, &rcpt.ChatID); err != nil {
			return nil, storeErr("scan recipient", err)
		}

		byUser[rcpt.UserID] = append(byUser[rcpt.UserID], rcpt)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate recipients", err)
	}

	return byUser, nil
}

// GetSubscription loads one tenant subscription, or nil when absent.
func (db *DB) GetSubscription(ctx context.Context, userID, scripCode string) (*domain.Subscription, error) {
	sub := &domain.Subscription{}

	err := db.Pool.QueryRow(ctx, `
		SELECT user_id, scrip_code, company_name
		FROM subscriptions
		WHERE user_id = $1 AND scrip_code = $2
	`, userID, scripCode).Scan(&sub.UserID, &sub.ScripCode, &sub.CompanyName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // intentional: not found is not an error
		}

		return nil, storeErr("get subscription", err)
	}

	return sub, nil
}

// ListSubscriptions returns a single tenant's subscriptions.
func (db *DB) ListSubscriptions(ctx context.Context, userID string) ([]domain.Subscription, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT user_id, scrip_code, company_name
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY scrip_code
	`, userID)
	if err != nil {
		return nil, storeErr("list user subscriptions", err)
	}
	defer rows.Close()

	var subs []domain.Subscription

	for rows.Next() {
		var sub domain.Subscription

		if err := rows.Scan(&sub.UserID, &sub.ScripCode, &sub.CompanyName); err != nil {
			return nil, storeErr("scan user subscription", err)
		}

		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate user subscriptions", err)
	}

	return subs, nil
}

// AddSubscription upserts a tenant subscription.
func (db *DB) AddSubscription(ctx context.Context, sub domain.Subscription) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO subscriptions (user_id, scrip_code, company_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, scrip_code) DO UPDATE SET company_name = EXCLUDED.company_name
	`, sub.UserID, sub.ScripCode, sub.CompanyName)
	if err != nil {
		return storeErr("add subscription", err)
	}

	return nil
}

// DeleteSubscription removes a tenant subscription.
func (db *DB) DeleteSubscription(ctx context.Context, userID, scripCode string) error {
	_, err := db.Pool.Exec(ctx, `
		DELETE FROM subscriptions WHERE user_id = $1 AND scrip_code = $2
	`, userID, scripCode)
	if err != nil {
		return storeErr("delete subscription", err)
	}

	return nil
}
