package storage

import (
	"context"

	"github.com/karanvats/scripalert/internal/core/domain"
)

// ListRecipients returns a single tenant's Telegram recipients.
func (db *DB) ListRecipients(ctx context.Context, userID string) ([]domain.Recipient, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT user_id, chat_id
		FROM recipients
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, storeErr("list user recipients", err)
	}
	defer rows.Close()

	var rcpts []domain.Recipient

	for rows.Next() {
		var rcpt domain.Recipient

		if err := rows.Scan(&rcpt.UserID, &rcpt.ChatID); err != nil {
			return nil, storeErr("scan user recipient", err)
		}

		rcpts = append(rcpts, rcpt)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate user recipients", err)
	}

	return rcpts, nil
}

// AddRecipient registers a chat for a tenant. Re-adding an existing chat is
// a no-op.
func (db *DB) AddRecipient(ctx context.Context, rcpt domain.Recipient) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO recipients (user_id, chat_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, chat_id) DO NOTHING
	`, rcpt.UserID, rcpt.ChatID)
	if err != nil {
		return storeErr("add recipient", err)
	}

	return nil
}

// DeleteRecipient removes a chat from a tenant.
func (db *DB) DeleteRecipient(ctx context.Context, rcpt domain.Recipient) error {
	_, err := db.Pool.Exec(ctx, `
		DELETE FROM recipients WHERE user_id = $1 AND chat_id = $2
	`, rcpt.UserID, rcpt.ChatID)
	if err != nil {
		return storeErr("delete recipient", err)
	}

	return nil
}
