package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/karanvats/scripalert/internal/core/domain"
)

// IsAnnouncementSeen reports whether the user already received this news id.
func (db *DB) IsAnnouncementSeen(ctx context.Context, userID, newsID string) (bool, error) {
	var seen bool

	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM seen_announcements
			WHERE user_id = $1 AND news_id = $2
		)
	`, userID, newsID).Scan(&seen)
	if err != nil {
		return false, storeErr("check announcement seen", err)
	}

	return seen, nil
}

// IsAttachmentSeen reports whether the user already received an announcement
// carrying the same attachment, regardless of news id. The source sometimes
// reissues records under a fresh id.
func (db *DB) IsAttachmentSeen(ctx context.Context, userID, pdfName string) (bool, error) {
	var seen bool

	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM seen_announcements
			WHERE user_id = $1 AND pdf_name = $2
		)
	`, userID, pdfName).Scan(&seen)
	if err != nil {
		return false, storeErr("check attachment seen", err)
	}

	return seen, nil
}

// SaveSeen durably records a delivery before the send is attempted.
// Duplicate inserts under concurrent sweeps are tolerated; existence checks
// are the dedup precondition, not a uniqueness constraint.
func (db *DB) SaveSeen(ctx context.Context, rec *domain.SeenRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO seen_announcements
			(id, user_id, news_id, scrip_code, headline, pdf_name, ann_date, caption, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, news_id) DO NOTHING
	`, rec.ID, rec.UserID, rec.NewsID, rec.ScripCode, rec.Headline, rec.PDFName, rec.AnnDate, rec.Caption, rec.CreatedAt)
	if err != nil {
		return storeErr("save seen record", err)
	}

	return nil
}

// GetSeenRecord loads one delivery record, used by the deep-link view.
// Returns nil when no record exists.
func (db *DB) GetSeenRecord(ctx context.Context, userID, newsID string) (*domain.SeenRecord, error) {
	rec := &domain.SeenRecord{}

	err := db.Pool.QueryRow(ctx, `
		SELECT id, user_id, news_id, scrip_code, headline, pdf_name, ann_date, caption, created_at
		FROM seen_announcements
		WHERE user_id = $1 AND news_id = $2
		LIMIT 1
	`, userID, newsID).Scan(
		&rec.ID, &rec.UserID, &rec.NewsID, &rec.ScripCode,
		&rec.Headline, &rec.PDFName, &rec.AnnDate, &rec.Caption, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // intentional: not found is not an error
		}

		return nil, storeErr("get seen record", err)
	}

	return rec, nil
}

// ListSeenSince returns the user's delivery records with an announcement
// date at or after the given time, newest first. Used by recipient catch-up.
func (db *DB) ListSeenSince(ctx context.Context, userID string, since time.Time) ([]domain.SeenRecord, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, user_id, news_id, scrip_code, headline, pdf_name, ann_date, caption, created_at
		FROM seen_announcements
		WHERE user_id = $1 AND ann_date >= $2
		ORDER BY ann_date DESC
	`, userID, since)
	if err != nil {
		return nil, storeErr("list seen records", err)
	}
	defer rows.Close()

	var recs []domain.SeenRecord

	for rows.Next() {
		var rec domain.SeenRecord

		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.NewsID, &rec.ScripCode,
			&rec.Headline, &rec.PDFName, &rec.AnnDate, &rec.Caption, &rec.CreatedAt,
		); err != nil {
			return nil, storeErr("scan seen record", err)
		}

		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate seen records", err)
	}

	return recs, nil
}
