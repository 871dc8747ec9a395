// Package dedup decides which recipients still need a given announcement.
//
// An announcement is a duplicate for a user when the user has already been
// notified of the same news id, or of any announcement carrying the same
// attachment name. Exchanges re-file the same PDF under fresh news ids, so
// the attachment check catches repeats the id check misses.
package dedup

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/karanvats/scripalert/internal/core/domain"
	"github.com/karanvats/scripalert/internal/platform/observability"
)

const dropReasonDuplicate = "duplicate"

// SeenStore answers seen-ness questions for the filter.
type SeenStore interface {
	IsAnnouncementSeen(ctx context.Context, userID, newsID string) (bool, error)
	IsAttachmentSeen(ctx context.Context, userID, pdfName string) (bool, error)
}

// Filter screens announcements against per-user delivery history.
type Filter struct {
	store  SeenStore
	logger *zerolog.Logger
}

func NewFilter(store SeenStore, logger *zerolog.Logger) *Filter {
	return &Filter{store: store, logger: logger}
}

// NeedsNotice reports whether userID has not yet been notified of ann.
//
// When the store cannot answer, the announcement is treated as seen: a
// missed notification is recoverable by catch-up, a duplicate send is not.
func (f *Filter) NeedsNotice(ctx context.Context, userID string, ann domain.Announcement) (bool, error) {
	seen, err := f.store.IsAnnouncementSeen(ctx, userID, ann.NewsID)
	if err != nil {
		return false, fmt.Errorf("check news id %s: %w", ann.NewsID, err)
	}

	if seen {
		return false, nil
	}

	seen, err = f.store.IsAttachmentSeen(ctx, userID, ann.PDFName)
	if err != nil {
		return false, fmt.Errorf("check attachment %s: %w", ann.PDFName, err)
	}

	return !seen, nil
}

// RecipientsNeedingNotice returns the subset of recipients whose user has
// not yet received ann. Seen-ness is per user, so the store is consulted
// once per distinct user and the answer applied to all of that user's chats.
// Store failures drop the affected user from this sweep.
func (f *Filter) RecipientsNeedingNotice(ctx context.Context, recipients []domain.Recipient, ann domain.Announcement) []domain.Recipient {
	decisions := make(map[string]bool, len(recipients))
	need := make([]domain.Recipient, 0, len(recipients))

	for _, r := range recipients {
		decision, ok := decisions[r.UserID]
		if !ok {
			var err error

			decision, err = f.NeedsNotice(ctx, r.UserID, ann)
			if err != nil {
				f.logger.Error().Err(err).
					Str("user_id", r.UserID).
					Str("news_id", ann.NewsID).
					Msg("dedup check failed, skipping user this sweep")

				decision = false
			}

			decisions[r.UserID] = decision
		}

		if decision {
			need = append(need, r)
		}
	}

	if len(need) < len(recipients) {
		observability.AnnouncementsDropped.WithLabelValues(dropReasonDuplicate).Add(float64(len(recipients) - len(need)))
	}

	return need
}
