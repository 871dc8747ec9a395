// Package domain defines the core entities shared across the sweep pipeline.
package domain

import (
	"encoding/json"
	"time"
)

// Announcement is a single disclosure event published by the exchange for a
// scrip. Instances are immutable once fetched: the pipeline only reads and
// compares them.
type Announcement struct {
	NewsID      string
	ScripCode   string
	Headline    string
	PDFName     string
	PublishedAt time.Time
	Raw         json.RawMessage
}

// SeenRecord marks an announcement as delivered to a user. At most one
// record should exist per (UserID, NewsID); the dedup filter treats record
// existence as the precondition, so duplicate inserts under races are
// harmless.
type SeenRecord struct {
	ID        string
	UserID    string
	NewsID    string
	ScripCode string
	Headline  string
	PDFName   string
	AnnDate   time.Time
	Caption   string
	CreatedAt time.Time
}

// Subscription ties a user to a tracked scrip.
type Subscription struct {
	UserID      string
	ScripCode   string
	CompanyName string
}

// Recipient is a Telegram chat belonging to a user. All of a user's
// recipients receive identical content for a given announcement.
type Recipient struct {
	UserID string
	ChatID int64
}

// SweepTarget is one unit of sweep work: a tenant's subscription together
// with the tenant's recipient set.
type SweepTarget struct {
	Subscription Subscription
	Recipients   []Recipient
}
