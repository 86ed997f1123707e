package store

import (
	"context"
	"errors"
	"time"

	"github.com/innerjoy/funnel/internal/models"
)

var ErrNotFound = errors.New("store: not found")

// Store is the persistence boundary of the funnel. Every call may fail;
// callers treat failures as soft and keep going.
type Store interface {
	GetContact(ctx context.Context, key string) (*models.Contact, error)
	UpsertContact(ctx context.Context, c *models.Contact) error

	EnqueueScheduled(ctx context.Context, msgs []models.ScheduledMessage) error
	// CancelPending moves the contact's PENDING rows with the given template
	// codes to CANCELLED. No codes means every pending row.
	CancelPending(ctx context.Context, key string, codes []string, reason string) (int64, error)
	ListPendingScheduled(ctx context.Context, dueBefore time.Time, limit int) ([]models.ScheduledMessage, error)
	ListScheduledFor(ctx context.Context, key string) ([]models.ScheduledMessage, error)
	// ClaimScheduled atomically flips PENDING to PROCESSING, stamping the
	// claim time. False means another sweep or a cancellation got there first.
	ClaimScheduled(ctx context.Context, id string, at time.Time) (bool, error)
	// ReleaseStale returns PROCESSING rows claimed before the cutoff to
	// PENDING, so a worker that died mid-send does not strand them.
	ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error)
	SetScheduledStatus(ctx context.Context, id string, status models.ScheduledStatus, sentAt *time.Time, reason string) error

	AppendLog(ctx context.Context, e models.MessageLog) error

	Stats(ctx context.Context) (Stats, error)
	ListReinviteCandidates(ctx context.Context, sessionBefore time.Time) ([]models.Contact, error)
}

// Stats is the funnel snapshot served on the admin API.
type Stats struct {
	Contacts  int64            `json:"contacts"`
	ByStep    map[string]int64 `json:"by_step"`
	ByStatus  map[string]int64 `json:"scheduled_by_status"`
	Members   int64            `json:"members"`
	Attended  int64            `json:"attended"`
	NoShow    int64            `json:"no_show"`
	ThumbsUps int64            `json:"thumbs_up"`
}

const maxLogContent = 500

// Truncate cuts s to the audit log's content limit, counting runes.
func Truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxLogContent {
		return s
	}
	return string(r[:maxLogContent])
}
