package store

import (
	"context"
	"time"

	"github.com/innerjoy/funnel/internal/models"
)

// Nop is used when no database is configured: reads miss, writes succeed.
type Nop struct{}

func (Nop) GetContact(context.Context, string) (*models.Contact, error) { return nil, ErrNotFound }
func (Nop) UpsertContact(context.Context, *models.Contact) error         { return nil }
func (Nop) EnqueueScheduled(context.Context, []models.ScheduledMessage) error {
	return nil
}
func (Nop) CancelPending(context.Context, string, []string, string) (int64, error) { return 0, nil }
func (Nop) ListPendingScheduled(context.Context, time.Time, int) ([]models.ScheduledMessage, error) {
	return nil, nil
}
func (Nop) ListScheduledFor(context.Context, string) ([]models.ScheduledMessage, error) {
	return nil, nil
}
func (Nop) ClaimScheduled(context.Context, string, time.Time) (bool, error) { return false, nil }
func (Nop) ReleaseStale(context.Context, time.Time) (int64, error)          { return 0, nil }
func (Nop) SetScheduledStatus(context.Context, string, models.ScheduledStatus, *time.Time, string) error {
	return nil
}
func (Nop) AppendLog(context.Context, models.MessageLog) error { return nil }
func (Nop) Stats(context.Context) (Stats, error) {
	return Stats{ByStep: map[string]int64{}, ByStatus: map[string]int64{}}, nil
}
func (Nop) ListReinviteCandidates(context.Context, time.Time) ([]models.Contact, error) {
	return nil, nil
}

var (
	_ Store = Nop{}
	_ Store = (*Gorm)(nil)
)
