package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/innerjoy/funnel/internal/models"
	"github.com/innerjoy/funnel/internal/slots"
	"github.com/innerjoy/funnel/internal/store"
	"github.com/innerjoy/funnel/internal/templates"
)

// Offsets around a session starting at T.
const (
	reminder12h = 12 * time.Hour
	reminder60m = 60 * time.Minute
	reminder10m = 10 * time.Minute

	salesS1      = 5 * time.Minute
	salesShakeup = 20 * time.Minute
	salesS2      = 2 * time.Hour
	morningHour  = 9

	fallbackRB = 2 * time.Hour
)

// Scheduler turns funnel events into PENDING scheduled messages.
type Scheduler struct {
	store   store.Store
	cal     *slots.Calendar
	session time.Duration
	newID   func() string
	log     zerolog.Logger
}

func New(st store.Store, cal *slots.Calendar, session time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:   st,
		cal:     cal,
		session: session,
		newID:   func() string { return uuid.NewString() },
		log:     log,
	}
}

func (s *Scheduler) Calendar() *slots.Calendar { return s.cal }

func (s *Scheduler) row(key, code string, tree models.Tree, slot string, at time.Time) models.ScheduledMessage {
	return models.ScheduledMessage{
		ID:           s.newID(),
		ContactKey:   key,
		TemplateCode: code,
		Tree:         tree,
		SlotCode:     slot,
		ScheduledAt:  at,
		Status:       models.StatusPending,
	}
}

// Cascade computes the seven reminder and sales rows for a session at T.
func (s *Scheduler) Cascade(key, slot string, t time.Time) []models.ScheduledMessage {
	end := t.Add(s.session)
	p := models.TreePrimary
	return []models.ScheduledMessage{
		s.row(key, templates.Reminder12H, p, slot, t.Add(-reminder12h)),
		s.row(key, templates.Reminder60M, p, slot, t.Add(-reminder60m)),
		s.row(key, templates.Reminder10M, p, slot, t.Add(-reminder10m)),
		s.row(key, templates.SalesS1, p, slot, end.Add(salesS1)),
		s.row(key, templates.SalesShakeup, p, slot, end.Add(salesShakeup)),
		s.row(key, templates.SalesS2, p, slot, end.Add(salesS2)),
		s.row(key, templates.SalesS3, p, slot, s.nextMorning(t)),
	}
}

// nextMorning is 09:00 local on the calendar day after t.
func (s *Scheduler) nextMorning(t time.Time) time.Time {
	local := t.In(s.cal.Location())
	return time.Date(local.Year(), local.Month(), local.Day()+1, morningHour, 0, 0, 0, s.cal.Location())
}

// ScheduleCascade replaces any pending cascade for key with a fresh one for T.
func (s *Scheduler) ScheduleCascade(ctx context.Context, key, slot string, t time.Time) ([]models.ScheduledMessage, error) {
	if n, err := s.CancelCascade(ctx, key, "slot re-selected"); err != nil {
		return nil, err
	} else if n > 0 {
		s.log.Info().Str("contact", key).Int64("cancelled", n).Msg("replaced previous cascade")
	}
	rows := s.Cascade(key, slot, t)
	if err := s.store.EnqueueScheduled(ctx, rows); err != nil {
		return nil, fmt.Errorf("schedule cascade: %w", err)
	}
	return rows, nil
}

// SalesFrom is the tail of the sales cascade for a session that ended at end.
// The first sales message is sent immediately by the caller.
func (s *Scheduler) SalesFrom(key string, end time.Time) []models.ScheduledMessage {
	p := models.TreePrimary
	return []models.ScheduledMessage{
		s.row(key, templates.SalesShakeup, p, "", end.Add(salesShakeup)),
		s.row(key, templates.SalesS2, p, "", end.Add(salesS2)),
		s.row(key, templates.SalesS3, p, "", s.nextMorning(end)),
	}
}

func (s *Scheduler) ScheduleSalesFrom(ctx context.Context, key string, end time.Time) ([]models.ScheduledMessage, error) {
	rows := s.SalesFrom(key, end)
	if err := s.store.EnqueueScheduled(ctx, rows); err != nil {
		return nil, fmt.Errorf("schedule sales: %w", err)
	}
	return rows, nil
}

// ScheduleFallback enqueues the single trigger that moves an undecided
// contact into the fallback tree. Any earlier trigger is cancelled first.
func (s *Scheduler) ScheduleFallback(ctx context.Context, key string, now time.Time, delay time.Duration) (models.ScheduledMessage, error) {
	if _, err := s.store.CancelPending(ctx, key, []string{templates.FallbackRA}, "superseded"); err != nil {
		return models.ScheduledMessage{}, err
	}
	row := s.row(key, templates.FallbackRA, models.TreeFallback, "", now.Add(delay))
	if err := s.store.EnqueueScheduled(ctx, []models.ScheduledMessage{row}); err != nil {
		return models.ScheduledMessage{}, fmt.Errorf("schedule fallback: %w", err)
	}
	return row, nil
}

// FallbackFollowups are the re-engagement messages after the trigger fires:
// a second nudge two hours later, then Sunday 16:00 and the Monday 09:00 after it.
func (s *Scheduler) FallbackFollowups(key string, now time.Time) []models.ScheduledMessage {
	f := models.TreeFallback
	s1 := s.cal.NextWeekdayAt(time.Sunday, 16, 0, now)
	s2 := s.cal.NextWeekdayAt(time.Monday, 9, 0, s1)
	return []models.ScheduledMessage{
		s.row(key, templates.FallbackRB, f, "", now.Add(fallbackRB)),
		s.row(key, templates.FallbackS1, f, "", s1),
		s.row(key, templates.FallbackS2, f, "", s2),
	}
}

func (s *Scheduler) ScheduleFallbackFollowups(ctx context.Context, key string, now time.Time) ([]models.ScheduledMessage, error) {
	rows := s.FallbackFollowups(key, now)
	if err := s.store.EnqueueScheduled(ctx, rows); err != nil {
		return nil, fmt.Errorf("schedule fallback followups: %w", err)
	}
	return rows, nil
}

// Schedule enqueues a single message, used for one-off sends such as reinvites.
func (s *Scheduler) Schedule(ctx context.Context, key, code string, tree models.Tree, at time.Time) (models.ScheduledMessage, error) {
	row := s.row(key, code, tree, "", at)
	if err := s.store.EnqueueScheduled(ctx, []models.ScheduledMessage{row}); err != nil {
		return models.ScheduledMessage{}, fmt.Errorf("schedule %s: %w", code, err)
	}
	return row, nil
}

func (s *Scheduler) CancelFallback(ctx context.Context, key, reason string) (int64, error) {
	return s.store.CancelPending(ctx, key, templates.FallbackCodes, reason)
}

func (s *Scheduler) CancelCascade(ctx context.Context, key, reason string) (int64, error) {
	return s.store.CancelPending(ctx, key, templates.CascadeCodes, reason)
}

func (s *Scheduler) CancelSales(ctx context.Context, key, reason string) (int64, error) {
	return s.store.CancelPending(ctx, key, templates.SalesCodes, reason)
}

func (s *Scheduler) CancelAll(ctx context.Context, key, reason string) (int64, error) {
	return s.store.CancelPending(ctx, key, nil, reason)
}
