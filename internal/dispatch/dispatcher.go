package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/innerjoy/funnel/internal/flow"
	"github.com/innerjoy/funnel/internal/keylock"
	"github.com/innerjoy/funnel/internal/models"
	"github.com/innerjoy/funnel/internal/schedule"
	"github.com/innerjoy/funnel/internal/sender"
	"github.com/innerjoy/funnel/internal/store"
	"github.com/innerjoy/funnel/internal/templates"
	"github.com/innerjoy/funnel/internal/window"
)

type Options struct {
	SweepSpec       string // robfig/cron spec, e.g. "@every 1m"
	Concurrency     int64
	BatchSize       int
	ReinviteEnabled bool
	ReinviteSpec    string // e.g. "0 18 * * FRI"
	// ClaimLease is how long a row may sit in PROCESSING before a later
	// sweep hands it back to PENDING.
	ClaimLease time.Duration
}

type Deps struct {
	Store     store.Store
	Sender    sender.Sender
	Composer  flow.Composer
	Scheduler *schedule.Scheduler
	Window    window.Policy
	Locks     *keylock.Locks
	Now       func() time.Time
	Log       zerolog.Logger
}

// Report summarizes one sweep.
type Report struct {
	Due       int  `json:"due"`
	Sent      int  `json:"sent"`
	Failed    int  `json:"failed"`
	Cancelled int  `json:"cancelled"`
	Skipped   int  `json:"skipped"`
	Busy      bool `json:"busy,omitempty"`
}

type result int

const (
	resSkipped result = iota
	resSent
	resFailed
	resCancelled
)

func (r *Report) add(res result) {
	switch res {
	case resSent:
		r.Sent++
	case resFailed:
		r.Failed++
	case resCancelled:
		r.Cancelled++
	default:
		r.Skipped++
	}
}

// Dispatcher sends due scheduled messages once their preconditions still hold.
type Dispatcher struct {
	d       Deps
	opts    Options
	cron    *cron.Cron
	running atomic.Bool
}

func New(d Deps, opts Options) *Dispatcher {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Locks == nil {
		d.Locks = keylock.New()
	}
	if opts.SweepSpec == "" {
		opts.SweepSpec = "@every 1m"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.ClaimLease <= 0 {
		opts.ClaimLease = 10 * time.Minute
	}
	return &Dispatcher{d: d, opts: opts}
}

// Start registers the sweep (and the weekly reinvite job when enabled) and
// starts the cron runner. Jobs never overlap themselves.
func (x *Dispatcher) Start(ctx context.Context) error {
	loc := x.d.Scheduler.Calendar().Location()
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{x.d.Log})),
	)
	if _, err := c.AddFunc(x.opts.SweepSpec, func() {
		rep := x.Sweep(ctx, x.d.Now())
		if rep.Due > 0 {
			x.d.Log.Info().
				Int("due", rep.Due).Int("sent", rep.Sent).Int("failed", rep.Failed).
				Int("cancelled", rep.Cancelled).Int("skipped", rep.Skipped).
				Msg("sweep done")
		}
	}); err != nil {
		return fmt.Errorf("dispatch: sweep spec %q: %w", x.opts.SweepSpec, err)
	}
	if x.opts.ReinviteEnabled {
		if _, err := c.AddFunc(x.opts.ReinviteSpec, func() {
			n, err := x.EnqueueReinvites(ctx, x.d.Now())
			if err != nil {
				x.d.Log.Error().Err(err).Msg("reinvite job failed")
				return
			}
			x.d.Log.Info().Int("contacts", n).Msg("reinvites queued")
		}); err != nil {
			return fmt.Errorf("dispatch: reinvite spec %q: %w", x.opts.ReinviteSpec, err)
		}
	}
	c.Start()
	x.cron = c
	x.d.Log.Info().Str("spec", x.opts.SweepSpec).Bool("reinvite", x.opts.ReinviteEnabled).Msg("dispatcher started")
	return nil
}

// Stop waits for a running job to finish.
func (x *Dispatcher) Stop() {
	if x.cron == nil {
		return
	}
	<-x.cron.Stop().Done()
}

// Sweep sends every PENDING row due at or before now. A second call while
// one is in flight returns immediately with Busy set.
func (x *Dispatcher) Sweep(ctx context.Context, now time.Time) Report {
	if !x.running.CompareAndSwap(false, true) {
		return Report{Busy: true}
	}
	defer x.running.Store(false)

	if n, err := x.d.Store.ReleaseStale(ctx, now.Add(-x.opts.ClaimLease)); err != nil {
		x.d.Log.Warn().Err(err).Msg("release stale claims failed")
	} else if n > 0 {
		x.d.Log.Warn().Int64("rows", n).Msg("released stale claims")
	}

	rows, err := x.d.Store.ListPendingScheduled(ctx, now, x.opts.BatchSize)
	if err != nil {
		x.d.Log.Error().Err(err).Msg("list due messages failed")
		return Report{}
	}
	rep := Report{Due: len(rows)}
	if len(rows) == 0 {
		return rep
	}

	// Rows of one contact go out in schedule order on one worker.
	var order []string
	byContact := map[string][]models.ScheduledMessage{}
	for _, m := range rows {
		if _, ok := byContact[m.ContactKey]; !ok {
			order = append(order, m.ContactKey)
		}
		byContact[m.ContactKey] = append(byContact[m.ContactKey], m)
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(x.opts.Concurrency)
	)
	for _, key := range order {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(batch []models.ScheduledMessage) {
			defer wg.Done()
			defer sem.Release(1)
			for _, m := range batch {
				res := x.process(ctx, m, now)
				mu.Lock()
				rep.add(res)
				mu.Unlock()
			}
		}(byContact[key])
	}
	wg.Wait()
	return rep
}

func (x *Dispatcher) process(ctx context.Context, m models.ScheduledMessage, now time.Time) result {
	log := x.d.Log.With().Str("id", m.ID).Str("contact", m.ContactKey).Str("template", m.TemplateCode).Logger()

	if m.ScheduledAt.IsZero() {
		log.Warn().Msg("scheduled message has no send time")
		x.setStatus(ctx, m.ID, models.StatusFailed, nil, "malformed", log)
		return resFailed
	}

	claimed, err := x.d.Store.ClaimScheduled(ctx, m.ID, now)
	if err != nil {
		log.Warn().Err(err).Msg("claim failed")
		return resSkipped
	}
	if !claimed {
		return resSkipped
	}

	// Once claimed, the row must leave PROCESSING even if the sweep is
	// being cancelled.
	keep := context.WithoutCancel(ctx)

	unlock := x.d.Locks.Lock(m.ContactKey)
	defer unlock()

	c, err := x.d.Store.GetContact(ctx, m.ContactKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
		x.cancel(keep, m, "contact missing", log)
		return resCancelled
	case err != nil:
		// let the next sweep retry
		log.Warn().Err(err).Msg("load contact failed")
		x.setStatus(keep, m.ID, models.StatusPending, nil, "", log)
		return resSkipped
	}

	if reason := x.precondition(c, m, now); reason != "" {
		x.cancel(keep, m, reason, log)
		return resCancelled
	}

	code := m.TemplateCode
	if code == templates.Reminder12H && !c.ThumbsUp {
		code = templates.Reminder12HThumbs
	}
	text, err := x.d.Composer.Render(code, c)
	if err != nil {
		log.Error().Err(err).Msg("render failed")
		x.setStatus(keep, m.ID, models.StatusFailed, nil, err.Error(), log)
		return resFailed
	}
	if _, err := x.d.Sender.Send(ctx, c.Key, text); err != nil {
		if ctx.Err() != nil {
			// shutting down or the caller went away; retry next sweep
			log.Warn().Err(err).Msg("send interrupted")
			x.setStatus(keep, m.ID, models.StatusPending, nil, "", log)
			return resSkipped
		}
		log.Error().Err(err).Msg("send failed")
		x.setStatus(keep, m.ID, models.StatusFailed, nil, err.Error(), log)
		return resFailed
	}

	sentAt := now
	x.setStatus(keep, m.ID, models.StatusSent, &sentAt, "", log)
	if err := x.d.Store.AppendLog(keep, models.MessageLog{
		ContactKey:   c.Key,
		Direction:    models.DirOut,
		TemplateCode: code,
		Content:      text,
	}); err != nil {
		log.Warn().Err(err).Msg("append log failed")
	}
	x.afterSend(keep, c, m, now, log)
	log.Info().Msg("scheduled message sent")
	return resSent
}

// precondition returns why m must not go out to c right now, or "".
func (x *Dispatcher) precondition(c *models.Contact, m models.ScheduledMessage, now time.Time) string {
	if !x.d.Window.IsWithin(c, now) {
		return "window closed"
	}
	code := m.TemplateCode
	switch {
	case templates.IsFallback(code):
		if c.ChosenSlot != "" {
			return "slot already picked"
		}
		if code == templates.FallbackRA {
			if c.Tree == models.TreeFallback || (c.Step != models.StepAwaitingDay && c.Step != models.StepAwaitingTime) {
				return "no longer undecided"
			}
		} else if c.Tree != models.TreeFallback {
			return "left fallback tree"
		}

	case templates.IsReminder(code):
		if c.Step != models.StepSlotConfirmed || c.ChosenSlot != m.SlotCode {
			return "slot changed"
		}
		if reminderSent(c, code) {
			return "already sent"
		}

	case templates.IsSales(code):
		if c.IsMember() {
			return "member"
		}
		if c.Tree != models.TreePrimary {
			return "not on primary tree"
		}
		if m.SlotCode != "" && c.ChosenSlot != m.SlotCode {
			return "slot changed"
		}
		if c.Step != models.StepSlotConfirmed && c.Step != models.StepSalesOffered {
			return "not in sales"
		}

	case code == templates.Reinvite:
		if c.IsMember() {
			return "member"
		}
	}
	return ""
}

func reminderSent(c *models.Contact, code string) bool {
	switch code {
	case templates.Reminder12H:
		return c.Reminder12hSent
	case templates.Reminder60M:
		return c.Reminder60mSent
	case templates.Reminder10M:
		return c.Reminder10mSent
	}
	return false
}

func (x *Dispatcher) afterSend(ctx context.Context, c *models.Contact, m models.ScheduledMessage, now time.Time, log zerolog.Logger) {
	switch m.TemplateCode {
	case templates.FallbackRA:
		c.Tree = models.TreeFallback
		c.Step = models.StepFallbackEntered
		if _, err := x.d.Scheduler.ScheduleFallbackFollowups(ctx, c.Key, now); err != nil {
			log.Warn().Err(err).Msg("schedule fallback followups failed")
		}
	case templates.Reminder12H:
		c.Reminder12hSent = true
	case templates.Reminder60M:
		c.Reminder60mSent = true
	case templates.Reminder10M:
		c.Reminder10mSent = true
	case templates.SalesS1:
		c.Step = models.StepSalesOffered
	case templates.Reinvite:
		if _, err := x.d.Scheduler.CancelCascade(ctx, c.Key, "reinvited"); err != nil {
			log.Warn().Err(err).Msg("cancel cascade failed")
		}
		c.Tree = models.TreePrimary
		c.Step = models.StepAwaitingDay
		c.SelectedDay, c.ChosenSlot, c.NextSessionAt = "", "", nil
		c.ThumbsUp = false
		c.Reminder12hSent, c.Reminder60mSent, c.Reminder10mSent = false, false, false
	default:
		return
	}
	if err := x.d.Store.UpsertContact(ctx, c); err != nil {
		log.Warn().Err(err).Msg("save contact failed")
	}
}

func (x *Dispatcher) cancel(ctx context.Context, m models.ScheduledMessage, reason string, log zerolog.Logger) {
	log.Info().Str("reason", reason).Msg("scheduled message cancelled")
	x.setStatus(ctx, m.ID, models.StatusCancelled, nil, reason, log)
}

func (x *Dispatcher) setStatus(ctx context.Context, id string, st models.ScheduledStatus, sentAt *time.Time, reason string, log zerolog.Logger) {
	if err := x.d.Store.SetScheduledStatus(ctx, id, st, sentAt, reason); err != nil {
		log.Error().Err(err).Str("status", string(st)).Msg("update status failed")
	}
}
