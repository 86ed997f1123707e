package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/innerjoy/funnel/internal/keylock"
	"github.com/innerjoy/funnel/internal/models"
	"github.com/innerjoy/funnel/internal/schedule"
	"github.com/innerjoy/funnel/internal/sender"
	"github.com/innerjoy/funnel/internal/slots"
	"github.com/innerjoy/funnel/internal/store"
	"github.com/innerjoy/funnel/internal/templates"
	"github.com/innerjoy/funnel/internal/window"
)

var ErrBadStatus = errors.New("flow: unsupported status")

const (
	thumbsUp        = "👍"
	alreadyAttended = "already attended"
)

type Outcome string

const (
	Processed    Outcome = "processed"
	Ignored      Outcome = "ignored"
	OutcomeError Outcome = "error"
)

// Inbound is one normalized message from a contact.
type Inbound struct {
	ContactKey string
	Phone      string
	Text       string
	IsText     bool
	MessageID  string
	Timestamp  time.Time
}

// Result reports what Handle did. Replies lists the template codes sent.
type Result struct {
	Outcome Outcome
	Step    models.Step
	Replies []string
	Err     error
}

func (r *Result) fail(err error) {
	r.Outcome = OutcomeError
	if r.Err == nil {
		r.Err = err
	}
}

type Deps struct {
	Store         store.Store
	Sender        sender.Sender
	Composer      Composer
	Scheduler     *schedule.Scheduler
	Window        window.Policy
	Locks         *keylock.Locks
	FallbackDelay time.Duration
	Now           func() time.Time
	Log           zerolog.Logger
}

// Engine advances contacts through the enrollment conversation.
type Engine struct {
	d Deps
}

func New(d Deps) *Engine {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Locks == nil {
		d.Locks = keylock.New()
	}
	if d.FallbackDelay <= 0 {
		d.FallbackDelay = 2 * time.Hour
	}
	return &Engine{d: d}
}

// Locks is shared with the dispatcher so both serialize on the same contact.
func (e *Engine) Locks() *keylock.Locks { return e.d.Locks }

// Handle applies one inbound message. It never panics on storage errors;
// they are logged and the conversation continues with the state at hand.
func (e *Engine) Handle(ctx context.Context, in Inbound) Result {
	if in.ContactKey == "" {
		return Result{Outcome: Ignored}
	}
	unlock := e.d.Locks.Lock(in.ContactKey)
	defer unlock()

	now := e.d.Now()
	log := e.d.Log.With().Str("contact", in.ContactKey).Logger()

	c, err := e.d.Store.GetContact(ctx, in.ContactKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c = &models.Contact{Key: in.ContactKey}
	case err != nil:
		log.Error().Err(err).Msg("load contact failed")
		return Result{Outcome: OutcomeError, Err: err}
	}
	if c.Step == "" {
		c.Tree = models.TreePrimary
		c.MemberStatus = models.MemberNone
		c.Attendance = models.AttendNone
	}
	if in.Phone != "" {
		c.Phone = in.Phone
	}

	text := strings.TrimSpace(in.Text)
	if in.IsText && text != "" {
		c.Source = e.d.Window.ClassifySource(text, c.Source)
	}
	e.d.Window.Reset(c, now)

	if !in.IsText || text == "" {
		e.save(ctx, c, log)
		return Result{Outcome: Ignored, Step: c.Step}
	}
	entry := models.MessageLog{ContactKey: c.Key, Direction: models.DirIn, Content: text}
	if !in.Timestamp.IsZero() {
		// audit the time the contact sent it, not when it reached us
		entry.CreatedAt = in.Timestamp
		if lag := now.Sub(in.Timestamp); lag > time.Minute {
			log.Info().Dur("lag", lag).Msg("late delivery")
		}
	}
	e.appendLog(ctx, entry, log)

	res := Result{Outcome: Processed}
	switch {
	case text == thumbsUp:
		c.ThumbsUp = true
		e.save(ctx, c, log)
	case strings.Contains(strings.ToLower(text), alreadyAttended):
		e.attended(ctx, c, now, &res, log)
	default:
		e.transition(ctx, c, text, now, &res, log)
	}
	res.Step = c.Step
	return res
}

func (e *Engine) transition(ctx context.Context, c *models.Contact, text string, now time.Time, res *Result, log zerolog.Logger) {
	sel := slots.Normalize(text)

	switch c.Step {
	case "":
		code := templates.NameRequest
		if c.Source == models.SourceOrganic {
			code = templates.NameRequestOrganic
		}
		c.Step = models.StepAwaitingName
		e.save(ctx, c, log)
		e.reply(ctx, c, code, res, log)

	case models.StepAwaitingName:
		c.Name = ExtractName(text)
		c.Step = models.StepAwaitingDay
		e.save(ctx, c, log)
		e.reply(ctx, c, templates.DayOptions, res, log)
		if _, err := e.d.Scheduler.ScheduleFallback(ctx, c.Key, now, e.d.FallbackDelay); err != nil {
			log.Warn().Err(err).Msg("schedule fallback failed")
		}

	case models.StepAwaitingDay:
		if !slots.IsDay(sel) {
			e.reply(ctx, c, templates.DayReprompt, res, log)
			return
		}
		e.pickDay(ctx, c, sel, res, log)

	case models.StepAwaitingTime:
		if !slots.IsTime(sel) {
			e.reply(ctx, c, templates.TimeReprompt, res, log)
			return
		}
		code, err := slots.Combine(c.SelectedDay, sel)
		if err != nil {
			// lost the day somehow; ask again
			c.Step = models.StepAwaitingDay
			e.save(ctx, c, log)
			e.reply(ctx, c, templates.DayReprompt, res, log)
			return
		}
		e.confirmSlot(ctx, c, code, now, res, log)

	case models.StepFallbackEntered, models.StepAwaitingCombined:
		switch {
		case isSlot(sel):
			e.confirmSlot(ctx, c, sel, now, res, log)
		case slots.IsDay(sel):
			e.pickDay(ctx, c, sel, res, log)
		default:
			c.Step = models.StepAwaitingCombined
			e.save(ctx, c, log)
			e.reply(ctx, c, templates.CombinedReprompt, res, log)
		}

	case models.StepSlotConfirmed:
		// only a full slot code rebooks; anything else keeps the booking
		if isSlot(sel) {
			e.confirmSlot(ctx, c, sel, now, res, log)
			return
		}
		e.save(ctx, c, log)
		log.Debug().Msg("acknowledged")

	default:
		e.save(ctx, c, log)
		log.Debug().Str("step", string(c.Step)).Msg("acknowledged")
	}
}

func isSlot(code string) bool {
	_, err := slots.Lookup(code)
	return err == nil
}

func (e *Engine) pickDay(ctx context.Context, c *models.Contact, day string, res *Result, log zerolog.Logger) {
	c.SelectedDay = day
	c.Step = models.StepAwaitingTime
	e.save(ctx, c, log)
	e.reply(ctx, c, templates.TimeOptions, res, log)
}

// confirmSlot books the next occurrence of code and replaces any pending
// fallback or cascade messages with a fresh cascade.
func (e *Engine) confirmSlot(ctx context.Context, c *models.Contact, code string, now time.Time, res *Result, log zerolog.Logger) {
	at, err := e.d.Scheduler.Calendar().NextOccurrence(code, now)
	if err != nil {
		res.fail(err)
		log.Error().Err(err).Str("slot", code).Msg("resolve slot failed")
		return
	}
	if _, err := e.d.Scheduler.CancelFallback(ctx, c.Key, "slot picked"); err != nil {
		log.Warn().Err(err).Msg("cancel fallback failed")
	}

	c.ChosenSlot = code
	c.SelectedDay = code[:1]
	c.NextSessionAt = &at
	c.Tree = models.TreePrimary
	c.Step = models.StepSlotConfirmed
	c.Reminder12hSent, c.Reminder60mSent, c.Reminder10mSent = false, false, false
	e.save(ctx, c, log)

	if e.reply(ctx, c, templates.SlotConfirmed, res, log) {
		e.reply(ctx, c, templates.InviteCard, res, log)
	}
	if _, err := e.d.Scheduler.ScheduleCascade(ctx, c.Key, code, at); err != nil {
		log.Warn().Err(err).Msg("schedule cascade failed")
	}
	log.Info().Str("slot", code).Time("session", at).Msg("slot confirmed")
}

// attended skips straight to the sales sequence for someone who already
// joined a session.
func (e *Engine) attended(ctx context.Context, c *models.Contact, now time.Time, res *Result, log zerolog.Logger) {
	if _, err := e.d.Scheduler.CancelAll(ctx, c.Key, "already attended"); err != nil {
		log.Warn().Err(err).Msg("cancel pending failed")
	}
	c.Tree = models.TreePrimary
	c.Step = models.StepSalesOffered
	c.Attendance = models.AttendYes
	e.save(ctx, c, log)

	e.reply(ctx, c, templates.SalesS1, res, log)
	if _, err := e.d.Scheduler.ScheduleSalesFrom(ctx, c.Key, now); err != nil {
		log.Warn().Err(err).Msg("schedule sales failed")
	}
}

// SetMembership records a purchase. Pending sales and fallback messages are
// dropped and a welcome goes out if the window still allows it.
func (e *Engine) SetMembership(ctx context.Context, key, status string) (*models.Contact, error) {
	var welcome string
	switch status {
	case models.MemberFull:
		welcome = templates.MemberWelcome
	case models.MemberTrial:
		welcome = templates.TrialWelcome
	case models.MemberNone:
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadStatus, status)
	}

	unlock := e.d.Locks.Lock(key)
	defer unlock()
	log := e.d.Log.With().Str("contact", key).Logger()

	c, err := e.d.Store.GetContact(ctx, key)
	if err != nil {
		return nil, err
	}
	c.MemberStatus = status
	if err := e.d.Store.UpsertContact(ctx, c); err != nil {
		return nil, err
	}
	if welcome == "" {
		return c, nil
	}
	codes := append(append([]string{}, templates.SalesCodes...), templates.FallbackCodes...)
	codes = append(codes, templates.Reinvite)
	if _, err := e.d.Store.CancelPending(ctx, key, codes, "member"); err != nil {
		log.Warn().Err(err).Msg("cancel sales failed")
	}
	if e.d.Window.IsWithin(c, e.d.Now()) {
		var res Result
		e.reply(ctx, c, welcome, &res, log)
		if res.Err != nil {
			return c, res.Err
		}
	} else {
		log.Info().Msg("window closed, welcome not sent")
	}
	return c, nil
}

func (e *Engine) SetAttendance(ctx context.Context, key, attendance string) (*models.Contact, error) {
	switch attendance {
	case models.AttendYes, models.AttendNoShow, models.AttendNone:
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadStatus, attendance)
	}
	unlock := e.d.Locks.Lock(key)
	defer unlock()

	c, err := e.d.Store.GetContact(ctx, key)
	if err != nil {
		return nil, err
	}
	c.Attendance = attendance
	if err := e.d.Store.UpsertContact(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// reply renders and sends code, logging the outbound text. It reports
// whether the message went out.
func (e *Engine) reply(ctx context.Context, c *models.Contact, code string, res *Result, log zerolog.Logger) bool {
	text, err := e.d.Composer.Render(code, c)
	if err != nil {
		log.Error().Err(err).Str("template", code).Msg("render failed")
		res.fail(err)
		return false
	}
	if _, err := e.d.Sender.Send(ctx, c.Key, text); err != nil {
		log.Error().Err(err).Str("template", code).Msg("send failed")
		res.fail(err)
		return false
	}
	res.Replies = append(res.Replies, code)
	e.appendLog(ctx, models.MessageLog{ContactKey: c.Key, Direction: models.DirOut, TemplateCode: code, Content: text}, log)
	return true
}

func (e *Engine) save(ctx context.Context, c *models.Contact, log zerolog.Logger) {
	if err := e.d.Store.UpsertContact(ctx, c); err != nil {
		log.Warn().Err(err).Msg("save contact failed")
	}
}

func (e *Engine) appendLog(ctx context.Context, m models.MessageLog, log zerolog.Logger) {
	if err := e.d.Store.AppendLog(ctx, m); err != nil {
		log.Warn().Err(err).Msg("append log failed")
	}
}
