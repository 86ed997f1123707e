package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/innerjoy/funnel/internal/models"
	"github.com/innerjoy/funnel/internal/templates"
)

// EnqueueReinvites queues a REINVITE for every non-member whose session is
// over. The next sweep delivers them, subject to the usual window check.
func (x *Dispatcher) EnqueueReinvites(ctx context.Context, now time.Time) (int, error) {
	cands, err := x.d.Store.ListReinviteCandidates(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("dispatch: reinvite candidates: %w", err)
	}
	n := 0
	for _, c := range cands {
		if _, err := x.d.Store.CancelPending(ctx, c.Key, []string{templates.Reinvite}, "superseded"); err != nil {
			x.d.Log.Warn().Err(err).Str("contact", c.Key).Msg("cancel old reinvite failed")
			continue
		}
		if _, err := x.d.Scheduler.Schedule(ctx, c.Key, templates.Reinvite, models.TreePrimary, now); err != nil {
			x.d.Log.Warn().Err(err).Str("contact", c.Key).Msg("queue reinvite failed")
			continue
		}
		n++
	}
	return n, nil
}

// cronLogger routes robfig/cron's own messages into zerolog.
type cronLogger struct{ log zerolog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
