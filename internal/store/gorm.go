package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/innerjoy/funnel/internal/models"
)

// Gorm is the SQLite-backed Store.
type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm { return &Gorm{db: db} }

func (s *Gorm) GetContact(ctx context.Context, key string) (*models.Contact, error) {
	var c models.Contact
	err := s.db.WithContext(ctx).Where("contact_key = ?", key).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get contact: %w", err)
	}
	return &c, nil
}

func (s *Gorm) UpsertContact(ctx context.Context, c *models.Contact) error {
	tx := s.db.WithContext(ctx)
	if c.ID == 0 {
		var existing models.Contact
		err := tx.Select("id", "created_at").Where("contact_key = ?", c.Key).First(&existing).Error
		switch {
		case err == nil:
			c.ID = existing.ID
			c.CreatedAt = existing.CreatedAt
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("store: upsert lookup: %w", err)
		}
	}
	// Stored timestamps are compared as text by SQLite; keep them all in UTC.
	c.NextSessionAt = utc(c.NextSessionAt)
	c.LastInboundAt = utc(c.LastInboundAt)
	c.WindowExpiresAt = utc(c.WindowExpiresAt)
	if err := tx.Save(c).Error; err != nil {
		return fmt.Errorf("store: upsert contact: %w", err)
	}
	return nil
}

func (s *Gorm) EnqueueScheduled(ctx context.Context, msgs []models.ScheduledMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	rows := make([]models.ScheduledMessage, len(msgs))
	for i, m := range msgs {
		m.ScheduledAt = m.ScheduledAt.UTC()
		rows[i] = m
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("store: enqueue: %w", err)
	}
	return nil
}

func (s *Gorm) CancelPending(ctx context.Context, key string, codes []string, reason string) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.ScheduledMessage{}).
		Where("contact_key = ? AND status = ?", key, models.StatusPending)
	if len(codes) > 0 {
		q = q.Where("template_code IN ?", codes)
	}
	res := q.Updates(map[string]any{"status": models.StatusCancelled, "reason": reason})
	if res.Error != nil {
		return 0, fmt.Errorf("store: cancel pending: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Gorm) ListPendingScheduled(ctx context.Context, dueBefore time.Time, limit int) ([]models.ScheduledMessage, error) {
	var out []models.ScheduledMessage
	q := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", models.StatusPending, dueBefore.UTC()).
		Order("scheduled_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list pending: %w", err)
	}
	return out, nil
}

func (s *Gorm) ListScheduledFor(ctx context.Context, key string) ([]models.ScheduledMessage, error) {
	var out []models.ScheduledMessage
	err := s.db.WithContext(ctx).Where("contact_key = ?", key).
		Order("scheduled_at ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: list scheduled: %w", err)
	}
	return out, nil
}

func (s *Gorm) ClaimScheduled(ctx context.Context, id string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.ScheduledMessage{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(map[string]any{"status": models.StatusProcessing, "claimed_at": at.UTC()})
	if res.Error != nil {
		return false, fmt.Errorf("store: claim %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Gorm) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.ScheduledMessage{}).
		Where("status = ? AND (claimed_at IS NULL OR claimed_at < ?)", models.StatusProcessing, claimedBefore.UTC()).
		Updates(map[string]any{"status": models.StatusPending, "claimed_at": nil, "reason": "claim expired"})
	if res.Error != nil {
		return 0, fmt.Errorf("store: release stale: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Gorm) SetScheduledStatus(ctx context.Context, id string, status models.ScheduledStatus, sentAt *time.Time, reason string) error {
	err := s.db.WithContext(ctx).Model(&models.ScheduledMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "sent_at": utc(sentAt), "reason": reason}).Error
	if err != nil {
		return fmt.Errorf("store: set status %s: %w", id, err)
	}
	return nil
}

func (s *Gorm) AppendLog(ctx context.Context, e models.MessageLog) error {
	e.ID = 0
	e.Content = Truncate(e.Content)
	if !e.CreatedAt.IsZero() {
		e.CreatedAt = e.CreatedAt.UTC()
	}
	if err := s.db.WithContext(ctx).Create(&e).Error; err != nil {
		return fmt.Errorf("store: append log: %w", err)
	}
	return nil
}

func (s *Gorm) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByStep: map[string]int64{}, ByStatus: map[string]int64{}}
	db := s.db.WithContext(ctx)

	type bucket struct {
		K string
		N int64
	}
	var steps []bucket
	if err := db.Model(&models.Contact{}).Select("step AS k, COUNT(*) AS n").Group("step").Scan(&steps).Error; err != nil {
		return st, fmt.Errorf("store: stats steps: %w", err)
	}
	for _, b := range steps {
		st.ByStep[b.K] = b.N
		st.Contacts += b.N
	}

	var statuses []bucket
	if err := db.Model(&models.ScheduledMessage{}).Select("status AS k, COUNT(*) AS n").Group("status").Scan(&statuses).Error; err != nil {
		return st, fmt.Errorf("store: stats scheduled: %w", err)
	}
	for _, b := range statuses {
		st.ByStatus[b.K] = b.N
	}

	// One pass for the flag counters.
	var flags struct {
		Members   int64
		Attended  int64
		NoShow    int64
		ThumbsUps int64
	}
	err := db.Model(&models.Contact{}).Select(`
		COALESCE(SUM(CASE WHEN member_status IN ('member','trial') THEN 1 ELSE 0 END), 0) AS members,
		COALESCE(SUM(CASE WHEN attendance = 'attended' THEN 1 ELSE 0 END), 0) AS attended,
		COALESCE(SUM(CASE WHEN attendance = 'no_show'  THEN 1 ELSE 0 END), 0) AS no_show,
		COALESCE(SUM(CASE WHEN thumbs_up THEN 1 ELSE 0 END), 0) AS thumbs_ups`).Scan(&flags).Error
	if err != nil {
		return st, fmt.Errorf("store: stats flags: %w", err)
	}
	st.Members, st.Attended, st.NoShow, st.ThumbsUps = flags.Members, flags.Attended, flags.NoShow, flags.ThumbsUps
	return st, nil
}

func (s *Gorm) ListReinviteCandidates(ctx context.Context, sessionBefore time.Time) ([]models.Contact, error) {
	var out []models.Contact
	err := s.db.WithContext(ctx).
		Where("(member_status IS NULL OR member_status NOT IN ?)", []string{models.MemberFull, models.MemberTrial}).
		Where("next_session_at IS NOT NULL AND next_session_at < ?", sessionBefore.UTC()).
		Where("step IN ?", []models.Step{models.StepSlotConfirmed, models.StepSalesOffered}).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: reinvite candidates: %w", err)
	}
	return out, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
