package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/innerjoy/funnel/internal/db"
	"github.com/innerjoy/funnel/internal/models"
)

// openTestStore returns a Gorm store on a fresh SQLite file in a temp directory.
func openTestStore(t *testing.T) *Gorm {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "test.db"), db.Silent())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return NewGorm(gdb)
}

func TestUpsertContact_CreateThenUpdate(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, err := s.GetContact(ctx, "+66800000001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	c := &models.Contact{Key: "+66800000001", Step: models.StepAwaitingName, Tree: models.TreePrimary}
	if err := s.UpsertContact(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	// A second upsert with a fresh struct and the same key must update, not duplicate.
	again := &models.Contact{Key: "+66800000001", Name: "Maria", Step: models.StepAwaitingDay}
	if err := s.UpsertContact(ctx, again); err != nil {
		t.Fatalf("update: %v", err)
	}
	if again.ID != c.ID {
		t.Errorf("want same row id %d, got %d", c.ID, again.ID)
	}

	got, err := s.GetContact(ctx, "+66800000001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Maria" || got.Step != models.StepAwaitingDay {
		t.Errorf("want Maria/awaiting_day, got %s/%s", got.Name, got.Step)
	}
}

func TestUpsertContact_StoresTimesInUTC(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	ict := time.FixedZone("ICT", 7*3600)
	exp := time.Date(2024, 6, 1, 20, 0, 0, 0, ict)

	c := &models.Contact{Key: "+66800000002", WindowExpiresAt: &exp}
	if err := s.UpsertContact(ctx, c); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetContact(ctx, c.Key)
	if got.WindowExpiresAt == nil || !got.WindowExpiresAt.Equal(exp) {
		t.Errorf("want %s, got %v", exp, got.WindowExpiresAt)
	}
}

func seed(t *testing.T, s *Gorm, key string, at time.Time, codes ...string) []models.ScheduledMessage {
	t.Helper()
	var msgs []models.ScheduledMessage
	for i, code := range codes {
		msgs = append(msgs, models.ScheduledMessage{
			ID:           key + "-" + code,
			ContactKey:   key,
			TemplateCode: code,
			ScheduledAt:  at.Add(time.Duration(i) * time.Minute),
			Status:       models.StatusPending,
		})
	}
	if err := s.EnqueueScheduled(context.Background(), msgs); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return msgs
}

func TestListPendingScheduled_DueOnlyAcrossZones(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	ict := time.FixedZone("ICT", 7*3600)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, ict)
	seed(t, s, "+1", base, "A", "B", "C") // 12:00, 12:01, 12:02 ICT

	// 05:01 UTC is 12:01 ICT: two rows due.
	due, err := s.ListPendingScheduled(ctx, time.Date(2024, 6, 1, 5, 1, 0, 0, time.UTC), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 {
		t.Fatalf("want 2 due rows, got %d", len(due))
	}
	if due[0].TemplateCode != "A" || due[1].TemplateCode != "B" {
		t.Errorf("want A,B in order, got %s,%s", due[0].TemplateCode, due[1].TemplateCode)
	}
}

func TestClaimScheduled_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	msgs := seed(t, s, "+1", time.Now(), "A")

	ok, err := s.ClaimScheduled(ctx, msgs[0].ID, time.Now())
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = s.ClaimScheduled(ctx, msgs[0].ID, time.Now())
	if err != nil || ok {
		t.Fatalf("second claim must lose: ok=%v err=%v", ok, err)
	}

	now := time.Now()
	if err := s.SetScheduledStatus(ctx, msgs[0].ID, models.StatusSent, &now, ""); err != nil {
		t.Fatal(err)
	}
	rows, _ := s.ListScheduledFor(ctx, "+1")
	if rows[0].Status != models.StatusSent || rows[0].SentAt == nil {
		t.Errorf("want sent with sent_at, got %s %v", rows[0].Status, rows[0].SentAt)
	}
}

func TestCancelPending_ByCodes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now()
	seed(t, s, "+1", now, "FALLBACK_RA", "REMINDER_12H")
	seed(t, s, "+2", now, "FALLBACK_RA")

	n, err := s.CancelPending(ctx, "+1", []string{"FALLBACK_RA"}, "slot picked")
	if err != nil || n != 1 {
		t.Fatalf("want 1 cancelled, got %d (%v)", n, err)
	}
	rows, _ := s.ListScheduledFor(ctx, "+1")
	for _, r := range rows {
		want := models.StatusPending
		if r.TemplateCode == "FALLBACK_RA" {
			want = models.StatusCancelled
		}
		if r.Status != want {
			t.Errorf("%s: want %s, got %s", r.TemplateCode, want, r.Status)
		}
	}
	other, _ := s.ListScheduledFor(ctx, "+2")
	if other[0].Status != models.StatusPending {
		t.Error("another contact's row was cancelled")
	}

	if n, _ := s.CancelPending(ctx, "+1", nil, "all"); n != 1 {
		t.Errorf("cancel all: want 1 remaining row cancelled, got %d", n)
	}
}

func TestAppendLog_Truncates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	long := strings.Repeat("é", 600)
	if err := s.AppendLog(ctx, models.MessageLog{ContactKey: "+1", Direction: models.DirIn, Content: long}); err != nil {
		t.Fatal(err)
	}
	var got models.MessageLog
	s.db.First(&got)
	if n := len([]rune(got.Content)); n != 500 {
		t.Errorf("want 500 runes, got %d", n)
	}
}

func TestStatsAndReinviteCandidates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	past := time.Now().Add(-48 * time.Hour)
	future := time.Now().Add(48 * time.Hour)

	for _, c := range []*models.Contact{
		{Key: "+1", Step: models.StepSlotConfirmed, NextSessionAt: &past, MemberStatus: models.MemberNone, Attendance: models.AttendNoShow},
		{Key: "+2", Step: models.StepSalesOffered, NextSessionAt: &past, MemberStatus: models.MemberFull, Attendance: models.AttendYes},
		{Key: "+3", Step: models.StepSlotConfirmed, NextSessionAt: &future, MemberStatus: models.MemberNone, ThumbsUp: true},
		{Key: "+4", Step: models.StepAwaitingDay, MemberStatus: models.MemberNone},
	} {
		if err := s.UpsertContact(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	seed(t, s, "+1", time.Now(), "A", "B")

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Contacts != 4 || st.ByStep[string(models.StepSlotConfirmed)] != 2 {
		t.Errorf("unexpected step counts: %+v", st)
	}
	if st.ByStatus[string(models.StatusPending)] != 2 {
		t.Errorf("want 2 pending, got %d", st.ByStatus[string(models.StatusPending)])
	}
	if st.Members != 1 || st.Attended != 1 || st.NoShow != 1 || st.ThumbsUps != 1 {
		t.Errorf("unexpected flag counts: %+v", st)
	}

	cands, err := s.ListReinviteCandidates(ctx, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 || cands[0].Key != "+1" {
		t.Errorf("want only +1, got %+v", cands)
	}
}

func TestReleaseStale_OnlyExpiredClaims(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	msgs := seed(t, s, "+2", now, "OLD", "FRESH", "SENT")

	s.ClaimScheduled(ctx, msgs[0].ID, now.Add(-30*time.Minute))
	s.ClaimScheduled(ctx, msgs[1].ID, now.Add(-time.Minute))
	s.ClaimScheduled(ctx, msgs[2].ID, now.Add(-30*time.Minute))
	if err := s.SetScheduledStatus(ctx, msgs[2].ID, models.StatusSent, &now, ""); err != nil {
		t.Fatal(err)
	}

	n, err := s.ReleaseStale(ctx, now.Add(-10*time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("want 1 released, got %d (%v)", n, err)
	}
	want := map[string]models.ScheduledStatus{
		"OLD":   models.StatusPending,
		"FRESH": models.StatusProcessing,
		"SENT":  models.StatusSent,
	}
	rows, _ := s.ListScheduledFor(ctx, "+2")
	for _, r := range rows {
		if r.Status != want[r.TemplateCode] {
			t.Errorf("%s: want %s, got %s", r.TemplateCode, want[r.TemplateCode], r.Status)
		}
	}
	if ok, _ := s.ClaimScheduled(ctx, msgs[0].ID, now); !ok {
		t.Error("released row should be claimable again")
	}
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	var s Store = Nop{}
	if _, err := s.GetContact(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
	if err := s.UpsertContact(ctx, &models.Contact{}); err != nil {
		t.Errorf("upsert: %v", err)
	}
	if ok, _ := s.ClaimScheduled(ctx, "x", time.Now()); ok {
		t.Error("nop claim must not succeed")
	}
}
