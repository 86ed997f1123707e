package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/innerjoy/funnel/internal/dispatch"
	"github.com/innerjoy/funnel/internal/flow"
	"github.com/innerjoy/funnel/internal/models"
	"github.com/innerjoy/funnel/internal/store"
)

// Conversation is the part of the flow engine the HTTP layer drives.
type Conversation interface {
	Handle(ctx context.Context, in flow.Inbound) flow.Result
	SetMembership(ctx context.Context, key, status string) (*models.Contact, error)
	SetAttendance(ctx context.Context, key, attendance string) (*models.Contact, error)
}

type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) dispatch.Report
}

type Deps struct {
	Engine  Conversation
	Sweeper Sweeper
	Store   store.Store
	Dedupe  *Dedupe

	VerifyToken string
	AppSecret   string
	AdminToken  string
	InviteLink  string

	Now func() time.Time
	Log zerolog.Logger
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Dedupe remembers message ids for a while so Meta's redeliveries are
// answered without running the conversation twice.
type Dedupe struct {
	c   *cache.Cache
	ttl time.Duration
}

func NewDedupe(ttl time.Duration) *Dedupe {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Dedupe{c: cache.New(ttl, 2*ttl), ttl: ttl}
}

// Seen records id and reports whether it was already there. Empty ids are
// never considered duplicates.
func (d *Dedupe) Seen(id string) bool {
	if d == nil || id == "" {
		return false
	}
	return d.c.Add(id, struct{}{}, d.ttl) != nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Health is a liveness probe.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
