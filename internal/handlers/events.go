package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/innerjoy/funnel/internal/flow"
	"github.com/innerjoy/funnel/internal/services"
)

// event is an inbound message already normalized by an upstream relay.
type event struct {
	ContactID string `json:"contact_id"`
	Phone     string `json:"phone"`
	Type      string `json:"type"` // "text" when empty
	Text      string `json:"text"`
	MessageID string `json:"message_id"`
	Timestamp string `json:"timestamp"` // RFC 3339
}

// Events accepts one normalized event.
// POST /events
func Events(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev event
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&ev); err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"outcome": flow.Ignored, "reason": "malformed"})
			return
		}
		key, err := services.ContactKey(ev.ContactID, ev.Phone)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"outcome": flow.Ignored, "reason": "no contact"})
			return
		}
		if d.Dedupe.Seen(ev.MessageID) {
			writeJSON(w, http.StatusOK, map[string]any{"outcome": flow.Ignored, "reason": "duplicate"})
			return
		}
		ts, err := time.Parse(time.RFC3339, ev.Timestamp)
		if err != nil {
			ts = d.now()
		}
		typ := strings.ToLower(strings.TrimSpace(ev.Type))
		res := d.Engine.Handle(r.Context(), flow.Inbound{
			ContactKey: key,
			Phone:      key,
			Text:       ev.Text,
			IsText:     typ == "" || typ == "text",
			MessageID:  ev.MessageID,
			Timestamp:  ts,
		})
		body := map[string]any{"outcome": res.Outcome, "step": res.Step, "replies": res.Replies}
		if res.Err != nil {
			d.Log.Error().Err(res.Err).Str("contact", key).Msg("event handling failed")
			body["error"] = res.Err.Error()
		}
		writeJSON(w, http.StatusOK, body)
	}
}
