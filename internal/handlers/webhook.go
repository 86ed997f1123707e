package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/innerjoy/funnel/internal/flow"
	"github.com/innerjoy/funnel/internal/services"
)

const maxBody = 1 << 20

// cloudPayload is the subset of the WhatsApp Cloud API webhook we read.
type cloudPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []cloudMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type cloudMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
	Button struct {
		Text string `json:"text"`
	} `json:"button"`
	Interactive struct {
		ButtonReply struct {
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply struct {
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

// body returns the user-visible text and whether the message counts as text.
// Quick-reply buttons are treated as typed text.
func (m cloudMessage) body() (string, bool) {
	switch strings.ToLower(strings.TrimSpace(m.Type)) {
	case "text":
		return m.Text.Body, true
	case "button":
		return m.Button.Text, true
	case "interactive":
		if t := m.Interactive.ButtonReply.Title; t != "" {
			return t, true
		}
		return m.Interactive.ListReply.Title, m.Interactive.ListReply.Title != ""
	}
	return "", false
}

func parseUnix(s string) time.Time {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.Unix(n, 0)
}

// WebhookVerify answers Meta's subscription handshake.
// GET /webhook?hub.mode=subscribe&hub.verify_token=...&hub.challenge=...
func WebhookVerify(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if d.VerifyToken == "" || q.Get("hub.mode") != "subscribe" ||
			q.Get("hub.verify_token") != d.VerifyToken || q.Get("hub.challenge") == "" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
	}
}

// Webhook handles inbound Cloud API notifications. It answers 200 for
// anything it could read so Meta does not redeliver; only a bad signature
// is refused.
func Webhook(d Deps) http.HandlerFunc {
	log := d.Log.With().Str("handler", "webhook").Logger()
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"outcome": flow.Ignored})
			return
		}
		if d.AppSecret != "" && !validSignature(d.AppSecret, r.Header.Get("X-Hub-Signature-256"), raw) {
			log.Warn().Str("ip", r.RemoteAddr).Msg("bad webhook signature")
			writeError(w, http.StatusForbidden, "bad signature")
			return
		}

		var p cloudPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			log.Info().Err(err).Msg("unreadable webhook payload")
			writeJSON(w, http.StatusOK, map[string]any{"outcome": flow.Ignored})
			return
		}

		var outcomes []flow.Outcome
		for _, e := range p.Entry {
			for _, ch := range e.Changes {
				if ch.Field != "" && ch.Field != "messages" {
					continue
				}
				for _, m := range ch.Value.Messages {
					// status callbacks and other notices carry no messages
					outcomes = append(outcomes, handleOne(r, d, m))
				}
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"outcome": combine(outcomes), "messages": len(outcomes)})
	}
}

func handleOne(r *http.Request, d Deps, m cloudMessage) flow.Outcome {
	key, err := services.ContactKey(m.From)
	if err != nil {
		d.Log.Info().Str("from", m.From).Msg("message without a usable sender")
		return flow.Ignored
	}
	if d.Dedupe.Seen(m.ID) {
		d.Log.Debug().Str("id", m.ID).Msg("duplicate message")
		return flow.Ignored
	}
	text, isText := m.body()
	ts := parseUnix(m.Timestamp)
	if ts.IsZero() {
		ts = d.now()
	}
	res := d.Engine.Handle(r.Context(), flow.Inbound{
		ContactKey: key,
		Phone:      key,
		Text:       text,
		IsText:     isText,
		MessageID:  m.ID,
		Timestamp:  ts,
	})
	if res.Err != nil {
		d.Log.Error().Err(res.Err).Str("contact", key).Msg("message handling failed")
	}
	return res.Outcome
}

// combine folds per-message outcomes: any error wins, then any processed.
func combine(outs []flow.Outcome) flow.Outcome {
	out := flow.Ignored
	for _, o := range outs {
		switch o {
		case flow.OutcomeError:
			return flow.OutcomeError
		case flow.Processed:
			out = flow.Processed
		}
	}
	return out
}

// validSignature checks X-Hub-Signature-256: sha256=<hex of HMAC(body)>.
func validSignature(secret, header string, body []byte) bool {
	sig := strings.TrimSpace(header)
	if !strings.HasPrefix(sig, "sha256=") {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(sig, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}
