package web

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/innerjoy/funnel/internal/config"
	"github.com/innerjoy/funnel/internal/db"
	"github.com/innerjoy/funnel/internal/dispatch"
	"github.com/innerjoy/funnel/internal/flow"
	"github.com/innerjoy/funnel/internal/handlers"
	"github.com/innerjoy/funnel/internal/keylock"
	"github.com/innerjoy/funnel/internal/schedule"
	"github.com/innerjoy/funnel/internal/sender"
	"github.com/innerjoy/funnel/internal/slots"
	"github.com/innerjoy/funnel/internal/store"
	"github.com/innerjoy/funnel/internal/templates"
	"github.com/innerjoy/funnel/internal/window"
)

const (
	secret     = "app-secret"
	adminToken = "s3cret"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) Send(_ context.Context, _, text string) (sender.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return sender.Result{MessageID: "wamid.out"}, nil
}

func newTestRouter(t *testing.T) (http.Handler, *fakeSender) {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "test.db"), db.Silent())
	if err != nil {
		t.Fatalf("db open: %v", err)
	}
	st := store.NewGorm(gdb)
	cal := slots.New(time.FixedZone("ICT", 7*3600))
	snd := &fakeSender{}
	locks := keylock.New()
	composer := flow.Composer{
		Templates: templates.Default(),
		Calendar:  cal,
		Links: config.Links{
			Zoom:         "https://zoom.example/j/1",
			ZoomDownload: "https://zoom.example/download",
			Membership:   "https://innerjoy.example/join",
			Trial:        "https://innerjoy.example/trial",
			MemberZoom:   "https://zoom.example/j/members",
			YouTube:      "https://youtube.example/innerjoy",
			SenderName:   "Ineke",
		},
		InviteLink: "https://wa.me/66800000000?text=free%20Zoom%20preview%20link",
	}
	policy := window.Policy{TriggerPhrase: "free Zoom preview link", Organic: 24 * time.Hour, PaidAd: 72 * time.Hour}
	sched := schedule.New(st, cal, 30*time.Minute, zerolog.Nop())

	eng := flow.New(flow.Deps{
		Store: st, Sender: snd, Composer: composer, Scheduler: sched,
		Window: policy, Locks: locks, Log: zerolog.Nop(),
	})
	disp := dispatch.New(dispatch.Deps{
		Store: st, Sender: snd, Composer: composer, Scheduler: sched,
		Window: policy, Locks: locks, Log: zerolog.Nop(),
	}, dispatch.Options{})

	return Router(handlers.Deps{
		Engine:      eng,
		Sweeper:     disp,
		Store:       st,
		Dedupe:      handlers.NewDedupe(time.Minute),
		VerifyToken: "verify-me",
		AppSecret:   secret,
		AdminToken:  adminToken,
		InviteLink:  composer.InviteLink,
		Log:         zerolog.Nop(),
	}), snd
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func textPayload(from, id, text string) []byte {
	b, _ := json.Marshal(map[string]any{
		"object": "whatsapp_business_account",
		"entry": []any{map[string]any{
			"id": "1",
			"changes": []any{map[string]any{
				"field": "messages",
				"value": map[string]any{
					"messages": []any{map[string]any{
						"from": from, "id": id, "timestamp": "1717200000",
						"type": "text", "text": map[string]any{"body": text},
					}},
				},
			}},
		}},
	})
	return b
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func postWebhook(t *testing.T, h http.Handler, body []byte, sig string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set("X-Hub-Signature-256", sig)
	}
	return do(t, h, req)
}

func TestRouterHealthz(t *testing.T) {
	r, _ := newTestRouter(t)
	rec, _ := do(t, r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestWebhookVerify(t *testing.T) {
	r, _ := newTestRouter(t)
	rec, _ := do(t, r, httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil))
	if rec.Code != 200 || rec.Body.String() != "12345" {
		t.Errorf("want challenge echoed, got %d %q", rec.Code, rec.Body.String())
	}
	rec, _ = do(t, r, httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=12345", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("want 403 for wrong token, got %d", rec.Code)
	}
}

func TestWebhook_SignatureAndDedupe(t *testing.T) {
	r, snd := newTestRouter(t)
	body := textPayload("66812345678", "wamid.1", "hello")

	rec, _ := postWebhook(t, r, body, "sha256=00")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("want 403 for bad signature, got %d", rec.Code)
	}

	rec, out := postWebhook(t, r, body, sign(body))
	if rec.Code != 200 || out["outcome"] != "processed" {
		t.Fatalf("want processed, got %d %v", rec.Code, out)
	}
	if len(snd.sent) != 1 || !strings.Contains(snd.sent[0], "Ineke") {
		t.Errorf("want the name request, got %v", snd.sent)
	}

	// Meta redelivers the same message id
	_, out = postWebhook(t, r, body, sign(body))
	if out["outcome"] != "ignored" {
		t.Errorf("duplicate: want ignored, got %v", out["outcome"])
	}
	if len(snd.sent) != 1 {
		t.Errorf("duplicate produced a reply")
	}
}

func TestWebhook_NonMessagePayloads(t *testing.T) {
	r, _ := newTestRouter(t)
	statuses := []byte(`{"object":"whatsapp_business_account","entry":[{"changes":[{"field":"messages","value":{"statuses":[{"id":"wamid.x","status":"read"}]}}]}]}`)
	rec, out := postWebhook(t, r, statuses, sign(statuses))
	if rec.Code != 200 || out["outcome"] != "ignored" {
		t.Errorf("status update: want 200 ignored, got %d %v", rec.Code, out)
	}

	junk := []byte(`{not json`)
	rec, out = postWebhook(t, r, junk, sign(junk))
	if rec.Code != 200 || out["outcome"] != "ignored" {
		t.Errorf("malformed: want 200 ignored, got %d %v", rec.Code, out)
	}

	img := []byte(`{"entry":[{"changes":[{"value":{"messages":[{"from":"66812345678","id":"wamid.2","type":"image"}]}}]}]}`)
	_, out = postWebhook(t, r, img, sign(img))
	if out["outcome"] != "ignored" {
		t.Errorf("image: want ignored, got %v", out["outcome"])
	}
}

func TestEvents(t *testing.T) {
	r, _ := newTestRouter(t)
	post := func(body string) map[string]any {
		_, out := do(t, r, httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body)))
		return out
	}

	out := post(`{"contact_id":"+66 81 234 5678","text":"Please send the free Zoom preview link","message_id":"e1"}`)
	if out["outcome"] != "processed" || out["step"] != "awaiting_name" {
		t.Errorf("want processed at awaiting_name, got %v", out)
	}
	if out := post(`{"contact_id":"nobody","text":"hi"}`); out["outcome"] != "ignored" {
		t.Errorf("bad identity: want ignored, got %v", out)
	}
	if out := post(`[1,2`); out["outcome"] != "ignored" {
		t.Errorf("malformed: want ignored, got %v", out)
	}
}

func TestAdminRoutes(t *testing.T) {
	r, _ := newTestRouter(t)
	body := textPayload("66812345678", "wamid.9", "hello")
	postWebhook(t, r, body, sign(body))

	admin := func(method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+adminToken)
		return do(t, r, req)
	}

	rec, _ := do(t, r, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 without token, got %d", rec.Code)
	}

	rec, out := admin(http.MethodGet, "/admin/stats", "")
	if rec.Code != 200 || out["contacts"] != float64(1) {
		t.Errorf("stats: want 1 contact, got %d %v", rec.Code, out)
	}

	rec, out = admin(http.MethodGet, "/admin/contacts/66812345678", "")
	if rec.Code != 200 {
		t.Fatalf("contact: want 200, got %d", rec.Code)
	}
	if c, _ := out["contact"].(map[string]any); c["Step"] != "awaiting_name" {
		t.Errorf("contact: want awaiting_name, got %v", out["contact"])
	}
	if rec, _ := admin(http.MethodGet, "/admin/contacts/+100000000", ""); rec.Code != 404 {
		t.Errorf("unknown contact: want 404, got %d", rec.Code)
	}

	if rec, _ := admin(http.MethodPost, "/admin/contacts/+66812345678/membership", `{"status":"gold"}`); rec.Code != 400 {
		t.Errorf("bad status: want 400, got %d", rec.Code)
	}
	rec, out = admin(http.MethodPost, "/admin/contacts/+66812345678/membership", `{"status":"member"}`)
	if rec.Code != 200 || out["MemberStatus"] != "member" {
		t.Errorf("membership: got %d %v", rec.Code, out)
	}
	rec, out = admin(http.MethodPost, "/admin/contacts/+66812345678/attendance", `{"attendance":"no_show"}`)
	if rec.Code != 200 || out["Attendance"] != "no_show" {
		t.Errorf("attendance: got %d %v", rec.Code, out)
	}

	rec, out = admin(http.MethodPost, "/admin/dispatch/run", "")
	if rec.Code != 200 || out["due"] != float64(0) {
		t.Errorf("dispatch run: got %d %v", rec.Code, out)
	}
}

func TestInviteQR(t *testing.T) {
	r, _ := newTestRouter(t)
	rec, _ := do(t, r, httptest.NewRequest(http.MethodGet, "/invite/qr.png", nil))
	if rec.Code != 200 || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("want png, got %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}
}
