package sender

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Sender delivers one rendered text to a contact.
type Sender interface {
	Send(ctx context.Context, to, text string) (Result, error)
}

// Result carries what the API returned, for the audit log.
type Result struct {
	MessageID string
	Status    int
	Raw       string
}

type Options struct {
	BaseURL string // e.g. https://graph.facebook.com/v20.0
	PhoneID string
	Token   string
	Timeout time.Duration
	Retries int
	Backoff time.Duration
	Logger  zerolog.Logger
}

// CloudClient talks to the WhatsApp Cloud API.
type CloudClient struct {
	http    *resty.Client
	phoneID string
	log     zerolog.Logger
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func NewCloudClient(o Options) (*CloudClient, error) {
	if o.Token == "" || o.PhoneID == "" {
		return nil, fmt.Errorf("sender: access token and phone number id are required")
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Backoff <= 0 {
		o.Backoff = 2 * time.Second
	}
	hc := resty.New().
		SetBaseURL(strings.TrimRight(o.BaseURL, "/")).
		SetAuthToken(o.Token).
		SetHeader("Content-Type", "application/json").
		SetTimeout(o.Timeout).
		SetRetryCount(o.Retries).
		SetRetryWaitTime(o.Backoff).
		SetRetryMaxWaitTime(4 * o.Backoff).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == 429 || r.StatusCode() >= 500
		})
	return &CloudClient{http: hc, phoneID: o.PhoneID, log: o.Logger}, nil
}

func (c *CloudClient) Send(ctx context.Context, to, text string) (Result, error) {
	body := map[string]any{
		"messaging_product": "whatsapp",
		"to":                strings.TrimPrefix(to, "+"),
		"type":              "text",
		"text":              map[string]any{"body": text},
	}
	var out sendResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/" + c.phoneID + "/messages")
	if err != nil {
		c.log.Warn().Err(err).Str("to", to).Msg("send request failed")
		return Result{}, fmt.Errorf("sender: post: %w", err)
	}
	res := Result{Status: resp.StatusCode(), Raw: resp.String()}
	if resp.IsError() {
		c.log.Warn().Int("status", resp.StatusCode()).Str("to", to).Str("body", resp.String()).Msg("send rejected")
		return res, fmt.Errorf("sender: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(out.Messages) > 0 {
		res.MessageID = out.Messages[0].ID
	}
	return res, nil
}

// LogSender writes messages to the log instead of sending. Used when no
// API credentials are configured.
type LogSender struct {
	Log zerolog.Logger
}

func (s LogSender) Send(_ context.Context, to, text string) (Result, error) {
	s.Log.Info().Str("to", to).Int("len", len(text)).Msg("dry-run send")
	return Result{MessageID: "dry-run", Status: 200}, nil
}
