// Package messaging implements the outbound channel senders: Twilio for
// SMS/WhatsApp replies with media, and the Meta WhatsApp Cloud API.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nviv/nviv/internal/log"
)

// ErrNotConfigured indicates a sender is missing its credentials.
var ErrNotConfigured = errors.New("messaging: credentials not configured")

const twilioAPIBase = "https://api.twilio.com"

// TwilioConfig holds Twilio REST credentials.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string

	// StatusCallback, when set, is passed on every outbound message so
	// Twilio reports delivery transitions back to us.
	StatusCallback string

	// BaseURL overrides the Twilio API host in tests.
	BaseURL string

	HTTPClient *http.Client
	Logger     log.Logger
}

// Twilio sends messages through the Twilio REST API.
type Twilio struct {
	cfg    TwilioConfig
	client *http.Client
	logger log.Logger
}

// TwilioMessage is the subset of Twilio's create-message response we use.
type TwilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// NewTwilio creates a Twilio sender. A sender with missing credentials is
// still constructed; Send reports ErrNotConfigured.
func NewTwilio(cfg TwilioConfig) *Twilio {
	if cfg.BaseURL == "" {
		cfg.BaseURL = twilioAPIBase
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Twilio{cfg: cfg, client: client, logger: logger}
}

// Configured reports whether the sender has full credentials.
func (t *Twilio) Configured() bool {
	return t.cfg.AccountSID != "" && t.cfg.AuthToken != "" && t.cfg.FromNumber != ""
}

// Send delivers a message, optionally with media attachments. Either body
// or media may be empty, not both.
func (t *Twilio) Send(ctx context.Context, to, body string, mediaURLs ...string) (*TwilioMessage, error) {
	if !t.Configured() {
		return nil, fmt.Errorf("%w: Twilio account SID, auth token, or from number missing", ErrNotConfigured)
	}
	if body == "" && len(mediaURLs) == 0 {
		return nil, errors.New("messaging: empty message")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.cfg.FromNumber)
	if body != "" {
		form.Set("Body", body)
	}
	for _, m := range mediaURLs {
		form.Add("MediaUrl", m)
	}
	if t.cfg.StatusCallback != "" {
		form.Set("StatusCallback", t.cfg.StatusCallback)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(t.cfg.BaseURL, "/"), t.cfg.AccountSID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building Twilio request: %w", err)
	}
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending Twilio message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("Twilio API returned %d: %s", resp.StatusCode, detail)
	}

	var msg TwilioMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decoding Twilio response: %w", err)
	}

	t.logger.Info("Twilio message sent", "sid", msg.SID, "status", msg.Status, "media", len(mediaURLs))
	return &msg, nil
}
