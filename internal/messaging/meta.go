package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nviv/nviv/internal/log"
)

const metaGraphBase = "https://graph.facebook.com/v18.0"

// maxMediaDownload bounds inbound media size (voice notes).
const maxMediaDownload = 25 << 20

// MetaConfig holds WhatsApp Cloud API credentials.
type MetaConfig struct {
	AccessToken   string
	PhoneNumberID string

	// BaseURL overrides the Graph API host in tests.
	BaseURL string

	HTTPClient *http.Client
	Logger     log.Logger
}

// Meta sends and fetches WhatsApp messages via the Meta Graph API.
type Meta struct {
	cfg    MetaConfig
	client *http.Client
	logger log.Logger
}

// NewMeta creates a Meta sender.
func NewMeta(cfg MetaConfig) *Meta {
	if cfg.BaseURL == "" {
		cfg.BaseURL = metaGraphBase
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Meta{cfg: cfg, client: client, logger: logger}
}

// Configured reports whether the sender has full credentials.
func (m *Meta) Configured() bool {
	return m.cfg.AccessToken != "" && m.cfg.PhoneNumberID != ""
}

// SendText delivers a plain text message.
func (m *Meta) SendText(ctx context.Context, to, body string) error {
	return m.sendMessage(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	})
}

// SendImage delivers an image by public URL.
func (m *Meta) SendImage(ctx context.Context, to, imageURL string) error {
	return m.sendMessage(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "image",
		"image":             map[string]string{"link": imageURL},
	})
}

func (m *Meta) sendMessage(ctx context.Context, payload map[string]any) error {
	if !m.Configured() {
		return fmt.Errorf("%w: WhatsApp access token or phone number id missing", ErrNotConfigured)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding WhatsApp payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages",
		strings.TrimRight(m.cfg.BaseURL, "/"), m.cfg.PhoneNumberID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building WhatsApp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending WhatsApp message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("WhatsApp API returned %d: %s", resp.StatusCode, detail)
	}

	m.logger.Info("WhatsApp message sent", "type", payload["type"])
	return nil
}

// MediaURL resolves an inbound media id to its download URL.
func (m *Meta) MediaURL(ctx context.Context, mediaID string) (string, error) {
	if !m.Configured() {
		return "", fmt.Errorf("%w: WhatsApp access token or phone number id missing", ErrNotConfigured)
	}

	endpoint := fmt.Sprintf("%s/%s", strings.TrimRight(m.cfg.BaseURL, "/"), mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("building media lookup request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.AccessToken)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("looking up media %s: %w", mediaID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media lookup returned %d", resp.StatusCode)
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decoding media lookup response: %w", err)
	}
	return payload.URL, nil
}

// DownloadMedia fetches media content from a URL obtained via MediaURL.
// Meta's media endpoints require the same bearer token.
func (m *Meta) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building media download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.AccessToken)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media download returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaDownload))
	if err != nil {
		return nil, fmt.Errorf("reading media body: %w", err)
	}
	return data, nil
}
