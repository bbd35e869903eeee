// Package speech transcribes voice notes through an OpenAI-compatible
// audio transcription endpoint (Whisper).
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/nviv/nviv/internal/log"
)

const defaultOpenAIBase = "https://api.openai.com/v1"

// Config holds transcription endpoint parameters.
type Config struct {
	APIKey string

	// Model is the Whisper model or Azure deployment name.
	Model string

	// Endpoint is the full transcriptions URL; build it with
	// OpenAIEndpoint or AzureEndpoint.
	Endpoint string

	HTTPClient *http.Client
	Logger     log.Logger
}

// Transcriber converts audio bytes to text.
type Transcriber struct {
	cfg    Config
	client *http.Client
	logger log.Logger
}

// OpenAIEndpoint returns the transcriptions URL for an OpenAI-compatible
// base URL; empty uses the public OpenAI API.
func OpenAIEndpoint(baseURL string) string {
	if baseURL == "" {
		baseURL = defaultOpenAIBase
	}
	return strings.TrimRight(baseURL, "/") + "/audio/transcriptions"
}

// AzureEndpoint returns the transcriptions URL for an Azure OpenAI
// deployment.
func AzureEndpoint(endpoint, deployment, apiVersion string) string {
	return fmt.Sprintf("%s/openai/deployments/%s/audio/transcriptions?api-version=%s",
		strings.TrimRight(endpoint, "/"), deployment, apiVersion)
}

// New creates a transcriber.
func New(cfg Config) *Transcriber {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Transcriber{cfg: cfg, client: client, logger: logger}
}

// Transcribe sends audio to the transcription endpoint and returns the
// recognized text. Voice notes from WhatsApp arrive as OGG/Opus.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, filename, contentType string) (string, error) {
	if filename == "" {
		filename = "audio.ogg"
	}
	if contentType == "" {
		contentType = "audio/ogg"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("building transcription form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("writing audio payload: %w", err)
	}
	if err := w.WriteField("model", t.cfg.Model); err != nil {
		return "", fmt.Errorf("writing model field: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing transcription form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("building transcription request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	// Azure reads api-key, OpenAI reads the bearer token; setting both
	// keeps the client provider-agnostic.
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	req.Header.Set("api-key", t.cfg.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling transcription endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("transcription endpoint returned %d: %s", resp.StatusCode, detail)
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decoding transcription response: %w", err)
	}

	t.logger.Debug("audio transcribed", "bytes", len(audio), "chars", len(payload.Text))
	return payload.Text, nil
}
