package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nviv/nviv/internal/log"
	"github.com/nviv/nviv/internal/messaging"
)

// twimlAck is the empty TwiML document acknowledging a webhook without an
// inline reply; the real reply goes out of band from the background turn.
const twimlAck = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// TwilioHandler serves the Twilio WhatsApp webhook and status callbacks.
type TwilioHandler struct {
	service     ChatService
	transcriber Transcriber
	sender      *messaging.Twilio
	logger      log.Logger
	background  *sync.WaitGroup

	// mediaClient fetches inbound Twilio media; nil uses a default.
	mediaClient *http.Client
}

// RegisterRoutes registers Twilio routes on the mux.
func (h *TwilioHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /whatsapp", h.handleWebhook)
	mux.HandleFunc("POST /twilio/status", h.handleStatus)
}

func (h *TwilioHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	body := r.PostForm.Get("Body")
	from := r.PostForm.Get("From")
	mediaURL := r.PostForm.Get("MediaUrl0")
	mediaType := r.PostForm.Get("MediaContentType0")

	if from == "" {
		http.Error(w, "From is required", http.StatusBadRequest)
		return
	}
	h.logger.Info("Twilio message received", "from", from, "media", mediaURL != "")

	h.background.Add(1)
	go func() {
		defer h.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		h.process(ctx, body, from, mediaURL, mediaType)
	}()

	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(twimlAck))
}

// process runs the webhook turn after the HTTP ack: transcribe audio if
// present, run the agent, and reply through the Twilio REST API.
func (h *TwilioHandler) process(ctx context.Context, body, from, mediaURL, mediaType string) {
	userText := body
	if mediaURL != "" && strings.Contains(mediaType, "audio") {
		text, err := h.transcribeMedia(ctx, mediaURL, mediaType)
		if err != nil {
			h.logger.Error("Twilio audio transcription failed", "from", from, "error", err)
			h.reply(ctx, from, processingErrorReply)
			return
		}
		userText = text
	}
	if userText == "" {
		return
	}

	answer := h.service.Chat(ctx, userText+channelInstruction, from)
	text, images := extractImageLinks(answer)
	h.reply(ctx, from, text, images...)
}

func (h *TwilioHandler) transcribeMedia(ctx context.Context, mediaURL, mediaType string) (string, error) {
	if h.transcriber == nil {
		return "", fmt.Errorf("no transcriber configured")
	}

	client := h.mediaClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", fmt.Errorf("building media request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media download returned %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, 25<<20))
	if err != nil {
		return "", fmt.Errorf("reading media body: %w", err)
	}
	return h.transcriber.Transcribe(ctx, audio, "audio.ogg", mediaType)
}

func (h *TwilioHandler) reply(ctx context.Context, to, text string, mediaURLs ...string) {
	if h.sender == nil || !h.sender.Configured() {
		h.logger.Error("Twilio reply dropped: sender not configured", "to", to)
		return
	}
	if text == "" && len(mediaURLs) == 0 {
		return
	}
	if _, err := h.sender.Send(ctx, to, text, mediaURLs...); err != nil {
		h.logger.Error("Twilio reply failed", "to", to, "error", err)
	}
}

func (h *TwilioHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	sid := r.PostForm.Get("MessageSid")
	status := r.PostForm.Get("SmsStatus")
	if status == "" {
		status = r.PostForm.Get("MessageStatus")
	}
	errorCode := r.PostForm.Get("ErrorCode")

	switch status {
	case "failed", "undelivered":
		h.logger.Error("Twilio delivery failed", "sid", sid, "status", status, "error_code", errorCode)
	default:
		h.logger.Info("Twilio status callback", "sid", sid, "status", status)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
