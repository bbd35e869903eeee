package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/nviv/nviv/internal/log"
	"github.com/nviv/nviv/internal/messaging"
)

var errNoTranscriber = errors.New("no transcriber configured")

// MetaHandler serves the Meta WhatsApp Cloud API webhook.
type MetaHandler struct {
	service     ChatService
	transcriber Transcriber
	sender      *messaging.Meta
	verifyToken string
	logger      log.Logger
	background  *sync.WaitGroup
}

// metaEvent is the subset of the webhook event payload we consume.
type metaEvent struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Messages []metaMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type metaMessage struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
	Audio struct {
		ID       string `json:"id"`
		MimeType string `json:"mime_type"`
	} `json:"audio"`
}

// RegisterRoutes registers Meta webhook routes on the mux.
func (h *MetaHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /meta/webhook", h.handleVerify)
	mux.HandleFunc("POST /meta/webhook", h.handleEvent)
}

// handleVerify answers Meta's webhook subscription challenge.
func (h *MetaHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && h.verifyToken != "" && q.Get("hub.verify_token") == h.verifyToken {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	http.Error(w, "Failed", http.StatusForbidden)
}

func (h *MetaHandler) handleEvent(w http.ResponseWriter, r *http.Request) {
	var event metaEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "error"})
		return
	}

	h.background.Add(1)
	go func() {
		defer h.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		h.process(ctx, &event)
	}()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// process walks every message of the event and answers each sender.
func (h *MetaHandler) process(ctx context.Context, event *metaEvent) {
	if event.Object != "whatsapp_business_account" {
		return
	}
	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				h.processMessage(ctx, msg)
			}
		}
	}
}

func (h *MetaHandler) processMessage(ctx context.Context, msg metaMessage) {
	var userText string

	switch msg.Type {
	case "text":
		userText = msg.Text.Body
	case "audio":
		text, err := h.transcribeAudio(ctx, msg.Audio.ID, msg.Audio.MimeType)
		if err != nil {
			h.logger.Error("Meta audio transcription failed", "from", msg.From, "error", err)
			h.replyText(ctx, msg.From, processingErrorReply)
			return
		}
		userText = text
	default:
		h.logger.Debug("ignoring unsupported Meta message type", "type", msg.Type)
		return
	}
	if userText == "" {
		return
	}

	answer := h.service.Chat(ctx, userText+channelInstruction, msg.From)
	text, images := extractImageLinks(answer)
	if text != "" {
		h.replyText(ctx, msg.From, text)
	}
	for _, url := range images {
		if h.sender == nil {
			break
		}
		if err := h.sender.SendImage(ctx, msg.From, url); err != nil {
			h.logger.Error("Meta image reply failed", "to", msg.From, "error", err)
		}
	}
}

func (h *MetaHandler) transcribeAudio(ctx context.Context, mediaID, mimeType string) (string, error) {
	if h.transcriber == nil || h.sender == nil {
		return "", errNoTranscriber
	}
	url, err := h.sender.MediaURL(ctx, mediaID)
	if err != nil {
		return "", err
	}
	audio, err := h.sender.DownloadMedia(ctx, url)
	if err != nil {
		return "", err
	}
	return h.transcriber.Transcribe(ctx, audio, "audio.ogg", mimeType)
}

func (h *MetaHandler) replyText(ctx context.Context, to, text string) {
	if h.sender == nil || !h.sender.Configured() {
		h.logger.Error("Meta reply dropped: sender not configured", "to", to)
		return
	}
	if err := h.sender.SendText(ctx, to, text); err != nil {
		h.logger.Error("Meta reply failed", "to", to, "error", err)
	}
}
