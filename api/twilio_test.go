package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nviv/nviv/internal/log"
	"github.com/nviv/nviv/internal/messaging"
)

// twilioRecorder fakes the Twilio REST API and records outbound sends.
type twilioRecorder struct {
	mu    sync.Mutex
	forms []url.Values
}

func (tr *twilioRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		tr.mu.Lock()
		tr.forms = append(tr.forms, r.PostForm)
		tr.mu.Unlock()
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}
}

func (tr *twilioRecorder) last(t *testing.T) url.Values {
	t.Helper()
	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.NotEmpty(t, tr.forms)
	return tr.forms[len(tr.forms)-1]
}

func postForm(s *Server, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestTwilioWebhookTextMessage(t *testing.T) {
	recorder := &twilioRecorder{}
	srv := httptest.NewServer(recorder.handler())
	defer srv.Close()

	chat := &stubChat{reply: "the answer"}
	s := newTestServer(ServerConfig{
		Chat: chat,
		Twilio: messaging.NewTwilio(messaging.TwilioConfig{
			AccountSID: "AC1", AuthToken: "t", FromNumber: "whatsapp:+15550001111",
			BaseURL: srv.URL, Logger: log.NewNop(),
		}),
	})

	rec := postForm(s, "/whatsapp", url.Values{
		"Body": {"what time is it?"},
		"From": {"whatsapp:+15552224444"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<Response></Response>")

	s.WaitBackground()

	got := chat.lastTurn(t)
	assert.Equal(t, "whatsapp:+15552224444", got.threadID)
	assert.True(t, strings.HasPrefix(got.message, "what time is it?"), got.message)
	assert.Contains(t, got.message, "under 1500 characters")

	sent := recorder.last(t)
	assert.Equal(t, "the answer", sent.Get("Body"))
	assert.Equal(t, "whatsapp:+15552224444", sent.Get("To"))
}

func TestTwilioWebhookImageReply(t *testing.T) {
	recorder := &twilioRecorder{}
	srv := httptest.NewServer(recorder.handler())
	defer srv.Close()

	chat := &stubChat{reply: "Here you go!\n\n![Generated Image](https://example.com/static/generated_images/a.jpg)"}
	s := newTestServer(ServerConfig{
		Chat: chat,
		Twilio: messaging.NewTwilio(messaging.TwilioConfig{
			AccountSID: "AC1", AuthToken: "t", FromNumber: "f", BaseURL: srv.URL,
		}),
	})

	postForm(s, "/whatsapp", url.Values{
		"Body": {"draw me something"},
		"From": {"whatsapp:+15552224444"},
	})
	s.WaitBackground()

	sent := recorder.last(t)
	assert.Equal(t, "Here you go!", sent.Get("Body"))
	assert.Equal(t, []string{"https://example.com/static/generated_images/a.jpg"}, sent["MediaUrl"])
}

func TestTwilioWebhookAudioMessage(t *testing.T) {
	recorder := &twilioRecorder{}
	twilioSrv := httptest.NewServer(recorder.handler())
	defer twilioSrv.Close()

	mediaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OGGDATA"))
	}))
	defer mediaSrv.Close()

	chat := &stubChat{reply: "heard you"}
	s := newTestServer(ServerConfig{
		Chat:        chat,
		Transcriber: &stubTranscriber{text: "voice message text"},
		Twilio: messaging.NewTwilio(messaging.TwilioConfig{
			AccountSID: "AC1", AuthToken: "t", FromNumber: "f", BaseURL: twilioSrv.URL,
		}),
	})

	postForm(s, "/whatsapp", url.Values{
		"From":              {"whatsapp:+15552224444"},
		"MediaUrl0":         {mediaSrv.URL + "/media/1"},
		"MediaContentType0": {"audio/ogg"},
	})
	s.WaitBackground()

	got := chat.lastTurn(t)
	assert.True(t, strings.HasPrefix(got.message, "voice message text"), got.message)
	assert.Equal(t, "heard you", recorder.last(t).Get("Body"))
}

func TestTwilioWebhookEmptyMessageIsIgnored(t *testing.T) {
	chat := &stubChat{reply: "should not be called"}
	s := newTestServer(ServerConfig{Chat: chat})

	rec := postForm(s, "/whatsapp", url.Values{"From": {"whatsapp:+15552224444"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	s.WaitBackground()

	chat.mu.Lock()
	defer chat.mu.Unlock()
	assert.Empty(t, chat.turns)
}

func TestTwilioWebhookRequiresFrom(t *testing.T) {
	s := newTestServer(ServerConfig{Chat: &stubChat{}})

	rec := postForm(s, "/whatsapp", url.Values{"Body": {"hi"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTwilioStatusCallback(t *testing.T) {
	s := newTestServer(ServerConfig{Chat: &stubChat{}})

	rec := postForm(s, "/twilio/status", url.Values{
		"MessageSid": {"SM1"},
		"SmsStatus":  {"delivered"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = postForm(s, "/twilio/status", url.Values{
		"MessageSid":    {"SM2"},
		"MessageStatus": {"undelivered"},
		"ErrorCode":     {"63019"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}
