package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pumpfight/internal/crypto"
)

type recordingSender struct {
	name string
	err  error
	got  []Message
}

func (r *recordingSender) Send(_ context.Context, msg Message) error {
	r.got = append(r.got, msg)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"curve_graduated", " token_created "}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), Message{Event: "token_created", Title: "t"}))
	require.NoError(t, n.Notify(context.Background(), Message{Event: "tokens_purchased", Title: "t"}))
	assert.Len(t, s.got, 1)
	assert.True(t, n.Enabled("curve_graduated"))
	assert.False(t, n.Enabled("vote_created"))
}

func TestNotifierKeepsGoingAfterFailure(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), Message{Event: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, good.got, 1)
}

func TestWebhookSenderSignsBody(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var gotBody []byte
	var gotTS, gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotTS = r.Header.Get(crypto.HeaderWebhookTimestamp)
		gotSig = r.Header.Get(crypto.HeaderWebhookSignature)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ws := NewWebhookSender(srv.URL, "s3cret")
	ws.now = func() time.Time { return now }
	require.NoError(t, ws.Send(context.Background(), Message{
		Event:  "curve_graduated",
		Title:  "FOO graduated",
		Fields: map[string]string{"token": "0xabc"},
	}))

	var body webhookBody
	require.NoError(t, json.Unmarshal(gotBody, &body))
	assert.Equal(t, "curve_graduated", body.Event)
	assert.Equal(t, "0xabc", body.Fields["token"])
	require.NoError(t, crypto.NewWebhookSigner("s3cret").Verify(gotBody, gotTS, gotSig, now, time.Minute))
}

func TestTelegramSenderReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		http.Error(w, "chat not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	ts := NewTelegramSender("TOKEN", "42")
	ts.baseURL = srv.URL
	err := ts.Send(context.Background(), Message{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestDiscordSender(t *testing.T) {
	var content string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		content = body["content"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), Message{Title: "New poll", Body: "Best kit?"}))
	assert.Equal(t, "**New poll**\nBest kit?", content)
}
