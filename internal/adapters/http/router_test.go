package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/VoiceSignal/internal/app"
	"github.com/dkeye/VoiceSignal/internal/app/orch"
	"github.com/dkeye/VoiceSignal/internal/app/relay"
	"github.com/dkeye/VoiceSignal/internal/config"
	"github.com/dkeye/VoiceSignal/internal/core"
	"github.com/dkeye/VoiceSignal/internal/domain"
)

type fakeChannel struct {
	mu   sync.Mutex
	sent []domain.Message
}

func (f *fakeChannel) Send(msg domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) SendConferenceInfo(domain.ConferenceNotice) error { return nil }

func (f *fakeChannel) last() domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func newTestRouter(t *testing.T) (*gin.Engine, *orch.Orchestrator, *fakeChannel, *relay.Table) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ch := &fakeChannel{}
	o := orch.New(&orch.Orchestrator{
		Channel: ch,
		Media:   app.NewStaticMedia(true, true),
		Clock:   clockwork.NewFakeClock(),
	}, orch.Options{Local: "alice@example.com/desk"})
	table := relay.NewTable(clockwork.NewFakeClock(), time.Hour)
	cfg := &config.Config{Mode: "test", Secret: "secret", Account: "alice@example.com/desk"}
	return SetupRouter(context.Background(), cfg, Deps{Orch: o, Relays: table}), o, ch, table
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateAndListCalls(t *testing.T) {
	r, _, ch, _ := newTestRouter(t)

	w := do(r, http.MethodPost, "/api/calls", `{"to":"bob@example.com/phone"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var info core.CallInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	require.Len(t, info.Peers, 1)
	assert.Equal(t, domain.Address("bob@example.com/phone"), info.Peers[0].Address)
	assert.Equal(t, domain.ActionSessionInitiate, ch.last().Action)

	w = do(r, http.MethodGet, "/api/calls", "")
	require.Equal(t, http.StatusOK, w.Code)
	var calls []core.CallInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &calls))
	assert.Len(t, calls, 1)

	w = do(r, http.MethodGet, "/api/calls/"+string(info.ID), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateCallRejectsBadTarget(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/calls", `{"to":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/calls", `not json`).Code)
}

func TestSessionOperations(t *testing.T) {
	r, o, ch, _ := newTestRouter(t)
	o.HandleMessage(context.Background(), domain.Message{
		Action: domain.ActionSessionInitiate,
		SID:    "s1",
		From:   "bob@example.com/phone",
		Contents: []domain.Content{{
			Name: "audio", Media: domain.MediaAudio, Senders: domain.DirectionSendRecv,
		}},
	})

	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/api/sessions/s1/hold", `{"enabled":true}`).Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/api/sessions/s1/answer", "").Code)
	assert.Equal(t, domain.ActionSessionAccept, ch.last().Action)

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/api/sessions/s1/hold", `{"enabled":true}`).Code)
	assert.Equal(t, domain.InfoHold, ch.last().Info)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/sessions/s1/hangup", `{"reason":"bored"}`).Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/api/sessions/s1/hangup", `{"reason":"normal","text":"bye"}`).Code)
	last := ch.last()
	assert.Equal(t, domain.ActionSessionTerminate, last.Action)
	assert.Equal(t, "bye", last.Reason.Text)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/api/sessions/s1/answer", "").Code)
}

func TestUnknownCall(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/calls/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/api/calls/nope/focus", `{"enabled":true}`).Code)
}

func TestRelaysAndHealth(t *testing.T) {
	r, _, _, table := newTestRouter(t)
	table.Seed([]relay.Entry{{Address: "relay.example.com", Kind: relay.KindRelay, Protocol: "udp"}})

	w := do(r, http.MethodGet, "/api/relays", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Relays []relay.Entry `json:"relays"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Relays, 1)
	assert.True(t, body.Relays[0].Preconfigured)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/metrics", "").Code)
}

func TestClientTokenCookie(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	w := do(r, http.MethodGet, "/healthz", "")
	var found bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "ct" && c.Value != "" {
			found = true
		}
	}
	assert.True(t, found)
}
