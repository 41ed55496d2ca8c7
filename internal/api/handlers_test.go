package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holodash/comlink/internal/config"
	"github.com/holodash/comlink/internal/directory"
	"github.com/holodash/comlink/internal/messagelog"
	"github.com/holodash/comlink/internal/server"
	"github.com/holodash/comlink/internal/store"
	"github.com/holodash/comlink/internal/testutil"
	"github.com/holodash/comlink/internal/types"
)

var testSigningKey = []byte("test-signing-key")

type testApp struct {
	app *ComlinkApp
	mux *http.ServeMux
	dir *directory.Directory
	ml  *messagelog.Log
}

func newTestApp(t *testing.T, rs store.RecordStore) *testApp {
	t.Helper()

	logger := testutil.TestLogger(t)
	su := testutil.TestStats(t)

	dir := directory.NewDirectory(logger, rs, su)
	ml := messagelog.NewLog(logger, rs, su)
	cs, err := server.NewChatServer(logger, dir, ml, su)
	require.NoError(t, err)

	mux := http.NewServeMux()
	cfg := &config.Config{
		ServerAddr: "localhost:0",
		SigningKey: testSigningKey,
	}
	app := NewComlinkApp(mux, logger, cs, dir, ml, cfg)

	return &testApp{app: app, mux: mux, dir: dir, ml: ml}
}

func registerUser(t *testing.T, rs store.RecordStore, username string) {
	t.Helper()
	raw, err := json.Marshal(store.UserRecord{Id: username + "-id", Username: username})
	require.NoError(t, err)
	require.NoError(t, rs.Set(context.Background(), store.UserKey(username), raw))
}

func authedRequest(t *testing.T, method, target, body, username string) *http.Request {
	t.Helper()

	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}

	token, err := CreateSessionToken(testSigningKey, username, defaultTokenExpiration)
	require.NoError(t, err)
	r.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: token})

	return r
}

func Test_listConversations(t *testing.T) {
	t.Run("empty list for a user with no conversations", func(t *testing.T) {
		ta := newTestApp(t, store.NewMemoryStore())

		w := httptest.NewRecorder()
		ta.mux.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/conversations", "", "alice"))

		assert.Equal(t, http.StatusOK, w.Code)
		var conversations []types.Conversation
		require.NoError(t, json.NewDecoder(w.Body).Decode(&conversations))
		assert.Empty(t, conversations)
	})

	t.Run("lists the requester's view", func(t *testing.T) {
		rs := store.NewMemoryStore()
		registerUser(t, rs, "alice")
		registerUser(t, rs, "bob")
		ta := newTestApp(t, rs)

		conv, err := ta.dir.Create(context.Background(), "alice", "bob")
		require.NoError(t, err)
		require.NoError(t, ta.ml.Append(context.Background(), conv.Id, messagelog.NewMessage(conv.Id, "alice", "hello")))

		w := httptest.NewRecorder()
		ta.mux.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/conversations", "", "bob"))

		assert.Equal(t, http.StatusOK, w.Code)
		var conversations []types.Conversation
		require.NoError(t, json.NewDecoder(w.Body).Decode(&conversations))
		require.Len(t, conversations, 1)
		assert.Equal(t, conv.Id, conversations[0].Id)
		assert.Equal(t, "alice", conversations[0].Name, "expected name to be the other participant")
		assert.Equal(t, 1, conversations[0].UnreadCount)
		assert.Equal(t, "hello", conversations[0].LastMessage)
	})

	t.Run("store outage surfaces service unavailable", func(t *testing.T) {
		ms := &store.MockRecordStore{}
		ms.On("GetList", mock.Anything, mock.Anything).Return(nil, store.ErrUnavailable)
		ta := newTestApp(t, ms)

		w := httptest.NewRecorder()
		ta.mux.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/conversations", "", "alice"))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func Test_createConversation(t *testing.T) {
	t.Run("creates and returns the conversation", func(t *testing.T) {
		rs := store.NewMemoryStore()
		registerUser(t, rs, "alice")
		registerUser(t, rs, "bob")
		ta := newTestApp(t, rs)

		w := httptest.NewRecorder()
		ta.mux.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/conversations", `{"target_username":"bob"}`, "alice"))

		assert.Equal(t, http.StatusCreated, w.Code)
		var conv types.Conversation
		require.NoError(t, json.NewDecoder(w.Body).Decode(&conv))
		assert.NotEmpty(t, conv.Id)
		assert.Equal(t, "bob", conv.Name)
		assert.Zero(t, conv.UnreadCount)
	})

	t.Run("duplicate pair is a bad request", func(t *testing.T) {
		rs := store.NewMemoryStore()
		registerUser(t, rs, "alice")
		registerUser(t, rs, "bob")
		ta := newTestApp(t, rs)

		_, err := ta.dir.Create(context.Background(), "alice", "bob")
		require.NoError(t, err)

		w := httptest.NewRecorder()
		ta.mux.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/conversations", `{"target_username":"alice"}`, "bob"))

		assert.Equal(t, http.StatusBadRequest, w.Code, "expected reversed duplicate to be rejected")
	})

	t.Run("unknown target is not found", func(t *testing.T) {
		rs := store.NewMemoryStore()
		registerUser(t, rs, "alice")
		ta := newTestApp(t, rs)

		w := httptest.NewRecorder()
		ta.mux.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/conversations", `{"target_username":"ghost"}`, "alice"))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("self conversation is a bad request", func(t *testing.T) {
		rs := store.NewMemoryStore()
		registerUser(t, rs, "alice")
		ta := newTestApp(t, rs)

		w := httptest.NewRecorder()
		ta.mux.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/conversations", `{"target_username":"alice"}`, "alice"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing target is a bad request", func(t *testing.T) {
		ta := newTestApp(t, store.NewMemoryStore())

		w := httptest.NewRecorder()
		ta.mux.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/conversations", `{}`, "alice"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func Test_getMessages(t *testing.T) {
	t.Run("returns history in order", func(t *testing.T) {
		rs := store.NewMemoryStore()
		registerUser(t, rs, "alice")
		registerUser(t, rs, "bob")
		ta := newTestApp(t, rs)

		conv, err := ta.dir.Create(context.Background(), "alice", "bob")
		require.NoError(t, err)
		for _, content := range []string{"m1", "m2", "m3"} {
			require.NoError(t, ta.ml.Append(context.Background(), conv.Id, messagelog.NewMessage(conv.Id, "alice", content)))
		}

		w := httptest.NewRecorder()
		ta.mux.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/messages?conversation_id="+conv.Id, "", "bob"))

		assert.Equal(t, http.StatusOK, w.Code)
		var messages []types.Message
		require.NoError(t, json.NewDecoder(w.Body).Decode(&messages))
		require.Len(t, messages, 3)
		for i, content := range []string{"m1", "m2", "m3"} {
			assert.Equal(t, content, messages[i].Content)
		}
	})

	t.Run("missing conversation id is a bad request", func(t *testing.T) {
		ta := newTestApp(t, store.NewMemoryStore())

		w := httptest.NewRecorder()
		ta.mux.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/messages", "", "alice"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown conversation is not found", func(t *testing.T) {
		ta := newTestApp(t, store.NewMemoryStore())

		w := httptest.NewRecorder()
		ta.mux.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/messages?conversation_id=missing", "", "alice"))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("non-participant is forbidden", func(t *testing.T) {
		rs := store.NewMemoryStore()
		registerUser(t, rs, "alice")
		registerUser(t, rs, "bob")
		ta := newTestApp(t, rs)

		conv, err := ta.dir.Create(context.Background(), "alice", "bob")
		require.NoError(t, err)

		w := httptest.NewRecorder()
		ta.mux.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/messages?conversation_id="+conv.Id, "", "mallory"))

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
