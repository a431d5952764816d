package resolve

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Run("parses a live channel document", func(t *testing.T) {
		var gotQuery, gotContentType string
		var gotForm map[string]string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			gotQuery = r.URL.Query().Get("bjid")
			gotContentType = r.Header.Get("Content-Type")
			require.NoError(t, r.ParseForm())
			gotForm = map[string]string{
				"bid":         r.PostForm.Get("bid"),
				"type":        r.PostForm.Get("type"),
				"player_type": r.PostForm.Get("player_type"),
				"quality":     r.PostForm.Get("quality"),
				"stream_type": r.PostForm.Get("stream_type"),
			}
			// CHPT arrives as a digit string and CHATNO as a number on some
			// endpoint revisions; the decoder must take both.
			w.Write([]byte(`{"CHANNEL":{
				"RESULT": 1,
				"CHDOMAIN": "Chat-X.Example.Com",
				"CHPT": "5000",
				"CHATNO": 123456,
				"BJID": "streamer1",
				"BJNICK": "방송인",
				"TITLE": "today's stream",
				"FTK": "token123",
				"BPS": 8000,
				"geo_cc": "KR",
				"geo_rc": "11",
				"acpt_lang": "ko_KR",
				"svc_lang": "ko_KR",
				"VIEWPRESET": [{"label":"원본","name":"original"}]
			}}`))
		}))
		defer server.Close()

		r := NewResolver(server.URL, server.Client())
		detail, err := r.Resolve(context.Background(), "streamer1")

		require.NoError(t, err)
		assert.Equal(t, "streamer1", gotQuery)
		assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
		assert.Equal(t, map[string]string{
			"bid":         "streamer1",
			"type":        "live",
			"player_type": "html5",
			"quality":     "HD",
			"stream_type": "common",
		}, gotForm)

		assert.True(t, detail.Live)
		assert.Equal(t, "chat-x.example.com", detail.ChatDomain, "domain should be lowercased")
		assert.Equal(t, 5000, detail.ChatPort)
		assert.Equal(t, "123456", detail.ChatNo)
		assert.Equal(t, "streamer1", detail.StreamerID)
		assert.Equal(t, "방송인", detail.StreamerNick)
		assert.Equal(t, "today's stream", detail.Title)
		assert.Equal(t, "token123", detail.FTK)
		assert.Equal(t, 8000, detail.BPS)
		assert.Equal(t, "KR", detail.GeoCC)
		assert.JSONEq(t, `[{"label":"원본","name":"original"}]`, string(detail.ViewPresets))
	})

	t.Run("offline streamer resolves to ErrNotLive", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"CHANNEL":{"RESULT": 0}}`))
		}))
		defer server.Close()

		r := NewResolver(server.URL, server.Client())
		detail, err := r.Resolve(context.Background(), "sleeper")

		assert.Nil(t, detail)
		assert.True(t, errors.Is(err, ErrNotLive))

		var resolveErr *Error
		require.True(t, errors.As(err, &resolveErr))
		assert.Equal(t, "sleeper", resolveErr.StreamerID)
	})

	t.Run("missing fields default to zero values", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"CHANNEL":{"RESULT": 1}}`))
		}))
		defer server.Close()

		r := NewResolver(server.URL, server.Client())
		detail, err := r.Resolve(context.Background(), "streamer1")

		require.NoError(t, err)
		assert.Equal(t, "", detail.ChatDomain)
		assert.Equal(t, 0, detail.ChatPort)
		assert.Equal(t, "", detail.ChatNo)
		assert.Equal(t, 0, detail.BPS)
	})

	t.Run("non-2xx status is an error, not ErrNotLive", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream broken", http.StatusBadGateway)
		}))
		defer server.Close()

		r := NewResolver(server.URL, server.Client())
		_, err := r.Resolve(context.Background(), "streamer1")

		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrNotLive))
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("non-JSON body is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>maintenance</html>"))
		}))
		defer server.Close()

		r := NewResolver(server.URL, server.Client())
		_, err := r.Resolve(context.Background(), "streamer1")

		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrNotLive))
	})

	t.Run("request errors carry the streamer id", func(t *testing.T) {
		r := NewResolver("http://127.0.0.1:1", nil)
		_, err := r.Resolve(context.Background(), "streamer1")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "streamer1")
	})
}

func TestWebsocketURL(t *testing.T) {
	detail := &LiveDetail{ChatDomain: "chat-x.example.com", ChatPort: 5000}

	assert.Equal(t, "wss://chat-x.example.com:5001/Websocket/streamer1", detail.WebsocketURL("streamer1"))
}
