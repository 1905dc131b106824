package evolution

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(srv.URL+"/", "evo-key", "puyella", WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("", "k", "i")
	require.ErrorContains(t, err, "base url")
	_, err = NewClient("http://evo", " ", "i")
	require.ErrorContains(t, err, "api key")
	_, err = NewClient("http://evo", "k", "")
	require.ErrorContains(t, err, "instance")
}

func TestClient_SendText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/message/sendText/puyella", r.URL.Path)
		require.Equal(t, "evo-key", r.Header.Get("apikey"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, map[string]any{"number": "5491122334455", "text": "Hola!"}, body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	require.NoError(t, c.SendText(context.Background(), "5491122334455", "Hola!"))
}

func TestClient_SendImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/message/sendMedia/puyella", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "image", body["mediatype"])
		require.Equal(t, "https://cdn.example/1.jpg", body["media"])
		require.Equal(t, "", body["caption"], "caption is always present")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	require.NoError(t, c.SendImage(context.Background(), "5491122334455", "https://cdn.example/1.jpg", ""))
}

func TestClient_SendText_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"number not on whatsapp"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	err := c.SendText(context.Background(), "123", "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "send text")

	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadRequest, statusErr.HTTPStatusCode())
	require.Contains(t, statusErr.Body, "not on whatsapp")
}

func TestClient_MediaBase64(t *testing.T) {
	audio := []byte("OggS-voice")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/getBase64FromMediaMessage/puyella", r.URL.Path)
		var body struct {
			Message struct {
				Key MessageKey `json:"key"`
			} `json:"message"`
			ConvertToMp4 *bool `json:"convertToMp4"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "ABC123", body.Message.Key.ID)
		require.Equal(t, "5491122334455@s.whatsapp.net", body.Message.Key.RemoteJID)
		require.NotNil(t, body.ConvertToMp4)
		require.False(t, *body.ConvertToMp4)

		_, _ = w.Write([]byte(`{"base64":"` + base64.StdEncoding.EncodeToString(audio) + `","mimetype":"audio/ogg; codecs=opus"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	m, err := c.MediaBase64(context.Background(), MessageKey{RemoteJID: "5491122334455@s.whatsapp.net", ID: "ABC123"})
	require.NoError(t, err)
	require.Equal(t, "audio/ogg; codecs=opus", m.Mimetype)

	b, err := m.Bytes()
	require.NoError(t, err)
	require.Equal(t, audio, b)
}

func TestClient_MediaBase64_EmptyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"mimetype":"audio/ogg"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.MediaBase64(context.Background(), MessageKey{ID: "x"})
	require.ErrorContains(t, err, "no payload")
}

func TestClient_MediaBase64_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.MediaBase64(context.Background(), MessageKey{ID: "x"})
	require.ErrorContains(t, err, "decode media response")
}

func TestMedia_Bytes(t *testing.T) {
	enc := base64.StdEncoding.EncodeToString([]byte("hi"))

	b, err := Media{Base64: enc}.Bytes()
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), b)

	b, err = Media{Base64: "data:audio/ogg;base64," + enc}.Bytes()
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), b)

	_, err = Media{Base64: "!!!"}.Bytes()
	require.ErrorContains(t, err, "decode media")

	_, err = Media{}.Bytes()
	require.ErrorContains(t, err, "empty")
}
