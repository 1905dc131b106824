package inbound

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"realestate-bot/internal/debounce"
	"realestate-bot/internal/domain"
	"realestate-bot/internal/integrations/evolution"
	"realestate-bot/internal/schedule"
)

type added struct {
	sender, name, text string
}

type stubBuffer struct {
	adds []added
	err  error
}

func (s *stubBuffer) Add(sender, name, text string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.adds = append(s.adds, added{sender, name, text})
	return len(s.adds), nil
}

type stubMedia struct {
	media evolution.Media
	err   error
	key   evolution.MessageKey
	calls int
}

func (s *stubMedia) MediaBase64(_ context.Context, key evolution.MessageKey) (evolution.Media, error) {
	s.calls++
	s.key = key
	return s.media, s.err
}

type stubTranscriber struct {
	text     string
	err      error
	audio    []byte
	mimetype string
}

func (s *stubTranscriber) Transcribe(_ context.Context, audio []byte, mimetype string) (string, error) {
	s.audio = audio
	s.mimetype = mimetype
	return s.text, s.err
}

func newTestRouter(t *testing.T) (*Router, *stubBuffer, *stubMedia, *stubTranscriber) {
	t.Helper()
	b := &stubBuffer{}
	m := &stubMedia{media: evolution.Media{
		Base64:   base64.StdEncoding.EncodeToString([]byte("OggS")),
		Mimetype: "audio/ogg; codecs=opus",
	}}
	tr := &stubTranscriber{text: "busco depto en Palermo"}
	r, err := NewRouter(b, m, tr)
	require.NoError(t, err)
	return r, b, m, tr
}

func textEvent(jid, text string) Event {
	return Event{
		Event: EventMessagesUpsert,
		Data: EventData{
			Key:      evolution.MessageKey{RemoteJID: jid, ID: "MSG1"},
			PushName: "Ana",
			Message:  &MessageContent{Conversation: text},
		},
	}
}

func audioEvent() Event {
	return Event{
		Event: EventMessagesUpsert,
		Data: EventData{
			Key:         evolution.MessageKey{RemoteJID: "5491122334455@s.whatsapp.net", ID: "AUD1"},
			PushName:    "Ana",
			MessageType: "audioMessage",
			Message:     &MessageContent{AudioMessage: &AudioMessage{Mimetype: "audio/ogg; codecs=opus", PTT: true}},
		},
	}
}

func TestNewRouter_Validation(t *testing.T) {
	_, err := NewRouter(nil, &stubMedia{}, &stubTranscriber{})
	require.ErrorContains(t, err, "buffer")
	_, err = NewRouter(&stubBuffer{}, nil, &stubTranscriber{})
	require.ErrorContains(t, err, "media")
	_, err = NewRouter(&stubBuffer{}, &stubMedia{}, nil)
	require.ErrorContains(t, err, "transcriber")
}

func TestRoute_TextMessage(t *testing.T) {
	r, b, m, _ := newTestRouter(t)

	out := r.Route(context.Background(), textEvent("5491122334455@s.whatsapp.net", " Hola "))
	require.Equal(t, Outcome{Status: StatusBuffered, Type: "text"}, out)
	require.Equal(t, []added{{"5491122334455", "Ana", "Hola"}}, b.adds)
	require.Zero(t, m.calls)
}

func TestRoute_ExtendedText(t *testing.T) {
	r, b, _, _ := newTestRouter(t)
	ev := textEvent("5491122334455@s.whatsapp.net", "")
	ev.Data.Message.ExtendedTextMessage = &ExtendedTextMessage{Text: "respondiendo a tu mensaje"}

	out := r.Route(context.Background(), ev)
	require.Equal(t, StatusBuffered, out.Status)
	require.Equal(t, "respondiendo a tu mensaje", b.adds[0].text)
}

func TestRoute_IgnoreRules(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Event)
		reason string
	}{
		{"other event", func(e *Event) { e.Event = "connection.update" }, "not a message event"},
		{"own message", func(e *Event) { e.Data.Key.FromMe = true }, "own message"},
		{"group", func(e *Event) { e.Data.Key.RemoteJID = "120363041234567890@g.us" }, "group message"},
		{"missing sender", func(e *Event) { e.Data.Key.RemoteJID = "" }, "missing sender"},
		{"no message", func(e *Event) { e.Data.Message = nil }, "no text content"},
		{"blank text", func(e *Event) { e.Data.Message.Conversation = "   " }, "no text content"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, b, m, _ := newTestRouter(t)
			ev := textEvent("5491122334455@s.whatsapp.net", "Hola")
			tc.mutate(&ev)

			out := r.Route(context.Background(), ev)
			require.Equal(t, Outcome{Status: StatusIgnored, Reason: tc.reason}, out)
			require.Empty(t, b.adds)
			require.Zero(t, m.calls)
		})
	}
}

func TestRoute_OwnMessageCheckedBeforeGroup(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	ev := textEvent("120363041234567890@g.us", "Hola")
	ev.Data.Key.FromMe = true
	require.Equal(t, "own message", r.Route(context.Background(), ev).Reason)
}

func TestRoute_DefaultDisplayName(t *testing.T) {
	r, b, _, _ := newTestRouter(t)
	ev := textEvent("5491122334455@s.whatsapp.net", "Hola")
	ev.Data.PushName = ""
	r.Route(context.Background(), ev)
	require.Equal(t, "Cliente", b.adds[0].name)
}

func TestRoute_Audio(t *testing.T) {
	r, b, m, tr := newTestRouter(t)

	out := r.Route(context.Background(), audioEvent())
	require.Equal(t, Outcome{Status: StatusBuffered, Type: "audio"}, out)
	require.Equal(t, "AUD1", m.key.ID)
	require.Equal(t, []byte("OggS"), tr.audio)
	require.Equal(t, "audio/ogg; codecs=opus", tr.mimetype)
	require.Equal(t, []added{{"5491122334455", "Ana", "busco depto en Palermo"}}, b.adds)
}

func TestRoute_AudioMimetypeFallsBackToMessage(t *testing.T) {
	r, _, m, tr := newTestRouter(t)
	m.media.Mimetype = ""
	ev := audioEvent()
	ev.Data.Message.AudioMessage.Mimetype = "audio/mp4"

	r.Route(context.Background(), ev)
	require.Equal(t, "audio/mp4", tr.mimetype)
}

func TestRoute_AudioFailures(t *testing.T) {
	t.Run("download", func(t *testing.T) {
		r, b, m, _ := newTestRouter(t)
		m.err = errors.New("evolution: unexpected status 404")
		out := r.Route(context.Background(), audioEvent())
		require.Equal(t, Outcome{Status: StatusError, Reason: "audio download failed"}, out)
		require.Empty(t, b.adds)
	})
	t.Run("undecodable payload", func(t *testing.T) {
		r, b, m, _ := newTestRouter(t)
		m.media.Base64 = "%%%"
		out := r.Route(context.Background(), audioEvent())
		require.Equal(t, "audio download failed", out.Reason)
		require.Empty(t, b.adds)
	})
	t.Run("transcription error", func(t *testing.T) {
		r, b, _, tr := newTestRouter(t)
		tr.err = errors.New("openai: empty transcript")
		out := r.Route(context.Background(), audioEvent())
		require.Equal(t, Outcome{Status: StatusError, Reason: "transcription failed"}, out)
		require.Empty(t, b.adds)
	})
	t.Run("blank transcript", func(t *testing.T) {
		r, b, _, tr := newTestRouter(t)
		tr.text = "  "
		out := r.Route(context.Background(), audioEvent())
		require.Equal(t, "transcription failed", out.Reason)
		require.Empty(t, b.adds)
	})
}

func TestRoute_BufferErrors(t *testing.T) {
	r, b, _, _ := newTestRouter(t)
	b.err = debounce.ErrClosed
	out := r.Route(context.Background(), textEvent("5491122334455@s.whatsapp.net", "Hola"))
	require.Equal(t, Outcome{Status: StatusError, Reason: "shutting down"}, out)

	b.err = errors.New("boom")
	out = r.Route(context.Background(), textEvent("5491122334455@s.whatsapp.net", "Hola"))
	require.Equal(t, "buffer rejected message", out.Reason)
}

func TestRoute_FeedsDebounceBuffer(t *testing.T) {
	sched := schedule.NewFake()
	var turns []domain.Turn
	buf, err := debounce.New(func(tr domain.Turn) { turns = append(turns, tr) }, debounce.WithScheduler(sched))
	require.NoError(t, err)
	r, err := NewRouter(buf, &stubMedia{}, &stubTranscriber{})
	require.NoError(t, err)

	own := textEvent("5491122334455@s.whatsapp.net", "eco")
	own.Data.Key.FromMe = true
	require.Equal(t, StatusIgnored, r.Route(context.Background(), own).Status)
	require.Zero(t, buf.Len())

	r.Route(context.Background(), textEvent("5491122334455@s.whatsapp.net", "Hola"))
	sched.Advance(2 * time.Second)
	r.Route(context.Background(), textEvent("5491122334455@s.whatsapp.net", "busco depto en venta"))
	sched.Advance(debounce.DefaultWait)

	require.Len(t, turns, 1)
	require.Equal(t, "Hola\nbusco depto en venta", turns[0].Message)
	require.Equal(t, "5491122334455", turns[0].SenderKey)
}

func TestEvent_DecodesGatewayPayload(t *testing.T) {
	body := `{
		"event": "messages.upsert",
		"instance": "puyella",
		"data": {
			"key": {"remoteJid": "5491122334455@s.whatsapp.net", "fromMe": false, "id": "3EB0C7"},
			"pushName": "Ana",
			"message": {"conversation": "Hola"},
			"messageType": "conversation",
			"messageTimestamp": 1717171717
		}
	}`
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(body), &ev))
	require.Equal(t, "puyella", ev.Instance)
	require.Equal(t, "3EB0C7", ev.Data.Key.ID)
	require.Equal(t, "Hola", ev.Data.Text())
	require.Equal(t, "5491122334455", ev.Data.SenderKey())
	require.False(t, ev.Data.IsAudio())
	require.Equal(t, int64(1717171717), ev.Data.MessageTimestamp)
}
