package inbound

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"realestate-bot/internal/debounce"
	"realestate-bot/internal/integrations/evolution"
)

// Outcome statuses.
const (
	StatusIgnored  = "ignored"
	StatusBuffered = "buffered"
	StatusError    = "error"
)

// Outcome is the classification result returned to the webhook caller.
type Outcome struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Type   string `json:"type,omitempty"`
}

func ignored(reason string) Outcome { return Outcome{Status: StatusIgnored, Reason: reason} }
func failed(reason string) Outcome  { return Outcome{Status: StatusError, Reason: reason} }

// Buffer accepts resolved message text. *debounce.Buffer satisfies it.
type Buffer interface {
	Add(senderKey, displayName, text string) (int, error)
}

// MediaFetcher downloads the attachment of a message.
type MediaFetcher interface {
	MediaBase64(ctx context.Context, key evolution.MessageKey) (evolution.Media, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimetype string) (string, error)
}

type Router struct {
	buffer      Buffer
	media       MediaFetcher
	transcriber Transcriber
}

func NewRouter(b Buffer, m MediaFetcher, t Transcriber) (*Router, error) {
	if b == nil {
		return nil, errors.New("inbound: buffer must not be nil")
	}
	if m == nil {
		return nil, errors.New("inbound: media fetcher must not be nil")
	}
	if t == nil {
		return nil, errors.New("inbound: transcriber must not be nil")
	}
	return &Router{buffer: b, media: m, transcriber: t}, nil
}

// Route applies the classification rules in order and buffers the text of
// accepted messages. The buffer is untouched for every non-buffered outcome.
func (r *Router) Route(ctx context.Context, ev Event) Outcome {
	if ev.Event != EventMessagesUpsert {
		return ignored("not a message event")
	}
	d := ev.Data
	if d.Key.FromMe {
		return ignored("own message")
	}
	if d.isGroup() {
		return ignored("group message")
	}
	sender := d.SenderKey()
	if strings.TrimSpace(sender) == "" {
		return ignored("missing sender")
	}
	name := d.DisplayName()

	if d.IsAudio() {
		slog.Info("inbound: audio received", "sender", sender, "name", name)
		text, outcome, ok := r.transcribe(ctx, d, sender)
		if !ok {
			return outcome
		}
		return r.add(sender, name, text, "audio")
	}

	text := d.Text()
	if text == "" {
		slog.Debug("inbound: no text content", "sender", sender, "message_type", d.MessageType)
		return ignored("no text content")
	}
	slog.Info("inbound: text received", "sender", sender, "name", name, "length", len(text))
	return r.add(sender, name, text, "text")
}

func (r *Router) transcribe(ctx context.Context, d EventData, sender string) (string, Outcome, bool) {
	media, err := r.media.MediaBase64(ctx, d.Key)
	if err != nil {
		slog.Warn("inbound: audio download failed", "sender", sender, "err", err)
		return "", failed("audio download failed"), false
	}
	audio, err := media.Bytes()
	if err != nil {
		slog.Warn("inbound: audio download failed", "sender", sender, "err", err)
		return "", failed("audio download failed"), false
	}
	mimetype := media.Mimetype
	if mimetype == "" && d.Message != nil && d.Message.AudioMessage != nil {
		mimetype = d.Message.AudioMessage.Mimetype
	}
	text, err := r.transcriber.Transcribe(ctx, audio, mimetype)
	if err != nil || strings.TrimSpace(text) == "" {
		slog.Warn("inbound: transcription failed", "sender", sender, "err", err)
		return "", failed("transcription failed"), false
	}
	return text, Outcome{}, true
}

func (r *Router) add(sender, name, text, kind string) Outcome {
	n, err := r.buffer.Add(sender, name, text)
	if err != nil {
		if errors.Is(err, debounce.ErrClosed) {
			return failed("shutting down")
		}
		slog.Error("inbound: buffer rejected message", "sender", sender, "err", err)
		return failed("buffer rejected message")
	}
	slog.Debug("inbound: message buffered", "sender", sender, "type", kind, "fragments", n)
	return Outcome{Status: StatusBuffered, Type: kind}
}
