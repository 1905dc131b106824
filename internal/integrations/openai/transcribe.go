package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// ErrEmptyTranscript is returned when the audio produced no text.
var ErrEmptyTranscript = errors.New("openai: empty transcript")

type transcriptionResponse struct {
	Text string `json:"text"`
}

func transcriptionURL(baseURL string) string {
	return endpointURL(baseURL, "/audio/transcriptions")
}

// audioExtension maps a WhatsApp media mimetype to the file extension the
// transcription endpoint uses to detect the container. Voice notes are ogg.
func audioExtension(mimetype string) string {
	m := strings.ToLower(mimetype)
	switch {
	case strings.Contains(m, "ogg"):
		return "ogg"
	case strings.Contains(m, "mp4"), strings.Contains(m, "m4a"):
		return "m4a"
	case strings.Contains(m, "mpeg"):
		return "mp3"
	default:
		return "ogg"
	}
}

// Transcribe uploads audio to the transcription endpoint and returns the
// trimmed transcript.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimetype string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("openai: audio must not be empty")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	filename := "audio." + audioExtension(mimetype)
	contentType := mimetype
	if contentType == "" {
		contentType = "audio/ogg"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	fw, err := w.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("openai: create form file field: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("openai: write audio bytes to form: %w", err)
	}
	if err := w.WriteField("model", c.transcriptionModel); err != nil {
		return "", fmt.Errorf("openai: write model field: %w", err)
	}
	if c.language != "" {
		if err := w.WriteField("language", c.language); err != nil {
			return "", fmt.Errorf("openai: write language field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("openai: close multipart writer: %w", err)
	}

	url := transcriptionURL(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("openai: create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return "", fmt.Errorf("openai: transcription request failed: %w", err)
	}

	var payload transcriptionResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("openai: decode transcription response: %w", err)
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}

	slog.Debug("openai: transcript received", "length", len(text), "filename", filename)
	return text, nil
}
