// Package evolution talks to an Evolution API instance, the WhatsApp gateway
// that delivers inbound webhooks and sends outbound messages.
package evolution

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// HTTPStatusError captures non-2xx gateway responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("evolution: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// MessageKey identifies a WhatsApp message as reported in webhook payloads.
type MessageKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

// Media is a downloaded attachment.
type Media struct {
	Base64   string `json:"base64"`
	Mimetype string `json:"mimetype"`
}

// Bytes decodes the base64 payload. Data URL prefixes are stripped.
func (m Media) Bytes() ([]byte, error) {
	raw := m.Base64
	if i := strings.Index(raw, ";base64,"); i >= 0 && strings.HasPrefix(raw, "data:") {
		raw = raw[i+len(";base64,"):]
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("evolution: media payload is empty")
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("evolution: decode media: %w", err)
	}
	return b, nil
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type sendMediaRequest struct {
	Number    string `json:"number"`
	MediaType string `json:"mediatype"`
	Media     string `json:"media"`
	Caption   string `json:"caption"`
}

type mediaRequest struct {
	Message      mediaMessage `json:"message"`
	ConvertToMp4 bool         `json:"convertToMp4"`
}

type mediaMessage struct {
	Key MessageKey `json:"key"`
}

// Client sends messages through one Evolution API instance.
type Client struct {
	baseURL    string
	apiKey     string
	instance   string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(baseURL, apiKey, instance string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("evolution: base url must not be empty")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("evolution: api key must not be empty")
	}
	instance = strings.TrimSpace(instance)
	if instance == "" {
		return nil, errors.New("evolution: instance must not be empty")
	}
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		instance:   instance,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + path + "/" + url.PathEscape(c.instance)
}

// SendText delivers a text message to number.
func (c *Client) SendText(ctx context.Context, number, text string) error {
	_, err := c.post(ctx, c.endpoint("/message/sendText"), sendTextRequest{Number: number, Text: text})
	if err != nil {
		return fmt.Errorf("evolution: send text: %w", err)
	}
	return nil
}

// SendImage delivers the image at mediaURL with an optional caption.
func (c *Client) SendImage(ctx context.Context, number, mediaURL, caption string) error {
	_, err := c.post(ctx, c.endpoint("/message/sendMedia"), sendMediaRequest{
		Number:    number,
		MediaType: "image",
		Media:     mediaURL,
		Caption:   caption,
	})
	if err != nil {
		return fmt.Errorf("evolution: send image: %w", err)
	}
	return nil
}

// MediaBase64 downloads the attachment of the message identified by key.
func (c *Client) MediaBase64(ctx context.Context, key MessageKey) (Media, error) {
	raw, err := c.post(ctx, c.endpoint("/chat/getBase64FromMediaMessage"), mediaRequest{
		Message: mediaMessage{Key: key},
	})
	if err != nil {
		return Media{}, fmt.Errorf("evolution: download media: %w", err)
	}
	var m Media
	if err := json.Unmarshal(raw, &m); err != nil {
		return Media{}, fmt.Errorf("evolution: decode media response: %w", err)
	}
	if m.Base64 == "" {
		return Media{}, errors.New("evolution: media response has no payload")
	}
	return m, nil
}

func (c *Client) post(ctx context.Context, target string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: target, Body: string(buf)}
	}
	// Voice notes arrive inline as base64.
	buf, err := io.ReadAll(io.LimitReader(res.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
