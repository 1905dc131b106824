// Package inbound classifies gateway webhook events and feeds message text
// into the debounce buffer.
package inbound

import (
	"strings"

	"realestate-bot/internal/integrations/evolution"
)

// EventMessagesUpsert is the only event type that carries a new message.
const EventMessagesUpsert = "messages.upsert"

const (
	groupSuffix   = "@g.us"
	contactSuffix = "@s.whatsapp.net"
	defaultName   = "Cliente"
)

// Event is the webhook body posted by the gateway.
type Event struct {
	Event    string    `json:"event"`
	Instance string    `json:"instance,omitempty"`
	Data     EventData `json:"data"`
}

type EventData struct {
	Key              evolution.MessageKey `json:"key"`
	PushName         string               `json:"pushName,omitempty"`
	Message          *MessageContent      `json:"message,omitempty"`
	MessageType      string               `json:"messageType,omitempty"`
	MessageTimestamp int64                `json:"messageTimestamp,omitempty"`
}

type MessageContent struct {
	Conversation        string               `json:"conversation,omitempty"`
	ExtendedTextMessage *ExtendedTextMessage `json:"extendedTextMessage,omitempty"`
	AudioMessage        *AudioMessage        `json:"audioMessage,omitempty"`
}

type ExtendedTextMessage struct {
	Text string `json:"text,omitempty"`
}

type AudioMessage struct {
	Mimetype string `json:"mimetype,omitempty"`
	Seconds  int    `json:"seconds,omitempty"`
	PTT      bool   `json:"ptt,omitempty"`
}

// IsAudio reports whether the event carries a voice note or audio file.
func (d EventData) IsAudio() bool {
	return d.MessageType == "audioMessage" || (d.Message != nil && d.Message.AudioMessage != nil)
}

// Text returns the plain text body, preferring the simple conversation field.
func (d EventData) Text() string {
	if d.Message == nil {
		return ""
	}
	if t := strings.TrimSpace(d.Message.Conversation); t != "" {
		return t
	}
	if d.Message.ExtendedTextMessage != nil {
		return strings.TrimSpace(d.Message.ExtendedTextMessage.Text)
	}
	return ""
}

// SenderKey strips the contact JID suffix, leaving the phone number.
func (d EventData) SenderKey() string {
	return strings.Replace(d.Key.RemoteJID, contactSuffix, "", 1)
}

// DisplayName falls back to a generic label when the sender has no push name.
func (d EventData) DisplayName() string {
	if n := strings.TrimSpace(d.PushName); n != "" {
		return n
	}
	return defaultName
}

func (d EventData) isGroup() bool {
	return strings.Contains(d.Key.RemoteJID, groupSuffix)
}
