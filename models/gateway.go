package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// OutboundEnvelope is the only frame shape the hub writes to the gateway.
type OutboundEnvelope struct {
	ChatID string `json:"chatId"`
	Text   string `json:"text"`
}

// ExternalMessage is a normalized inbound message from the gateway.
type ExternalMessage struct {
	ChatID string
	Text   string
}

// inboundEnvelope accepts both the simplified {chatId, text} frame and the
// nested bridge frame {payload:{message:{text|conversation}, from|key.remoteJid}}.
type inboundEnvelope struct {
	ChatID  json.RawMessage `json:"chatId"`
	Text    string          `json:"text"`
	Payload *struct {
		Message *struct {
			Text         string `json:"text"`
			Conversation string `json:"conversation"`
		} `json:"message"`
		From json.RawMessage `json:"from"`
		Key  *struct {
			RemoteJid string `json:"remoteJid"`
		} `json:"key"`
	} `json:"payload"`
}

// ParseExternalMessage decodes a gateway frame. ok is false for frames that
// fail to decode or lack either an id or text.
func ParseExternalMessage(raw []byte) (msg ExternalMessage, ok bool) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ExternalMessage{}, false
	}

	msg.ChatID = rawID(env.ChatID)
	msg.Text = env.Text

	if p := env.Payload; p != nil {
		if p.Message != nil && msg.Text == "" {
			msg.Text = p.Message.Text
			if msg.Text == "" {
				msg.Text = p.Message.Conversation
			}
		}
		if msg.ChatID == "" {
			msg.ChatID = rawID(p.From)
		}
		if msg.ChatID == "" && p.Key != nil {
			msg.ChatID = p.Key.RemoteJid
		}
	}

	msg.Text = strings.TrimSpace(msg.Text)
	if msg.ChatID == "" || msg.Text == "" {
		return ExternalMessage{}, false
	}
	return msg, true
}

// rawID accepts a chat id encoded as a JSON string or number.
func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
