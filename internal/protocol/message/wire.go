package message

import (
	"bytes"
	"encoding/json"
	"fmt"

	"dim_chat/internal/cryptographic/format"
	"dim_chat/internal/model"
	"dim_chat/internal/protocol/document"
	"dim_chat/internal/protocol/identity"
	"dim_chat/internal/protocol/meta"
)

// Single-letter field names some peers send to save bytes. Output always
// uses the full names. "K" is key when a string and keys when an object.
var shortKeys = map[string]string{
	"F": "sender",
	"R": "receiver",
	"W": "time",
	"T": "type",
	"G": "group",
	"D": "data",
	"V": "signature",
	"M": "meta",
	"P": "visa",
}

type wireMessage struct {
	Sender    *identity.ID      `json:"sender"`
	Receiver  *identity.ID      `json:"receiver"`
	Time      float64           `json:"time"`
	Group     *identity.ID      `json:"group,omitempty"`
	Type      model.ContentType `json:"type,omitempty"`
	Data      string            `json:"data"`
	Key       string            `json:"key,omitempty"`
	Keys      map[string]string `json:"keys,omitempty"`
	Signature string            `json:"signature"`
	Meta      json.RawMessage   `json:"meta,omitempty"`
	Visa      json.RawMessage   `json:"visa,omitempty"`
}

type wireInstant struct {
	Sender   *identity.ID      `json:"sender"`
	Receiver *identity.ID      `json:"receiver"`
	Time     float64           `json:"time"`
	Group    *identity.ID      `json:"group,omitempty"`
	Type     model.ContentType `json:"type,omitempty"`
	Content  Content           `json:"content"`
}

func restoreShortKeys(fields map[string]json.RawMessage) {
	for short, full := range shortKeys {
		v, ok := fields[short]
		if !ok {
			continue
		}
		delete(fields, short)
		if _, exists := fields[full]; !exists {
			fields[full] = v
		}
	}
	if v, ok := fields["K"]; ok {
		delete(fields, "K")
		full := "keys"
		if trimmed := bytes.TrimSpace(v); len(trimmed) > 0 && trimmed[0] == '"' {
			full = "key"
		}
		if _, exists := fields[full]; !exists {
			fields[full] = v
		}
	}
}

func decodeFields(data []byte, out any) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	restoreShortKeys(fields)
	normalized, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(normalized, out)
}

func (e Envelope) check() error {
	if e.Sender == nil || e.Receiver == nil {
		return fmt.Errorf("%w: envelope needs sender and receiver", model.ErrIdentifierParse)
	}
	return nil
}

func (m *ReliableMessage) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		Sender:   m.Sender,
		Receiver: m.Receiver,
		Time:     unixSeconds(m.Time),
		Group:    m.Group,
		Type:     m.Type,
	}
	if m.IsBroadcast() {
		w.Data = string(m.Data)
	} else {
		w.Data = format.Base64Encode(m.Data)
	}
	if len(m.Key) > 0 {
		w.Key = format.Base64Encode(m.Key)
	}
	if len(m.Keys) > 0 {
		w.Keys = make(map[string]string, len(m.Keys))
		for member, k := range m.Keys {
			w.Keys[member] = format.Base64Encode(k)
		}
	}
	if len(m.Signature) > 0 {
		w.Signature = format.Base64Encode(m.Signature)
	}
	var err error
	if m.Meta != nil {
		if w.Meta, err = json.Marshal(m.Meta); err != nil {
			return nil, err
		}
	}
	if m.Visa != nil {
		if w.Visa, err = json.Marshal(m.Visa); err != nil {
			return nil, err
		}
	}
	return json.Marshal(w)
}

func (m *ReliableMessage) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := decodeFields(data, &w); err != nil {
		return fmt.Errorf("reliable message: %w", err)
	}
	out := ReliableMessage{
		SecureMessage: SecureMessage{
			Envelope: Envelope{
				Sender:   w.Sender,
				Receiver: w.Receiver,
				Time:     fromSeconds(w.Time),
				Group:    w.Group,
				Type:     w.Type,
			},
		},
	}
	if err := out.check(); err != nil {
		return err
	}
	if w.Data == "" {
		return fmt.Errorf("reliable message: empty data")
	}
	var err error
	if out.IsBroadcast() {
		out.Data = []byte(w.Data)
	} else if out.Data, err = format.Base64Decode(w.Data); err != nil {
		return fmt.Errorf("reliable message data: %w", err)
	}
	if w.Key != "" {
		if out.Key, err = format.Base64Decode(w.Key); err != nil {
			return fmt.Errorf("reliable message key: %w", err)
		}
	}
	if len(w.Keys) > 0 {
		out.Keys = make(map[string][]byte, len(w.Keys))
		for member, k := range w.Keys {
			if out.Keys[member], err = format.Base64Decode(k); err != nil {
				return fmt.Errorf("reliable message key for %s: %w", member, err)
			}
		}
	}
	if w.Signature != "" {
		if out.Signature, err = format.Base64Decode(w.Signature); err != nil {
			return fmt.Errorf("reliable message signature: %w", err)
		}
	}
	if len(w.Meta) > 0 && !bytes.Equal(w.Meta, []byte("null")) {
		if out.Meta, err = meta.Parse(w.Meta); err != nil {
			return err
		}
	}
	if len(w.Visa) > 0 && !bytes.Equal(w.Visa, []byte("null")) {
		if out.Visa, err = document.Parse(w.Visa); err != nil {
			return err
		}
	}
	*m = out
	return nil
}

func (m *InstantMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireInstant{
		Sender:   m.Sender,
		Receiver: m.Receiver,
		Time:     unixSeconds(m.Time),
		Group:    m.Group,
		Type:     m.Type,
		Content:  m.Content,
	})
}

func (m *InstantMessage) UnmarshalJSON(data []byte) error {
	var w wireInstant
	if err := decodeFields(data, &w); err != nil {
		return fmt.Errorf("instant message: %w", err)
	}
	out := InstantMessage{
		Envelope: Envelope{
			Sender:   w.Sender,
			Receiver: w.Receiver,
			Time:     fromSeconds(w.Time),
			Group:    w.Group,
			Type:     w.Type,
		},
		Content: w.Content,
	}
	if err := out.check(); err != nil {
		return err
	}
	if out.Content == nil {
		return fmt.Errorf("instant message: missing content")
	}
	*m = out
	return nil
}
