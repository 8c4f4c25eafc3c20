// Package message defines the three stages a message passes through: an
// instant message with plaintext content, a secure message with encrypted
// content and wrapped keys, and a reliable message that adds the sender's
// signature.
package message

import (
	"maps"
	"time"

	"dim_chat/internal/model"
	"dim_chat/internal/protocol/cipherkey"
	"dim_chat/internal/protocol/document"
	"dim_chat/internal/protocol/identity"
	"dim_chat/internal/protocol/meta"
)

// Envelope is shared by all three stages.
type Envelope struct {
	Sender   *identity.ID
	Receiver *identity.ID
	Time     time.Time
	// Group is set when the receiver is one member of a group conversation.
	Group *identity.ID
	// Type copies the content type so relays can classify the message.
	Type model.ContentType
}

func NewEnvelope(sender, receiver *identity.ID) Envelope {
	return Envelope{Sender: sender, Receiver: receiver, Time: time.Now()}
}

// IsBroadcast reports whether the message goes out unencrypted.
func (e Envelope) IsBroadcast() bool {
	return cipherkey.Destination(e.Receiver, e.Group).IsBroadcast()
}

type InstantMessage struct {
	Envelope
	Content Content
}

// NewInstant copies the content type into the envelope.
func NewInstant(env Envelope, content Content) *InstantMessage {
	env.Type = content.Type()
	return &InstantMessage{Envelope: env, Content: content}
}

type SecureMessage struct {
	Envelope
	// Data is the encrypted content, or the plaintext for broadcast.
	Data []byte
	// Key is the symmetric key wrapped for the receiver.
	Key []byte
	// Keys maps each member to its wrapped key for an unsplit group message.
	Keys map[string][]byte
}

// ReliableMessage adds the signature over Data. Meta and Visa may ride along
// so the receiver can verify a first message from an unknown sender.
type ReliableMessage struct {
	SecureMessage
	Signature []byte
	Meta      *meta.Meta
	Visa      *document.Document
}

// KeyFor returns the wrapped key addressed to member.
func (m *SecureMessage) KeyFor(member *identity.ID) []byte {
	if k, ok := m.Keys[member.String()]; ok {
		return k
	}
	return m.Key
}

// Trim narrows a group message down to member: the group moves to the
// envelope group and only member's key is kept.
func (m *SecureMessage) Trim(member *identity.ID) *SecureMessage {
	out := *m
	if out.Group == nil {
		out.Group = m.Receiver
	}
	out.Receiver = member
	if m.Keys != nil {
		out.Key = m.Keys[member.String()]
		out.Keys = nil
	}
	return &out
}

// Split fans a group message out into one message per member.
func (m *ReliableMessage) Split(members []*identity.ID) []*ReliableMessage {
	out := make([]*ReliableMessage, 0, len(members))
	for _, member := range members {
		msg := *m
		msg.SecureMessage = *m.SecureMessage.Trim(member)
		out = append(out, &msg)
	}
	return out
}

// SplitInstant fans a group instant message out into one message per member.
// With hideGroup the envelopes look personal and only the content names the
// group.
func SplitInstant(msg *InstantMessage, members []*identity.ID, hideGroup bool) []*InstantMessage {
	group := msg.Group
	if group == nil {
		group = msg.Receiver
	}
	out := make([]*InstantMessage, 0, len(members))
	for _, member := range members {
		content := maps.Clone(msg.Content)
		content.SetGroup(group)
		env := msg.Envelope
		env.Receiver = member
		if hideGroup {
			env.Group = nil
		} else {
			env.Group = group
		}
		out = append(out, &InstantMessage{Envelope: env, Content: content})
	}
	return out
}
