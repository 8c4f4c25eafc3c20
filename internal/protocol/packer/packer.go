// Package packer turns instant messages into signed, encrypted wire messages
// and back: Instant -> Secure -> Reliable -> bytes, and the reverse.
package packer

import (
	"encoding/json"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"dim_chat/internal/cryptographic/keys"
	"dim_chat/internal/model"
	"dim_chat/internal/protocol/cipherkey"
	"dim_chat/internal/protocol/identity"
	"dim_chat/internal/protocol/message"
	"dim_chat/internal/utils/log"
)

type Packer struct {
	facebook Facebook
	keyCache CipherKeyDelegate
	// attach sends the sender meta and visa along with every message.
	attach bool
}

type Option func(*Packer)

// WithAttachments makes Sign attach the sender meta and visa, so a receiver
// that never saw the sender can still verify.
func WithAttachments() Option {
	return func(p *Packer) {
		p.attach = true
	}
}

func New(facebook Facebook, keyCache CipherKeyDelegate, opts ...Option) *Packer {
	p := &Packer{facebook: facebook, keyCache: keyCache}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Encrypt seals the content with the conversation key and wraps that key for
// the receiver, or for every member of a group receiver. Broadcast content
// goes out as plaintext with no key.
func (p *Packer) Encrypt(iMsg *message.InstantMessage) (*message.SecureMessage, error) {
	dest := cipherkey.Destination(iMsg.Receiver, iMsg.Group)
	var members []*identity.ID
	if !dest.IsBroadcast() && iMsg.Receiver.IsGroup() {
		if members = p.facebook.Members(iMsg.Receiver); len(members) == 0 {
			return nil, fmt.Errorf("%w: %s", model.ErrGroupNotResolved, iMsg.Receiver)
		}
	}
	password, err := p.keyCache.CipherKey(iMsg.Sender, dest, true)
	if err != nil {
		return nil, err
	}
	plaintext, err := json.Marshal(iMsg.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize content: %w", err)
	}

	env := iMsg.Envelope
	env.Type = iMsg.Content.Type()
	sMsg := &message.SecureMessage{Envelope: env}
	if dest.IsBroadcast() {
		sMsg.Data = plaintext
		return sMsg, nil
	}

	if sMsg.Data, err = password.Encrypt(plaintext); err != nil {
		return nil, err
	}
	keyData, err := keys.Marshal(password)
	if err != nil {
		return nil, err
	}
	if iMsg.Receiver.IsGroup() {
		sMsg.Keys, err = p.wrapForMembers(iMsg.Receiver, members, keyData)
		if err != nil {
			return nil, err
		}
		return sMsg, nil
	}
	sMsg.Key, err = p.wrapFor(iMsg.Receiver, keyData)
	if err != nil {
		return nil, err
	}
	return sMsg, nil
}

func (p *Packer) wrapFor(receiver *identity.ID, keyData []byte) ([]byte, error) {
	pKey := p.facebook.PublicKeyForEncryption(receiver)
	if pKey == nil {
		return nil, fmt.Errorf("%w: encrypt key for %s", model.ErrKeyNotFound, receiver)
	}
	return pKey.Encrypt(keyData)
}

// wrapForMembers succeeds when at least one member can be reached. Members
// without keys are logged and skipped.
func (p *Packer) wrapForMembers(group *identity.ID, members []*identity.ID, keyData []byte) (map[string][]byte, error) {
	wrapped := make(map[string][]byte, len(members))
	var errs error
	for _, member := range members {
		data, err := p.wrapFor(member, keyData)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		wrapped[member.String()] = data
	}
	if len(wrapped) == 0 {
		return nil, fmt.Errorf("no member of %s reachable: %w", group, errs)
	}
	if errs != nil {
		log.Warn("group members skipped",
			zap.Stringer("group", group),
			zap.Int("skipped", len(multierr.Errors(errs))),
			zap.Error(errs))
	}
	return wrapped, nil
}

// Sign signs the encrypted content bytes with the sender's key.
func (p *Packer) Sign(sMsg *message.SecureMessage) (*message.ReliableMessage, error) {
	sKey := p.facebook.PrivateKeyForSignature(sMsg.Sender)
	if sKey == nil {
		return nil, fmt.Errorf("%w: sign key for %s", model.ErrKeyNotFound, sMsg.Sender)
	}
	sig, err := sKey.Sign(sMsg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	rMsg := &message.ReliableMessage{SecureMessage: *sMsg, Signature: sig}
	if p.attach {
		rMsg.Meta = p.facebook.Meta(sMsg.Sender)
		rMsg.Visa = p.facebook.Visa(sMsg.Sender)
	}
	return rMsg, nil
}

// Verify checks the signature over the content bytes. An attached meta or
// visa is stored first so a new sender's keys can be found.
func (p *Packer) Verify(rMsg *message.ReliableMessage) (*message.SecureMessage, error) {
	if len(rMsg.Data) == 0 || len(rMsg.Signature) == 0 {
		return nil, fmt.Errorf("%w: missing data or signature", model.ErrSignatureInvalid)
	}
	if err := p.saveAttachments(rMsg); err != nil {
		return nil, err
	}
	candidates := p.facebook.PublicKeysForVerification(rMsg.Sender)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: verify key for %s", model.ErrKeyNotFound, rMsg.Sender)
	}
	for _, pKey := range candidates {
		if pKey.Verify(rMsg.Data, rMsg.Signature) {
			sMsg := rMsg.SecureMessage
			return &sMsg, nil
		}
	}
	return nil, fmt.Errorf("%w: from %s", model.ErrSignatureInvalid, rMsg.Sender)
}

func (p *Packer) saveAttachments(rMsg *message.ReliableMessage) error {
	if m := rMsg.Meta; m != nil {
		if !m.MatchesID(rMsg.Sender) {
			return fmt.Errorf("%w: attached meta does not match %s", model.ErrInvalidMeta, rMsg.Sender)
		}
		if err := p.facebook.SaveMeta(m, rMsg.Sender); err != nil {
			return err
		}
	}
	visa := rMsg.Visa
	if visa == nil {
		return nil
	}
	m := rMsg.Meta
	if m == nil {
		m = p.facebook.Meta(rMsg.Sender)
	}
	if m == nil || !visa.ID().SameEntity(rMsg.Sender) || !visa.Verify(m.Key()) {
		log.Debug("attached visa ignored", zap.Stringer("sender", rMsg.Sender))
		return nil
	}
	return p.facebook.SaveDocument(visa)
}

// Decrypt unwraps the conversation key with a local private key, or takes it
// from the cache when the message carries none, then opens the content. The
// key is cached only after the content decodes.
func (p *Packer) Decrypt(sMsg *message.SecureMessage) (*message.InstantMessage, error) {
	dest := cipherkey.Destination(sMsg.Receiver, sMsg.Group)
	if dest.IsBroadcast() {
		content, err := message.ParseContent(sMsg.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrDecryptionFailed, err)
		}
		return &message.InstantMessage{Envelope: sMsg.Envelope, Content: content}, nil
	}

	user, msg, err := p.selectLocalUser(sMsg)
	if err != nil {
		return nil, err
	}
	password, err := p.unwrapKey(user, msg, dest)
	if err != nil {
		return nil, err
	}
	plaintext, err := password.Decrypt(msg.Data)
	if err != nil {
		return nil, err
	}
	content, err := message.ParseContent(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrDecryptionFailed, err)
	}
	p.keyCache.CacheCipherKey(msg.Sender, dest, password)
	return &message.InstantMessage{Envelope: msg.Envelope, Content: content}, nil
}

func (p *Packer) unwrapKey(user *identity.ID, msg *message.SecureMessage, dest *identity.ID) (keys.SymmetricKey, error) {
	if len(msg.Key) == 0 {
		// the sender reused a key we already hold
		return p.keyCache.CipherKey(msg.Sender, dest, false)
	}
	candidates := p.facebook.PrivateKeysForDecryption(user)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: decrypt key for %s", model.ErrKeyNotFound, user)
	}
	var errs error
	for _, sKey := range candidates {
		keyData, err := sKey.Decrypt(msg.Key)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		password, err := keys.UnmarshalSymmetricKey(keyData)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		return password, nil
	}
	return nil, fmt.Errorf("%w: no private key of %s opens the message key: %w", model.ErrDecryptionFailed, user, errs)
}

// selectLocalUser finds the local user a message is for. A group message not
// yet split is trimmed down to the member found.
func (p *Packer) selectLocalUser(sMsg *message.SecureMessage) (*identity.ID, *message.SecureMessage, error) {
	users := p.facebook.LocalUsers()
	if len(users) == 0 {
		return nil, nil, fmt.Errorf("%w: no local user", model.ErrKeyNotFound)
	}
	receiver := sMsg.Receiver
	if !receiver.IsGroup() {
		for _, user := range users {
			if user.SameEntity(receiver) {
				return user, sMsg, nil
			}
		}
		return nil, nil, fmt.Errorf("%w: %s is not a local user", model.ErrKeyNotFound, receiver)
	}
	for _, user := range users {
		if _, ok := sMsg.Keys[user.String()]; ok {
			return user, sMsg.Trim(user), nil
		}
	}
	members := p.facebook.Members(receiver)
	for _, user := range users {
		for _, member := range members {
			if user.Equal(member) {
				return user, sMsg.Trim(user), nil
			}
		}
	}
	return nil, nil, fmt.Errorf("%w: no local member of %s", model.ErrKeyNotFound, receiver)
}

// Trim narrows a group message to one member.
func (p *Packer) Trim(sMsg *message.SecureMessage, member *identity.ID) *message.SecureMessage {
	return sMsg.Trim(member)
}

// Split fans a group message out per member. With no members given, the
// group's members are looked up.
func (p *Packer) Split(rMsg *message.ReliableMessage, members []*identity.ID) ([]*message.ReliableMessage, error) {
	if !rMsg.Receiver.IsGroup() {
		return []*message.ReliableMessage{rMsg}, nil
	}
	if len(members) == 0 {
		members = p.facebook.Members(rMsg.Receiver)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: %s", model.ErrGroupNotResolved, rMsg.Receiver)
	}
	return rMsg.Split(members), nil
}

func (p *Packer) Serialize(rMsg *message.ReliableMessage) ([]byte, error) {
	return json.Marshal(rMsg)
}

func (p *Packer) Deserialize(data []byte) (*message.ReliableMessage, error) {
	var rMsg message.ReliableMessage
	if err := json.Unmarshal(data, &rMsg); err != nil {
		return nil, err
	}
	return &rMsg, nil
}

// Pack runs the outbound pipeline.
func (p *Packer) Pack(iMsg *message.InstantMessage) ([]byte, error) {
	sMsg, err := p.Encrypt(iMsg)
	if err != nil {
		return nil, err
	}
	rMsg, err := p.Sign(sMsg)
	if err != nil {
		return nil, err
	}
	return p.Serialize(rMsg)
}

// Unpack runs the inbound pipeline. Failed messages are logged at debug
// level and returned as errors for the caller to drop.
func (p *Packer) Unpack(data []byte) (*message.InstantMessage, error) {
	rMsg, err := p.Deserialize(data)
	if err != nil {
		log.Debug("dropping undecodable message", zap.Error(err))
		return nil, err
	}
	sMsg, err := p.Verify(rMsg)
	if err != nil {
		log.Debug("dropping unverified message", zap.Stringer("sender", rMsg.Sender), zap.Error(err))
		return nil, err
	}
	iMsg, err := p.Decrypt(sMsg)
	if err != nil {
		log.Debug("dropping undecryptable message", zap.Stringer("sender", rMsg.Sender), zap.Error(err))
		return nil, err
	}
	return iMsg, nil
}
