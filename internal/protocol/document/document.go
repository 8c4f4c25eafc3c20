// Package document implements signed profiles. A visa is the user profile
// that may carry a key for encryption, which takes precedence over the meta
// key when others encrypt to the user.
package document

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"dim_chat/internal/cryptographic/format"
	"dim_chat/internal/cryptographic/keys"
	"dim_chat/internal/model"
	"dim_chat/internal/protocol/identity"
	"dim_chat/internal/protocol/meta"
)

const (
	Visa     = "visa"
	Profile  = "profile"
	Bulletin = "bulletin"
)

// Document is not safe for concurrent mutation. Build and sign it first, then
// share it.
type Document struct {
	docType   string
	did       *identity.ID
	data      string
	signature []byte
	props     map[string]any
}

type record struct {
	Type      string       `json:"type,omitempty"`
	DID       *identity.ID `json:"did"`
	Data      string       `json:"data,omitempty"`
	Signature string       `json:"signature,omitempty"`
}

func New(docType string, did *identity.ID) *Document {
	return &Document{docType: docType, did: did, props: make(map[string]any)}
}

// Parse decodes a document without verifying it.
func Parse(raw []byte) (*Document, error) {
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("document: %w", err)
	}
	if r.DID == nil {
		return nil, fmt.Errorf("%w: document without did", model.ErrIdentifierParse)
	}
	doc := New(r.Type, r.DID)
	if doc.docType == "" {
		doc.docType = guessType(r.DID)
	}
	doc.data = r.Data
	if r.Data != "" {
		if err := json.Unmarshal([]byte(r.Data), &doc.props); err != nil {
			return nil, fmt.Errorf("document data: %w", err)
		}
	}
	if r.Signature != "" {
		sig, err := format.Base64Decode(r.Signature)
		if err != nil {
			return nil, fmt.Errorf("document signature: %w", err)
		}
		doc.signature = sig
	}
	return doc, nil
}

func guessType(did *identity.ID) string {
	switch {
	case did.IsUser():
		return Visa
	case did.IsGroup():
		return Bulletin
	}
	return Profile
}

func (d *Document) MarshalJSON() ([]byte, error) {
	r := record{Type: d.docType, DID: d.did, Data: d.data}
	if len(d.signature) > 0 {
		r.Signature = format.Base64Encode(d.signature)
	}
	return json.Marshal(r)
}

func (d *Document) Type() string { return d.docType }

func (d *Document) ID() *identity.ID { return d.did }

func (d *Document) Get(name string) any { return d.props[name] }

func (d *Document) GetString(name string) string {
	s, _ := d.props[name].(string)
	return s
}

// Set changes a property and drops the signature.
func (d *Document) Set(name string, value any) {
	if value == nil {
		delete(d.props, name)
	} else {
		d.props[name] = value
	}
	d.data = ""
	d.signature = nil
}

func (d *Document) Name() string { return d.GetString("name") }

func (d *Document) Time() time.Time {
	if f, ok := d.props["time"].(float64); ok {
		return time.UnixMilli(int64(math.Round(f * 1000)))
	}
	return time.Time{}
}

// Terminal is the device the visa key belongs to.
func (d *Document) Terminal() string {
	if t := d.GetString("terminal"); t != "" {
		return t
	}
	return d.did.Terminal()
}

func (d *Document) IsSigned() bool {
	return d.data != "" && len(d.signature) > 0
}

// Sign serializes the properties and signs them.
func (d *Document) Sign(sKey keys.SignKey) error {
	if _, ok := d.props["time"]; !ok {
		d.props["time"] = float64(time.Now().UnixMilli()) / 1000
	}
	data, err := json.Marshal(d.props)
	if err != nil {
		return err
	}
	sig, err := sKey.Sign(data)
	if err != nil {
		return err
	}
	d.data = string(data)
	d.signature = sig
	return nil
}

// Verify checks the signature over the data with the meta key.
func (d *Document) Verify(pKey keys.VerifyKey) bool {
	if !d.IsSigned() || pKey == nil {
		return false
	}
	return pKey.Verify([]byte(d.data), d.signature)
}

// Key returns the visa key for encryption, or nil when the visa has none.
func (d *Document) Key() keys.EncryptKey {
	raw, ok := d.props["key"]
	if !ok {
		return nil
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	pub, err := keys.UnmarshalPublicKey(buf)
	if err != nil {
		return nil
	}
	ek, _ := pub.(keys.EncryptKey)
	return ek
}

func (d *Document) SetKey(k keys.EncryptKey) {
	info := keys.InfoOf(k)
	d.Set("key", map[string]any{"algorithm": info.Algorithm, "data": info.Data})
}

// EncryptKey picks the key others encrypt to: the first visa key, falling
// back to the meta key when it can encrypt.
func EncryptKey(m *meta.Meta, docs ...*Document) keys.EncryptKey {
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		if k := doc.Key(); k != nil {
			return k
		}
	}
	if m == nil {
		return nil
	}
	k, _ := m.Key().(keys.EncryptKey)
	return k
}

// VerifyKeys lists the keys a signature may be checked against: visa keys
// first, then the meta key.
func VerifyKeys(m *meta.Meta, docs ...*Document) []keys.VerifyKey {
	var out []keys.VerifyKey
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		if k, ok := doc.Key().(keys.VerifyKey); ok {
			out = append(out, k)
		}
	}
	if m != nil && m.Key() != nil {
		out = append(out, m.Key())
	}
	return out
}
