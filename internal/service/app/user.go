package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"dim_chat/internal/cryptographic/keys"
	"dim_chat/internal/model"
	"dim_chat/internal/protocol/document"
	"dim_chat/internal/protocol/identity"
	"dim_chat/internal/protocol/meta"
	"dim_chat/internal/utils/log"
)

type (
	// account is a local user with its private keys and signed records.
	account struct {
		id      *identity.ID
		signKey keys.PrivateKey
		visaKey keys.PrivateKey
		meta    *meta.Meta
		visa    *document.Document
	}
)

func keyRecord(k keys.Key) model.KeyRecord {
	info := keys.InfoOf(k)
	return model.KeyRecord{Algorithm: info.Algorithm, Data: info.Data}
}

func parseKeyRecord(r model.KeyRecord) (keys.PrivateKey, error) {
	return keys.ParsePrivateKey(keys.Info{Algorithm: r.Algorithm, Data: r.Data})
}

// issueVisa signs a fresh visa carrying the public half of visaKey.
func issueVisa(id *identity.ID, name string, signKey, visaKey keys.PrivateKey) (*document.Document, error) {
	sKey, ok := signKey.(keys.SignKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s key cannot sign", model.ErrKeyNotFound, signKey.Algorithm())
	}
	pub, ok := visaKey.PublicKey().(keys.EncryptKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s visa key cannot encrypt", model.ErrUnknownAlgorithm, visaKey.Algorithm())
	}
	visa := document.New(document.Visa, id)
	visa.Set("name", name)
	visa.SetKey(pub)
	if err := visa.Sign(sKey); err != nil {
		return nil, err
	}
	return visa, nil
}

// newAccount generates an ECC identity key, a meta of the given type and an
// X25519 visa key.
func newAccount(name string, metaType meta.Type, network uint8) (*account, *model.User, error) {
	signKey, err := keys.GeneratePrivateKey(keys.ECC)
	if err != nil {
		return nil, nil, err
	}
	m, err := meta.Generate(metaType, signKey, name)
	if err != nil {
		return nil, nil, err
	}
	id, err := identity.Generate(m, network, "")
	if err != nil {
		return nil, nil, err
	}
	visaKey, err := keys.GeneratePrivateKey(keys.X25519)
	if err != nil {
		return nil, nil, err
	}
	visa, err := issueVisa(id, name, signKey, visaKey)
	if err != nil {
		return nil, nil, err
	}

	metaJSON, err := m.MarshalJSON()
	if err != nil {
		return nil, nil, err
	}
	visaJSON, err := visa.MarshalJSON()
	if err != nil {
		return nil, nil, err
	}
	user := &model.User{
		Name:    name,
		DID:     id.String(),
		SignKey: keyRecord(signKey),
		VisaKey: keyRecord(visaKey),
		Meta:    string(metaJSON),
		Visa:    string(visaJSON),
	}
	acc := &account{id: id, signKey: signKey, visaKey: visaKey, meta: m, visa: visa}
	return acc, user, nil
}

// loadAccount decodes a stored user. stale reports a visa that no longer
// verifies and was re-issued.
func loadAccount(user *model.User) (acc *account, stale bool, err error) {
	id, err := identity.Parse(user.DID)
	if err != nil {
		return nil, false, err
	}
	signKey, err := parseKeyRecord(user.SignKey)
	if err != nil {
		return nil, false, fmt.Errorf("sign key: %w", err)
	}
	m, err := meta.Parse([]byte(user.Meta))
	if err != nil {
		return nil, false, err
	}
	if !m.MatchesID(id) {
		return nil, false, fmt.Errorf("%w: stored meta does not match %s", model.ErrInvalidMeta, id)
	}
	visaKey, err := parseKeyRecord(user.VisaKey)
	if err != nil {
		return nil, false, fmt.Errorf("visa key: %w", err)
	}

	acc = &account{id: id, signKey: signKey, visaKey: visaKey, meta: m}
	if user.Visa != "" {
		if visa, err := document.Parse([]byte(user.Visa)); err == nil && visa.Verify(m.Key()) {
			acc.visa = visa
			return acc, false, nil
		}
	}
	acc.visa, err = issueVisa(id, user.Name, signKey, visaKey)
	if err != nil {
		return nil, false, err
	}
	visaJSON, err := acc.visa.MarshalJSON()
	if err != nil {
		return nil, false, err
	}
	user.Visa = string(visaJSON)
	return acc, true, nil
}

func (c *App) getUserAndCreateIfNotExist(ctx context.Context, username string) (*account, error) {
	user, err := c.userRepo.GetByName(ctx, username)
	if err != nil {
		return nil, err
	}

	if user != nil {
		acc, stale, err := loadAccount(user)
		if err != nil {
			return nil, err
		}
		c.user = user
		if stale {
			log.Info("visa re-issued", zap.Stringer("id", acc.id))
			if err := c.userRepo.UpdateVisa(ctx, user); err != nil {
				return nil, err
			}
		}
		return acc, nil
	}

	metaType, err := meta.ParseType(c.cfg.Account.MetaType)
	if err != nil {
		return nil, err
	}
	acc, user, err := newAccount(username, metaType, c.cfg.Account.Network)
	if err != nil {
		return nil, err
	}

	_, err = c.userRepo.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	c.user = user
	log.Info("account created", zap.Stringer("id", acc.id), zap.Stringer("meta", metaType))
	return acc, nil
}
