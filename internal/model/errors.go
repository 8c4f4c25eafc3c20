package model

import "errors"

var (
	// ErrInvalidMeta reports a meta whose seed, fingerprint and key disagree.
	ErrInvalidMeta = errors.New("invalid meta")

	// ErrAddressDecode reports a bad checksum, length or character set.
	ErrAddressDecode = errors.New("address decode error")

	// ErrIdentifierParse reports a malformed name@address/terminal string.
	ErrIdentifierParse = errors.New("identifier parse error")

	// ErrKeyNotFound reports a missing public or private key. It is
	// retryable: the key may arrive later with a meta or visa.
	ErrKeyNotFound = errors.New("key not found")

	ErrSignatureInvalid = errors.New("signature invalid")

	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrUnknownAlgorithm reports an unregistered meta, address or key type.
	// It points at a missing extension, not at missing data.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")

	// ErrGroupNotResolved reports a group message whose member list the
	// caller did not resolve before encrypting.
	ErrGroupNotResolved = errors.New("group members not resolved")
)
