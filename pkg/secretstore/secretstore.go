// Package secretstore keeps exchange credentials in a local Badger store,
// encrypted at rest when a key is supplied. Encryption comes from Badger's
// value-log and key-registry options, not from this wrapper.
package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/betbot/earnbot/pkg/bitget"
)

// Credential keys used by Credentials.
const (
	KeyAPIKey     = "bitget/api_key"
	KeyAPISecret  = "bitget/api_secret"
	KeyPassphrase = "bitget/passphrase"
)

// Store is a small KV wrapper over Badger.
type Store struct {
	db *badger.DB
}

// OpenOptions configures a Store.
type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 32 bytes; nil opens the DB unencrypted
	ReadOnly      bool
}

// Open opens or creates the store at opts.Path.
func Open(opts OpenOptions) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if len(opts.EncryptionKey) > 0 {
		// Badger requires an index cache for encrypted workloads.
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "secretstore: open")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the value for key; found is false when the key is absent.
func (s *Store) Get(key string) (value string, found bool, err error) {
	if s == nil || s.db == nil {
		return "", false, errors.New("secretstore: not opened")
	}
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return "", false, errors.New("secretstore: key is empty")
	}
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

// Set writes one key.
func (s *Store) Set(key, value string) error {
	if s == nil || s.db == nil {
		return errors.New("secretstore: not opened")
	}
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return errors.New("secretstore: key is empty")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, []byte(value))
	})
}

// Credentials loads the Bitget API credentials. All three keys must be
// present.
func (s *Store) Credentials() (bitget.Credentials, error) {
	var creds bitget.Credentials
	for _, f := range []struct {
		key string
		dst *string
	}{
		{KeyAPIKey, &creds.APIKey},
		{KeyAPISecret, &creds.APISecret},
		{KeyPassphrase, &creds.Passphrase},
	} {
		val, found, err := s.Get(f.key)
		if err != nil {
			return bitget.Credentials{}, err
		}
		if !found || val == "" {
			return bitget.Credentials{}, errors.Errorf("secretstore: missing %s", f.key)
		}
		*f.dst = val
	}
	return creds, nil
}

// SetCredentials stores the Bitget API credentials.
func (s *Store) SetCredentials(creds bitget.Credentials) error {
	for key, val := range map[string]string{
		KeyAPIKey:     creds.APIKey,
		KeyAPISecret:  creds.APISecret,
		KeyPassphrase: creds.Passphrase,
	} {
		if err := s.Set(key, val); err != nil {
			return err
		}
	}
	return nil
}

// ParseKey decodes a 32-byte encryption key from hex (optionally
// 0x-prefixed) or base64. Empty input yields a nil key.
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x")); err == nil {
		if len(b) != 32 {
			return nil, errors.Errorf("secretstore: key must be 32 bytes, got %d", len(b))
		}
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, errors.Errorf("secretstore: key must be 32 bytes, got %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("secretstore: key must be base64 or hex of 32 bytes")
}
