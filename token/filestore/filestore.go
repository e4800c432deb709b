// Package filestore persists session credentials as a JSON document in the data folder,
// optionally sealed with XChaCha20-Poly1305.
package filestore

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/family-budget-client/internal/errors"
	"github.com/jrsteele09/family-budget-client/token"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	fileName = "session.json"
	fileMode = 0o600
	dirMode  = 0o700
)

var _ token.Storage = (*Store)(nil)

// Store is a token.Storage backed by a single file. Every write rewrites the whole file
// through a temp file and rename so a crash never leaves a half written document.
type Store struct {
	path string
	key  []byte
	mu   sync.RWMutex
}

type Option func(*Store)

// WithEncryptionKey seals the file contents with the given 32 byte key.
func WithEncryptionKey(key []byte) Option {
	return func(s *Store) {
		s.key = key
	}
}

// New returns a store writing to <folder>/session.json.
func New(folder string, options ...Option) (*Store, error) {
	if folder == "" {
		return nil, fmt.Errorf("[filestore.New] folder is required")
	}
	s := &Store{path: filepath.Join(folder, fileName)}
	for _, opt := range options {
		opt(s)
	}
	if s.key != nil && len(s.key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("[filestore.New] encryption key must be %d bytes", chacha20poly1305.KeySize)
	}
	if err := os.MkdirAll(folder, dirMode); err != nil {
		return nil, fmt.Errorf("[filestore.New] create folder: %w", err)
	}
	return s, nil
}

// Path returns the file the store writes to.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values, err := s.read()
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok {
		return "", errors.ErrKeyNotFound
	}
	return v, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if errors.Is(err, errors.ErrCorruptStorage) {
		log.Warn().Err(err).Str("path", s.path).Msg("discarding unreadable session file")
		values, err = make(map[string]string), nil
	}
	if err != nil {
		return err
	}
	values[key] = value
	return s.write(values)
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if errors.Is(err, errors.ErrCorruptStorage) {
		// Nothing in the file can be recovered, so none of it is kept.
		log.Warn().Err(err).Str("path", s.path).Msg("removing unreadable session file")
		values, err = make(map[string]string), nil
	}
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(values, k)
	}
	if len(values) == 0 {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("[filestore.Delete] remove: %w", err)
		}
		return nil
	}
	return s.write(values)
}

func (s *Store) read() (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[filestore.read] %w", err)
	}

	if s.key != nil {
		if data, err = s.open(data); err != nil {
			return nil, fmt.Errorf("[filestore.read] %w: %w", errors.ErrCorruptStorage, err)
		}
	}

	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("[filestore.read] decode: %w: %w", errors.ErrCorruptStorage, err)
	}
	return values, nil
}

func (s *Store) write(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("[filestore.write] encode: %w", err)
	}

	if s.key != nil {
		if data, err = s.seal(data); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), fileName+".*")
	if err != nil {
		return fmt.Errorf("[filestore.write] temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("[filestore.write] %w", err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("[filestore.write] chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[filestore.write] close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("[filestore.write] rename: %w", err)
	}
	return nil
}

func (s *Store) seal(plain []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("[filestore.seal] %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("[filestore.seal] nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *Store) open(sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("[filestore.open] %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("[filestore.open] file too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("[filestore.open] decrypt: %w", err)
	}
	return plain, nil
}
