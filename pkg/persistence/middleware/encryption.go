package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/concierge-sh/concierge/pkg/domain"
	"github.com/concierge-sh/concierge/pkg/ports"
)

// encryptedPrefix marks a stored value as an encrypted envelope. Values
// without the prefix (written before encryption was enabled) pass through
// reads unchanged.
const encryptedPrefix = "enc:v1:"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// encryptionMiddleware encrypts field values with AES-GCM before they reach
// the backing store. Field names stay in plaintext so the store's merge
// semantics keep working; values are opaque envelopes.
type encryptionMiddleware struct {
	next   ports.StateStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts state field
// values at rest using AES-GCM.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.StateStore) ports.StateStore {
		return &encryptionMiddleware{next: next, config: config}
	}
}

func (m *encryptionMiddleware) Create(ctx context.Context, sessionID, workflowName, initialStage string) error {
	return m.next.Create(ctx, sessionID, workflowName, initialStage)
}

func (m *encryptionMiddleware) GlobalState(ctx context.Context, sessionID string) (map[string]any, error) {
	fields, err := m.next.GlobalState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return m.decryptFields(fields)
}

func (m *encryptionMiddleware) MergeGlobal(ctx context.Context, sessionID string, fields map[string]any) error {
	sealed, err := m.encryptFields(fields)
	if err != nil {
		return err
	}
	return m.next.MergeGlobal(ctx, sessionID, sealed)
}

func (m *encryptionMiddleware) StageState(ctx context.Context, sessionID, stage string) (map[string]any, error) {
	fields, err := m.next.StageState(ctx, sessionID, stage)
	if err != nil {
		return nil, err
	}
	return m.decryptFields(fields)
}

func (m *encryptionMiddleware) MergeStage(ctx context.Context, sessionID, stage string, fields map[string]any) error {
	sealed, err := m.encryptFields(fields)
	if err != nil {
		return err
	}
	return m.next.MergeStage(ctx, sessionID, stage, sealed)
}

func (m *encryptionMiddleware) ReplaceStage(ctx context.Context, sessionID, stage string, fields map[string]any) error {
	sealed, err := m.encryptFields(fields)
	if err != nil {
		return err
	}
	return m.next.ReplaceStage(ctx, sessionID, stage, sealed)
}

func (m *encryptionMiddleware) SetCurrentStage(ctx context.Context, sessionID, stage string) error {
	return m.next.SetCurrentStage(ctx, sessionID, stage)
}

func (m *encryptionMiddleware) CurrentStage(ctx context.Context, sessionID string) (string, string, error) {
	return m.next.CurrentStage(ctx, sessionID)
}

func (m *encryptionMiddleware) History(ctx context.Context, sessionID string) ([]domain.Snapshot, error) {
	history, err := m.next.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for i := range history {
		global, err := m.decryptFields(history[i].Global)
		if err != nil {
			return nil, err
		}
		history[i].Global = global
		for stage, fields := range history[i].StageStates {
			plain, err := m.decryptFields(fields)
			if err != nil {
				return nil, err
			}
			history[i].StageStates[stage] = plain
		}
	}
	return history, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, sessionID string) (bool, error) {
	return m.next.Delete(ctx, sessionID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// encryptFields seals every value into an opaque envelope string.
func (m *encryptionMiddleware) encryptFields(fields map[string]any) (map[string]any, error) {
	sealed := make(map[string]any, len(fields))
	for k, v := range fields {
		plain, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal field %q: %w", k, err)
		}
		ciphertext, err := encrypt(plain, m.config.ActiveKey)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt field %q: %w", k, err)
		}
		sealed[k] = encryptedPrefix + base64.StdEncoding.EncodeToString(ciphertext)
	}
	return sealed, nil
}

// decryptFields opens envelopes back into their original values. Values that
// are not envelopes pass through.
func (m *encryptionMiddleware) decryptFields(fields map[string]any) (map[string]any, error) {
	plain := make(map[string]any, len(fields))
	for k, v := range fields {
		str, ok := v.(string)
		if !ok || !strings.HasPrefix(str, encryptedPrefix) {
			plain[k] = v
			continue
		}
		ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(str, encryptedPrefix))
		if err != nil {
			return nil, fmt.Errorf("failed to decode field %q: %w", k, err)
		}
		data, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt field %q: %w", k, err)
		}
		var value any
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal field %q: %w", k, err)
		}
		plain[k] = value
	}
	return plain, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	// Try active key first
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	// Try fallbacks in order
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, nil)
}
