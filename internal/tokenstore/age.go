package tokenstore

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
)

// AgeEncryptor encrypts/decrypts token blobs at rest using an X25519
// identity, the same role filippo.io/age plays for the teacher's
// secrets.Manager — reused here so the sqlite-backed Storage never
// persists a plaintext access token.
type AgeEncryptor struct {
	identity  *age.X25519Identity
	recipient age.Recipient
}

// NewAgeEncryptor loads an X25519 identity from a key file, generating
// and persisting one if it doesn't exist yet.
func NewAgeEncryptor(keyPath string) (*AgeEncryptor, error) {
	data, err := os.ReadFile(keyPath)
	if err == nil {
		id, err := age.ParseX25519Identity(string(bytes.TrimSpace(data)))
		if err != nil {
			return nil, fmt.Errorf("parse age key %s: %w", keyPath, err)
		}
		return &AgeEncryptor{identity: id, recipient: id.Recipient()}, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read age key %s: %w", keyPath, err)
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generate age key: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(id.String()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write age key %s: %w", keyPath, err)
	}
	return &AgeEncryptor{identity: id, recipient: id.Recipient()}, nil
}

// NewEphemeralEncryptor creates a one-shot in-memory identity, used when
// no durable key path is configured (e.g. ad hoc sqlite stores in tests).
func NewEphemeralEncryptor() (*AgeEncryptor, error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral age key: %w", err)
	}
	return &AgeEncryptor{identity: id, recipient: id.Recipient()}, nil
}

// Encrypt returns the age-encrypted ciphertext for plaintext.
func (e *AgeEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, e.recipient)
	if err != nil {
		return nil, fmt.Errorf("age encrypt: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("age encrypt write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("age encrypt close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decrypt reverses Encrypt.
func (e *AgeEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(ciphertext), e.identity)
	if err != nil {
		return nil, fmt.Errorf("age decrypt: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("age decrypt read: %w", err)
	}
	return out, nil
}
