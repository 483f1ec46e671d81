// Package encryption implements the RSA-OAEP operations behind the encrypt and decrypt endpoints.
package encryption

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidKey is returned when the key is not a parseable PEM block
	ErrInvalidKey = errors.New("invalid key")

	// ErrNotRSAKey is returned for well-formed keys of another algorithm
	ErrNotRSAKey = errors.New("key is not an RSA key")

	// ErrInvalidCiphertext is returned when the ciphertext is not hex or fails to decrypt
	ErrInvalidCiphertext = errors.New("invalid ciphertext")

	// ErrMessageTooLong is returned when the plaintext exceeds the OAEP limit for the key size
	ErrMessageTooLong = errors.New("message too long for key size")
)

// Encrypt encrypts plaintext with RSA-OAEP (SHA-256, MGF1 SHA-256, no label) and returns hex
func Encrypt(publicKeyPEM, plaintext string) (string, error) {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return "", err
	}

	if len(plaintext) > MaxMessageSize(pub) {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLong, len(plaintext), MaxMessageSize(pub))
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, []byte(plaintext), nil)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt: %w", err)
	}
	return hex.EncodeToString(ciphertext), nil
}

// Decrypt decodes hexCiphertext and decrypts it with RSA-OAEP SHA-256
func Decrypt(privateKeyPEM, hexCiphertext string) (string, error) {
	priv, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return "", err
	}

	ciphertext, err := hex.DecodeString(strings.TrimSpace(hexCiphertext))
	if err != nil {
		return "", fmt.Errorf("%w: not hex encoded", ErrInvalidCiphertext)
	}

	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: decryption failed", ErrInvalidCiphertext)
	}
	return string(plaintext), nil
}

// MaxMessageSize returns the largest plaintext OAEP SHA-256 can encrypt with pub
func MaxMessageSize(pub *rsa.PublicKey) int {
	return pub.Size() - 2*sha256.Size - 2
}

// ParsePublicKey accepts PKIX ("PUBLIC KEY") and PKCS#1 ("RSA PUBLIC KEY") PEM blocks
func ParsePublicKey(keyPEM string) (*rsa.PublicKey, error) {
	block, err := decodePEM(keyPEM)
	if err != nil {
		return nil, err
	}

	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotRSAKey, parsed)
	}
	return key, nil
}

// ParsePrivateKey accepts PKCS#8 ("PRIVATE KEY") and PKCS#1 ("RSA PRIVATE KEY") PEM blocks
func ParsePrivateKey(keyPEM string) (*rsa.PrivateKey, error) {
	block, err := decodePEM(keyPEM)
	if err != nil {
		return nil, err
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotRSAKey, parsed)
	}
	return key, nil
}

func decodePEM(keyPEM string) (*pem.Block, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(keyPEM)))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidKey)
	}
	return block, nil
}
