// Package crypto provides encrypted at-rest storage for the exchange API
// bearer token.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// currentVersion is the encrypted-token JSON schema version.
	currentVersion = 1
)

// encryptedTokenJSON is the on-disk format for an encrypted bearer token.
type encryptedTokenJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// TokenConfig carries the information LoadToken needs to resolve the API
// token. Populate the fields from environment variables or the config file.
type TokenConfig struct {
	// RawToken is the plaintext bearer token. If non-empty, LoadToken
	// returns it directly.
	RawToken string

	// EncryptedTokenPath is the path to a JSON file produced by EncryptToken.
	EncryptedTokenPath string

	// TokenPassword is the password used to decrypt the file at
	// EncryptedTokenPath.
	TokenPassword string
}

// EncryptToken encrypts a bearer token with a password using
// PBKDF2-HMAC-SHA256 key derivation and AES-256-GCM authenticated
// encryption. It returns the JSON blob suitable for writing to disk.
func EncryptToken(token, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("crypto: token must not be empty")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(token), nil)

	blob := encryptedTokenJSON{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}
	return json.Marshal(blob)
}

// DecryptToken reverses EncryptToken. A wrong password fails GCM
// authentication and returns an error.
func DecryptToken(data []byte, password string) (string, error) {
	var blob encryptedTokenJSON
	if err := json.Unmarshal(data, &blob); err != nil {
		return "", fmt.Errorf("crypto: parse encrypted token: %w", err)
	}
	if blob.Version != currentVersion {
		return "", fmt.Errorf("crypto: unsupported token file version %d", blob.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(blob.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto: decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(blob.Nonce)
	if err != nil {
		return "", fmt.Errorf("crypto: decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(blob.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: decode ciphertext: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("crypto: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("crypto: create gcm: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return "", errors.New("crypto: invalid nonce length")
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.New("crypto: decrypt failed (wrong password or corrupted file)")
	}

	return string(plaintext), nil
}

// LoadToken resolves the bearer token from the config: a raw token wins,
// otherwise the encrypted file is read and decrypted.
func LoadToken(cfg TokenConfig) (string, error) {
	if tok := strings.TrimSpace(cfg.RawToken); tok != "" {
		return tok, nil
	}

	if cfg.EncryptedTokenPath == "" {
		return "", errors.New("crypto: no token configured")
	}

	data, err := os.ReadFile(cfg.EncryptedTokenPath)
	if err != nil {
		return "", fmt.Errorf("crypto: read token file: %w", err)
	}

	return DecryptToken(data, cfg.TokenPassword)
}
