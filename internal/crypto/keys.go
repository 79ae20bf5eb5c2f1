// Package crypto resolves the trading wallet key and signs Polymarket CLOB
// requests: EIP-712 for L1 auth and orders, HMAC for L2 request headers.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfIterations = 480_000
	kdfSaltLen    = 16
	kdfKeyLen     = 32
	sealedVersion = 1
)

// sealedKey is the on-disk envelope written by SealKey.
type sealedKey struct {
	Version    int    `json:"version"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeySource says where the wallet private key comes from. A raw key wins
// over a key file.
type KeySource struct {
	RawKey   string
	KeyFile  string
	Password string
}

// Resolve returns the hex private key without 0x prefix.
func (ks KeySource) Resolve() (string, error) {
	if ks.RawKey != "" {
		k, err := normalizeKey(ks.RawKey)
		if err != nil {
			return "", err
		}
		return k, nil
	}
	if ks.KeyFile != "" {
		data, err := os.ReadFile(ks.KeyFile)
		if err != nil {
			return "", fmt.Errorf("crypto: read key file: %w", err)
		}
		return OpenKey(data, ks.Password)
	}
	return "", errors.New("crypto: no wallet key configured")
}

func normalizeKey(s string) (string, error) {
	k := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(k)
	if err != nil {
		return "", fmt.Errorf("crypto: private key is not hex: %w", err)
	}
	if len(b) != 32 {
		return "", fmt.Errorf("crypto: private key is %d bytes, want 32", len(b))
	}
	return strings.ToLower(k), nil
}

func deriveAEAD(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, iterations, kdfKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// SealKey encrypts a hex private key under password (PBKDF2-SHA256 +
// AES-256-GCM) and returns the JSON envelope.
func SealKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: empty password")
	}
	k, err := normalizeKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	raw, _ := hex.DecodeString(k)

	salt := make([]byte, kdfSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	aead, err := deriveAEAD(password, salt, kdfIterations)
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}

	return json.MarshalIndent(sealedKey{
		Version:    sealedVersion,
		Iterations: kdfIterations,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, raw, nil)),
	}, "", "  ")
}

// OpenKey reverses SealKey.
func OpenKey(envelope []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: empty password")
	}
	var sk sealedKey
	if err := json.Unmarshal(envelope, &sk); err != nil {
		return "", fmt.Errorf("crypto: parse key envelope: %w", err)
	}
	if sk.Version != sealedVersion {
		return "", fmt.Errorf("crypto: unsupported key envelope version %d", sk.Version)
	}
	iterations := sk.Iterations
	if iterations <= 0 {
		iterations = kdfIterations
	}

	var parts [3][]byte
	for i, s := range []string{sk.Salt, sk.Nonce, sk.Ciphertext} {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", fmt.Errorf("crypto: decode key envelope: %w", err)
		}
		parts[i] = b
	}

	aead, err := deriveAEAD(password, parts[0], iterations)
	if err != nil {
		return "", fmt.Errorf("crypto: cipher: %w", err)
	}
	plain, err := aead.Open(nil, parts[1], parts[2], nil)
	if err != nil {
		return "", fmt.Errorf("crypto: wrong password or corrupt key file: %w", err)
	}
	return hex.EncodeToString(plain), nil
}
