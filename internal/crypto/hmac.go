package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// APICreds are the L2 credentials returned by /auth/derive-api-key.
type APICreds struct {
	Key        string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// Headers returns the POLY_* headers for one L2 request, signed at now.
func (c APICreds) Headers(address, method, path, body string) map[string]string {
	return c.HeadersAt(address, method, path, body, time.Now().Unix())
}

// HeadersAt signs timestamp+method+path+body with the url-safe base64
// decoded secret.
func (c APICreds) HeadersAt(address, method, path, body string, unix int64) map[string]string {
	ts := strconv.FormatInt(unix, 10)
	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_API_KEY":    c.Key,
		"POLY_PASSPHRASE": c.Passphrase,
		"POLY_TIMESTAMP":  ts,
		"POLY_SIGNATURE":  sign(decodeSecret(c.Secret), ts+method+path+body),
	}
}

// String redacts the credentials for logging.
func (c APICreds) String() string {
	return fmt.Sprintf("APICreds{key=%s}", redact(c.Key))
}

func decodeSecret(s string) []byte {
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b
	}
	return []byte(s)
}

func sign(key []byte, msg string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

func redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
