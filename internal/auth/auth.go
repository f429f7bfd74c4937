// Package auth signs Coinbase Advanced Trade requests with CDP API keys (ES256 JWT).
package auth

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTTL is how long a signed token stays valid.
const TokenTTL = 2 * time.Minute

// Credentials holds the API key name and private key for signing requests.
type Credentials struct {
	KeyName    string            // e.g. organizations/{org}/apiKeys/{key}
	PrivateKey *ecdsa.PrivateKey // EC P-256 key

	now func() time.Time // overridden in tests
}

// keyFile is the JSON document the CDP portal hands out.
type keyFile struct {
	Name       string `json:"name"`
	PrivateKey string `json:"privateKey"`
}

// LoadCredentials loads credentials from a CDP API key JSON file.
func LoadCredentials(path string) (*Credentials, error) {
	if path == "" {
		return nil, fmt.Errorf("key file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("decode key file: %w", err)
	}
	if kf.Name == "" {
		return nil, fmt.Errorf("key name is required")
	}

	key, err := ParsePrivateKey([]byte(kf.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}

	return NewCredentials(kf.Name, key), nil
}

// NewCredentials builds Credentials from an already parsed key.
func NewCredentials(name string, key *ecdsa.PrivateKey) *Credentials {
	return &Credentials{KeyName: name, PrivateKey: key, now: time.Now}
}

// ParsePrivateKey parses an EC private key from PEM.
func ParsePrivateKey(data []byte) (*ecdsa.PrivateKey, error) {
	// Key files store the PEM with literal "\n" sequences
	data = []byte(strings.ReplaceAll(string(data), `\n`, "\n"))

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	// SEC 1 ("EC PRIVATE KEY") first
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	// Fall back to PKCS#8
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not an EC private key")
	}
	return ecKey, nil
}

// Token signs a token for the WebSocket feed. It satisfies connection.TokenSource.
func (c *Credentials) Token() (string, error) {
	return c.sign("")
}

// SignRequest returns the Authorization header for a REST request.
// host is e.g. "api.coinbase.com" and path "/api/v3/brokerage/products/BTC-USD".
func (c *Credentials) SignRequest(method, host, path string) (headers map[string]string, err error) {
	token, err := c.sign(fmt.Sprintf("%s %s%s", method, host, path))
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"Authorization": "Bearer " + token,
	}, nil
}

// sign builds an ES256 token. uri is empty for WebSocket tokens.
func (c *Credentials) sign(uri string) (string, error) {
	if c.PrivateKey == nil {
		return "", fmt.Errorf("no private key")
	}
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	issued := now()

	claims := jwt.MapClaims{
		"iss": "cdp",
		"sub": c.KeyName,
		"nbf": jwt.NewNumericDate(issued),
		"exp": jwt.NewNumericDate(issued.Add(TokenTTL)),
	}
	if uri != "" {
		claims["uri"] = uri
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = c.KeyName
	token.Header["nonce"] = strings.ReplaceAll(uuid.NewString(), "-", "")

	signed, err := token.SignedString(c.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
