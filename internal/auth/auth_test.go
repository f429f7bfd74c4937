package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	return key
}

func parseToken(t *testing.T, signed string, key *ecdsa.PrivateKey) (*jwt.Token, jwt.MapClaims) {
	t.Helper()
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	if err != nil {
		t.Fatalf("token does not verify: %v", err)
	}
	return token, claims
}

func TestCredentials_Token(t *testing.T) {
	key := testKey(t)
	creds := NewCredentials("organizations/o/apiKeys/k", key)

	signed, err := creds.Token()
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}

	token, claims := parseToken(t, signed, key)

	if token.Header["kid"] != "organizations/o/apiKeys/k" {
		t.Errorf("kid = %v, want key name", token.Header["kid"])
	}
	nonce, _ := token.Header["nonce"].(string)
	if len(nonce) != 32 || strings.Contains(nonce, "-") {
		t.Errorf("nonce = %q, want 32 hex chars", nonce)
	}
	if claims["iss"] != "cdp" {
		t.Errorf("iss = %v, want cdp", claims["iss"])
	}
	if claims["sub"] != "organizations/o/apiKeys/k" {
		t.Errorf("sub = %v, want key name", claims["sub"])
	}
	if _, ok := claims["uri"]; ok {
		t.Error("websocket token must not carry uri")
	}
}

func TestCredentials_TokenExpiry(t *testing.T) {
	key := testKey(t)
	creds := NewCredentials("k", key)
	fixed := time.Now().Truncate(time.Second)
	creds.now = func() time.Time { return fixed }

	signed, err := creds.Token()
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	_, claims := parseToken(t, signed, key)

	exp, err := claims.GetExpirationTime()
	if err != nil {
		t.Fatalf("exp: %v", err)
	}
	if !exp.Time.Equal(fixed.Add(TokenTTL)) {
		t.Errorf("exp = %v, want %v", exp.Time, fixed.Add(TokenTTL))
	}
}

func TestCredentials_NonceIsFresh(t *testing.T) {
	key := testKey(t)
	creds := NewCredentials("k", key)

	a, _ := creds.Token()
	b, _ := creds.Token()
	ta, _ := parseToken(t, a, key)
	tb, _ := parseToken(t, b, key)

	if ta.Header["nonce"] == tb.Header["nonce"] {
		t.Error("expected a fresh nonce per token")
	}
}

func TestCredentials_SignRequest(t *testing.T) {
	key := testKey(t)
	creds := NewCredentials("k", key)

	headers, err := creds.SignRequest("GET", "api.coinbase.com", "/api/v3/brokerage/products/BTC-USD")
	if err != nil {
		t.Fatalf("SignRequest failed: %v", err)
	}

	auth := headers["Authorization"]
	if !strings.HasPrefix(auth, "Bearer ") {
		t.Fatalf("Authorization = %q, want Bearer token", auth)
	}

	_, claims := parseToken(t, strings.TrimPrefix(auth, "Bearer "), key)
	if claims["uri"] != "GET api.coinbase.com/api/v3/brokerage/products/BTC-USD" {
		t.Errorf("uri = %v", claims["uri"])
	}
}

func TestCredentials_NoKey(t *testing.T) {
	creds := &Credentials{KeyName: "k"}
	if _, err := creds.Token(); err == nil {
		t.Error("expected error without private key")
	}
}

func writeKeyFile(t *testing.T, name string, block *pem.Block) string {
	t.Helper()
	// CDP files escape newlines inside the JSON string
	kf := keyFile{Name: name, PrivateKey: string(pem.EncodeToMemory(block))}
	data, err := json.Marshal(kf)
	if err != nil {
		t.Fatalf("marshal key file: %v", err)
	}

	path := filepath.Join(t.TempDir(), "cdp_api_key.json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	return path
}

func TestLoadCredentials_SEC1(t *testing.T) {
	key := testKey(t)
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := writeKeyFile(t, "sec1-key", &pem.Block{Type: "EC PRIVATE KEY", Bytes: der})

	creds, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if creds.KeyName != "sec1-key" {
		t.Errorf("KeyName = %q, want sec1-key", creds.KeyName)
	}
	if !creds.PrivateKey.Equal(key) {
		t.Error("loaded key does not match")
	}
}

func TestLoadCredentials_PKCS8(t *testing.T) {
	key := testKey(t)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := writeKeyFile(t, "pkcs8-key", &pem.Block{Type: "PRIVATE KEY", Bytes: der})

	creds, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if !creds.PrivateKey.Equal(key) {
		t.Error("loaded key does not match")
	}
}

func TestParsePrivateKey_EscapedNewlines(t *testing.T) {
	key := testKey(t)
	der, _ := x509.MarshalECPrivateKey(key)
	pemText := string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))
	escaped := strings.ReplaceAll(pemText, "\n", `\n`)

	got, err := ParsePrivateKey([]byte(escaped))
	if err != nil {
		t.Fatalf("ParsePrivateKey failed: %v", err)
	}
	if !got.Equal(key) {
		t.Error("parsed key does not match")
	}
}

func TestLoadCredentials_Errors(t *testing.T) {
	if _, err := LoadCredentials(""); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := LoadCredentials(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte(`{"name":"k","privateKey":"not pem"}`), 0600)
	if _, err := LoadCredentials(path); err == nil {
		t.Error("expected error for invalid PEM")
	}

	path = filepath.Join(t.TempDir(), "noname.json")
	os.WriteFile(path, []byte(`{"privateKey":""}`), 0600)
	if _, err := LoadCredentials(path); err == nil {
		t.Error("expected error for missing name")
	}
}
