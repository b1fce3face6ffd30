package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testClerkIssuer = "https://clerk.kolehiyo.example"

type jwksFixture struct {
	mu         sync.Mutex
	privateKey *rsa.PrivateKey
	keys       map[string]*rsa.PrivateKey
	server     *httptest.Server
	requests   atomic.Int32
	failing    atomic.Bool
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	fixture := &jwksFixture{keys: map[string]*rsa.PrivateKey{}}
	fixture.privateKey = fixture.addKey(t, "test-key")

	fixture.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fixture.requests.Add(1)
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		if fixture.failing.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(fixture.document())
	}))
	t.Cleanup(fixture.server.Close)
	return fixture
}

// addKey publishes a new signing key under keyID.
func (f *jwksFixture) addKey(t *testing.T, keyID string) *rsa.PrivateKey {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[keyID] = privateKey
	return privateKey
}

func (f *jwksFixture) document() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]any, 0, len(f.keys))
	for keyID, privateKey := range f.keys {
		keys = append(keys, map[string]string{
			"kty": "RSA",
			"alg": "RS256",
			"kid": keyID,
			"use": "sig",
			"n":   encodeBigInt(privateKey.PublicKey.N),
			"e":   encodeBigInt(privateKey.PublicKey.E),
		})
	}
	return map[string]any{"keys": keys}
}

func (f *jwksFixture) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	return f.signWith(t, "test-key", f.privateKey, claims)
}

func (f *jwksFixture) signWith(t *testing.T, keyID string, privateKey *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyID
	signedToken, err := token.SignedString(privateKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signedToken
}

func (f *jwksFixture) verifier(t *testing.T, cfg JWKSVerifierConfig) *JWKSVerifier {
	t.Helper()
	cfg.JWKSURL = f.server.URL + "/.well-known/jwks.json"
	cfg.HTTPClient = f.server.Client()
	verifier, err := NewJWKSVerifier(cfg)
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return verifier
}

func TestJWKSVerifierValidatesTokenUsingJWKS(t *testing.T) {
	fixture := newJWKSFixture(t)
	verifier := fixture.verifier(t, JWKSVerifierConfig{AllowedIssuers: []string{testClerkIssuer}})

	now := time.Now().UTC()
	signedToken := fixture.sign(t, jwt.MapClaims{
		"iss":   testClerkIssuer,
		"sub":   "user_2abc",
		"email": "student@example.com",
		"exp":   now.Add(5 * time.Minute).Unix(),
		"iat":   now.Unix(),
	})

	verified, err := verifier.VerifyToken(context.Background(), signedToken)
	if err != nil {
		t.Fatalf("expected verification to succeed: %v", err)
	}
	if verified.UserID() != "user_2abc" {
		t.Fatalf("unexpected subject %s", verified.UserID())
	}
	if verified.Email != "student@example.com" {
		t.Fatalf("unexpected email %s", verified.Email)
	}

	if _, err := verifier.VerifyToken(context.Background(), signedToken); err != nil {
		t.Fatalf("expected cached verification to succeed: %v", err)
	}
	if fixture.requests.Load() != 1 {
		t.Fatalf("expected a single JWKS fetch, got %d", fixture.requests.Load())
	}
}

func TestJWKSVerifierRejectsInvalidAudience(t *testing.T) {
	fixture := newJWKSFixture(t)
	verifier := fixture.verifier(t, JWKSVerifierConfig{Audience: "kolehiyo-web"})

	now := time.Now().UTC()
	signedToken := fixture.sign(t, jwt.MapClaims{
		"aud": "unexpected-client",
		"iss": testClerkIssuer,
		"sub": "user_2abc",
		"exp": now.Add(5 * time.Minute).Unix(),
		"iat": now.Unix(),
	})

	_, err := verifier.VerifyToken(context.Background(), signedToken)
	if !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected verification to fail for mismatched audience, got %v", err)
	}
}

func TestJWKSVerifierRejectsUntrustedIssuerAndExpiredTokens(t *testing.T) {
	fixture := newJWKSFixture(t)
	verifier := fixture.verifier(t, JWKSVerifierConfig{AllowedIssuers: []string{testClerkIssuer}})

	now := time.Now().UTC()
	untrusted := fixture.sign(t, jwt.MapClaims{
		"iss": "https://attacker.example",
		"sub": "user_2abc",
		"exp": now.Add(5 * time.Minute).Unix(),
	})
	if _, err := verifier.VerifyToken(context.Background(), untrusted); err == nil || !strings.Contains(err.Error(), errUntrustedIssuer.Error()) {
		t.Fatalf("expected untrusted issuer error, got %v", err)
	}

	expired := fixture.sign(t, jwt.MapClaims{
		"iss": testClerkIssuer,
		"sub": "user_2abc",
		"exp": now.Add(-5 * time.Minute).Unix(),
	})
	if _, err := verifier.VerifyToken(context.Background(), expired); !errors.Is(err, ErrExpiredSessionToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestJWKSVerifierRefetchesOnKeyRotation(t *testing.T) {
	fixture := newJWKSFixture(t)
	core, logs := observer.New(zapcore.InfoLevel)
	now := time.Now().UTC()
	verifier := fixture.verifier(t, JWKSVerifierConfig{
		Logger: zap.New(core),
		Clock:  func() time.Time { return now },
	})
	claims := jwt.MapClaims{"sub": "user_2abc", "exp": now.Add(5 * time.Minute).Unix()}

	if _, err := verifier.VerifyToken(context.Background(), fixture.sign(t, claims)); err != nil {
		t.Fatalf("expected verification to succeed: %v", err)
	}

	now = now.Add(time.Minute)
	rotatedKey := fixture.addKey(t, "rotated-key")
	rotated := fixture.signWith(t, "rotated-key", rotatedKey, claims)
	if _, err := verifier.VerifyToken(context.Background(), rotated); err != nil {
		t.Fatalf("expected token signed with rotated key to verify: %v", err)
	}
	if fixture.requests.Load() != 2 {
		t.Fatalf("expected rotation to trigger one refetch, got %d requests", fixture.requests.Load())
	}
	if logs.FilterMessage("jwks signing key rotated").Len() != 1 {
		t.Fatalf("expected rotation to be logged")
	}
}

func TestJWKSVerifierThrottlesUnknownKeyRefetches(t *testing.T) {
	fixture := newJWKSFixture(t)
	now := time.Now().UTC()
	verifier := fixture.verifier(t, JWKSVerifierConfig{
		MinRefetchInterval: time.Minute,
		Clock:              func() time.Time { return now },
	})

	forgedKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	forged := fixture.signWith(t, "unknown-key", forgedKey, jwt.MapClaims{
		"sub": "user_2abc",
		"exp": now.Add(5 * time.Minute).Unix(),
	})

	for attempt := 0; attempt < 3; attempt++ {
		if _, err := verifier.VerifyToken(context.Background(), forged); !errors.Is(err, ErrInvalidSessionToken) {
			t.Fatalf("expected unknown key to be rejected, got %v", err)
		}
	}
	if fixture.requests.Load() != 1 {
		t.Fatalf("expected unknown kids within the interval to share one fetch, got %d", fixture.requests.Load())
	}

	now = now.Add(2 * time.Minute)
	if _, err := verifier.VerifyToken(context.Background(), forged); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected unknown key to be rejected, got %v", err)
	}
	if fixture.requests.Load() != 2 {
		t.Fatalf("expected a refetch once the interval elapsed, got %d", fixture.requests.Load())
	}
}

func TestJWKSVerifierServesStaleKeysWhenRefreshFails(t *testing.T) {
	fixture := newJWKSFixture(t)
	core, logs := observer.New(zapcore.WarnLevel)
	now := time.Now().UTC()
	verifier := fixture.verifier(t, JWKSVerifierConfig{
		CacheTTL: time.Minute,
		Logger:   zap.New(core),
		Clock:    func() time.Time { return now },
	})
	signedToken := fixture.sign(t, jwt.MapClaims{"sub": "user_2abc", "exp": now.Add(time.Hour).Unix()})

	if _, err := verifier.VerifyToken(context.Background(), signedToken); err != nil {
		t.Fatalf("expected verification to succeed: %v", err)
	}

	fixture.failing.Store(true)
	now = now.Add(5 * time.Minute)
	if _, err := verifier.VerifyToken(context.Background(), signedToken); err != nil {
		t.Fatalf("expected stale key to keep serving, got %v", err)
	}
	if fixture.requests.Load() != 2 {
		t.Fatalf("expected expired cache to attempt a refresh, got %d requests", fixture.requests.Load())
	}
	if logs.FilterMessage("jwks refresh failed, serving cached key").Len() != 1 {
		t.Fatalf("expected failed refresh to be logged")
	}
}

func TestJWKToRSAPublicKeyRejectsWeakKeys(t *testing.T) {
	weak := jwk{
		KeyType:  "RSA",
		KeyID:    "weak",
		Modulus:  encodeBigInt(new(big.Int).Lsh(big.NewInt(1), 1023)),
		Exponent: encodeBigInt(65537),
	}
	if _, err := weak.rsaPublicKey(); err == nil {
		t.Fatalf("expected a 1024-bit modulus to be rejected")
	}
	if (jwk{KeyType: "RSA", KeyID: "enc", Use: "enc"}).usableForSessions() {
		t.Fatalf("expected encryption keys to be skipped")
	}
	if (jwk{KeyType: "RSA", KeyID: "es", Alg: "ES256"}).usableForSessions() {
		t.Fatalf("expected non-RS256 keys to be skipped")
	}
}

func TestNewJWKSVerifierRequiresJWKSURL(t *testing.T) {
	_, err := NewJWKSVerifier(JWKSVerifierConfig{JWKSURL: " "})
	if !errors.Is(err, ErrInvalidVerifierConfig) {
		t.Fatalf("expected invalid verifier config error, got %v", err)
	}
	if !strings.Contains(err.Error(), errMissingJWKSURL.Error()) {
		t.Fatalf("expected jwks validation error to be reported, got %v", err)
	}
}

func encodeBigInt(value interface{}) string {
	switch v := value.(type) {
	case *big.Int:
		return base64.RawURLEncoding.EncodeToString(v.Bytes())
	case int:
		return encodeBigInt(int64(v))
	case int64:
		return base64.RawURLEncoding.EncodeToString(big.NewInt(v).Bytes())
	default:
		return ""
	}
}
