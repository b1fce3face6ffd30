package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	defaultJWKSCacheTTL   = 10 * time.Minute
	defaultJWKSMinRefetch = 30 * time.Second
	maxJWKSDocumentBytes  = 1 << 20
	minRSAModulusBits     = 2048
)

var (
	errMissingToken          = errors.New("token must not be empty")
	errMissingKeyIdentifier  = errors.New("token missing key identifier")
	errKeyNotFound           = errors.New("signing key not found in JWKS")
	errUntrustedIssuer       = errors.New("token issuer not allowed")
	errMissingSubject        = errors.New("token missing subject claim")
	errMissingJWKSURL        = errors.New("jwks url configuration required")
	errNoUsableKeys          = errors.New("jwks document contained no usable keys")
	ErrInvalidVerifierConfig = errors.New("auth: invalid jwks verifier config")
)

// JWKSVerifierConfig bundles configuration required to instantiate a JWKSVerifier.
// Audience and AllowedIssuers are enforced only when set. MinRefetchInterval
// bounds how often an unknown kid may trigger a JWKS fetch.
type JWKSVerifierConfig struct {
	Audience           string
	JWKSURL            string
	AllowedIssuers     []string
	HTTPClient         *http.Client
	CacheTTL           time.Duration
	MinRefetchInterval time.Duration
	Logger             *zap.Logger
	Clock              func() time.Time
}

// JWKSVerifier verifies RS256 session tokens offline using a cached JWKS document.
type JWKSVerifier struct {
	audience   string
	jwksURL    string
	logger     *zap.Logger
	httpClient *http.Client
	clock      func() time.Time
	cache      *jwksCache
	refreshMu  sync.Mutex
	issuers    map[string]struct{}
}

// NewJWKSVerifier constructs a verifier with validated configuration.
func NewJWKSVerifier(cfg JWKSVerifierConfig) (*JWKSVerifier, error) {
	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	if jwksURL == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerifierConfig, errMissingJWKSURL)
	}

	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultJWKSCacheTTL
	}

	minRefetch := cfg.MinRefetchInterval
	if minRefetch <= 0 {
		minRefetch = defaultJWKSMinRefetch
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	issuers := make(map[string]struct{})
	for _, issuer := range cfg.AllowedIssuers {
		normalized := strings.TrimSpace(issuer)
		if normalized == "" {
			continue
		}
		issuers[normalized] = struct{}{}
	}

	return &JWKSVerifier{
		audience:   strings.TrimSpace(cfg.Audience),
		jwksURL:    jwksURL,
		logger:     logger,
		httpClient: httpClient,
		clock:      clock,
		cache:      &jwksCache{ttl: cacheTTL, minRefetch: minRefetch},
		issuers:    issuers,
	}, nil
}

// VerifyToken validates the provided token and returns its claims.
func (v *JWKSVerifier) VerifyToken(ctx context.Context, rawToken string) (SessionClaims, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return SessionClaims{}, errMissingToken
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(v.clock),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(
		rawToken,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			keyID, _ := token.Header["kid"].(string)
			if keyID == "" {
				return nil, errMissingKeyIdentifier
			}
			return v.lookupKey(ctx, keyID)
		},
		options...,
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionClaims{}, ErrExpiredSessionToken
		}
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if !token.Valid {
		return SessionClaims{}, ErrInvalidSessionToken
	}

	if len(v.issuers) > 0 {
		if _, allowed := v.issuers[claims.Issuer]; !allowed {
			return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, errUntrustedIssuer)
		}
	}
	if claims.UserID() == "" {
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrMissingSessionSubject, errMissingSubject)
	}
	return *claims, nil
}

// lookupKey serves keys from the cache while it is fresh. A kid the cache does
// not know triggers a refetch, since the provider publishes a new key before
// signing with it; such refetches are throttled by minRefetch so a stream of
// forged kids cannot hammer the JWKS endpoint. When a refetch fails the last
// good key set keeps serving.
func (v *JWKSVerifier) lookupKey(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
	now := v.clock()
	if key, fresh := v.cache.lookup(keyID, now); key != nil && fresh {
		return key, nil
	}

	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	key, fresh := v.cache.lookup(keyID, now)
	if key != nil && fresh {
		return key, nil
	}
	if key == nil && fresh && !v.cache.refetchAllowed(now) {
		return nil, errKeyNotFound
	}

	hadKeys := v.cache.size() > 0
	if err := v.refreshKeys(ctx, now); err != nil {
		if key != nil {
			v.logger.Warn("jwks refresh failed, serving cached key",
				zap.String("kid", keyID),
				zap.Error(err))
			return key, nil
		}
		return nil, err
	}

	if rotated, _ := v.cache.lookup(keyID, now); rotated != nil {
		if key == nil && hadKeys {
			v.logger.Info("jwks signing key rotated", zap.String("kid", keyID))
		}
		return rotated, nil
	}
	return nil, errKeyNotFound
}

func (v *JWKSVerifier) refreshKeys(ctx context.Context, fetchedAt time.Time) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	request.Header.Set("Accept", "application/json")

	response, err := v.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", response.StatusCode)
	}

	var document jwksDocument
	if err := json.NewDecoder(io.LimitReader(response.Body, maxJWKSDocumentBytes)).Decode(&document); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(document.Keys))
	for _, entry := range document.Keys {
		if !entry.usableForSessions() {
			continue
		}
		publicKey, err := entry.rsaPublicKey()
		if err != nil {
			v.logger.Debug("skipping jwk", zap.String("kid", entry.KeyID), zap.Error(err))
			continue
		}
		keys[entry.KeyID] = publicKey
	}
	if len(keys) == 0 {
		return errNoUsableKeys
	}

	v.cache.replace(keys, fetchedAt)
	v.logger.Debug("jwks refreshed", zap.Int("keys", len(keys)))
	return nil
}

type jwksCache struct {
	mu         sync.RWMutex
	keys       map[string]*rsa.PublicKey
	fetchedAt  time.Time
	ttl        time.Duration
	minRefetch time.Duration
}

// lookup returns the cached key for keyID, if any, and whether the cached
// set is still within its TTL. Stale keys are returned for fallback use.
func (c *jwksCache) lookup(keyID string, now time.Time) (*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.keys == nil {
		return nil, false
	}
	return c.keys[keyID], now.Before(c.fetchedAt.Add(c.ttl))
}

func (c *jwksCache) refetchAllowed(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keys == nil || now.Sub(c.fetchedAt) >= c.minRefetch
}

func (c *jwksCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

func (c *jwksCache) replace(keys map[string]*rsa.PublicKey, fetchedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = keys
	c.fetchedAt = fetchedAt
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	KeyType  string `json:"kty"`
	Alg      string `json:"alg"`
	KeyID    string `json:"kid"`
	Use      string `json:"use"`
	Modulus  string `json:"n"`
	Exponent string `json:"e"`
}

// usableForSessions reports whether the key can verify RS256 session tokens.
// Keys published without use or alg are accepted.
func (k jwk) usableForSessions() bool {
	if k.KeyType != "RSA" || strings.TrimSpace(k.KeyID) == "" {
		return false
	}
	if k.Use != "" && k.Use != "sig" {
		return false
	}
	return k.Alg == "" || k.Alg == jwt.SigningMethodRS256.Alg()
}

func (k jwk) rsaPublicKey() (*rsa.PublicKey, error) {
	modulus, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(k.Modulus, "="))
	if err != nil {
		return nil, fmt.Errorf("invalid modulus encoding: %w", err)
	}
	if len(modulus)*8 < minRSAModulusBits {
		return nil, fmt.Errorf("modulus shorter than %d bits", minRSAModulusBits)
	}

	exponentBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(k.Exponent, "="))
	if err != nil {
		return nil, fmt.Errorf("invalid exponent encoding: %w", err)
	}
	exponent := new(big.Int).SetBytes(exponentBytes)
	if !exponent.IsInt64() || exponent.Int64() < 3 || exponent.Int64() > math.MaxInt32 {
		return nil, errors.New("exponent out of range")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(modulus),
		E: int(exponent.Int64()),
	}, nil
}
