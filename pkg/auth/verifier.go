// Package auth verifies tokens issued by the external authentication provider.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

type Verifier interface {
	Verify(ctx context.Context, tokenString string) (jwt.Token, error)
}

// JWTVerifier validates tokens against the provider's JWKS endpoint.
// The key set is cached for at least minInterval between refreshes.
type JWTVerifier struct {
	mu sync.RWMutex

	jwksURL  string
	issuer   string
	clientID string

	cachedSet     jwk.Set
	lastRefreshed time.Time
	minInterval   time.Duration
	logger        *slog.Logger
}

// NewJWTVerifier creates a verifier and fetches the key set once to fail fast on bad configuration.
func NewJWTVerifier(ctx context.Context, cfg config.IdP, logger *slog.Logger) (*JWTVerifier, error) {
	v := &JWTVerifier{
		jwksURL:     cfg.JwksURL,
		issuer:      cfg.Issuer,
		clientID:    cfg.ClientID,
		minInterval: cfg.MinInterval,
		logger:      logger.With("component", "jwt-verifier"),
	}
	if _, err := v.keySet(ctx); err != nil {
		return nil, fmt.Errorf("initial JWKS fetch failed: %w", err)
	}
	return v, nil
}

func (v *JWTVerifier) cached() (jwk.Set, bool) {
	if v.cachedSet != nil && time.Since(v.lastRefreshed) < v.minInterval {
		return v.cachedSet, true
	}
	return nil, false
}

// keySet returns the cached JWKS or refreshes it. A failed refresh keeps serving the stale set.
func (v *JWTVerifier) keySet(ctx context.Context) (jwk.Set, error) {
	v.mu.RLock()
	set, ok := v.cached()
	v.mu.RUnlock()
	if ok {
		return set, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	// another goroutine may have refreshed while we waited for the lock
	if set, ok := v.cached(); ok {
		return set, nil
	}
	fetched, err := jwk.Fetch(ctx, v.jwksURL)
	if err != nil {
		if v.cachedSet != nil {
			v.logger.WarnContext(ctx, "JWKS refresh failed, using stale key set", "error", err)
			return v.cachedSet, nil
		}
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", v.jwksURL, err)
	}
	v.cachedSet = fetched
	v.lastRefreshed = time.Now()
	return fetched, nil
}

// Verify parses the token and checks signature, expiry, issuer and authorized party.
func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (jwt.Token, error) {
	set, err := v.keySet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get keyset for verification: %w", err)
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(set),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithClaimValue("azp", v.clientID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}
	return token, nil
}
