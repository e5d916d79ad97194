package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/taskstream/backend/internal/domain/identity"
	"github.com/taskstream/backend/pkg/logger"
)

// ErrInvalidToken means the credential is malformed, expired, signed with
// an unexpected algorithm or carries an invalid signature.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the identity payload carried by tokens the identity service
// issues. Role defaults to "user" and teams to empty when absent.
type Claims struct {
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Role  string   `json:"role"`
	Teams []string `json:"teams"`
	jwt.RegisteredClaims
}

// Verifier resolves bearer credentials to caller identities. The public
// key is cached for the process lifetime: fetched eagerly once at boot
// (best-effort), lazily on the first verification otherwise, and never
// invalidated unless a cron refresh is configured.
type Verifier struct {
	source *KeySource
	logger *logger.Logger

	mu  sync.RWMutex
	key *rsa.PublicKey
}

func NewVerifier(source *KeySource, log *logger.Logger) *Verifier {
	return &Verifier{source: source, logger: log}
}

// Refresh fetches the key material and replaces the cached key. Safe to
// call concurrently; the last successful fetch wins.
func (v *Verifier) Refresh(ctx context.Context) error {
	pemBytes, err := v.source.Fetch(ctx)
	if err != nil {
		return err
	}

	key, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes)
	if err != nil {
		return fmt.Errorf("parse verification key: %w", err)
	}

	v.mu.Lock()
	v.key = key
	v.mu.Unlock()

	v.logger.Info("verification key cached")
	return nil
}

func (v *Verifier) publicKey(ctx context.Context) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key := v.key
	v.mu.RUnlock()
	if key != nil {
		return key, nil
	}

	// Cold cache: concurrent callers may each fetch; wasteful but safe.
	if err := v.Refresh(ctx); err != nil {
		if errors.Is(err, ErrKeyUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.key, nil
}

// Verify validates a bearer credential and returns the caller identity.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (identity.Identity, error) {
	key, err := v.publicKey(ctx)
	if err != nil {
		return identity.Anonymous(), err
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Only the configured asymmetric scheme is accepted; a token
		// signed HS256 with the public key as secret must not verify.
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return identity.Anonymous(), fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return identity.Anonymous(), ErrInvalidToken
	}

	id := identity.Identity{
		UserID: claims.Subject,
		Name:   claims.Name,
		Email:  claims.Email,
		Role:   claims.Role,
		Teams:  claims.Teams,
	}
	if id.Role == "" {
		id.Role = identity.RoleUser
	}
	return id, nil
}

// WarmUp performs the opportunistic startup fetch. Failure is logged and
// swallowed: the process keeps serving anonymous and forwarded-header
// traffic until a later fetch succeeds.
func (v *Verifier) WarmUp(ctx context.Context) {
	if err := v.Refresh(ctx); err != nil {
		v.logger.Warn("startup key fetch failed, continuing without cached key",
			zap.Error(err))
	}
}
