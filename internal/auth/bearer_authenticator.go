package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const bearerPrefix = "Bearer "

var (
	identityClaims = []string{"email", "preferred_username", "sub"}
	signingMethods = []string{
		jwt.SigningMethodRS256.Name,
		jwt.SigningMethodRS384.Name,
		jwt.SigningMethodRS512.Name,
		jwt.SigningMethodES256.Name,
		jwt.SigningMethodES384.Name,
	}
)

// BearerAuthenticator accepts the caller's upstream bearer token, which is
// forwarded untouched to the data source. With a key function, tokens must
// carry a valid signature and the requester is read from their claims. Without
// one, claims are not trusted and the requester is a hash of the token.
type BearerAuthenticator struct {
	keyFn jwt.Keyfunc
}

// NewBearerAuthenticator verifies tokens against the JWKS served at jwksURL,
// refreshing the key set until ctx is done. An empty URL disables verification.
func NewBearerAuthenticator(ctx context.Context, jwksURL string) (*BearerAuthenticator, error) {
	if jwksURL == "" {
		return &BearerAuthenticator{}, nil
	}

	k, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to get identity provider public keys: %w", err)
	}
	return &BearerAuthenticator{keyFn: k.Keyfunc}, nil
}

func NewBearerAuthenticatorWithKeyFn(keyFn jwt.Keyfunc) (*BearerAuthenticator, error) {
	return &BearerAuthenticator{keyFn: keyFn}, nil
}

// Identify returns the requester identity for token. It fails only when
// verification is enabled and the token is not a valid signed JWT.
func (b *BearerAuthenticator) Identify(token string) (string, error) {
	if b.keyFn == nil {
		return tokenDigest(token), nil
	}

	parser := jwt.NewParser(jwt.WithValidMethods(signingMethods), jwt.WithExpirationRequired())
	claims := jwt.MapClaims{}
	t, err := parser.ParseWithClaims(token, claims, b.keyFn)
	if err != nil {
		return "", fmt.Errorf("failed to authenticate token: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("token is not valid")
	}

	for _, name := range identityClaims {
		if v, ok := claims[name].(string); ok && v != "" {
			return v, nil
		}
	}
	return tokenDigest(token), nil
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "token:" + hex.EncodeToString(sum[:])[:16]
}

func (b *BearerAuthenticator) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessToken := r.Header.Get("Authorization")
		if !strings.HasPrefix(accessToken, bearerPrefix) || strings.TrimSpace(accessToken[len(bearerPrefix):]) == "" {
			http.Error(w, "No token provided", http.StatusUnauthorized)
			return
		}

		accessToken = strings.TrimSpace(accessToken[len(bearerPrefix):])
		username, err := b.Identify(accessToken)
		if err != nil {
			zap.S().Named("auth").Debugw("token rejected", "error", err)
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		user := User{Username: username, Credential: accessToken}
		zap.S().Named("auth").Debugw("request authenticated", "user", user.Username)
		next.ServeHTTP(w, r.WithContext(NewUserContext(r.Context(), user)))
	})
}
