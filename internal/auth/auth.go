package auth

import (
	"context"
	"net/http"

	"github.com/cortap/cortap-rpt/internal/config"
	"go.uber.org/zap"
)

type Authenticator interface {
	Authenticator(next http.Handler) http.Handler
}

const (
	BearerAuthentication string = "bearer"
	NoneAuthentication   string = "none"
)

func NewAuthenticator(ctx context.Context, authConfig config.Auth) (Authenticator, error) {
	zap.S().Named("auth").Infof("authentication: '%s'", authConfig.AuthenticationType)

	switch authConfig.AuthenticationType {
	case NoneAuthentication:
		return NewNoneAuthenticator()
	default:
		return NewBearerAuthenticator(ctx, authConfig.JwksURL)
	}
}
