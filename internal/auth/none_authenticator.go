package auth

import (
	"net/http"
	"strings"
)

type NoneAuthenticator struct{}

func NewNoneAuthenticator() (*NoneAuthenticator, error) {
	return &NoneAuthenticator{}, nil
}

// Authenticator admits every request as the admin user. A bearer token, when
// present, is still forwarded as the credential.
func (n *NoneAuthenticator) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := User{
			Username:   "admin",
			Credential: strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), bearerPrefix)),
		}

		ctx := NewUserContext(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
