package auth

import (
	"context"

	"go.uber.org/zap"
)

type userKeyType struct{}

var (
	userKey userKeyType
)

func UserFromContext(ctx context.Context) (User, bool) {
	val := ctx.Value(userKey)
	if val == nil {
		return User{}, false
	}
	return val.(User), true
}

func MustHaveUser(ctx context.Context) User {
	user, found := UserFromContext(ctx)
	if !found {
		zap.S().Named("auth").Panic("failed to find user in context")
	}
	return user
}

func NewUserContext(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// User is the caller of the API. Credential is the raw bearer token; it is
// forwarded to the data source and never persisted with the job.
type User struct {
	Username   string
	Credential string
}

// String omits the credential.
func (u User) String() string {
	return u.Username
}
