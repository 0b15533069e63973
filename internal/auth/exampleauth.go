package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gbrlsnchs/jwt/v3"
)

// tokenPayload is the claim set issued and verified by ExampleJWTAuth. It
// carries only the registered "exp" claim; this is a worked example of the
// adapter interface, not a full-featured auth plugin.
type tokenPayload struct {
	jwt.Payload
}

// ExampleJWTAuth is a worked example of a Checker: it forbids "stats"
// outright, demands a Bearer token on everything else, and grants an
// expiry taken from the token's "exp" claim. Real deployments are expected
// to supply their own Checker.
type ExampleJWTAuth struct {
	hs *jwt.HMACSHA
}

// NewExampleJWTAuth builds an ExampleJWTAuth signing and verifying tokens
// with HMAC-SHA256 under secret.
func NewExampleJWTAuth(secret []byte) *ExampleJWTAuth {
	return &ExampleJWTAuth{hs: jwt.NewHS256(secret)}
}

func (a *ExampleJWTAuth) CheckAuth(_ context.Context, route string, headers http.Header, _ string) (Result, error) {
	if route == "stats" {
		return Result{}, Forbidden{}
	}

	authz := headers.Get("Authorization")
	if authz == "" {
		return Result{}, &Unauthorized{Authenticate: "Bearer"}
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return Result{}, Forbidden{}
	}

	var pl tokenPayload
	if _, err := jwt.Verify([]byte(strings.TrimPrefix(authz, prefix)), a.hs, &pl); err != nil {
		return Result{}, Forbidden{}
	}

	var expire *time.Time
	if pl.ExpirationTime != nil {
		t := pl.ExpirationTime.Time()
		expire = &t
	}
	return Result{Expire: expire}, nil
}

// IssueToken signs a token that expires after ttl, for use by whatever
// issues credentials to producers of this example adapter's tokens.
func (a *ExampleJWTAuth) IssueToken(ttl time.Duration) (string, error) {
	pl := tokenPayload{
		Payload: jwt.Payload{
			ExpirationTime: jwt.NewExpirationTime(time.Now().UTC().Add(ttl)),
		},
	}
	token, err := jwt.Sign(pl, a.hs)
	if err != nil {
		return "", err
	}
	return string(token), nil
}
