package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-chathub/internal/database"
	"github.com/npezzotti/go-chathub/internal/types"
)

const (
	TokenQueryParam = "token"
	IdClaim         = "id"
	bearerPrefix    = "bearer "
)

var (
	ErrMissingToken     = errors.New("you are not authenticated")
	ErrTokenExpired     = errors.New("token has expired")
	ErrInvalidToken     = errors.New("invalid token")
	ErrAccountDeleted   = errors.New("your account has been deleted")
	ErrEmailNotVerified = errors.New("email not verified")
	ErrAccountBlocked   = errors.New("you are blocked")
	ErrUnauthorized     = errors.New("unauthorized")
)

// UserGetter is the part of the persistence port the verifier needs.
type UserGetter interface {
	GetUser(ctx context.Context, id string) (database.User, error)
}

// Verifier turns a bearer credential into a trusted Identity.
type Verifier struct {
	signingKey []byte
	users      UserGetter
}

func NewVerifier(signingKey []byte, users UserGetter) *Verifier {
	return &Verifier{
		signingKey: signingKey,
		users:      users,
	}
}

// TokenFromRequest returns the credential from the token query parameter, or
// from the Authorization header with or without a Bearer prefix.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get(TokenQueryParam); token != "" {
		return token
	}

	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authz) > len(bearerPrefix) && strings.EqualFold(authz[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(authz[len(bearerPrefix):])
	}

	return authz
}

// Verify validates the token and loads the account it names. The returned
// error is always one of the package's sentinel errors, possibly wrapped.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (types.Identity, error) {
	if tokenString == "" {
		return types.Identity{}, ErrMissingToken
	}

	userId, err := v.userIdFromToken(tokenString)
	if err != nil {
		return types.Identity{}, err
	}

	user, err := v.users.GetUser(ctx, userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Identity{}, ErrUnauthorized
		}
		return types.Identity{}, fmt.Errorf("%w: get user: %w", ErrUnauthorized, err)
	}

	switch {
	case user.IsDeleted:
		return types.Identity{}, ErrAccountDeleted
	case !user.IsEmailVerified:
		return types.Identity{}, ErrEmailNotVerified
	case user.Status == database.UserStatusBlocked:
		return types.Identity{}, ErrAccountBlocked
	}

	return user.Identity(), nil
}

func (v *Verifier) userIdFromToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	userId, ok := claims[IdClaim].(string)
	if !ok || userId == "" {
		return "", ErrInvalidToken
	}

	return userId, nil
}

// Message returns the text reported to a client for an authentication error.
func Message(err error) string {
	for _, sentinel := range []error{
		ErrMissingToken,
		ErrTokenExpired,
		ErrInvalidToken,
		ErrAccountDeleted,
		ErrEmailNotVerified,
		ErrAccountBlocked,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return ErrUnauthorized.Error()
}
