package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-credits/core"
)

const (
	jwtContextKey = "ownerToken"
	jwtAudience   = "Academia"
)

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    jwtContextKey,
		Claims:        new(Claims),
	}
}

// Claims represents the authorization claims transmitted via a JWT.
// tokens are issued by the identity provider: the Subject is the owner (school) of the credit account.
type Claims struct {
	jwt.StandardClaims
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// NewOwnerClaims returns the claims of a token acting on behalf of `owner`.
func NewOwnerClaims(conf *core.Config, owner, username, email string) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   owner,
			Audience:  jwtAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Username: username,
		Email:    email,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	jwtConf := newJWTConfig(conf)
	method := jwt.GetSigningMethod(jwtConf.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(jwtConf.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(jwtContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextOwner returns the owner the request acts on behalf of.
func getContextOwner(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	owner := core.CleanString(claims.Subject)
	if owner == "" {
		return "", errUnauthorized
	}
	return owner, nil
}

func (c Claims) person() core.Person {
	return core.Person{ID: c.Subject, Username: c.Username, Email: c.Email}
}
