package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/user"
)

const (
	contextTokenKey  = "userToken"
	contextCallerKey = "caller"
	tokenAudience    = "Colegio"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Name  string           `json:"name,omitempty"`
	Email string           `json:"email,omitempty"`
	Roles []user.RoleClaim `json:"roles,omitempty"`
}

// caller is the authenticated principal of a request, with its roles resolved once.
type caller struct {
	ID    string
	Roles user.RoleSet
	user  user.Summary
}

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

func GetUserClaims(usr user.User, conf *core.Config) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name:  usr.Name,
		Email: usr.Email,
		Roles: user.RoleClaims(usr.Roles...),
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(claims *Claims, secretKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getCaller(ctx echo.Context) (caller, error) {
	if c, ok := ctx.Get(contextCallerKey).(caller); ok {
		return c, nil
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return caller{}, err
	}
	c := caller{
		ID:    claims.Subject,
		Roles: user.ResolveRoleNames(claims.Roles),
		user:  user.Summary{ID: claims.Subject, Name: claims.Name, Email: claims.Email},
	}
	ctx.Set(contextCallerKey, c)
	return c, nil
}
