package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/qhomebase/contract-renewal/pkg/config"
	"github.com/qhomebase/contract-renewal/pkg/logctx"
	"github.com/qhomebase/contract-renewal/pkg/response"
)

const bearerPrefix = "Bearer "

// Claims is the bearer token payload. Subject is the acting user.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.StandardClaims
}

// Authenticator turns HS256 bearer tokens into the acting user of a request.
// With no secret configured every request is anonymous and the guards let it through.
type Authenticator struct {
	secret    []byte
	adminRole string
	log       *zap.SugaredLogger
}

func NewAuthenticator(cfg *config.Config, log *zap.SugaredLogger) *Authenticator {
	return &Authenticator{secret: []byte(cfg.Auth.JWTSecret), adminRole: cfg.Auth.AdminRole, log: log}
}

func (a *Authenticator) Enabled() bool { return len(a.secret) > 0 }

func (a *Authenticator) parse(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, errors.New("token expired")
		}
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Authenticate reads the Authorization header when present. A request without
// one continues anonymously; RequireUser decides whether that is acceptable.
func (a *Authenticator) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !a.Enabled() || header == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(header, bearerPrefix) {
			a.reject(c, response.APIResponseCodeUnauthorized, "authorization header must be a bearer token")
			return
		}
		claims, err := a.parse(strings.TrimPrefix(header, bearerPrefix))
		if err != nil {
			a.reject(c, response.APIResponseCodeUnauthorized, err.Error())
			return
		}
		c.Set(logctx.KeyUserID, claims.Subject)
		c.Set(logctx.KeyRoles, claims.Roles)
		c.Request = c.Request.WithContext(logctx.WithUserID(c.Request.Context(), claims.Subject))
		c.Next()
	}
}

// RequireUser rejects anonymous requests when tokens are enabled.
func (a *Authenticator) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.Enabled() && c.GetString(logctx.KeyUserID) == "" {
			a.reject(c, response.APIResponseCodeUnauthorized, "missing bearer token")
			return
		}
		c.Next()
	}
}

// RequireAdmin only lets callers holding the configured admin role through.
func (a *Authenticator) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}
		if c.GetString(logctx.KeyUserID) == "" {
			a.reject(c, response.APIResponseCodeUnauthorized, "missing bearer token")
			return
		}
		if !lo.Contains(c.GetStringSlice(logctx.KeyRoles), a.adminRole) {
			a.reject(c, response.APIResponseCodeForbidden, "admin role required")
			return
		}
		c.Next()
	}
}

func (a *Authenticator) reject(c *gin.Context, code response.APIResponseCode, msg string) {
	logctx.FromGin(c, a.log).Warnw("auth rejected", "path", c.Request.URL.Path, "reason", msg)
	c.AbortWithStatusJSON(http.StatusOK, response.ErrorT[any](code, msg))
}
