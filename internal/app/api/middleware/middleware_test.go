package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qhomebase/contract-renewal/pkg/config"
	"github.com/qhomebase/contract-renewal/pkg/logctx"
	"github.com/qhomebase/contract-renewal/pkg/response"
)

const secret = "test-secret"

func token(t *testing.T, key, sub string, roles []string, expires time.Time) string {
	t.Helper()
	claims := &Claims{Roles: roles, StandardClaims: jwt.StandardClaims{Subject: sub, ExpiresAt: expires.Unix()}}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func newRouter(jwtSecret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Auth: config.AuthConfig{JWTSecret: jwtSecret, AdminRole: "ADMIN"}}
	log := zap.NewNop().Sugar()
	auth := NewAuthenticator(cfg, log)

	r := gin.New()
	r.Use(TraceMiddleware(), auth.Authenticate(), RequestLoggerMiddleware(log), AccessLogMiddleware(log))
	echo := func(c *gin.Context) {
		c.JSON(http.StatusOK, response.OKT(map[string]string{
			"user":  logctx.UserID(c.Request.Context()),
			"trace": logctx.TraceID(c.Request.Context()),
		}))
	}
	r.GET("/open", echo)
	r.GET("/user", auth.RequireUser(), echo)
	r.GET("/admin", auth.RequireAdmin(), echo)
	return r
}

type envelope struct {
	Code response.APIResponseCode `json:"code"`
	Data interface{}              `json:"data"`
}

func (e envelope) field(name string) string {
	m, _ := e.Data.(map[string]interface{})
	s, _ := m[name].(string)
	return s
}

func call(t *testing.T, r *gin.Engine, path, bearer string, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var env envelope
	require.NoError(t, jsoniter.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func TestTraceMiddleware_EchoesRequestID(t *testing.T) {
	r := newRouter("")
	w, env := call(t, r, "/open", "", map[string]string{HeaderRequestID: "req-42"})
	assert.Equal(t, "req-42", env.field("trace"))
	assert.Equal(t, "req-42", w.Header().Get(HeaderRequestID))

	w, env = call(t, r, "/open", "", nil)
	assert.NotEmpty(t, env.field("trace"))
	assert.Equal(t, env.field("trace"), w.Header().Get(HeaderRequestID))
}

func TestAuthenticate(t *testing.T) {
	r := newRouter(secret)
	valid := token(t, secret, "user-1", nil, time.Now().Add(time.Hour))
	admin := token(t, secret, "admin-1", []string{"ADMIN"}, time.Now().Add(time.Hour))

	cases := []struct {
		name     string
		path     string
		bearer   string
		wantCode response.APIResponseCode
		wantUser string
	}{
		{"anonymous open route", "/open", "", response.APIResponseCodeOK, ""},
		{"user on open route", "/open", valid, response.APIResponseCodeOK, "user-1"},
		{"anonymous user route", "/user", "", response.APIResponseCodeUnauthorized, ""},
		{"user route", "/user", valid, response.APIResponseCodeOK, "user-1"},
		{"wrong key", "/user", token(t, "other", "user-1", nil, time.Now().Add(time.Hour)), response.APIResponseCodeUnauthorized, ""},
		{"expired", "/user", token(t, secret, "user-1", nil, time.Now().Add(-time.Hour)), response.APIResponseCodeUnauthorized, ""},
		{"no subject", "/user", token(t, secret, "", nil, time.Now().Add(time.Hour)), response.APIResponseCodeUnauthorized, ""},
		{"admin without role", "/admin", valid, response.APIResponseCodeForbidden, ""},
		{"admin", "/admin", admin, response.APIResponseCodeOK, "admin-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, env := call(t, r, tc.path, tc.bearer, nil)
			assert.Equal(t, tc.wantCode, env.Code)
			if tc.wantCode == response.APIResponseCodeOK {
				assert.Equal(t, tc.wantUser, env.field("user"))
			}
		})
	}
}

func TestAuthenticate_RejectsNonBearerScheme(t *testing.T) {
	r := newRouter(secret)
	_, env := call(t, r, "/open", "", map[string]string{"Authorization": "Basic abc"})
	assert.Equal(t, response.APIResponseCodeUnauthorized, env.Code)
}

func TestAuthenticate_DisabledWithoutSecret(t *testing.T) {
	r := newRouter("")
	_, env := call(t, r, "/admin", "", nil)
	assert.Equal(t, response.APIResponseCodeOK, env.Code)
	assert.Empty(t, env.field("user"))
}
