package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": c.GetUint64("userId"), "username": c.GetString("username")})
	})
	return r
}

func TestExtractBearer(t *testing.T) {
	assert.Equal(t, "abc", extractBearer("Bearer abc"))
	assert.Equal(t, "abc", extractBearer("bearer  abc "))
	assert.Equal(t, "", extractBearer("Basic abc"))
	assert.Equal(t, "", extractBearer("Bearer "))
	assert.Equal(t, "", extractBearer(""))
}

func TestAuthMiddleware(t *testing.T) {
	r := newAuthRouter()
	good, err := SignAccessToken(secret, 42, "gandalf", time.Minute)
	require.NoError(t, err)
	expired, err := SignAccessToken(secret, 42, "gandalf", -time.Minute)
	require.NoError(t, err)
	forged, err := SignAccessToken("other-secret", 42, "gandalf", time.Minute)
	require.NoError(t, err)
	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{UserID: 42, Type: "refresh"}).SignedString([]byte(secret))
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"header", "Bearer " + good, "", http.StatusOK},
		{"query token", "", "?token=" + good, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + forged, "", http.StatusUnauthorized},
		{"refresh token", "Bearer " + refresh, "", http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"userId":42,"username":"gandalf"}`, w.Body.String())
			}
		})
	}
}

func TestParseAccessToken_RejectsOtherAlgorithms(t *testing.T) {
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 1, Type: "access"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseAccessToken(secret, none)
	assert.Error(t, err)
}
