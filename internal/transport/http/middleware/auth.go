package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"scholarbridge/internal/pkg/jwtutil"
	"scholarbridge/internal/transport/http/response"
)

const (
	HeaderWebhookSecret = "X-Webhook-Secret"
	ContextOperatorKey  = "operator"
)

// AdminJWT guards operator endpoints with an admin-scoped bearer token.
func AdminJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing or malformed authorization header")
			c.Abort()
			return
		}

		claims, err := jwtutil.ParseAdminToken(secret, token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextOperatorKey, claims.Subject)
		c.Next()
	}
}

// ProfileLinkToken requires a link token bound to the :id route parameter,
// taken from the token query parameter or a bearer header. A nil-op when
// required is false.
func ProfileLinkToken(secret string, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !required {
			c.Next()
			return
		}

		token := c.Query("token")
		if token == "" {
			token, _ = bearerToken(c)
		}
		if token == "" {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "link token required")
			c.Abort()
			return
		}
		if err := jwtutil.VerifyLinkToken(secret, token, c.Param("id")); err != nil {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid link token")
			c.Abort()
			return
		}
		c.Next()
	}
}

// WebhookSecret compares X-Webhook-Secret against a bcrypt hash. An empty
// hash disables the check.
func WebhookSecret(hash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hash == "" {
			c.Next()
			return
		}
		secret := c.GetHeader(HeaderWebhookSecret)
		if secret == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) != nil {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid webhook secret")
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
	return token, token != ""
}
