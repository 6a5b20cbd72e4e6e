package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "tracketl/api/errors"
	"tracketl/api/httputil"
	"tracketl/api/utils"
)

const (
	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"

	apiKeyHeader = "X-API-KEY"
	tokenCookie  = "jwt_token"
)

// AuthRequired accepts either the static API key or a valid operator JWT
// from the jwt_token cookie or a Bearer Authorization header. An empty
// apiKey disables static key access.
func AuthRequired(tokens *utils.TokenIssuer, apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey != "" {
			if key := c.GetHeader(apiKeyHeader); key != "" &&
				subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
				c.Next()
				return
			}
		}

		tokenString := extractToken(c)
		if tokenString == "" {
			log.Debug().Str("path", c.FullPath()).Msg("auth: no token provided")
			httputil.RespondError(c, apperrors.Unauthorized("Unauthorized: No token provided"))
			return
		}

		claims, err := tokens.ValidateJWT(tokenString)
		if err != nil {
			log.Warn().Err(err).Msg("auth: invalid token")
			httputil.RespondError(c, apperrors.InvalidToken("Unauthorized: Invalid or expired token"))
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if token, err := c.Cookie(tokenCookie); err == nil && token != "" {
		return token
	}

	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
