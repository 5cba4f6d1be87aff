package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
)

const callerKey = "bookswap.caller_id"

// SessionAuth validates the HS256 session token issued by the auth collaborator and exposes its
// subject as the caller id.
func SessionAuth(secret, issuer string) gin.HandlerFunc {
	key := []byte(strings.TrimSpace(secret))
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(2 * time.Minute),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	return func(c *gin.Context) {
		raw := extractBearer(c.GetHeader("Authorization"))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_session", "message": "missing bearer token"})
			return
		}
		subject, err := parseSession(raw, key, opts)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_session", "message": "invalid session token"})
			return
		}
		c.Set(callerKey, subject)
		c.Next()
	}
}

func parseSession(raw string, key []byte, opts []jwt.ParserOption) (string, error) {
	if len(key) == 0 {
		return "", errors.New("session secret not configured")
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

func extractBearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// CallerID returns the authenticated user id.
func CallerID(c *gin.Context) string {
	return c.GetString(callerKey)
}
