package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dipteshhh/learnease-backend/internal/http/response"
	"github.com/dipteshhh/learnease-backend/internal/platform/ctxutil"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
)

// AuthMiddleware accepts HS256 bearer tokens whose subject is the user id.
type AuthMiddleware struct {
	log    *logger.Logger
	secret []byte
}

func NewAuthMiddleware(log *logger.Logger, secret string) *AuthMiddleware {
	return &AuthMiddleware{
		log:    log.With("Middleware", "AuthMiddleware"),
		secret: []byte(secret),
	}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing or invalid token"))
			c.Abort()
			return
		}
		userID, err := am.parse(tokenString)
		if err != nil {
			am.log.Debug("token rejected", "error", err)
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing or invalid token"))
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(ctxutil.WithUser(c.Request.Context(), userID))
		c.Next()
	}
}

func (am *AuthMiddleware) parse(tokenString string) (uuid.UUID, error) {
	if len(am.secret) == 0 {
		return uuid.Nil, errors.New("jwt secret not configured")
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return am.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return uuid.Nil, errors.New("invalid or expired token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid subject %q", claims.Subject)
	}
	return userID, nil
}

// extractToken reads the bearer header, or ?token= for EventSource clients that cannot set headers.
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return strings.TrimSpace(c.Query("token"))
}
