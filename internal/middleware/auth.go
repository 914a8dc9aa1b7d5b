package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"focuschat/internal/models"
)

// UserContextKey is where the authenticated identity is stored in the Gin
// context.
const UserContextKey = "user"

var errInvalidToken = errors.New("invalid token")

// Claims is the JWT payload issued by the auth collaborator.
type Claims struct {
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
	Role      string `json:"role"`
	DiscordID string `json:"discord_id,omitempty"`
	jwt.RegisteredClaims
}

// ParseToken validates a signed token and extracts the identity.
func ParseToken(secret, token string) (models.User, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return models.User{}, errInvalidToken
	}

	role := models.Role(claims.Role)
	if !role.Valid() {
		role = models.RoleUser
	}
	return models.User{
		ID:        claims.Subject,
		Username:  claims.Username,
		Avatar:    claims.Avatar,
		Role:      role,
		DiscordID: claims.DiscordID,
	}, nil
}

// AuthMiddleware validates the Authorization header and stores the identity
// in the request context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		user, err := ParseToken(secret, parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(UserContextKey, user)
		c.Next()
	}
}

// UserFromContext returns the authenticated identity stored by
// AuthMiddleware.
func UserFromContext(c *gin.Context) (models.User, bool) {
	val, ok := c.Get(UserContextKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}
