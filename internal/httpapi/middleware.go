package httpapi

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/transitline/ticketing-core/internal/domain"
)

const (
	correlationIDHeader = "X-Correlation-Id"
	correlationIDKey    = "correlationId"
	identityKey         = "identity"
)

// CorrelationID middleware reads X-Correlation-Id if present, else generates
// one, and threads it through the event envelope per §6, grounded on the
// reference RequestID middleware.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(correlationIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(correlationIDKey, id)
		c.Header(correlationIDHeader, id)
		c.Next()
	}
}

// CorrelationIDOf reads back the correlation id for the current request.
func CorrelationIDOf(c *gin.Context) string {
	if v, ok := c.Get(correlationIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Auth verifies the bearer token with secret/issuer and attaches the
// resulting domain.Identity to the request context, grounded on the
// reference auth service's jwt.Parse/MapClaims verification shape.
func Auth(secret, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			fail(c, domain.NewUnauthorized("missing bearer token"))
			c.Abort()
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, domain.NewUnauthorized("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			fail(c, domain.NewUnauthorized("invalid or expired token"))
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			fail(c, domain.NewUnauthorized("invalid token claims"))
			c.Abort()
			return
		}
		if issuer != "" {
			if iss, _ := claims.GetIssuer(); iss != issuer {
				fail(c, domain.NewUnauthorized("unexpected token issuer"))
				c.Abort()
				return
			}
		}

		userID, _ := claims["user_id"].(string)
		email, _ := claims["email"].(string)
		role, _ := claims["role"].(string)
		if userID == "" {
			fail(c, domain.NewUnauthorized("token missing user_id claim"))
			c.Abort()
			return
		}

		identity := domain.Identity{UserID: userID, Email: email, Role: domain.Role(role)}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// IdentityFromContext reads back the identity attached by Auth.
func IdentityFromContext(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	identity, ok := v.(domain.Identity)
	return identity, ok
}
