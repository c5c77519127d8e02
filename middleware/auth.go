package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"report-workflow-service/config"
	"report-workflow-service/models"
)

const actorContextKey = "actor"

// AuthMiddleware validates Bearer JWTs and puts the decoded actor into the
// request context. Token issuance lives in the identity service; this side
// only verifies the signature and reads the jurisdiction claims.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			c.Abort()
			return
		}

		tokenString := extractToken(authHeader)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			c.Abort()
			return
		}

		actor, err := parseActorToken(tokenString, []byte(cfg.JWTSecret))
		if err != nil {
			log.Warnf("Rejected token from %s: %v", c.ClientIP(), err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(actorContextKey, actor)
		c.Next()
	}
}

// GetActor returns the authenticated actor stored by AuthMiddleware.
func GetActor(c *gin.Context) (*models.Actor, bool) {
	value, exists := c.Get(actorContextKey)
	if !exists {
		return nil, false
	}
	actor, ok := value.(*models.Actor)
	return actor, ok
}

// extractToken extracts the token from the Authorization header
func extractToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

func parseActorToken(tokenString string, secret []byte) (*models.Actor, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return nil, errors.New("invalid user id in token")
	}
	role, _ := claims["role"].(string)
	if !models.IsValidRole(models.Role(role)) {
		return nil, errors.New("invalid role in token")
	}

	actor := &models.Actor{
		ID:   userID,
		Role: models.Role(role),
	}
	actor.Name, _ = claims["name"].(string)
	actor.Email, _ = claims["email"].(string)
	actor.District, _ = claims["district"].(string)
	actor.Municipality, _ = claims["municipality"].(string)
	actor.Ward, _ = claims["ward"].(string)
	actor.Department, _ = claims["department"].(string)

	return actor, nil
}

// CORSMiddleware handles CORS headers
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
