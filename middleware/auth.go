package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"gigchat/config"
	"gigchat/database/repository"
	"gigchat/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	// AuthCachePrefix keys the cached role of an authenticated user.
	AuthCachePrefix = "auth:user:"
	authCacheTTL    = time.Hour

	// DevUserHeader identifies the caller when no JWT secret is configured.
	DevUserHeader = "X-User-ID"
)

// JWTAuthMiddleware authenticates the caller and sets "userID" and "role" in
// the context. The role is read from the user record, cached in Redis when a
// cache client is available. Without a JWT secret the caller is taken from
// DevUserHeader, which is only meant for local development.
func JWTAuthMiddleware(users repository.UserRepository, cache *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := callerID(c)
		if err != nil {
			utils.JSONError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Insufficient authorization", nil)
			return
		}

		role, err := lookupRole(c.Request.Context(), users, cache, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				utils.JSONError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication error", nil)
				return
			}
			utils.JSONError(c, http.StatusInternalServerError, "INTERNAL", "Failed to load user", nil)
			return
		}

		c.Set("userID", userID)
		c.Set("role", role)
		c.Next()
	}
}

func callerID(c *gin.Context) (string, error) {
	if config.AppConfig.JWTSecret == "" {
		if id := strings.TrimSpace(c.GetHeader(DevUserHeader)); id != "" {
			return id, nil
		}
		return "", errors.New("missing caller")
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		return "", errors.New("missing bearer token")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == "" {
		return "", errors.New("empty bearer token")
	}
	userID, _, err := utils.ExtractClaims(tokenString)
	return userID, err
}

func lookupRole(ctx context.Context, users repository.UserRepository, cache *redis.Client, userID string) (string, error) {
	cacheKey := AuthCachePrefix + userID
	if cache != nil {
		role, err := cache.Get(ctx, cacheKey).Result()
		if err == nil {
			return role, nil
		}
		if err != redis.Nil {
			zap.L().Warn("Auth cache lookup failed, falling back to store", zap.Error(err))
		}
	}

	u, err := users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if cache != nil {
		_ = cache.Set(ctx, cacheKey, u.Role, authCacheTTL).Err()
	}
	return u.Role, nil
}
