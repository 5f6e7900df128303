package middleware

import (
	"strings"

	"apartel/pkg/jwt"
	"apartel/pkg/response"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 租户鉴权中间件，只校验令牌并提取租户
type AuthMiddleware struct {
	jwtManager *jwt.JWTManager
}

func NewAuthMiddleware(jwtManager *jwt.JWTManager) *AuthMiddleware {
	if jwtManager == nil {
		jwtManager = jwt.GetJWTManager()
	}
	return &AuthMiddleware{
		jwtManager: jwtManager,
	}
}

// RequireTenant 校验 Bearer 令牌并写入 tenant_id
func (m *AuthMiddleware) RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "Missing authorization header.")
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			response.Unauthorized(c, "Malformed authorization header.")
			c.Abort()
			return
		}

		claims, err := m.jwtManager.VerifyToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			response.Unauthorized(c, "Invalid or expired token.")
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("tenant_id", claims.TenantID)
		c.Set("username", claims.Username)
		c.Set("claims", claims)

		c.Next()
	}
}
