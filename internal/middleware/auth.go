package middleware

import (
	"strings"

	"coursemart_backend/internal/config"
	"coursemart_backend/internal/model"
	"coursemart_backend/internal/util"
	"coursemart_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func AuthMiddleware(cfg *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if tokenString == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(tokenString, cfg.Secret)
		if err != nil {
			logger.Log.Debug("JWT解析错误", zap.Error(err))
			util.Unauthorized(c)
			c.Abort()
			return
		}

		c.Set("user", claims)
		c.Next()
	}
}

func RoleMiddleware(roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := util.GetUserFromContext(c)
		if user == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		hasRole := false
		for _, role := range roles {
			// 管理员直接放行
			if user.Role == model.RoleAdmin || user.Role == role {
				hasRole = true
				break
			}
		}

		if !hasRole {
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CanActFor 当前用户是该学生本人或管理员
func CanActFor(c *gin.Context, studentID string) bool {
	user := util.GetUserFromContext(c)
	if user == nil {
		return false
	}
	return user.Role == model.RoleAdmin || user.UserID == studentID
}

// OwnerOrAdmin 路径参数中的学生 ID 必须是当前用户本人，管理员除外
func OwnerOrAdmin(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if util.GetUserFromContext(c) == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}
		if !CanActFor(c, c.Param(param)) {
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
