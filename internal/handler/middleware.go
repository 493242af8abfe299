package handler

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"propmarket/internal/model"
	"propmarket/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ContextKeyAccountID = "account_id"
	ContextKeyRole      = "role"
)

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %v", err)
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// AuthMiddleware 身份中间件
// 身份由外部认证服务签发的 JWT 提供，这里只解析并信任 sub / role 两个声明，
// 不做凭证校验以外的任何认证逻辑
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			response.Unauthorized(c, "缺少 Bearer token")
			c.Abort()
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("不支持的签名算法: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			response.Unauthorized(c, "无效的 token")
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			response.Unauthorized(c, "无效的 claims")
			c.Abort()
			return
		}

		sub, _ := claims["sub"].(string)
		accountID, err := strconv.ParseInt(sub, 10, 64)
		if err != nil || accountID <= 0 {
			response.Unauthorized(c, "无效的账户标识")
			c.Abort()
			return
		}

		role, _ := claims["role"].(string)
		if !model.ValidRole(role) {
			response.Unauthorized(c, "无效的角色声明")
			c.Abort()
			return
		}

		c.Set(ContextKeyAccountID, accountID)
		c.Set(ContextKeyRole, role)
		c.Next()
	}
}

// RequireRole 角色门禁
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextKeyRole) != role {
			response.Forbidden(c, "没有访问权限")
			c.Abort()
			return
		}
		c.Next()
	}
}

// 当前请求的操作者身份
func currentActor(c *gin.Context) (int64, string) {
	return c.GetInt64(ContextKeyAccountID), c.GetString(ContextKeyRole)
}
