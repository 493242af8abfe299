package handler

import (
	"propmarket/internal/config"
	"propmarket/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg)

	api := r.Group("/api/v1")
	{
		// 公开路由（浏览不需要登录）
		api.POST("/accounts/register", h.Register)
		api.GET("/listings", h.ListApprovedListings)
		api.GET("/listings/:id", h.GetListing)

		// 登录用户
		authed := api.Group("/")
		authed.Use(AuthMiddleware(cfg.JWT.Secret))
		{
			authed.GET("/account", h.GetMyAccount)
		}

		// 经纪人
		agent := api.Group("/agent")
		agent.Use(AuthMiddleware(cfg.JWT.Secret), RequireRole(model.RoleAgent))
		{
			agent.GET("/listings", h.ListMyListings)
			agent.POST("/listings", h.CreateListing)
			agent.PUT("/listings/:id", h.UpdateListing)
			agent.POST("/listings/:id/resubmit", h.ResubmitListing)
			agent.POST("/listings/:id/archive", h.ArchiveListing)
			agent.POST("/listings/:id/images", h.AddImage)
			agent.DELETE("/listings/:id/images", h.RemoveImage)
			agent.PUT("/listings/:id/main-image", h.SetMainImage)
			agent.POST("/listings/:id/amenities/toggle", h.ToggleAmenity)
		}

		// 管理员
		admin := api.Group("/admin")
		admin.Use(AuthMiddleware(cfg.JWT.Secret), RequireRole(model.RoleAdmin))
		{
			admin.GET("/accounts", h.ListAccounts)
			admin.GET("/accounts/:id/entries", h.ListCreditEntries)
			admin.POST("/credits/adjust", h.AdjustCredits)
			admin.POST("/listing-credits/adjust", h.AdjustListingCredits)
			admin.GET("/listings/pending", h.ListPendingListings)
			admin.POST("/listings/:id/approve", h.ApproveListing)
			admin.POST("/listings/:id/reject", h.RejectListing)
			admin.POST("/listings/:id/archive", h.ArchiveListing)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
