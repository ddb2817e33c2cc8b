package api

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/seckill-go/internal/api/handler"
	"github.com/d60-Lab/seckill-go/internal/api/middleware"
	"github.com/d60-Lab/seckill-go/internal/config"
)

// NewRouter 组装路由
func NewRouter(h *handler.Handler, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/vouchers", h.CreateCampaign)
		v1.GET("/vouchers/:id", h.GetCampaign)
		v1.GET("/orders/:id", h.GetOrder)

		v1.POST("/vouchers/:id/seckill",
			middleware.RateLimit(cfg.Seckill.RateLimitQPS, cfg.Seckill.RateBurst),
			middleware.Auth(cfg.Auth.Secret),
			h.Seckill,
		)
	}

	return r
}
