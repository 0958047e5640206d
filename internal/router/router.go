package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dujiao-next/voucher-ledger/internal/authz"
	"github.com/dujiao-next/voucher-ledger/internal/config"
	adminhandlers "github.com/dujiao-next/voucher-ledger/internal/http/handlers/admin"
	publichandlers "github.com/dujiao-next/voucher-ledger/internal/http/handlers/public"
	handlershared "github.com/dujiao-next/voucher-ledger/internal/http/handlers/shared"
	"github.com/dujiao-next/voucher-ledger/internal/http/response"
	"github.com/dujiao-next/voucher-ledger/internal/logger"
	"github.com/dujiao-next/voucher-ledger/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.Z()
	handlershared.RegisterValidation()
	r := gin.New()

	// 初始化 Handler（按用户侧/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "vl"
	}
	var redisClient *redis.Client
	if c.Cache != nil {
		redisClient = c.Cache.Client()
	}
	buyRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:buy", redisPrefix),
		WindowSeconds: cfg.RateLimit.BuyWindowSeconds,
		MaxRequests:   cfg.RateLimit.BuyMaxRequests,
		Message:       "too many purchase requests",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	adminAuth := []gin.HandlerFunc{
		JWTAuthMiddleware(cfg.JWT.SecretKey),
		AdminRBACMiddleware(c.AuthzService),
	}

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 用户接口（需鉴权）
		user := apiV1.Group("")
		user.Use(UserJWTAuthMiddleware(cfg.UserJWT.SecretKey, c.UserRepo, c.Cache))
		{
			user.POST("/purchases", RateLimitMiddleware(redisClient, buyRule, KeyByUser), publicHandler.CreatePurchase)
			user.GET("/purchases", publicHandler.ListPurchases)
			user.GET("/purchases/:id", publicHandler.GetPurchase)
			user.GET("/wallet", publicHandler.GetMyWallet)
			user.GET("/wallet/transactions", publicHandler.GetMyWalletTransactions)
		}

		// 余额充值（管理端 finance 角色）
		apiV1.POST("/wallet/top-up", append(adminAuth, adminHandler.TopUpWallet)...)

		// 管理端接口
		admin := apiV1.Group("/admin")
		admin.Use(adminAuth...)
		{
			admin.GET("/authz/me", adminHandler.GetAuthzMe)
			admin.GET("/authz/roles", adminHandler.ListAuthzRoles)
			admin.GET("/authz/permissions/catalog", func(ctx *gin.Context) {
				response.Success(ctx, buildAdminPermissionCatalog(r))
			})

			// 购买记录与核销
			admin.GET("/purchases", adminHandler.GetAdminPurchases)
			admin.GET("/purchases/:id", adminHandler.GetAdminPurchase)
			admin.POST("/purchases/:id/redeem", adminHandler.RedeemPurchase)
			admin.POST("/purchases/:id/undo-redeem", adminHandler.UndoRedeemPurchase)
			admin.GET("/purchases/:id/audit", adminHandler.GetPurchaseAudit)
			admin.POST("/redemptions/code", adminHandler.RedeemByCode)

			// 统计报表
			admin.GET("/statistics/leaderboard", adminHandler.GetBrandLeaderboard)
			admin.GET("/statistics/trend", adminHandler.GetUsageTrend)
			admin.GET("/statistics/expiring", adminHandler.GetExpiringVouchers)
			admin.GET("/statistics/low-stock", adminHandler.GetLowStockVouchers)
			admin.GET("/statistics/vouchers", adminHandler.GetVoucherUsage)
			admin.POST("/statistics/refresh", adminHandler.RefreshStatistics)
		}
	}

	// 指标
	r.GET("/metrics", gin.WrapH(c.Metrics.Handler()))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

type adminPermissionCatalogItem struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
}

func buildAdminPermissionCatalog(engine *gin.Engine) []adminPermissionCatalogItem {
	if engine == nil {
		return []adminPermissionCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]adminPermissionCatalogItem, 0, len(routes))

	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, "/api/v1/admin/") && item.Path != "/api/v1/wallet/top-up" {
			continue
		}
		object := authz.NormalizeObject(item.Path)
		permission := method + ":" + object
		if _, exists := seen[permission]; exists {
			continue
		}
		seen[permission] = struct{}{}
		items = append(items, adminPermissionCatalogItem{
			Module:     deriveAdminPermissionModule(object),
			Method:     method,
			Object:     object,
			Permission: permission,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Object == items[j].Object {
				return items[i].Method < items[j].Method
			}
			return items[i].Object < items[j].Object
		}
		return items[i].Module < items[j].Module
	})

	return items
}

func deriveAdminPermissionModule(object string) string {
	normalized := strings.TrimPrefix(strings.TrimSpace(object), "/")
	if normalized == "" {
		return "system"
	}
	segments := strings.Split(normalized, "/")
	if len(segments) <= 1 {
		return segments[0]
	}
	if segments[0] != "admin" {
		return segments[0]
	}
	return segments[1]
}
