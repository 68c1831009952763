package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/api/handlers"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/api/middleware"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/config"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/models"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/providers"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/services"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, database *mongo.Database, client *mongo.Client, rdb *redis.Client, taskClient *asynq.Client, configSvc services.IConfigService) *gin.Engine {
	// Providers
	paymentProvider := providers.NewPaymentProvider(cfg)
	contractScanner := providers.NewContractScanner(cfg)
	esignProvider := providers.NewEsignProvider(cfg)

	// Services
	affiliateService := services.NewAffiliateService(database, cfg)
	userService := services.NewUserService(database, cfg, affiliateService)
	auctionService := services.NewAuctionService(database, client, cfg, configSvc)
	feeService := services.NewFeeService(cfg, configSvc)
	commissionService := services.NewCommissionService(database, client, cfg, configSvc, affiliateService, taskClient)
	dealService := services.NewDealService(database, client, cfg, contractScanner, esignProvider, commissionService)
	paymentService := services.NewPaymentService(database, cfg, configSvc, feeService, paymentProvider, dealService, taskClient)

	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(rateLimiter.Limit())

	// Handlers
	auctionHandler := handlers.NewAuctionHandler(auctionService, paymentService, taskClient)
	dealHandler := handlers.NewDealHandler(dealService, paymentService, taskClient)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	affiliateHandler := handlers.NewAffiliateHandler(affiliateService, commissionService)
	configHandler := handlers.NewConfigHandler(configSvc)
	userHandler := handlers.NewUserHandler(userService, cfg)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		// Public routes
		v1.GET("/config", configHandler.GetPublicConfig)
		v1.POST("/users", userHandler.Register)
		v1.GET("/users/:id", userHandler.GetUserByID)
		v1.POST("/webhooks/payments", paymentHandler.HandleWebhook)

		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Authenticated routes
		authed := v1.Group("/")
		authed.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authed.GET("/auctions/:id", auctionHandler.GetAuction)
			authed.POST("/offers/:id/withdraw", auctionHandler.WithdrawOffer)

			authed.GET("/deals/:id", dealHandler.GetDeal)

			authed.POST("/affiliate", affiliateHandler.EnsureAffiliate)
			authed.GET("/affiliate/dashboard", affiliateHandler.Dashboard)
			authed.POST("/affiliate/payouts", affiliateHandler.RequestPayout)
		}

		// Buyer routes
		buyers := v1.Group("/")
		buyers.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.RequireRole(models.RoleBuyer))
		{
			buyers.POST("/auctions", auctionHandler.OpenAuction)
			buyers.POST("/auctions/:id/invites", auctionHandler.InviteDealer)
			buyers.POST("/auctions/:id/deposit", auctionHandler.PlaceDeposit)
			buyers.GET("/auctions/:id/offers", auctionHandler.ListOffers)
			buyers.POST("/auctions/:id/accept", auctionHandler.AcceptOffer)

			buyers.POST("/deals/:id/financing", dealHandler.SelectFinancing)
			buyers.POST("/deals/:id/fee-checkout", dealHandler.CreateFeeCheckout)
			buyers.POST("/deals/:id/insurance", dealHandler.RecordInsurance)
			buyers.POST("/deals/:id/contract-review", dealHandler.PassContractReview)
			buyers.POST("/deals/:id/review-override/ack", dealHandler.AcknowledgeOverride)
			buyers.POST("/deals/:id/sign", dealHandler.MarkSigned)
		}

		// Dealer routes
		dealers := v1.Group("/")
		dealers.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.RequireRole(models.RoleDealer))
		{
			dealers.POST("/auctions/:id/offers", auctionHandler.SubmitOffer)
			dealers.POST("/deals/:id/pickup", dealHandler.SchedulePickup)
			dealers.POST("/deals/:id/complete", dealHandler.Complete)
		}

		// Admin routes
		admins := v1.Group("/admin")
		admins.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.RequireRole(models.RoleAdmin))
		{
			admins.PUT("/config", configHandler.SetConfigValue)
			admins.POST("/deals/:id/review-override", dealHandler.OverrideContractReview)
			admins.POST("/deals/:id/cancel", dealHandler.Cancel)
			admins.POST("/deposits/refund", paymentHandler.RefundDeposit)
			admins.GET("/users", userHandler.FindByEmail)
			admins.POST("/users/:id/suspend", userHandler.Suspend)
			admins.POST("/commissions/:id/approve", affiliateHandler.ApproveCommission)
		}
	}

	return r
}
