package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/api"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/cache"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/config"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/db"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/email"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/services"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	mongoClient, mongoDb, err := db.Connect(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Disconnect(mongoClient); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	if err := db.EnsureIndexes(context.Background(), mongoDb); err != nil {
		log.Fatalf("Failed to ensure indexes: %v", err)
	}

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			log.Printf("Error disconnecting from Redis: %v", err)
		}
	}()

	emailSender := email.NewSMTPSender(cfg)

	configSvc := services.NewConfigService(mongoDb, cfg, redisClient)
	taskClient := tasks.NewClient(redisClient)

	var wg sync.WaitGroup
	var mainApiSrv *http.Server

	log.Printf("Starting application in '%s' mode...", cfg.RunMode)

	apiMode := func() {
		mainApiRouter := api.SetupRouter(cfg, mongoDb, mongoClient, redisClient, taskClient, configSvc)
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: mainApiRouter,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("API listening on :%s", cfg.ApiPort)
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("API ListenAndServe error: %v", err)
			}
			log.Println("API server stopped.")
		}()
	}

	bgMode := func() {
		affiliateService := services.NewAffiliateService(mongoDb, cfg)
		userService := services.NewUserService(mongoDb, cfg, affiliateService)
		auctionService := services.NewAuctionService(mongoDb, mongoClient, cfg, configSvc)
		commissionService := services.NewCommissionService(mongoDb, mongoClient, cfg, configSvc, affiliateService, taskClient)

		processor := tasks.NewTaskProcessor(cfg, emailSender, auctionService, commissionService, userService, configSvc, taskClient)
		tasks.Seed(taskClient)
		wg.Add(1)
		go func() {
			defer wg.Done()
			tasks.SetupServer(redisClient, processor)
			log.Println("Background task server stopped.")
		}()
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		log.Fatalf("Invalid run mode specified: %s.", cfg.RunMode)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received signal: %s. Shutting down gracefully...", sig)

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if mainApiSrv != nil {
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
	}

	// The asynq server shuts down on the same signals it traps itself;
	// waiting on the group is enough.
	wg.Wait()
	log.Println("Server gracefully stopped")
}
