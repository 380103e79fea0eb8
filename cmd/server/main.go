package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"chatwire/data/mongoutil"
	"chatwire/global"
	"chatwire/logger"
	"chatwire/middleware"
	chatapi "chatwire/module/chat"
	chatservice "chatwire/module/chat/service"
	chatstore "chatwire/module/chat/store"
	userapi "chatwire/module/user"
	userservice "chatwire/module/user/service"
	userstore "chatwire/module/user/store"
	gateway "chatwire/service/chat"
	"chatwire/service/storage"
	"chatwire/tools/security"
)

func main() {
	cfg := global.Load()
	if cfg.Debug {
		logger.SetDebug()
	}
	defer logger.Sync()

	if cfg.JWTSecret == "" {
		logger.Errorf("JWT_SECRET is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	mongoCli, err := mongoutil.Connect(ctx, mongoutil.Config{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDatabase,
	})
	cancel()
	if err != nil {
		logger.Errorf("mongo: %v", err)
		os.Exit(1)
	}
	db := mongoCli.DB()

	users := userstore.New(db)
	convs := chatstore.NewConversationStore(db)
	msgs := chatstore.NewMessageStore(db)
	for _, ensure := range []func(context.Context) error{
		users.EnsureIndexes, convs.EnsureIndexes, msgs.EnsureIndexes,
	} {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := ensure(ctx)
		cancel()
		if err != nil {
			logger.Errorf("ensure indexes: %v", err)
			os.Exit(1)
		}
	}

	jwtOpts := security.DefaultOptions([]byte(cfg.JWTSecret))
	jwtOpts.TTL = cfg.JWTTTL
	userSvc := userservice.New(users, jwtOpts)

	var presence gateway.PresenceTracker
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		p, err := storage.NewPresence(ctx, storage.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		cancel()
		if err != nil {
			logger.Errorf("redis: %v", err)
			os.Exit(1)
		}
		defer func() { _ = p.Close() }()
		presence = p
	}

	gw := gateway.NewServer(userSvc, gateway.NewRegistry(), gateway.NewRooms(), presence)
	router := chatservice.NewRouter(convs, msgs, users, gw)
	gw.SetRouter(router)

	userHandler := userapi.NewHandler(userSvc)
	chatHandler := chatapi.NewHandler(router)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "API is running") })

	r.POST("/register", userHandler.Register)
	r.POST("/login", userHandler.Login)
	r.GET("/ws", gw.HandleWS)

	authed := r.Group("/", middleware.Auth(userSvc))
	authed.GET("/user-info", userHandler.Info)
	authed.GET("/search-users", userHandler.Search)
	authed.POST("/conversations", chatHandler.CreateConversation)
	authed.GET("/conversations", chatHandler.ListConversations)
	authed.POST("/conversations/:conversationId/read", chatHandler.MarkRead)
	authed.GET("/messages/:conversationId", chatHandler.ListMessages)
	authed.POST("/messages/:conversationId", chatHandler.SendMessage)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	go func() {
		logger.Infof("http: listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http: %v", err)
			os.Exit(1)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	logger.Infof("shutting down")
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	if err := mongoCli.Close(ctx); err != nil {
		logger.Errorf("mongo close: %v", err)
	}
}
