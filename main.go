package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/agrelay/agrelay/common/client"
	"github.com/agrelay/agrelay/common/config"
	"github.com/agrelay/agrelay/common/logger"
	"github.com/agrelay/agrelay/controller"
	"github.com/agrelay/agrelay/middleware"
	"github.com/agrelay/agrelay/relay/adaptor/antigravity"
	relaycontroller "github.com/agrelay/agrelay/relay/controller"
	"github.com/agrelay/agrelay/relay/modelmap"
	"github.com/agrelay/agrelay/relay/token"
	"github.com/agrelay/agrelay/router"
)

func main() {
	if err := logger.SetLevel(config.LogLevel); err != nil {
		logger.Logger.Warn("invalid LOG_LEVEL, keeping default",
			zap.String("level", config.LogLevel), zap.Error(err))
	}
	if config.DebugEnabled {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	client.Init()

	pool, err := token.LoadPool(config.AccountsFile, config.RateLimitCooldown)
	if err != nil {
		logger.Logger.Panic("load accounts", zap.String("file", config.AccountsFile), zap.Error(err))
	}
	logger.Logger.Info("account pool loaded",
		zap.String("file", config.AccountsFile), zap.Int("accounts", pool.Len()))

	models := modelmap.NewRouter()
	if err := models.LoadFile(config.ModelMappingFile); err != nil {
		logger.Logger.Panic("load model mapping", zap.String("file", config.ModelMappingFile), zap.Error(err))
	}

	invoker := antigravity.NewHTTPInvoker(client.HTTPClient, config.UpstreamBaseURLs)
	controller.Setup(relaycontroller.NewRelayer(pool, models, invoker))

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestId())
	engine.Use(gmw.NewLoggerMiddleware(
		gmw.WithLevel(config.LogLevel),
		gmw.WithLogger(logger.Logger.Named("gin")),
	))
	router.SetRouter(engine)

	srv := &http.Server{
		Addr:    config.Listen,
		Handler: engine,
	}

	go func() {
		logger.Logger.Info("listening", zap.String("addr", config.Listen))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Panic("http server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Logger.Info("bye")
}
