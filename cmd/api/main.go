package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commUnity/internal/config"
	"commUnity/internal/pkg"
	"commUnity/internal/repository/mysql"
	"commUnity/internal/repository/redis"
	"commUnity/internal/router"
	"commUnity/internal/service"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := pkg.InitLogger(os.Stdout, cfg.Env)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := mysql.InitDB(cfg.MySQLDSN)
	if err != nil {
		logger.Error("connect mysql", "error", err)
		os.Exit(1)
	}
	// 自动建表
	if err = mysql.AutoMigrate(db); err != nil {
		logger.Error("auto migrate", "error", err)
		os.Exit(1)
	}

	// 连接redis
	rdb, err := redis.Init(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	var codes service.CodeStore = service.NewMemoryCodeStore(nil)
	if cfg.OTPStore == "redis" {
		codes = &redis.CodeRepository{RDB: rdb}
	}

	var mailer pkg.Mailer = pkg.NewLogMailer(pkg.Component("mail"))
	if cfg.SMTPEnabled() {
		mailer = pkg.NewSMTPMailer(pkg.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		logger.Warn("SMTP_HOST not set, codes are written to the log")
	}

	assets, err := pkg.NewLocalAssetStore(cfg.UploadDir, cfg.PublicBaseURL)
	if err != nil {
		logger.Error("prepare upload dir", "error", err)
		os.Exit(1)
	}

	app := router.New(router.Deps{
		DB:             db,
		Redis:          rdb,
		Tokens:         pkg.NewTokenIssuer(cfg.AccessSecret, cfg.RefreshSecret),
		Codes:          codes,
		Mailer:         mailer,
		Assets:         assets,
		UploadDir:      assets.Dir(),
		AllowedOrigins: cfg.Origins(),
		TrustedProxies: cfg.Proxies(),
		SecureCookie:   cfg.IsProduction(),
		RelayOverRedis: cfg.RelayBus == "redis",
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Logger:         logger,
	})

	go func() {
		if err := app.Hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("relay bus stopped", "error", err)
		}
	}()
	go app.Limiter.Cleanup(ctx)

	// outbox 投递：配置了 Kafka 就发 Kafka，否则只打日志
	sender := service.LogSender(pkg.Component("activity"))
	var producer *pkg.KafkaProducer
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		producer = pkg.NewKafkaProducer(pkg.KafkaConfig{Brokers: brokers, Topic: cfg.KafkaTopic})
		sender = service.KafkaSender(producer)
	}
	go service.NewOutboxRelayer(db, sender).Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// websocket 连接已被劫持，Shutdown 不会关闭它们
	app.Hub.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", "error", err)
	}
	if err := producer.Close(); err != nil {
		logger.Warn("close kafka producer", "error", err)
	}
}
