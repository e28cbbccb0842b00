package router

import (
	"log/slog"
	"net/http"
	"time"

	"commUnity/internal/handler"
	"commUnity/internal/middleware"
	"commUnity/internal/pkg"
	redisrepo "commUnity/internal/repository/redis"
	"commUnity/internal/relay"
	"commUnity/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

type Deps struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Tokens *pkg.TokenIssuer
	Codes  service.CodeStore
	Mailer pkg.Mailer
	Assets pkg.AssetStore
	// UploadDir 非空时挂载到 /uploads
	UploadDir      string
	AllowedOrigins []string
	// TrustedProxies 决定 ClientIP 是否采信 X-Forwarded-For，空表示不信任任何代理
	TrustedProxies []string
	SecureCookie   bool
	// RelayOverRedis 聊天消息经 Redis pub/sub 跨实例分发
	RelayOverRedis bool
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         *slog.Logger
}

type App struct {
	Engine  *gin.Engine
	Hub     *relay.Hub
	Limiter *middleware.RateLimiter
}

func New(d Deps) *App {
	if d.Logger == nil {
		d.Logger = pkg.Logger
	}

	// 组装 service
	emailSvc := service.NewEmailService(d.Codes, d.Mailer)
	userSvc := service.NewUserService(d.DB, &redisrepo.UserRepository{RDB: d.Redis}, d.Tokens, emailSvc, d.Assets)
	communitySvc := service.NewCommunityService(d.DB, d.Assets)
	eventSvc := service.NewEventService(d.DB, communitySvc, d.Assets)
	commentSvc := service.NewCommentService(d.DB, eventSvc)
	noticeSvc := service.NewNoticeService(d.DB, communitySvc)

	var bus relay.Bus
	if d.RelayOverRedis {
		bus = &redisrepo.RelayBus{RDB: d.Redis}
	}
	hub := relay.NewHub(communitySvc, bus)
	communitySvc.SetEvictor(hub)
	userSvc.SetEvictor(hub)

	user := handler.NewUserHandler(userSvc, d.SecureCookie)
	email := handler.NewEmailHandler(userSvc, emailSvc)
	community := handler.NewCommunityHandler(communitySvc)
	event := handler.NewEventHandler(eventSvc)
	comment := handler.NewCommentHandler(commentSvc)
	notice := handler.NewNoticeHandler(noticeSvc)
	ws := handler.NewWSHandler(hub, userSvc, d.AllowedOrigins)

	limiter := middleware.NewRateLimiter(rate.Limit(d.RateLimitRPS), d.RateLimitBurst)
	limited := limiter.LimitMiddleware()
	auth := middleware.AuthMiddleware(userSvc, false)

	r := gin.New()
	if err := r.SetTrustedProxies(d.TrustedProxies); err != nil {
		d.Logger.Error("invalid trusted proxies, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(
		gin.Recovery(),
		middleware.RequestLogger(d.Logger),
		middleware.Metrics(),
		cors.New(corsConfig(d.AllowedOrigins)),
		middleware.ErrorHandler(d.Logger),
	)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if d.UploadDir != "" {
		r.Static("/uploads", d.UploadDir)
	}

	users := r.Group("/users")

	// 认证相关接口
	users.POST("/otp_sent", limited, email.OtpSent)
	users.POST("/otp_verify", email.OtpVerify)
	users.POST("/req_pass_reset", limited, email.ReqPassReset)
	users.POST("/reset_pass", email.ResetPass)
	users.POST("/register", limited, user.Register)
	users.POST("/login", limited, user.Login)
	users.GET("/logout", user.Logout)
	users.POST("/check_email", user.CheckEmail)
	users.POST("/token_refresh", user.TokenRefresh)

	// 公开的只读接口
	users.GET("/explore/:id", community.Explore)
	users.GET("/search_community", community.Search)
	users.POST("/filter_Community", community.Filter)
	users.GET("/isMember/:communityId/:userId", community.IsMember)
	users.GET("/get_notice/:communityId", notice.GetNotices)
	users.GET("/get_comments/:eventId", comment.GetComments)
	users.GET("/get_events/:communityId", event.CommunityEvents)
	users.GET("/events", event.AllEvents)

	// 实时聊天，浏览器可通过 cookie 或 ?token= 鉴权
	users.GET("/ws", middleware.AuthMiddleware(userSvc, true), ws.Serve)

	// 登录态接口
	authed := users.Group("")
	authed.Use(auth)
	{
		authed.GET("/profile", user.Profile)
		authed.GET("/fetch_user/:userId", user.FetchUser)
		authed.PATCH("/update_username", user.UpdateUsername)
		authed.PATCH("/update_password", user.UpdatePassword)
		authed.DELETE("/delete_user", user.DeleteUser)
		authed.PATCH("/changeProfile", user.ChangeProfile)

		authed.POST("/create_community", community.Create)
		authed.GET("/my_communities", community.MyCommunities)
		authed.GET("/joined_communities", community.JoinedCommunities)
		authed.GET("/associated_communities", community.AssociatedCommunities)
		authed.PATCH("/join_community/:id", community.Join)
		authed.GET("/top10", community.Top10)
		authed.DELETE("/leave_community", community.Leave)
		authed.DELETE("/del_community", community.Delete)
		authed.DELETE("/del_mem", community.RemoveMember)
		authed.PATCH("/edit_community/:id", community.Edit)

		authed.POST("/create_notice", notice.CreateNotice)
		authed.DELETE("/del_notice", notice.DeleteNotice)

		authed.POST("/create_event", event.CreateEvent)
		authed.GET("/user_events", event.UserEvents)
		authed.PUT("/toggle_reaction/:id", event.ToggleReaction)
		authed.DELETE("/delete_event/:id", event.DeleteEvent)

		authed.POST("/create_comment", comment.CreateComment)
		authed.DELETE("/delete_comment/:id", comment.DeleteComment)
	}

	return &App{Engine: r, Hub: hub, Limiter: limiter}
}

// corsConfig 允许前端携带 cookie 跨域访问
func corsConfig(origins []string) cors.Config {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return cors.Config{
		AllowOriginFunc:  func(origin string) bool { return allowed["*"] || allowed[origin] },
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Requested-With", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}
