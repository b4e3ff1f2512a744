package router

import (
	"net/http"
	"time"

	"callcast/config"
	"callcast/internal/domain"
	"callcast/internal/handler"
	"callcast/internal/metrics"
	"callcast/internal/middleware"
	"callcast/internal/repository"
	"callcast/internal/service"
	"callcast/internal/ws"
	"callcast/pkg/cloudinary"
	"callcast/pkg/mailer"
	"callcast/pkg/payment"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps are the external clients the services run on. Nil Cloud, Push and
// Line disable uploads, push notifications and LINE login.
type Deps struct {
	Hub      *ws.Hub
	Broker   ws.Broker
	Mail     mailer.Sender
	Payments payment.Provider
	Cloud    cloudinary.Client
	Push     service.Pusher
	Line     service.LineExchanger
	Limiter  *middleware.RateLimiter
}

// Services is the wired service graph, shared by the HTTP layer and the scheduler.
type Services struct {
	Notify    *service.NotificationService
	Chat      *service.ChatService
	Billing   *service.BillingService
	Calls     *service.CallService
	Members   *service.MemberService
	Tweets    *service.TweetService
	Transfers *service.TransferService
	Referrals *service.ReferralService
	Auth      *service.AuthService
}

func NewServices(cfg *config.Config, db *gorm.DB, deps Deps) *Services {
	var online service.OnlineChecker
	if deps.Hub != nil {
		online = deps.Hub
	}
	notify := service.NewNotificationService(deps.Broker, repository.NewMemberRepository(db), deps.Push, deps.Mail, online)
	chat := service.NewChatService(db, notify)
	billing := service.NewBillingService(db, cfg.Calls, deps.Payments, cfg.Payment.Currency, chat, notify)
	referrals := service.NewReferralService(db, notify)
	return &Services{
		Notify:    notify,
		Chat:      chat,
		Billing:   billing,
		Calls:     service.NewCallService(db, cfg.Calls, chat, notify, billing),
		Members:   service.NewMemberService(db, deps.Cloud, chat, notify),
		Tweets:    service.NewTweetService(db, chat),
		Transfers: service.NewTransferService(db, notify),
		Referrals: referrals,
		Auth:      service.NewAuthService(cfg, db, deps.Mail, deps.Line, referrals),
	}
}

func Setup(cfg *config.Config, db *gorm.DB, deps Deps, svc *Services) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(), middleware.Metrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if deps.Limiter != nil {
		r.Use(middleware.RateLimit(deps.Limiter))
	}

	r.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	memberRepo := repository.NewMemberRepository(db)

	authHandler := handler.NewAuthHandler(svc.Auth)
	meHandler := handler.NewMeHandler(svc.Members)
	presenceHandler := handler.NewPresenceHandler(svc.Members)
	discoveryHandler := handler.NewDiscoveryHandler(svc.Members)
	favoriteHandler := handler.NewFavoriteHandler(svc.Members)
	notificationHandler := handler.NewNotificationHandler(svc.Chat)
	referralHandler := handler.NewReferralHandler(svc.Referrals, svc.Members)
	tweetHandler := handler.NewTweetHandler(svc.Tweets)
	callHandler := handler.NewCallHandler(svc.Calls, svc.Billing)
	billingHandler := handler.NewBillingHandler(svc.Billing)
	transferHandler := handler.NewTransferHandler(svc.Transfers)
	chatHandler := handler.NewChatHandler(svc.Chat)
	uploadHandler := handler.NewUploadHandler(deps.Cloud, svc.Members)
	basicsHandler := handler.NewBasicsHandler(repository.NewBasicsRepository(db), repository.NewSettingRepository(db))
	adminHandler := handler.NewAdminHandler(svc.Members)

	authMw := middleware.AuthRequired(&cfg.JWT)
	adultMw := middleware.RegisteredAdult(memberRepo)
	castOnly := middleware.RequireRole(domain.RoleCast)
	guestOnly := middleware.RequireRole(domain.RoleGuest, domain.RoleApplier)

	api := r.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.GET("/verify", authHandler.Verify)
			authGroup.POST("/verify/resend", authHandler.Resend)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/admin/login", authHandler.AdminLogin)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/line", authHandler.Line)
			authGroup.POST("/password/reset", authHandler.ResetRequest)
			authGroup.POST("/password/reset/confirm", authHandler.ResetConfirm)
			authGroup.PATCH("/password", authMw, authHandler.ChangePassword)
		}

		me := api.Group("/me")
		me.Use(authMw)
		{
			me.GET("", meHandler.GetProfile)
			me.POST("/initial", meHandler.InitialRegister)
			me.PATCH("", meHandler.UpdateProfile)
			me.PUT("/avatars", meHandler.ReplaceAvatars)
			me.PUT("/avatars/order", meHandler.ReorderAvatars)
			me.DELETE("/avatars/:id", meHandler.DeleteAvatar)
			me.GET("/setting", meHandler.GetSetting)
			me.PUT("/setting", meHandler.UpdateSetting)
			me.POST("/fcm-token", meHandler.RegisterFCMToken)
			me.POST("/card", meHandler.RegisterCard)
			me.GET("/referrals", referralHandler.GetMine)
			me.GET("/favorites", favoriteHandler.Favorites)
			me.GET("/followers", favoriteHandler.Followers)
			me.GET("/notices", notificationHandler.List)
			me.GET("/invoices", billingHandler.MyInvoices)
			me.POST("/points", billingHandler.BuyPoints)
			me.PUT("/present", castOnly, presenceHandler.SetPresence)
		}

		api.POST("/uploads/:kind", authMw, uploadHandler.Upload)

		basics := api.Group("/basics")
		basics.Use(authMw)
		{
			basics.GET("/locations", basicsHandler.Locations)
			basics.GET("/cast-classes", basicsHandler.CastClasses)
			basics.GET("/guest-levels", basicsHandler.GuestLevels)
			basics.GET("/choices", basicsHandler.Choices)
			basics.GET("/cost-plans", basicsHandler.CostPlans)
			basics.GET("/gifts", basicsHandler.Gifts)
			basics.GET("/banners", basicsHandler.Banners)
			basics.GET("/receipt", basicsHandler.Receipt)
		}

		members := api.Group("/members")
		members.Use(authMw, adultMw)
		{
			members.GET("/casts", discoveryHandler.SearchCasts)
			members.GET("/casts/fresh", discoveryHandler.FreshCasts)
			members.GET("/casts/present", presenceHandler.ListPresent)
			members.GET("/guests", discoveryHandler.SearchGuests)
			members.GET("/:id", discoveryHandler.GetProfile)
			members.GET("/:id/reviews", discoveryHandler.Reviews)
			members.POST("/:id/follow", favoriteHandler.Follow)
			members.DELETE("/:id/follow", favoriteHandler.Unfollow)
		}
		api.POST("/reviews", authMw, adultMw, guestOnly, discoveryHandler.CreateReview)
		api.GET("/rankings", authMw, billingHandler.Rankings)

		tweets := api.Group("/tweets")
		tweets.Use(authMw, adultMw)
		{
			tweets.GET("", tweetHandler.List)
			tweets.GET("/count", tweetHandler.Count)
			tweets.POST("", tweetHandler.Create)
			tweets.DELETE("/:id", tweetHandler.Delete)
			tweets.POST("/:id/like", tweetHandler.ToggleLike)
		}

		calls := api.Group("/calls")
		calls.Use(authMw, adultMw)
		{
			calls.POST("", guestOnly, callHandler.Create)
			calls.GET("", guestOnly, callHandler.ListMine)
			calls.GET("/open", castOnly, callHandler.ListOpen)
			calls.GET("/joined", castOnly, callHandler.ListJoined)
			calls.GET("/:id", callHandler.Get)
			calls.PUT("/:id", guestOnly, callHandler.Update)
			calls.POST("/:id/apply", castOnly, callHandler.Apply)
			calls.DELETE("/:id/apply", castOnly, callHandler.Withdraw)
			calls.POST("/:id/select", guestOnly, callHandler.Select)
			calls.POST("/:id/accept", guestOnly, callHandler.Accept)
			calls.POST("/:id/start", castOnly, callHandler.Start)
			calls.POST("/:id/end", castOnly, callHandler.End)
			calls.POST("/:id/pay", guestOnly, callHandler.Pay)
		}

		chat := api.Group("/chat")
		chat.Use(authMw)
		{
			chat.GET("/rooms", chatHandler.Rooms)
			chat.GET("/unread", chatHandler.Unread)
			chat.GET("/rooms/:id/messages", chatHandler.GetMessages)
			chat.POST("/rooms/:id/messages", adultMw, chatHandler.Send)
			chat.POST("/rooms/:id/read", chatHandler.MarkRead)
			chat.POST("/rooms/:id/gifts", adultMw, guestOnly, billingHandler.SendGift)
		}

		transfers := api.Group("/transfers")
		transfers.Use(authMw, castOnly)
		{
			transfers.GET("/info", transferHandler.GetInfo)
			transfers.PUT("/info", transferHandler.SaveInfo)
			transfers.GET("", transferHandler.ListMine)
			transfers.POST("", transferHandler.Apply)
		}

		admin := api.Group("/admin")
		admin.Use(authMw, middleware.AdminRequired())
		{
			admin.GET("/admins", adminHandler.ListAdmins)
			admin.GET("/members", adminHandler.ListMembers)
			admin.GET("/members/:id", adminHandler.GetMember)
			admin.PATCH("/members/:id", adminHandler.UpdateMember)

			admin.GET("/calls", callHandler.ListAll)
			admin.POST("/calls/propose", callHandler.Propose)
			admin.POST("/calls/:id/cancel", callHandler.Cancel)
			admin.POST("/calls/:id/error", callHandler.MarkError)

			admin.GET("/invoices", billingHandler.ListInvoices)
			admin.GET("/invoices/totals", billingHandler.Totals)
			admin.POST("/invoices", billingHandler.Adjust)

			admin.GET("/transfers", transferHandler.ListAll)
			admin.POST("/transfers/:id/approve", transferHandler.Approve)
			admin.POST("/transfers/:id/reject", transferHandler.Reject)

			admin.POST("/messages", chatHandler.SuperMessage)
			admin.POST("/rooms/:id/notice", chatHandler.Notice)
			admin.POST("/notices", notificationHandler.Create)

			admin.GET("/settings", basicsHandler.GetSettings)
			admin.PUT("/settings", basicsHandler.UpdateSettings)
			admin.PUT("/basics/locations/order", basicsHandler.ChangeLocationOrder)
			admin.PUT("/basics/receipt", basicsHandler.UpdateReceipt)
			admin.POST("/basics/:kind", basicsHandler.Create)
			admin.PUT("/basics/:kind/:id", basicsHandler.Update)
			admin.DELETE("/basics/:kind/:id", basicsHandler.Delete)
		}
	}

	if deps.Hub != nil {
		r.GET("/ws/:member_id", ws.ServeMember(&cfg.JWT, deps.Hub, svc.Members))
	}
	return r
}
