package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"callcast/config"
	"callcast/internal/database"
	"callcast/internal/middleware"
	"callcast/internal/models"
	"callcast/internal/repository"
	"callcast/internal/router"
	"callcast/internal/scheduler"
	"callcast/internal/service"
	"callcast/internal/ws"
	"callcast/pkg/cloudinary"
	"callcast/pkg/logger"
	"callcast/pkg/mailer"
	"callcast/pkg/payment"
)

func main() {
	cfg := config.Load()
	log := logger.Init(cfg.Server.Env, cfg.Server.LogLevel)

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	if err := database.SeedSystemMembers(db); err != nil {
		log.Fatalf("seed: %v", err)
	}
	if err := repository.NewSettingRepository(db).SeedDefaults(map[string]string{
		models.SettingCollectMinutes:   strconv.Itoa(int(cfg.Calls.CollectWindow / time.Minute)),
		models.SettingNightFund:        strconv.FormatInt(cfg.Calls.NightFund, 10),
		models.SettingDefaultBackRatio: strconv.Itoa(cfg.Calls.DefaultBackRatio),
		models.SettingPresentHours:     "3",
		models.SettingInviteBonus:      "0",
	}); err != nil {
		log.Fatalf("seed settings: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	hub := ws.NewHub()
	deps := router.Deps{Hub: hub, Broker: ws.NewLocalBroker(hub)}
	if cfg.Redis.Addr != "" {
		rdb, err := ws.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		broker := ws.NewRedisBroker(rdb, hub)
		go func() {
			if err := broker.Run(ctx); err != nil {
				log.WithError(err).Error("[Broker] subscription stopped")
			}
		}()
		deps.Broker = broker
		log.Info("[Broker] realtime fan-out through redis")
	}

	if cfg.Mail.Host != "" {
		deps.Mail = mailer.NewSMTPSender(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.Username, cfg.Mail.Password, cfg.Mail.From)
	} else {
		log.Warn("[Mail] SMTP_HOST not set, mail is kept in memory only")
		deps.Mail = &mailer.Recorder{}
	}

	if cfg.Payment.BaseURL != "" {
		deps.Payments = payment.NewGatewayProvider(cfg.Payment.BaseURL, cfg.Payment.APIKey, cfg.Payment.Currency, cfg.Payment.Timeout)
	} else {
		if cfg.Server.Env == "production" {
			log.Fatal("payment: PAYMENT_BASE_URL is required in production")
		}
		log.Warn("[Payment] using the stub provider")
		deps.Payments = &payment.StubProvider{}
	}

	if cfg.Cloudinary.CloudName != "" {
		cloud, err := cloudinary.NewClientFromParams(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
		if err != nil {
			log.Fatalf("cloudinary: %v", err)
		}
		deps.Cloud = cloud
	} else {
		log.Warn("[Upload] cloudinary not configured, uploads disabled")
	}

	if fcm := service.NewFCMService(cfg.Firebase.ServiceAccountPath); fcm != nil {
		deps.Push = fcm
		log.Info("[FCM] Push notifications enabled")
	} else {
		log.Info("[FCM] Push notifications disabled: set FIREBASE_SERVICE_ACCOUNT_PATH to enable")
	}

	if cfg.Line.ChannelID != "" {
		deps.Line = service.NewLineExchanger(cfg.Line)
	}

	deps.Limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	deps.Limiter.StartCleanup(5*time.Minute, ctx.Done())

	svc := router.NewServices(cfg, db, deps)

	jobs := scheduler.New(ctx, cfg.Calls.Location())
	for _, j := range []struct {
		name, spec string
		run        scheduler.JobFunc
	}{
		{scheduler.JobCallControl, cfg.Scheduler.CallControlSpec, svc.Calls.RunCallControl},
		{scheduler.JobCallNotify, cfg.Scheduler.CallNotifySpec, svc.Calls.RunCallNotify},
		{scheduler.JobPresentCast, cfg.Scheduler.PresentSpec, svc.Members.ExpirePresence},
	} {
		if err := jobs.Add(j.name, j.spec, j.run); err != nil {
			log.Fatalf("scheduler: %v", err)
		}
	}
	jobs.Start()

	engine := router.Setup(cfg, db, deps, svc)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Infof("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
	stop()
	jobs.Stop()
	log.Info("server stopped")
}
