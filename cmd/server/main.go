package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/cinebook/cinebook/internal/config"
	"github.com/cinebook/cinebook/internal/database"
	"github.com/cinebook/cinebook/internal/handler"
	"github.com/cinebook/cinebook/internal/middleware"
	"github.com/cinebook/cinebook/internal/queue"
	"github.com/cinebook/cinebook/internal/repository"
	"github.com/cinebook/cinebook/internal/router"
	"github.com/cinebook/cinebook/internal/scheduler"
	"github.com/cinebook/cinebook/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()
	clock := clockwork.NewRealClock()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Audit trail over RabbitMQ. With no broker configured the
	// services run with auditing disabled.
	var audit service.AuditRecorder
	if cfg.RabbitURL != "" {
		pub := queue.NewPublisher(cfg.RabbitURL)
		defer pub.Close()
		audit = pub
		go func() {
			if err := queue.StartAuditConsumer(cfg.RabbitURL); err != nil {
				log.Printf("audit consumer stopped: %v", err)
			}
		}()
	}

	holdRepo := repository.NewSeatHoldRepo(db)
	reservationRepo := repository.NewReservationRepo(db)
	ticketRepo := repository.NewTicketRepo(db)
	screeningRepo := repository.NewScreeningRepo(db)
	seatRepo := repository.NewSeatRepo(db)
	hallRepo := repository.NewHallRepo(db)

	holdSvc := service.NewSeatHoldService(
		holdRepo, reservationRepo, ticketRepo, screeningRepo, seatRepo,
		service.HoldPolicy{
			DefaultTTL: cfg.HoldTTL,
			MaxTTL:     cfg.HoldMaxTTL,
			MaxBatch:   cfg.HoldMaxBatch,
		},
		clock, audit,
	)
	reservationSvc := service.NewReservationService(
		reservationRepo, ticketRepo, screeningRepo,
		service.ExpiryPolicy{
			Mode:        cfg.ExpiryMode,
			BeforeStart: cfg.ExpiryBeforeStart,
			PendingTTL:  cfg.ExpiryPendingTTL,
		},
		clock, audit,
	)
	projector := service.NewSeatStatusProjector(holdRepo, reservationRepo, ticketRepo, screeningRepo, seatRepo, clock)

	sched := scheduler.New(clock)
	if err := sched.AddSweep("hold", cfg.HoldSweepEvery, holdSvc.SweepExpired); err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	if err := sched.AddSweep("reservation", cfg.ReservationSweepEvery, reservationSvc.ExpireOverdue); err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Redis backs rate limiting and response caching only; a nil
	// client disables both and the API still works.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable, rate limiting and caching disabled")
	}

	e := echo.New()
	e.HideBanner = true
	router.Register(e, router.Handlers{
		Browse:       handler.NewBrowseHandler(screeningRepo, hallRepo, clock),
		SeatGrid:     handler.NewSeatGridHandler(projector),
		Holds:        handler.NewHoldHandler(holdSvc),
		Reservations: handler.NewReservationHandler(reservationSvc),
	}, router.Middlewares{
		Auth:  middleware.OptionalAuth(cfg.JWTSecret),
		Cache: middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
		Limit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
	})

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
