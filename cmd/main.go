package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cardarena/tournament-engine/brackets"
	"github.com/cardarena/tournament-engine/config"
	"github.com/cardarena/tournament-engine/db"
	"github.com/cardarena/tournament-engine/events"
	"github.com/cardarena/tournament-engine/handlers"
	"github.com/cardarena/tournament-engine/leaderboard"
	"github.com/cardarena/tournament-engine/repositories"
	api "github.com/cardarena/tournament-engine/routes"
	"github.com/cardarena/tournament-engine/services"
	"github.com/cardarena/tournament-engine/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-co-op/gocron/v2"
	_ "github.com/lib/pq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	board, err := leaderboard.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("redis leaderboard initialized", slog.String("addr", cfg.RedisAddr))

	var uploader storage.FileUploader
	if cfg.R2Configured() {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	} else {
		uploader = storage.NewNoopUploader()
		logger.Warn("R2 credentials missing, banner uploads disabled")
	}

	hub := events.NewHub(logger)
	go hub.Run()

	transactor := repositories.NewSQLTransactor(dbConn)
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	participantRepo := repositories.NewPostgresParticipantRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	reportRepo := repositories.NewPostgresReportRepository(dbConn)
	transactionRepo := repositories.NewPostgresTransactionRepository(dbConn)

	generator := brackets.NewRandomPairingGenerator(rand.New(rand.NewSource(time.Now().UnixNano())))
	ledger := services.NewLedgerService(userRepo, transactionRepo)

	tournamentService := services.NewTournamentService(
		transactor, tournamentRepo, participantRepo, matchRepo,
		ledger, generator, hub, logger,
		cfg.ReportWindow,
		services.WeeklyDefaults{
			CreatorID:       cfg.WeeklyCreatorID,
			EntryFee:        cfg.WeeklyEntryFee,
			PrizePool:       cfg.WeeklyPrizePool,
			MaxParticipants: cfg.WeeklyMaxParticipants,
			MinParticipants: cfg.WeeklyMinParticipants,
		},
	)
	participantService := services.NewParticipantService(
		transactor, tournamentRepo, participantRepo, userRepo, ledger, hub,
	)
	matchService := services.NewMatchService(
		transactor, matchRepo, reportRepo, tournamentRepo, participantRepo,
		tournamentService, board, hub, logger,
	)
	authService := services.NewAuthService(userRepo, cfg.StartingBalance)
	bannerService := services.NewBannerService(tournamentRepo, uploader, logger)
	logger.Info("services initialized")

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		logger.Error("failed to create scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	if _, err := scheduler.NewJob(
		gocron.DurationJob(time.Minute),
		gocron.NewTask(func() {
			if err := tournamentService.SweepLifecycleByDates(context.Background()); err != nil {
				logger.Error("lifecycle sweep failed", slog.Any("error", err))
			}
		}),
	); err != nil {
		logger.Error("failed to schedule lifecycle sweep", slog.Any("error", err))
		os.Exit(1)
	}
	if _, err := scheduler.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			if err := matchService.ForfeitPastDeadline(context.Background()); err != nil {
				logger.Error("deadline forfeit sweep failed", slog.Any("error", err))
			}
		}),
	); err != nil {
		logger.Error("failed to schedule forfeit sweep", slog.Any("error", err))
		os.Exit(1)
	}
	if _, err := scheduler.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() {
			if err := tournamentService.EnsureWeeklyTournament(context.Background()); err != nil {
				logger.Error("weekly tournament check failed", slog.Any("error", err))
			}
		}),
	); err != nil {
		logger.Error("failed to schedule weekly tournament check", slog.Any("error", err))
		os.Exit(1)
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			logger.Error("scheduler shutdown failed", slog.Any("error", err))
		}
	}()
	logger.Info("background schedulers started")

	authHandler := handlers.NewAuthHandler(authService, cfg.JWTSecretKey)
	userHandler := handlers.NewUserHandler(ledger)
	tournamentHandler := handlers.NewTournamentHandler(tournamentService, participantService, bannerService, board)
	matchHandler := handlers.NewMatchHandler(matchService)
	webSocketHandler := handlers.NewWebSocketHandler(hub, logger)

	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		cfg.JWTSecretKey,
		authHandler,
		userHandler,
		tournamentHandler,
		matchHandler,
		webSocketHandler,
	)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
