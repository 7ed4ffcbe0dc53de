// Package bootstrap wires the application together.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"timetable_server/adapter/out/mongodb"
	"timetable_server/adapter/out/persistence"
	"timetable_server/adapter/out/provider"
	"timetable_server/config"
	"timetable_server/core/port/in"
	"timetable_server/core/port/out"
	"timetable_server/core/service/auth"
	"timetable_server/core/service/schedule"
	syncengine "timetable_server/core/service/sync"
	"timetable_server/infra/database"
	"timetable_server/pkg/cache"
	"timetable_server/pkg/lock"
	"timetable_server/pkg/logger"
	"timetable_server/pkg/snowflake"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
)

// Dependencies holds every wired collaborator of the server.
type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Adapters
	SlotRepo       out.SlotRepository
	CredentialRepo out.CredentialRepository
	ReportRepo     out.SyncReportRepository
	Calendar       *provider.GoogleCalendarAdapter

	// Services
	TokenGuard      *auth.TokenGuard
	SyncService     in.SyncService
	ScheduleService in.ScheduleService
}

// NewDependencies connects the infrastructure and builds the service
// graph. The returned cleanup closes every connection in reverse order.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// PostgreSQL (pgx pool + sqlx handle over the same database)
	logger.Debug("Connecting to PostgreSQL...")
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres connection failed: %w", err)
	}
	cleanups = append(cleanups, func() { db.Close() })

	sqlxURL := cfg.DatabaseURL
	if strings.Contains(sqlxURL, "?") {
		sqlxURL += "&default_query_exec_mode=simple_protocol"
	} else {
		sqlxURL += "?default_query_exec_mode=simple_protocol"
	}
	sqlDB, err := sqlx.Connect("pgx", sqlxURL)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("sqlx connection failed: %w", err)
	}
	cleanups = append(cleanups, func() { sqlDB.Close() })

	// Redis
	logger.Debug("Connecting to Redis...")
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("redis connection failed: %w", err)
	}
	cleanups = append(cleanups, func() { redisClient.Close() })

	// MongoDB (report archive). Optional: the engine runs without it.
	var mongoClient *mongo.Client
	var reportRepo out.SyncReportRepository
	if cfg.MongoDBURL != "" {
		logger.Debug("Connecting to MongoDB...")
		mongoClient, err = mongodb.NewClient(cfg.MongoDBURL, cfg.MongoMaxPoolSize, cfg.MongoMinPoolSize)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("mongodb connection failed: %w", err)
		}
		cleanups = append(cleanups, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			mongoClient.Disconnect(ctx)
		})

		reportAdapter := mongodb.NewReportAdapter(mongoClient.Database(cfg.MongoDBName))
		if err := reportAdapter.EnsureIndexes(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to ensure report indexes")
		}
		reportRepo = reportAdapter
	} else {
		logger.Warn("MongoDB not configured, sync reports disabled")
	}

	// ID generation
	ids, err := snowflake.NewGenerator(cfg.SnowflakeNodeID)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("snowflake generator: %w", err)
	}

	// Outbound adapters
	slotRepo := persistence.NewSlotAdapter(sqlDB)
	credentialRepo := persistence.NewCredentialAdapter(sqlDB)
	calendarAdapter := provider.NewGoogleCalendarAdapter(&provider.GoogleCalendarConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		CalendarID:   cfg.GoogleCalendarID,
	})

	// Engine services
	tokenGuard := auth.NewTokenGuard(
		credentialRepo,
		auth.NewOAuthRefresher(calendarAdapter.OAuthConfig()),
		cfg.TokenRefreshMargin,
	)
	locker := lock.NewSyncLocker(redisClient, cfg.SyncLockTTL)
	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDevelopment() {
		zlog = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	}
	syncService := syncengine.NewService(locker, tokenGuard, calendarAdapter, slotRepo, reportRepo, ids, zlog)

	scheduleCache := cache.NewRedisCache(redisClient)
	scheduleService := schedule.NewService(
		slotRepo,
		schedule.NewMerger(ids),
		syncService,
		scheduleCache,
		cfg.ScheduleCacheTTL,
	)

	deps := &Dependencies{
		Config:          cfg,
		DB:              db,
		SQLDB:           sqlDB,
		Redis:           redisClient,
		MongoDB:         mongoClient,
		SlotRepo:        slotRepo,
		CredentialRepo:  credentialRepo,
		ReportRepo:      reportRepo,
		Calendar:        calendarAdapter,
		TokenGuard:      tokenGuard,
		SyncService:     syncService,
		ScheduleService: scheduleService,
	}

	logger.Info("Dependencies initialized")
	return deps, cleanup, nil
}
