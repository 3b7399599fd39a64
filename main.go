package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/session"
	fiberpostgres "github.com/gofiber/storage/postgres/v3"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"giapha/internal/account"
	"giapha/internal/audit"
	"giapha/internal/cache"
	"giapha/internal/config"
	"giapha/internal/logger"
	"giapha/internal/monitoring"
	"giapha/internal/notifications"
	"giapha/internal/person"
	"giapha/internal/proposal"
	"giapha/internal/storage"
	"giapha/internal/store"
	"giapha/internal/story"
	"giapha/internal/validator"
	"giapha/internal/web"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("loading .env: %v", err)
	}

	cfg := config.NewConfig()

	telemetry, err := monitoring.NewOpenTelemetry(cfg.Telemetry)
	if err != nil {
		log.Fatalf("initializing telemetry: %v", err)
	}

	appLogger := logger.New(*cfg)

	ctx := context.Background()

	var st store.Store
	if cfg.Database.Enabled {
		pg, err := store.NewPostgres(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("connecting to postgres: %v", err)
		}
		st = pg
	} else {
		appLogger.Warn("database disabled, using in-memory store")
		st = store.NewMemory()
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("connecting to redis: %v", err)
		}
	}
	treeCache := cache.NewTreeCache(appLogger.Logger, redisClient, cfg.Redis.TreeCacheTTL)

	media, err := newMediaStorage(cfg.Storage)
	if err != nil {
		log.Fatalf("initializing media storage: %v", err)
	}

	sessions := newSessionStore(cfg)

	auditor := audit.NewAuditor(appLogger.Logger)
	notifier := notifications.NewManager(appLogger.Logger)
	accounts := account.NewManager(appLogger.Logger, st, &auditor, &notifier, telemetry)
	authenticator := account.NewAuthenticator(appLogger.Logger, st, &auditor)
	persons := person.NewService(appLogger.Logger, st, &auditor, treeCache, telemetry)
	proposals := proposal.NewMachine(appLogger.Logger, st, &auditor, &notifier, treeCache, telemetry)
	stories := story.NewService(appLogger.Logger, st, &auditor)

	handler := web.NewHandler(
		appLogger.Logger,
		validator.New(),
		sessions,
		st,
		&accounts,
		&authenticator,
		&persons,
		&proposals,
		&stories,
		&notifier,
		media,
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})
	app.Use(recover.New())
	app.Use(requestid.New())

	// Credential endpoints get a tight per-IP budget.
	authLimiter := limiter.New(limiter.Config{
		Max:        5,
		Expiration: 15 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many attempts, try again later",
			})
		},
	})

	app.Get("/health", handler.Health)

	api := app.Group("/api/v1")

	api.Post("/auth/register", authLimiter, handler.Register)
	api.Post("/auth/login", authLimiter, handler.Login)
	api.Post("/auth/logout", handler.Logout)

	// The bare tree is readable without an account.
	api.Get("/tree/public", handler.PublicTree)
	api.Get("/stories", handler.ListStories)

	authed := api.Group("", handler.RequireAccount())
	authed.Get("/me", handler.Me)
	authed.Get("/me/notifications", handler.Notifications)

	member := authed.Group("", handler.RequireActive())
	member.Get("/tree", handler.Tree)
	member.Get("/persons", handler.ListPersons)
	member.Get("/persons/unlinked", handler.UnlinkedPersons)
	member.Get("/persons/:id", handler.GetPerson)
	member.Get("/persons/:id/kin", handler.PersonKin)
	member.Get("/persons/:id/can-edit", handler.CanEditPerson)
	member.Patch("/persons/:id", handler.EditPerson)
	member.Post("/persons/:id/avatar", handler.UploadAvatar)
	member.Post("/me/person", handler.LinkPerson)
	member.Post("/proposals", handler.SubmitProposal)
	member.Get("/proposals/:id", handler.GetProposal)

	admin := member.Group("", handler.RequireAdmin())
	admin.Post("/persons", handler.CreatePerson)
	admin.Delete("/persons/:id", handler.DeletePerson)
	admin.Get("/proposals", handler.ListProposals)
	admin.Post("/proposals/:id/approve", handler.ApproveProposal)
	admin.Post("/proposals/:id/reject", handler.RejectProposal)
	admin.Get("/accounts", handler.ListAccounts)
	admin.Post("/accounts/:id/approve", handler.ApproveAccount)
	admin.Post("/accounts/:id/person", handler.AssignPerson)
	admin.Post("/accounts/:id/role", handler.ChangeRole)
	admin.Post("/stories", handler.PublishStory)
	admin.Delete("/stories/:id", handler.DeleteStory)

	if cfg.Storage.Type == string(storage.StorageTypeLocal) {
		app.Static("/media", cfg.Storage.LocalPath)
	} else {
		app.Get("/media/*", handler.Media)
	}

	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		appLogger.Info("starting server", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		appLogger.Error("server shutdown", "error", err)
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			appLogger.Error("redis shutdown", "error", err)
		}
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("telemetry shutdown", "error", err)
	}
}

func newMediaStorage(cfg config.StorageConfig) (storage.Storage, error) {
	storageConfig := storage.StorageConfig{
		Type:      storage.StorageType(cfg.Type),
		LocalPath: cfg.LocalPath,
	}
	if storageConfig.Type == storage.StorageTypeS3 {
		storageConfig.S3 = &storage.S3Config{
			Bucket: cfg.S3Bucket,
			Region: cfg.S3Region,
		}
	}
	return storage.NewFactory(storageConfig).CreateStorage()
}

// newSessionStore backs sessions with the database when it is enabled, so a
// restart does not log everyone out. The in-memory fallback matches the
// in-memory document store.
func newSessionStore(cfg *config.Config) *session.Store {
	sessionConfig := session.Config{
		KeyLookup:      "cookie:" + cfg.Session.CookieName,
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		CookieSecure:   cfg.Server.Environment == "production",
		Expiration:     cfg.Session.Expiration,
	}
	if cfg.Database.Enabled {
		sessionConfig.Storage = fiberpostgres.New(fiberpostgres.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Name,
			Username: cfg.Database.User,
			Password: cfg.Database.Password,
			Table:    "sessions",
			Reset:    false,
		})
	}
	return session.New(sessionConfig)
}
