// Package app wires configuration into stores, services and the HTTP router.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"facekiosk/internal/api"
	"facekiosk/internal/attendance"
	"facekiosk/internal/auth"
	"facekiosk/internal/config"
	"facekiosk/internal/httpmiddleware"
	"facekiosk/internal/kiosk"
	"facekiosk/internal/objectstore"
	"facekiosk/internal/queue"
	"facekiosk/internal/store"
	"facekiosk/internal/store/memory"
	"facekiosk/internal/store/mongo"
	"facekiosk/internal/store/postgres"
	"facekiosk/internal/verify"
	"facekiosk/internal/worker"
	"facekiosk/internal/workflow"
)

// Store is everything a backend must provide.
type Store interface {
	worker.Repository
	attendance.Repository
	auth.DeviceStore
	Healthy(ctx context.Context) bool
}

// App holds the shared services of one process.
type App struct {
	Config  config.App
	Store   Store
	Redis   *store.Redis
	Queue   queue.Queue
	Objects objectstore.Store
	Workers *worker.Service
	Ledger  *attendance.Service

	closers []func() error
}

// Build opens the configured store, queue and object store.
func Build(ctx context.Context, cfg config.App) (*App, error) {
	a := &App{Config: cfg}

	st, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = st

	if cfg.QueueBackend == "memory" {
		a.Queue = queue.NewInMemory(64)
	} else {
		a.Redis = store.NewRedis(cfg.RedisAddr)
		a.closers = append(a.closers, a.Redis.Close)
		a.Queue = queue.NewRedisQueue(a.Redis.Client, queue.DefaultKey)
	}

	if cfg.Storage.CloudinaryEnabled() {
		s := cfg.Storage
		a.Objects = objectstore.NewCloudinary(s.CloudinaryCloudName, s.CloudinaryAPIKey, s.CloudinaryAPISecret, s.CloudinaryFolder)
		log.Printf("cloudinary configured: %s", s.CloudinaryCloudName)
	} else {
		fs, err := objectstore.NewFilesystem(cfg.Storage.MediaDir, cfg.Storage.PublicBaseURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Objects = fs
		log.Printf("cloudinary not configured, storing photos in %s", cfg.Storage.MediaDir)
	}

	a.Workers = worker.NewService(a.Store, a.Objects)
	a.Ledger = attendance.NewService(a.Store, a.Queue)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (Store, error) {
	cfg := a.Config
	switch cfg.StoreBackend {
	case "postgres":
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connect failed: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		repo := postgres.New(db.Client)
		if err := repo.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return repo, nil
	case "mongo":
		repo, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("mongo connect failed: %w", err)
		}
		a.closers = append(a.closers, func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return repo.Close(closeCtx)
		})
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return repo, nil
	case "memory":
		log.Printf("warning: using the in-memory store, data is lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Server builds the verification gateway, the session manager and the router.
func (a *App) Server(ctx context.Context) (*gin.Engine, *kiosk.Manager, error) {
	cfg := a.Config
	gateway, err := verify.NewGatewayFromConfig(ctx, cfg.Verify)
	if err != nil {
		return nil, nil, fmt.Errorf("verification gateway: %w", err)
	}
	log.Printf("comparator: %s", gateway.Comparator().Name())

	policy := workflow.Policy{
		MaxFailures:  cfg.Workflow.MaxFailures,
		GeoTimeout:   cfg.Workflow.GeoTimeout,
		DismissDelay: cfg.Workflow.DismissDelay,
	}
	manager := kiosk.NewManager(a.Workers, gateway, a.Ledger, policy)

	tokens := auth.NewTokens(a.Store, auth.Settings{
		Issuer:       cfg.JWTIssuer,
		SigningKey:   cfg.JWTSigningKey,
		AccessTTL:    cfg.AccessTTL,
		RefreshTTL:   cfg.RefreshTTL,
		AdminPIN:     cfg.AdminPIN,
		AdminPINHash: cfg.AdminPINHash,
	})
	if cfg.AdminPIN == "" && cfg.AdminPINHash == "" {
		log.Printf("warning: ADMIN_PIN not set, admin login disabled")
	}

	var limiter httpmiddleware.Limiter
	if cfg.RateLimitPerMin > 0 {
		if a.Redis != nil {
			limiter = httpmiddleware.NewRedisWindow(a.Redis.Client, cfg.RateLimitPerMin)
		} else {
			limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
		}
	}

	health := map[string]api.HealthCheck{"store": a.Store.Healthy}
	if a.Redis != nil {
		health["redis"] = a.Redis.Healthy
	}

	mediaDir := ""
	if !cfg.Storage.CloudinaryEnabled() {
		mediaDir = cfg.Storage.MediaDir
	}

	router := api.NewRouter(api.Deps{
		Workers:        a.Workers,
		Ledger:         a.Ledger,
		Kiosk:          manager,
		Tokens:         tokens,
		SigningKey:     cfg.JWTSigningKey,
		Issuer:         cfg.JWTIssuer,
		ReportLocation: cfg.Report.Location(),
		MediaDir:       mediaDir,
		CORSOrigins:    cfg.CORSOrigins,
		Limiter:        limiter,
		Health:         health,
	})
	return router, manager, nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("warning: close: %v", err)
		}
	}
	a.closers = nil
}
