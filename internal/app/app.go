package app

import (
	"context"
	"fmt"
	"time"

	"tasktracker/internal/config"
	"tasktracker/internal/middleware"
	"tasktracker/internal/migrations"
	"tasktracker/internal/repo"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type App struct {
	cfg    config.Config
	log    *logrus.Logger
	store  repo.TaskStore
	redis  *redis.Client
	router *gin.Engine
}

func New(cfg config.Config, log *logrus.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}

	store, err := newStore(cfg.Store, log)
	if err != nil {
		return nil, err
	}
	a.store = store

	if cfg.Redis.Enabled() {
		rdb, err := newRedis(cfg.Redis)
		if err != nil {
			_ = a.store.Close()
			return nil, err
		}
		a.redis = rdb
	} else {
		log.Info("redis not configured, latest-tasks cache disabled")
	}

	a.router = newRouter(cfg, log, a.store, a.redis)
	return a, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Close(ctx context.Context) error {
	_ = ctx
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

func newStore(cfg config.StoreConfig, log *logrus.Logger) (repo.TaskStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		if err := migrations.UpDSN("pgx", cfg.PGDSN, migrations.DialectPostgres); err != nil {
			return nil, err
		}
		pool, err := newPostgres(cfg)
		if err != nil {
			return nil, err
		}
		log.Info("using postgres task store")
		return repo.NewPGTaskStore(pool), nil
	case config.DriverSQLite:
		s, err := repo.OpenSQLiteTaskStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.WithField("path", cfg.SQLitePath).Info("using sqlite task store")
		return s, nil
	case config.DriverMemory:
		log.Warn("using in-memory task store, data is lost on restart")
		return repo.NewMemoryTaskStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func newPostgres(cfg config.StoreConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("pg parse config: %w", err)
	}
	pcfg.MaxConns = cfg.PGMaxConns
	pcfg.MinConns = cfg.PGMinConns
	pcfg.MaxConnIdleTime = 5 * time.Minute
	pcfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}

	return pool, nil
}

func newRedis(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := cfg.ClientOptions()
	if err != nil {
		return nil, fmt.Errorf("redis options: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return rdb, nil
}

func newRouter(cfg config.Config, log *logrus.Logger, store repo.TaskStore, rdb *redis.Client) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// must run before CORS, which aborts preflights and foreign origins
	r.Use(middleware.RequestID(), middleware.AccessLog(log), middleware.Metrics())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	Setup(r, cfg, log, store, rdb)
	return r
}
