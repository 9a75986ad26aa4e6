package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/contactbook/apiserver/config"
	"github.com/contactbook/apiserver/internal/auth"
	"github.com/contactbook/apiserver/internal/db"
	"github.com/contactbook/apiserver/internal/handlers"
	"github.com/contactbook/apiserver/internal/notify"
	"github.com/contactbook/apiserver/internal/ratelimit"
	"github.com/contactbook/apiserver/internal/services"
	"github.com/contactbook/apiserver/internal/storage"
	"github.com/contactbook/apiserver/internal/store"
)

// Server wraps the HTTP server, router, and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mq         *notify.MQ
	redis      *ratelimit.RedisStore
	logger     *zap.Logger
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	contactRepo := store.NewContactRepository(dbConn)

	userService := services.NewUserService(userRepo)
	contactService := services.NewContactService(contactRepo)

	authService, err := auth.NewService(cfg.Auth)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	limitStore, redisStore, err := newLimitStore(ctx, cfg, logger)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	limiter := ratelimit.New(limitStore, cfg.RateLimit)

	keyFunc := handlers.ClientIP
	if cfg.Testing {
		// All requests share one counter so suites can assert 429 behavior.
		keyFunc = handlers.FixedKey("test")
	}
	gate := handlers.NewRateLimitGate(limiter, keyFunc, cfg.RateLimit.FailOpen, logger)

	mailer, mq, err := newMailer(ctx, cfg, logger)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	avatarStorage, err := newAvatarStorage(ctx, cfg, logger)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	guard := handlers.RequireAuth(authService, userService)

	authHandler := handlers.NewAuthHandler(userService, authService, mailer, avatarStorage, logger)
	contactHandler := handlers.NewContactHandler(contactService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler, gate, guard)
	})
	router.Route("/api/contacts", func(r chi.Router) {
		handlers.ContactRouter(r, contactHandler, gate, guard)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		mq:         mq,
		redis:      redisStore,
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.mq != nil {
		_ = s.mq.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	_ = s.logger.Sync()
	return err
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Testing {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newLimitStore connects to Redis when configured. Test mode uses the
// in-process store so suites need no Redis instance.
func newLimitStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (ratelimit.Store, *ratelimit.RedisStore, error) {
	if cfg.Testing {
		return ratelimit.NewMemoryStore(), nil, nil
	}

	redisStore, err := ratelimit.NewRedisStore(ctx, cfg.Redis)
	if err != nil {
		if !cfg.RateLimit.FailOpen {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Warn("redis unreachable, rate limiting falls back to in-process store", zap.Error(err))
		return ratelimit.NewMemoryStore(), nil, nil
	}
	return redisStore, redisStore, nil
}

func newMailer(ctx context.Context, cfg config.Config, logger *zap.Logger) (notify.Mailer, *notify.MQ, error) {
	var backend notify.Backend
	var err error

	switch cfg.Mail.Backend {
	case "rabbitmq":
		backend, err = notify.NewRabbitMQClient(cfg.Mail.RabbitMQ)
	case "pubsub":
		backend, err = notify.NewPubSubClient(ctx, cfg.Mail.PubSub)
	case "":
		logger.Warn("no mail backend configured, emails are disabled")
		return notify.NopMailer{}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown mail backend %q", cfg.Mail.Backend)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connect mail backend: %w", err)
	}

	mq := notify.NewMQ(backend)
	return notify.NewQueueMailer(mq, cfg.Mail.Queue, cfg.Mail.From, cfg.BaseURL), mq, nil
}

func newAvatarStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (*storage.Storage, error) {
	var backend storage.ObjectStorage
	var err error

	switch cfg.Storage.Backend {
	case "minio":
		backend, err = storage.NewMinioClient(cfg.Storage.Minio)
	case "gcs":
		backend, err = storage.NewGCSClient(ctx, cfg.Storage.GCS)
	case "":
		logger.Warn("no storage backend configured, avatar uploads are disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("connect storage backend: %w", err)
	}

	st := storage.NewStorage(backend, cfg.Storage.PublicURL)
	if err := st.EnsureBucket(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	return st, nil
}
