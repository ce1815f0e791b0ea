package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/studyforge/backend/internal/auth"
	"github.com/studyforge/backend/internal/config"
	"github.com/studyforge/backend/internal/database"
	"github.com/studyforge/backend/internal/leveling"
	"github.com/studyforge/backend/internal/locks"
	"github.com/studyforge/backend/internal/logger"
	"github.com/studyforge/backend/internal/middleware"
	"github.com/studyforge/backend/internal/sessions"
)

type stores struct {
	users    auth.UserStore
	progress leveling.ProgressStore
	sessions sessions.Store
	close    func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.IsProduction())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open stores", "backend", cfg.StoreBackend, "error", err)
	}
	defer st.close()

	locker, closeLocker, err := newLocker(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to init locker", "error", err)
	}
	defer closeLocker()

	// Initialize services and handlers
	levelService := leveling.NewService(st.progress, st.sessions, locker, log, leveling.Options{
		Location:   cfg.Location,
		MaxRetries: cfg.XPMaxRetries,
	})
	sessionService := sessions.NewService(st.sessions, levelService, locker, log)

	tokens := auth.NewTokens(cfg.JWTSecret)
	authHandler := auth.NewHandler(st.users, tokens, log)
	levelHandler := leveling.NewHandler(levelService, log)
	sessionHandler := sessions.NewHandler(sessionService, log)

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(log))
	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.Auth(tokens))
	protected.HandleFunc("/auth/me", authHandler.GetCurrentUser).Methods("GET")
	protected.HandleFunc("/progress/level", levelHandler.GetLevel).Methods("GET")
	protected.HandleFunc("/progress/award-xp", levelHandler.AwardXP).Methods("POST")
	protected.HandleFunc("/progress/streak", levelHandler.UpdateStreak).Methods("POST")
	protected.HandleFunc("/sessions", sessionHandler.Record).Methods("POST")
	protected.HandleFunc("/sessions/recent", sessionHandler.Recent).Methods("GET")
	protected.HandleFunc("/sessions/stats", sessionHandler.Stats).Methods("GET")

	// Health check and metrics
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server starting", "addr", srv.Addr, "backend", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info("Server shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server failed", "error", err)
	}
}

func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, error) {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		client, err := database.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.MongoDB)
		if err := database.EnsureMongoIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return &stores{
			users:    auth.NewMongoUserStore(db),
			progress: leveling.NewMongoStore(db),
			sessions: sessions.NewMongoStore(db),
			close:    func() { _ = client.Disconnect(context.Background()) },
		}, nil

	case config.BackendMemory:
		log.Warn("Using in-memory stores; data is lost on restart")
		return &stores{
			users:    auth.NewMemoryUserStore(),
			progress: leveling.NewMemoryStore(),
			sessions: sessions.NewMemoryStore(),
			close:    func() {},
		}, nil

	default:
		db, err := database.Connect(cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
		return &stores{
			users:    auth.NewPostgresUserStore(db),
			progress: leveling.NewPostgresStore(db),
			sessions: sessions.NewPostgresStore(db),
			close:    func() { db.Close() },
		}, nil
	}
}

// newLocker shares per-user locks through Redis when REDIS_ADDR is set, so several
// instances can serve the same users.
func newLocker(ctx context.Context, cfg *config.Config, log *logger.Logger) (locks.Locker, func(), error) {
	if cfg.RedisAddr == "" {
		return locks.NewKeyedMutex(), func() {}, nil
	}

	rdb, err := locks.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Using Redis progress locks", "addr", cfg.RedisAddr)
	return locks.NewRedisLocker(rdb, cfg.LockTTL), func() { _ = rdb.Close() }, nil
}
