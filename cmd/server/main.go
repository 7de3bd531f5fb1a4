// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/jason-s-yu/realms/internal/auth"
	"github.com/jason-s-yu/realms/internal/cache"
	"github.com/jason-s-yu/realms/internal/config"
	"github.com/jason-s-yu/realms/internal/database"
	"github.com/jason-s-yu/realms/internal/handlers"
	"github.com/jason-s-yu/realms/internal/memstore"
	"github.com/jason-s-yu/realms/internal/middleware"
	"github.com/jason-s-yu/realms/internal/migrations"
	"github.com/jason-s-yu/realms/internal/narrator"
	"github.com/jason-s-yu/realms/internal/room"
	"github.com/jason-s-yu/realms/internal/speech"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

// store is everything the API and the room service persist through.
type store interface {
	handlers.UserStore
	room.Store
	Close()
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Read()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.Warnf("unknown log level %q, using info", cfg.LogLevel)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	st, health, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	defer st.Close()

	signer, err := newSigner(cfg.Auth, logger)
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	hubs := room.NewHubStore()
	deps := room.Deps{
		Store:     st,
		Narrator:  narrator.New(cfg.Narrator),
		Publisher: room.LocalPublisher{Hubs: hubs},
		Logger:    logger,
		History:   cfg.Narrator.History,
	}

	srv := &handlers.Server{
		Users:          st,
		Hubs:           hubs,
		Tokens:         signer,
		Narrator:       deps.Narrator,
		Logger:         logger,
		CookieName:     cfg.Auth.CookieName,
		SecureCookie:   cfg.Auth.SecureCookie,
		TokenTTL:       cfg.Auth.TokenExpire,
		OriginPatterns: cfg.Server.OriginHosts(),
		Limiter:        middleware.NewRateLimiter(cfg.Limits.NarrationPerMinute, cfg.Limits.NarrationBurst),
		Health:         health,
	}

	if cfg.Speech.Enabled && cfg.Speech.APIKey != "" {
		sp, err := speech.New(ctx, cfg.Speech)
		if err != nil {
			logger.Fatalf("speech: %v", err)
		}
		deps.Speaker = sp
		srv.Speaker = sp
	} else {
		logger.Info("speech synthesis disabled")
	}

	if cfg.Redis.Addr != "" {
		rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.DB)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer rdb.Close()

		deps.Publisher = room.RedisPublisher{Client: rdb, Prefix: cfg.Redis.ChannelPrefix}
		deps.Activity = cache.ActivityQueue{Client: rdb, Name: cfg.Redis.ActivityQueue}

		relay := &room.Relay{Client: rdb, Prefix: cfg.Redis.ChannelPrefix, Hubs: hubs, Logger: logger}
		go func() {
			if err := relay.Run(ctx); err != nil {
				logger.Errorf("room relay stopped: %v", err)
			}
		}()
		logger.Infof("connected to redis at %s", cfg.Redis.Addr)
	}

	srv.Rooms = room.NewService(deps)

	handler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})(srv.Routes())

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", httpSrv.Addr)
		errc <- httpSrv.ListenAndServe()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server exited: %v", err)
		}
	case sig := <-sigs:
		logger.Infof("received %v, shutting down", sig)
	}

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	logger.Info("server stopped")
}

// openStore connects the configured storage driver and returns a health check for it.
func openStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (store, func(context.Context) error, error) {
	if cfg.Storage.Driver == "memory" {
		logger.Warn("using in-memory storage, nothing survives a restart")
		return memstore.New(), nil, nil
	}

	url := cfg.PostgresURL()
	if cfg.Postgres.Migrate {
		if err := migrations.Migrate(url); err != nil {
			return nil, nil, err
		}
		logger.Info("database migrations applied")
	}
	db, err := database.Connect(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	logger.Infof("connected to postgres at %s:%s", cfg.Postgres.Host, cfg.Postgres.Port)
	return db, db.Ping, nil
}

func newSigner(cfg config.AuthConfig, logger *logrus.Logger) (*auth.Signer, error) {
	if cfg.PrivateKeyPath != "" && cfg.PublicKeyPath != "" {
		return auth.NewSignerFromFiles(cfg.PrivateKeyPath, cfg.PublicKeyPath, cfg.TokenExpire)
	}
	logger.Warn("no key files configured, generating an ephemeral signing key")
	return auth.NewSigner(cfg.TokenExpire)
}
