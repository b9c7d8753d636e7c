package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"ytmp3convert/internal/adapters/errorlog"
	"ytmp3convert/internal/adapters/notify"
	"ytmp3convert/internal/adapters/wshub"
	"ytmp3convert/internal/app"
	"ytmp3convert/internal/config"
	"ytmp3convert/internal/service"
	"ytmp3convert/internal/transport/httpapi"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	// Set production mode if not specified
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)

	httpClient := app.HTTPClient(cfg)
	metadata, converter, err := app.Providers(cfg, httpClient)
	if err != nil {
		logger.Fatalf("Failed to initialize providers: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores := app.OpenStores(ctx, cfg, logger)
	defer stores.Close()

	var errLog errorlog.Log = errorlog.NewMemory()
	if stores.Redis != nil {
		errLog = errorlog.NewRedis(stores.Redis)
	}
	errSink := errorlog.NewNotifier(errLog, logger)
	defer errSink.Close()

	hub := wshub.NewHub(logger)
	go hub.Run(ctx)

	policy := app.Policy(cfg)
	sessions := httpapi.NewSessions(func(session string) *service.Orchestrator {
		sink := notify.WithSession(session, notify.Multi{hub, errSink})
		return service.NewOrchestrator(metadata, converter, sink, stores.Jobs, policy, logger)
	})

	handler := httpapi.NewHandler(httpapi.HandlerConfig{
		Sessions:    sessions,
		Hub:         hub,
		Errors:      errLog,
		Store:       stores.Jobs,
		BaseContext: ctx,
		Logger:      logger,
	})
	router := httpapi.NewRouter(handler, httpapi.RouterConfig{
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Printf("Server started on %s (backend %s, max duration %ds)", cfg.ServerAddr, cfg.ConversionBackend, policy.MaxDurationSeconds)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Println("Shutting down...")
	if n := sessions.CancelAll(); n > 0 {
		logger.Printf("Cancelled %d running conversions", n)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("Server shutdown error: %v", err)
	}
}
