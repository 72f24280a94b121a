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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/coderoom/backend/internal/config"
	"github.com/zhouzirui/coderoom/backend/internal/handler"
	relayHandler "github.com/zhouzirui/coderoom/backend/internal/handler/relay"
	"github.com/zhouzirui/coderoom/backend/internal/model/room"
	"github.com/zhouzirui/coderoom/backend/internal/service/ai"
	"github.com/zhouzirui/coderoom/backend/internal/service/executor"
	"github.com/zhouzirui/coderoom/backend/internal/service/relay"
	roomService "github.com/zhouzirui/coderoom/backend/internal/service/room"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Room store
	var store room.Store
	if cfg.Store.DatabaseURL != "" {
		pgStore, err := room.NewPostgresStore(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to initialize room store: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		log.Println("room store: postgres")
	} else {
		store = room.NewMemoryStore()
		log.Println("DATABASE_URL 未配置，房间信息仅保存在内存中")
	}
	rooms := roomService.NewService(store)

	// Relay broker
	var broker relay.Broker
	if cfg.Relay.UseRedis() {
		broker, err = relay.NewRedisBroker(ctx, &redis.Options{
			Addr:     cfg.Relay.RedisAddr,
			Password: cfg.Relay.RedisPassword,
			DB:       cfg.Relay.RedisDB,
		})
		if err != nil {
			log.Fatalf("failed to initialize relay broker: %v", err)
		}
		log.Printf("relay broker: redis at %s", cfg.Relay.RedisAddr)
	} else {
		broker = relay.NewMemoryBroker()
		log.Println("REDIS_ADDR 未配置，使用单实例内存广播")
	}
	defer broker.Close()

	exec := executor.NewService(cfg.Executor.Timeout)
	relaySvc := relay.NewService(broker, exec)
	defer relaySvc.Close()

	deps := handler.Deps{
		Rooms:    rooms,
		Relay:    relaySvc,
		Relaying: relayHandler.Options{RequireRoom: cfg.Relay.RequireRoom},
	}

	// Initialize AI completion service
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without AI completion - 请检查 Ark 模型相关环境变量")
		} else {
			deps.Completer = aiService
			log.Println("AI completion service initialized successfully")
		}
	} else {
		log.Println("Ark 凭证未配置，跳过 AI 补全初始化")
	}

	startServer(ctx, cfg.Server, handler.NewRouter(deps))
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("coderoom backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Printf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
