package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/bytespark/gateway"
	"github.com/example/bytespark/pkg/audit"
	"github.com/example/bytespark/pkg/auth"
	"github.com/example/bytespark/pkg/config"
	"github.com/example/bytespark/pkg/discovery"
	grpcserver "github.com/example/bytespark/pkg/grpc"
	"github.com/example/bytespark/pkg/logger"
	"github.com/example/bytespark/pkg/repository"
	"github.com/example/bytespark/pkg/service"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	defaultConfigPath   = "config/config.yaml"
	healthCheckInterval = 15 * time.Second
)

func main() {
	// .env is optional and only used for local development
	_ = godotenv.Load()

	configPath := flag.String("config", defaultConfigPath, "path to the YAML config file")
	flag.Parse()

	path := *configPath
	if _, err := os.Stat(path); err != nil && path == defaultConfigPath {
		path = ""
	}

	cfg, err := config.Load(path)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("Service stopped with error", zap.Error(err))
	}
	log.Info("Service stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting bytespark API",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port))

	// MongoDB: carts, orders, products, audit log
	mongoRepo, err := repository.NewMongoRepository(ctx, &cfg.MongoDB)
	if err != nil {
		return err
	}
	defer mongoRepo.Close(context.Background())
	if err := mongoRepo.EnsureIndexes(ctx); err != nil {
		return err
	}

	// MySQL: users
	db, err := repository.OpenMySQL(&cfg.MySQL)
	if err != nil {
		return err
	}
	users, err := repository.NewUserRepository(db)
	if err != nil {
		return err
	}

	// Redis: product cache, optional
	redisRepo := repository.NewRedisRepository(&cfg.Redis)
	defer redisRepo.Close()
	var productCache service.ProductCache
	if err := redisRepo.Ping(ctx); err != nil {
		log.Warn("Redis unavailable, continuing without product cache", zap.Error(err))
	} else {
		productCache = redisRepo
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}

	recorder, err := audit.NewRecorder(mongoRepo, cfg.Server.Name, log)
	if err != nil {
		return err
	}
	defer recorder.Stop()

	carts := repository.NewCartRepository(mongoRepo.Database())
	catalog := service.NewCatalog(repository.NewProductRepository(mongoRepo.Database()), productCache, log.Named("catalog"))

	authService := service.NewAuthService(users, tokens, cfg.Auth, log.Named("auth"))
	cartService := service.NewCartService(carts, catalog, log.Named("cart"))
	orderService := service.NewOrderService(
		carts,
		repository.NewOrderRepository(mongoRepo.Database()),
		users,
		catalog,
		recorder,
		cfg.Auth.CheckoutLease,
		log.Named("orders"),
	)

	health := grpcserver.NewHealthServer(&cfg.GRPC, map[string]grpcserver.Pinger{
		"mongodb": mongoRepo,
		"mysql":   users,
		"redis":   redisRepo,
	}, log.Named("health"))
	go health.Watch(ctx, healthCheckInterval)
	defer health.Stop()

	errCh := make(chan error, 2)
	if cfg.GRPC.Port > 0 {
		go func() {
			if err := health.Start(); err != nil {
				errCh <- fmt.Errorf("health server: %w", err)
			}
		}()
	}

	gw := gateway.NewGateway(cfg, log, gateway.Deps{
		Tokens: tokens,
		Auth:   authService,
		Carts:  cartService,
		Orders: orderService,
		Health: health,
	})
	gw.SetupRoutes()

	go func() {
		if err := gw.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("gateway: %w", err)
		}
	}()

	sd, instance := register(ctx, cfg, log)

	log.Info("Gateway started successfully")

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if sd != nil {
		if err := sd.Deregister(shutdownCtx, instance); err != nil {
			log.Warn("Failed to deregister service", zap.Error(err))
		}
		sd.Close()
	}
	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.Warn("Gateway shutdown incomplete", zap.Error(err))
	}
	return runErr
}

// register announces this instance in etcd when endpoints are configured.
func register(ctx context.Context, cfg *config.Config, log *zap.Logger) (*discovery.ServiceDiscovery, *discovery.ServiceInstance) {
	if len(cfg.Etcd.Endpoints) == 0 {
		return nil, nil
	}

	sd, err := discovery.NewServiceDiscovery(&cfg.Etcd, log.Named("discovery"))
	if err != nil {
		log.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
		return nil, nil
	}

	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" {
		if name, err := os.Hostname(); err == nil {
			host = name
		}
	}
	instance := &discovery.ServiceInstance{Name: cfg.Server.Name, Host: host, Port: cfg.Server.Port}

	if err := sd.Register(ctx, instance); err != nil {
		log.Warn("Failed to register service", zap.Error(err))
		sd.Close()
		return nil, nil
	}
	return sd, instance
}
