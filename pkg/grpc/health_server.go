package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/example/bytespark/pkg/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const checkTimeout = 2 * time.Second

// Pinger is a backing store the API depends on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer exposes the standard grpc.health.v1 service for the API's
// backing stores. Each store is reported under its own service name and the
// empty service name reports the API as a whole.
type HealthServer struct {
	srv    *grpc.Server
	health *health.Server
	deps   map[string]Pinger
	config *config.GRPCConfig
	logger *zap.Logger

	mu     sync.RWMutex
	status map[string]error
}

func NewHealthServer(cfg *config.GRPCConfig, deps map[string]Pinger, logger *zap.Logger) *HealthServer {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return &HealthServer{
		srv:    srv,
		health: hs,
		deps:   deps,
		config: cfg,
		logger: logger,
		status: make(map[string]error),
	}
}

// Start listens on the configured address and serves until Stop.
func (s *HealthServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.logger.Info("Health service started", zap.String("address", addr))
	return s.Serve(lis)
}

func (s *HealthServer) Serve(lis net.Listener) error {
	return s.srv.Serve(lis)
}

// Check pings every dependency, publishes the result and returns it keyed
// by dependency name. A nil value means healthy.
func (s *HealthServer) Check(ctx context.Context) map[string]error {
	results := make(map[string]error, len(s.deps))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, dep := range s.deps {
		wg.Add(1)
		go func(name string, dep Pinger) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			err := dep.Ping(pctx)
			mu.Lock()
			results[name] = err
			mu.Unlock()
		}(name, dep)
	}
	wg.Wait()

	overall := healthpb.HealthCheckResponse_SERVING
	for name, err := range results {
		st := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			overall = healthpb.HealthCheckResponse_NOT_SERVING
			s.logger.Warn("Dependency unhealthy", zap.String("dependency", name), zap.Error(err))
		}
		s.health.SetServingStatus(name, st)
	}
	s.health.SetServingStatus("", overall)

	s.mu.Lock()
	s.status = results
	s.mu.Unlock()
	return results
}

// Last returns the result of the most recent Check.
func (s *HealthServer) Last() map[string]error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]error, len(s.status))
	for k, v := range s.status {
		out[k] = v
	}
	return out
}

// Watch re-runs Check every interval until ctx is done.
func (s *HealthServer) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
