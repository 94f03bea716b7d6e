package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/ismaiel54/paper-trading-engine/internal/broker"
	"github.com/ismaiel54/paper-trading-engine/internal/guard"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthChecker serves readiness for both gRPC and HTTP, plus the
// Prometheus scrape endpoint and a JSON status page. The process is
// healthy only while the loop is ready, the broker session is up, and no
// global trading halt is active.
type HealthChecker struct {
	grpcHealth *health.Server
	httpServer *http.Server
	logger     *zap.Logger

	conn  broker.Connection
	guard *guard.Guard

	mu    sync.RWMutex
	ready bool
}

// NewHealthChecker creates a health checker bound to one broker and guard
func NewHealthChecker(conn broker.Connection, g *guard.Guard, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		grpcHealth: health.NewServer(),
		logger:     logger,
		conn:       conn,
		guard:      g,
	}
}

// RegisterGRPC registers the health service with the gRPC server
func (h *HealthChecker) RegisterGRPC(s *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(s, h.grpcHealth)
	h.grpcHealth.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
}

// SetReady flips overall readiness, typically once the trading loop starts
func (h *HealthChecker) SetReady(ready bool) {
	h.mu.Lock()
	h.ready = ready
	h.mu.Unlock()

	status := grpc_health_v1.HealthCheckResponse_SERVING
	if !ready {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	h.grpcHealth.SetServingStatus("", status)
}

// StartHTTPServer starts the HTTP health and metrics server
func (h *HealthChecker) StartHTTPServer(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.HandleFunc("/status", h.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())

	h.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	h.logger.Info("starting HTTP health server", zap.String("addr", addr))
	return h.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the health checker
func (h *HealthChecker) Shutdown(ctx context.Context) error {
	h.SetReady(false)
	if h.httpServer != nil {
		return h.httpServer.Shutdown(ctx)
	}
	return nil
}

func (h *HealthChecker) healthy() bool {
	h.mu.RLock()
	ready := h.ready
	h.mu.RUnlock()

	return ready && h.conn.HealthCheck().Connected && !h.guard.IsGlobalHalt()
}

func (h *HealthChecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.healthy() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("NOT_READY"))
	}
}

// handleStatus dumps broker health and guard state as JSON for operators
func (h *HealthChecker) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := struct {
		Healthy bool                `json:"healthy"`
		Broker  broker.HealthStatus `json:"broker"`
		Guard   guard.Status        `json:"guard"`
	}{
		Healthy: h.healthy(),
		Broker:  h.conn.HealthCheck(),
		Guard:   h.guard.Status(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode status", zap.Error(err))
	}
}
