package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sigwatch/sigwatch-monitor/pkg/goplus"
	"github.com/sigwatch/sigwatch-monitor/pkg/logger"
)

// PublisherRef NATS发布器引用
type PublisherRef interface {
	IsConnected() bool
}

// EvaluatorRef 评估器引用
type EvaluatorRef interface {
	LastCycleAt() time.Time
	SignalCount() int
}

// HealthServer 健康检查与指标服务
type HealthServer struct {
	srv       *http.Server
	publisher PublisherRef
	evaluator EvaluatorRef
	startedAt time.Time
}

// NewHealthServer 创建健康检查服务
func NewHealthServer(addr string, publisher PublisherRef, evaluator EvaluatorRef) *HealthServer {
	h := &HealthServer{
		publisher: publisher,
		evaluator: evaluator,
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/health/ready", h.handleReady)
	mux.HandleFunc("/health/live", h.handleLive)
	mux.HandleFunc("/status", h.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())

	h.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return h
}

// Start 启动服务
func (h *HealthServer) Start() {
	goplus.Go(func() {
		logger.Info().Str("addr", h.srv.Addr).Msg("health server started")
		if err := h.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("health server exited")
		}
	})
}

// Stop 停止服务
func (h *HealthServer) Stop(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.startedAt).String(),
	})
}

func (h *HealthServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	ready := h.publisher == nil || h.publisher.IsConnected()
	code := http.StatusOK
	status := "ready"
	if !ready {
		code = http.StatusServiceUnavailable
		status = "not_ready"
	}
	h.writeJSON(w, code, map[string]interface{}{"status": status})
}

func (h *HealthServer) handleLive(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "alive"})
}

func (h *HealthServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]interface{}{
		"uptime":     time.Since(h.startedAt).String(),
		"started_at": h.startedAt.Format(time.RFC3339),
	}
	if h.publisher != nil {
		resp["nats_connected"] = h.publisher.IsConnected()
	}
	if h.evaluator != nil {
		resp["signal_count"] = h.evaluator.SignalCount()
		if t := h.evaluator.LastCycleAt(); !t.IsZero() {
			resp["last_cycle_at"] = t.Format(time.RFC3339)
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *HealthServer) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("write health response failed")
	}
}
