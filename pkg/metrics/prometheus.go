package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dvmproject-go/dvmhost/pkg/logger"
)

// PrometheusConfig holds Prometheus server configuration
type PrometheusConfig struct {
	Enabled bool
	Port    int
	Path    string
}

// PrometheusHandler handles Prometheus metrics HTTP requests
type PrometheusHandler struct {
	collector *Collector
}

// NewPrometheusHandler creates a new Prometheus handler
func NewPrometheusHandler(collector *Collector) *PrometheusHandler {
	return &PrometheusHandler{
		collector: collector,
	}
}

// ServeHTTP handles HTTP requests for metrics
func (h *PrometheusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	var output strings.Builder

	// FNE session metrics
	output.WriteString("# HELP dvmhost_sessions_total Total number of FNE sessions established\n")
	output.WriteString("# TYPE dvmhost_sessions_total counter\n")
	output.WriteString(fmt.Sprintf("dvmhost_sessions_total %d\n", h.collector.GetTotalSessions()))

	output.WriteString("# HELP dvmhost_sessions_active Number of currently logged-in FNE sessions\n")
	output.WriteString("# TYPE dvmhost_sessions_active gauge\n")
	output.WriteString(fmt.Sprintf("dvmhost_sessions_active %d\n", h.collector.GetActiveSessions()))

	// Modem frame metrics
	output.WriteString("# HELP dvmhost_frames_received_total Total frames received from the modem\n")
	output.WriteString("# TYPE dvmhost_frames_received_total counter\n")
	output.WriteString(fmt.Sprintf("dvmhost_frames_received_total %d\n", h.collector.GetFramesReceived()))

	output.WriteString("# HELP dvmhost_frames_sent_total Total frames sent to the modem\n")
	output.WriteString("# TYPE dvmhost_frames_sent_total counter\n")
	output.WriteString(fmt.Sprintf("dvmhost_frames_sent_total %d\n", h.collector.GetFramesSent()))

	// Byte metrics
	output.WriteString("# HELP dvmhost_bytes_received_total Total bytes received over the modem link\n")
	output.WriteString("# TYPE dvmhost_bytes_received_total counter\n")
	output.WriteString(fmt.Sprintf("dvmhost_bytes_received_total %d\n", h.collector.GetBytesReceived()))

	output.WriteString("# HELP dvmhost_bytes_sent_total Total bytes sent over the modem link\n")
	output.WriteString("# TYPE dvmhost_bytes_sent_total counter\n")
	output.WriteString(fmt.Sprintf("dvmhost_bytes_sent_total %d\n", h.collector.GetBytesSent()))

	// Call metrics
	output.WriteString("# HELP dvmhost_calls_total Total calls started across all protocols\n")
	output.WriteString("# TYPE dvmhost_calls_total counter\n")
	output.WriteString(fmt.Sprintf("dvmhost_calls_total %d\n", h.collector.GetCallsTotal()))

	output.WriteString("# HELP dvmhost_calls_active Number of calls currently in progress\n")
	output.WriteString("# TYPE dvmhost_calls_active gauge\n")
	output.WriteString(fmt.Sprintf("dvmhost_calls_active %d\n", h.collector.GetActiveCalls()))

	// Grant/loss metrics
	output.WriteString("# HELP dvmhost_grants_denied_total Total grant requests denied\n")
	output.WriteString("# TYPE dvmhost_grants_denied_total counter\n")
	output.WriteString(fmt.Sprintf("dvmhost_grants_denied_total %d\n", h.collector.GetGrantsDenied()))

	output.WriteString("# HELP dvmhost_frames_lost_total Total modem frame-loss indications\n")
	output.WriteString("# TYPE dvmhost_frames_lost_total counter\n")
	output.WriteString(fmt.Sprintf("dvmhost_frames_lost_total %d\n", h.collector.GetFramesLost()))

	w.Write([]byte(output.String()))
}

// PrometheusServer is an HTTP server for Prometheus metrics
type PrometheusServer struct {
	config    PrometheusConfig
	collector *Collector
	log       *logger.Logger
	server    *http.Server
}

// NewPrometheusServer creates a new Prometheus metrics server
func NewPrometheusServer(config PrometheusConfig, collector *Collector, log *logger.Logger) *PrometheusServer {
	if log == nil {
		log = logger.New(logger.Config{Level: "info", Format: "text"})
	}

	return &PrometheusServer{
		config:    config,
		collector: collector,
		log:       log.WithComponent("metrics"),
	}
}

// Start starts the Prometheus metrics server
func (s *PrometheusServer) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("Prometheus metrics server disabled")
		return nil
	}

	handler := NewPrometheusHandler(s.collector)
	mux := http.NewServeMux()
	mux.Handle(s.config.Path, handler)

	// Use a listener to get the actual port (useful for testing with port 0)
	addr := fmt.Sprintf(":%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	actualPort := listener.Addr().(*net.TCPAddr).Port

	s.server = &http.Server{
		Handler: mux,
	}

	s.log.Info("Starting Prometheus metrics server",
		logger.Int("port", actualPort),
		logger.String("path", s.config.Path))

	// Start server
	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.log.Info("Shutting down Prometheus metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown error: %w", err)
		}
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}

// Stop stops the Prometheus metrics server
func (s *PrometheusServer) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctx)
	}
}
