package mockgateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hiveswarm/hive/internal/logging"
)

// HTTPConfig controls the debug-tap listener, adapted from the teacher's
// gateway HTTP listener (internal/gateway/listener.go HTTPConfig).
type HTTPConfig struct {
	ListenAddr    string
	EnableMetrics bool
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StartHTTP starts the debug-tap HTTP server in its own goroutine: a
// /ws endpoint streaming every relayed envelope as JSON, and an optional
// /metrics Prometheus scrape endpoint. Returns the *http.Server so the
// caller can Shutdown it.
func (g *Gateway) StartHTTP(cfg HTTPConfig) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWebSocket)
	if cfg.EnableMetrics {
		mux.Handle("/metrics", promhttp.Handler())
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logger().Warn("mockgateway: http listener error", zap.Error(err))
		}
	}()
	logging.Logger().Info("mockgateway: debug tap listening", zap.String("addr", cfg.ListenAddr))
	return srv
}

func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Logger().Warn("mockgateway: ws upgrade", zap.Error(err))
		return
	}
	ch, unregister := g.Subscribe()
	defer func() {
		unregister()
		_ = conn.Close()
	}()

	for buf := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, buf); err != nil {
			logging.Logger().Debug("mockgateway: ws write", zap.Error(err))
			return
		}
	}
}
