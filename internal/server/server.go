package server

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	"spriteloop-go/internal/config"
	"spriteloop-go/internal/types"
)

//go:embed web/*
var webFS embed.FS

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

// Hooks connects the server to the session controller without importing it.
type Hooks struct {
	ConfigFn      func() map[string]any
	StatusFn      func() map[string]any
	SnapshotFn    func() *types.FramePush
	ViewModeFn    func(mode string) error
	InterpolateFn func(enable bool)
	ResetFn       func()
	LayoutFn      func(containerW, containerH float64) (types.OverlayUpdate, error)
	ExportGIFFn   func(w http.ResponseWriter) error
}

type Server struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]*sync.Mutex
	mu       sync.Mutex
	cfg      config.AppConfig
	hooks    Hooks
}

// Run serves the web UI and streams pipeline output to websocket clients
// until ctx is cancelled.
func Run(ctx context.Context, cfg config.AppConfig, messages <-chan any, hooks Hooks) error {
	srv := &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*sync.Mutex),
		cfg:     cfg,
		hooks:   hooks,
	}

	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(sub)))
	mux.HandleFunc("/ws", srv.handleWS)
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/config", srv.handleConfig)
	mux.HandleFunc("/status", srv.handleStatus)
	mux.HandleFunc("/export.gif", srv.handleExportGIF)

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	go srv.broadcast(ctx, messages)

	return httpServer.ListenAndServe()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.mu.Lock()
	writeMu := &sync.Mutex{}
	s.clients[conn] = writeMu
	s.mu.Unlock()

	if s.hooks.ConfigFn != nil {
		if cfg := s.hooks.ConfigFn(); cfg != nil {
			_ = s.writeJSON(conn, writeMu, cfg)
		}
	}
	if s.hooks.SnapshotFn != nil {
		if push := s.hooks.SnapshotFn(); push != nil {
			if payload, err := cbor.Marshal(push); err == nil {
				_ = s.writeMessage(conn, writeMu, websocket.BinaryMessage, payload)
			}
		}
	}

	go func() {
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(pingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if err := s.writeMessage(conn, writeMu, websocket.PingMessage, nil); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()
		defer close(done)
		defer s.removeClient(conn)
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			var request map[string]any
			if err := json.Unmarshal(payload, &request); err != nil {
				continue
			}
			s.handleRequest(conn, writeMu, request)
		}
	}()
}

func (s *Server) handleRequest(conn *websocket.Conn, writeMu *sync.Mutex, request map[string]any) {
	kind, _ := request["type"].(string)
	switch kind {
	case "snapshot_request":
		if s.hooks.SnapshotFn == nil {
			return
		}
		push := s.hooks.SnapshotFn()
		if push == nil {
			return
		}
		if payload, err := cbor.Marshal(push); err == nil {
			_ = s.writeMessage(conn, writeMu, websocket.BinaryMessage, payload)
		}
	case "view_mode":
		mode, _ := request["mode"].(string)
		if s.hooks.ViewModeFn != nil {
			if err := s.hooks.ViewModeFn(mode); err != nil {
				_ = s.writeJSON(conn, writeMu, map[string]any{"type": "error", "message": err.Error()})
			}
		}
	case "interpolate":
		enable, _ := request["enable"].(bool)
		if s.hooks.InterpolateFn != nil {
			s.hooks.InterpolateFn(enable)
		}
	case "reset":
		if s.hooks.ResetFn != nil {
			s.hooks.ResetFn()
		}
	case "layout":
		width, _ := toFloat(request["width"])
		height, _ := toFloat(request["height"])
		if s.hooks.LayoutFn == nil {
			return
		}
		update, err := s.hooks.LayoutFn(width, height)
		if err != nil {
			// Geometry not available yet; the client retries on its next
			// resize, nothing to report.
			return
		}
		_ = s.writeJSON(conn, writeMu, update)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{
		"port":        s.cfg.Port,
		"frame_count": s.cfg.FrameCount,
		"endpoint":    s.cfg.Endpoint,
		"debug":       s.cfg.Debug,
	}
	if s.hooks.ConfigFn != nil {
		if cfg := s.hooks.ConfigFn(); cfg != nil {
			for k, v := range cfg {
				payload[k] = v
			}
		}
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{}
	if s.hooks.StatusFn != nil {
		payload = s.hooks.StatusFn()
	}
	payload["ws_clients"] = s.clientCount()
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleExportGIF(w http.ResponseWriter, _ *http.Request) {
	if s.hooks.ExportGIFFn == nil {
		http.Error(w, "export unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Content-Disposition", "attachment; filename=spriteloop.gif")
	if err := s.hooks.ExportGIFFn(w); err != nil {
		http.Error(w, fmt.Sprintf("export failed: %v", err), http.StatusConflict)
	}
}

// broadcast fans pipeline messages out to all clients: frame pushes as
// binary CBOR, everything else as JSON text.
func (s *Server) broadcast(ctx context.Context, messages <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-messages:
			if !ok {
				return
			}
			messageType := websocket.TextMessage
			var payload []byte
			var err error
			if push, isPush := message.(types.FramePush); isPush {
				messageType = websocket.BinaryMessage
				payload, err = cbor.Marshal(push)
			} else {
				payload, err = json.Marshal(message)
			}
			if err != nil {
				continue
			}

			var stale []*websocket.Conn
			s.mu.Lock()
			for conn, writeMu := range s.clients {
				if err := s.writeMessage(conn, writeMu, messageType, payload); err != nil {
					stale = append(stale, conn)
				}
			}
			s.mu.Unlock()
			for _, conn := range stale {
				s.removeClient(conn)
			}
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) writeJSON(conn *websocket.Conn, writeMu *sync.Mutex, payload any) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(payload)
}

func (s *Server) writeMessage(conn *websocket.Conn, writeMu *sync.Mutex, messageType int, payload []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
