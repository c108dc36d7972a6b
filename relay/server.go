package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/kwv/patroldash/dash"
)

const (
	// Outbound frames queued per client before it counts as slow.
	outboxSize   = 32
	writeTimeout = 3 * time.Second
	// Raw frames may carry base64 map images.
	readLimit = 64 << 20
)

// Server exposes the hub over HTTP.
type Server struct {
	hub       *Hub
	staticDir string
}

// NewServer creates a server for hub. staticDir may be empty.
func NewServer(hub *Hub, staticDir string) *Server {
	return &Server{hub: hub, staticDir: staticDir}
}

// Routes returns the relay router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/ping", s.handlePing)
	r.Get("/stats", s.handleStats)
	r.Get("/ws/realtime", s.handleWebsocket)
	if s.staticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(s.staticDir)))
		r.Handle("/static/*", fs)
	}
	return r
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.hub.Stats())
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Publishers and dashboards connect from anywhere on the robot LAN.
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[RELAY] Accept failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	conn.SetReadLimit(readLimit)

	id := uuid.NewString()[:8]
	out := make(chan []byte, outboxSize)
	if !s.hub.Post(Join{ID: id, Outbox: out}) {
		return
	}
	defer s.hub.Post(Leave{ID: id})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Writer goroutine. It ends when the hub closes the outbox.
	go func() {
		defer cancel()
		for frame := range out {
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, frame)
			wcancel()
			if err != nil {
				log.Printf("[RELAY] Write to %s failed: %v", id, err)
				return
			}
		}
	}()

	// Reader loop
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					log.Printf("[RELAY] Read from %s failed: %v", id, err)
				}
			}
			return
		}
		if !s.hub.Post(Inbound{From: id, Data: data}) {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Error encoding response: %v", err)
	}
}

// MapSize resolves the map image size from cfg. An explicit width and height
// win over the image file.
func MapSize(cfg dash.RelayConfig) (Size, error) {
	if cfg.MapWidth > 0 && cfg.MapHeight > 0 {
		return Size{Width: cfg.MapWidth, Height: cfg.MapHeight}, nil
	}
	if cfg.MapImage == "" {
		return Size{}, nil
	}
	return ImageSize(cfg.MapImage)
}

// ListenAndServe runs the relay until ctx is cancelled.
func ListenAndServe(ctx context.Context, cfg dash.RelayConfig) error {
	size, err := MapSize(cfg)
	if err != nil {
		return err
	}
	if !size.Valid() {
		log.Printf("[RELAY] No map size configured, robot_pose frames pass through unconverted")
	} else {
		log.Printf("[RELAY] Map image is %dx%d", size.Width, size.Height)
	}

	hub := NewHub(ctx, size)
	defer hub.Shutdown()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: NewServer(hub, cfg.StaticDir).Routes(),
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("[RELAY] Listening on :%d", cfg.Port)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("relay server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
