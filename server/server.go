// Package server exposes the memory store to front ends over WebSocket:
// retrieval, background turn recording, listing and erasure as JSON
// frames, plus an HTTP health endpoint.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/becomeliminal/recall/memory"
)

// Config holds server dependencies and settings.
type Config struct {
	Store       *memory.Store
	Embedder    memory.Embedder
	Coordinator *memory.Coordinator
}

// Server serves the memory API over WebSocket.
type Server struct {
	store    *memory.Store
	embedder memory.Embedder
	coord    *memory.Coordinator
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// New creates a Server. Store and Embedder are required; Coordinator is
// required for record_turn support.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil || cfg.Embedder == nil {
		return nil, fmt.Errorf("store and embedder are required")
	}
	return &Server{
		store:    cfg.Store,
		embedder: cfg.Embedder,
		coord:    cfg.Coordinator,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// request is one inbound JSON frame.
type request struct {
	Op         string        `json:"op"`
	UserID     int           `json:"user_id"`
	Query      string        `json:"query,omitempty"`
	TopK       int           `json:"top_k,omitempty"`
	Categories []string      `json:"categories,omitempty"`
	IncludeOld *bool         `json:"include_old,omitempty"`
	Transcript []memory.Turn `json:"transcript,omitempty"`
}

// response is one outbound JSON frame.
type response struct {
	Op         string            `json:"op"`
	OK         bool              `json:"ok"`
	Error      string            `json:"error,omitempty"`
	Retrieved  []retrievedWire   `json:"retrieved,omitempty"`
	Memories   []memoryWire      `json:"memories,omitempty"`
	Categories []string          `json:"categories,omitempty"`
}

type retrievedWire struct {
	PointID    string   `json:"point_id"`
	Text       string   `json:"text"`
	Categories []string `json:"categories"`
	CreatedAt  string   `json:"created_at"`
	Score      float64  `json:"score"`
	IsCurrent  bool     `json:"is_current"`
}

type memoryWire struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Categories   []string `json:"categories"`
	CreatedAt    string   `json:"created_at"`
	IsCurrent    bool     `json:"is_current"`
	SupersededAt string   `json:"superseded_at,omitempty"`
}

// Handler returns the HTTP handler serving /ws and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[SERVER] Upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var req request
		if err := conn.ReadJSON(&req); err != nil {
			return // client gone or malformed frame
		}
		if err := conn.WriteJSON(s.dispatch(r.Context(), req)); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req request) response {
	resp := response{Op: req.Op, OK: true}

	if req.UserID == 0 {
		return response{Op: req.Op, Error: "user_id is required"}
	}

	switch req.Op {
	case "retrieve":
		vector, err := s.embedder.Embed(ctx, req.Query)
		if err != nil {
			return response{Op: req.Op, Error: fmt.Sprintf("embed query: %v", err)}
		}
		includeOld := memory.IsHistoricalQuery(req.Query)
		if req.IncludeOld != nil {
			includeOld = *req.IncludeOld
		}
		retrieved := s.store.Search(ctx, vector, req.UserID, memory.SearchOptions{
			TopK:       req.TopK,
			Categories: req.Categories,
			IncludeOld: includeOld,
		})
		for _, mem := range retrieved {
			resp.Retrieved = append(resp.Retrieved, retrievedWire{
				PointID:    mem.PointID,
				Text:       mem.Text,
				Categories: mem.Categories,
				CreatedAt:  mem.CreatedAt.Format(time.RFC3339),
				Score:      mem.Score,
				IsCurrent:  mem.IsCurrent,
			})
		}

	case "record_turn":
		if s.coord == nil {
			return response{Op: req.Op, Error: "background recording is not enabled"}
		}
		s.coord.Schedule(req.UserID, req.Transcript)

	case "list_memories":
		records, err := s.store.FetchAll(ctx, req.UserID)
		if err != nil {
			return response{Op: req.Op, Error: err.Error()}
		}
		for _, rec := range records {
			w := memoryWire{
				ID:         rec.ID,
				Text:       rec.Text,
				Categories: rec.Categories,
				CreatedAt:  rec.CreatedAt.Format(time.RFC3339),
				IsCurrent:  rec.IsCurrent,
			}
			if !rec.SupersededAt.IsZero() {
				w.SupersededAt = rec.SupersededAt.Format(time.RFC3339)
			}
			resp.Memories = append(resp.Memories, w)
		}

	case "list_categories":
		cats, err := s.store.ListCategories(ctx, req.UserID)
		if err != nil {
			return response{Op: req.Op, Error: err.Error()}
		}
		resp.Categories = cats

	case "erase":
		if err := s.store.DeleteAllForUser(ctx, req.UserID); err != nil {
			return response{Op: req.Op, Error: err.Error()}
		}

	default:
		return response{Op: req.Op, Error: fmt.Sprintf("unknown op %q", req.Op)}
	}

	return resp
}

// Run serves until Shutdown is called.
func (s *Server) Run(addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.Handler()}
	log.Printf("[SERVER] Listening on %s", addr)
	if err := s.httpSrv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains outstanding background
// memory writes so none are lost. The context bounds only the HTTP
// shutdown; the drain waits for every scheduled write regardless, since
// memory writes are irreversible user data.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	if s.coord != nil {
		for _, res := range s.coord.DrainAll(context.Background()) {
			if res.Err != nil {
				log.Printf("[SERVER] Background write for user %d failed: %v", res.UserID, res.Err)
			}
		}
	}
	return err
}
