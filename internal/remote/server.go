// Package remote exposes a DocumentStore over HTTP and websockets so that
// several machines can share one board database, and provides a client
// that implements DocumentStore against such a relay.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/nhle/kanban-board/internal/model"
	"github.com/nhle/kanban-board/internal/store"
)

// maxBodySize caps write requests.
const maxBodySize = 8 << 20

type writeRequest struct {
	Data  map[string]any `json:"data"`
	Merge bool           `json:"merge"`
}

type readResponse struct {
	Data map[string]any `json:"data"`
}

type historyResponse struct {
	Cards []model.HistoricalCard `json:"cards"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server serves documents from a store.
type Server struct {
	docs     store.DocumentStore
	history  store.HistoryStore
	hub      *Hub
	log      *slog.Logger
	upgrader websocket.Upgrader
	origins  []string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAllowedOrigins sets the origins allowed by CORS and by websocket
// upgrades. The default allows any origin.
func WithAllowedOrigins(origins ...string) ServerOption {
	return func(s *Server) { s.origins = origins }
}

// WithHistory serves historical card records from h. Without it the
// history routes answer 501.
func WithHistory(h store.HistoryStore) ServerOption {
	return func(s *Server) { s.history = h }
}

// WithServerLogger sets the logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// NewServer creates a relay for docs. The hub must be running.
func NewServer(docs store.DocumentStore, hub *Hub, opts ...ServerOption) *Server {
	s := &Server{
		docs:    docs,
		hub:     hub,
		log:     slog.Default(),
		origins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the relay's HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	r.HandleFunc("/api/docs/{path:.+}", s.handleRead).Methods(http.MethodGet)
	r.HandleFunc("/api/docs/{path:.+}", s.handleWrite).Methods(http.MethodPut)
	r.HandleFunc("/api/history/{owner}/{board}", s.handleListHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/history/{owner}/{board}/{card}", s.handleSaveHistory).Methods(http.MethodPut)
	r.HandleFunc("/api/history/{owner}/{board}/{card}", s.handleDeleteHistory).Methods(http.MethodDelete)
	r.HandleFunc("/api/watch", s.handleWatch).Methods(http.MethodGet).Queries("path", "{path}")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]

	data, err := s.docs.Read(r.Context(), path)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		s.log.Error("reading document", "path", path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "read failed"})
		return
	}
	writeJSON(w, http.StatusOK, readResponse{Data: data})
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]

	var req writeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Data == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing data"})
		return
	}

	if err := s.docs.Write(r.Context(), path, req.Data, store.WriteOptions{Merge: req.Merge}); err != nil {
		s.log.Error("writing document", "path", path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "write failed"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) historyEnabled(w http.ResponseWriter) bool {
	if s.history == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "history is not enabled"})
		return false
	}
	return true
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w) {
		return
	}
	vars := mux.Vars(r)

	cards, err := s.history.ListHistorical(r.Context(), vars["owner"], vars["board"])
	if err != nil {
		s.log.Error("listing history", "owner", vars["owner"], "board", vars["board"], "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "list failed"})
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Cards: cards})
}

func (s *Server) handleSaveHistory(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w) {
		return
	}
	vars := mux.Vars(r)

	var card model.HistoricalCard
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&card); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if card.OwnerID != vars["owner"] || card.BoardID != vars["board"] || card.ID != vars["card"] {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "record does not match its path"})
		return
	}

	if err := s.history.SaveHistorical(r.Context(), card); err != nil {
		s.log.Error("saving history", "card", card.ID, "board", card.BoardID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "save failed"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w) {
		return
	}
	vars := mux.Vars(r)

	if err := s.history.DeleteHistorical(r.Context(), vars["owner"], vars["board"], vars["card"]); err != nil {
		s.log.Error("deleting history", "card", vars["card"], "board", vars["board"], "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "delete failed"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrading watch connection", "path", path, "error", err)
		return
	}

	c := &watchConn{hub: s.hub, conn: conn, path: path, send: make(chan []byte, sendBuffer)}
	s.hub.Register(c)
	go c.writePump()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	unsubscribe, err := s.docs.Subscribe(ctx, path, c.push)
	if err != nil {
		s.log.Error("subscribing watch connection", "path", path, "error", err)
		payload, _ := json.Marshal(Message{Type: MessageError, Error: "subscribe failed"})
		s.hub.deliver(c, payload)
		s.hub.Unregister(c)
		return
	}
	defer unsubscribe()

	c.readPump()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
