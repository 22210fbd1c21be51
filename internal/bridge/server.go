// Package bridge exposes the sync engine to the browser editing surface.
//
// The UI is an external collaborator: it renders the plan grid, captures
// rich-text edits, and reflects the canonical navigation triple in the URL.
// This server is the contract between the two sides: a small JSON API for
// navigation, edits, and saves, plus a WebSocket stream that pushes the
// engine's advisory notices (remote saved / not synced / remote down) so the
// UI can toast them.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/colegioprep/prepsync/internal/calendar"
	"github.com/colegioprep/prepsync/internal/engine"
)

// Message is one WebSocket frame pushed to the UI.
type Message struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Config holds server configuration.
type Config struct {
	// Addr to listen on, e.g. "127.0.0.1:8787".
	Addr string

	// Logger for server activity (default: stderr logger).
	Logger *log.Logger
}

// Server is the HTTP + WebSocket collaborator surface.
type Server struct {
	eng    *engine.Engine
	addr   string
	logger *log.Logger

	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex
	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a bridge server over an engine.
func NewServer(eng *engine.Engine, config *Config) *Server {
	if config == nil {
		config = &Config{}
	}
	if config.Addr == "" {
		config.Addr = "127.0.0.1:8787"
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		eng:       eng,
		addr:      config.Addr,
		logger:    config.Logger,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Handler returns the HTTP handler, also used directly by tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/plan", s.handlePlan)
	mux.HandleFunc("POST /api/plan/edit", s.handleEdit)
	mux.HandleFunc("POST /api/plan/save", s.handleSave)
	mux.HandleFunc("GET /api/weeks", s.handleWeeks)
	mux.HandleFunc("GET /api/share", s.handleShare)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// Start begins serving and pumping engine notices to clients.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.wg.Add(2)
	go s.broadcastLoop()
	go s.noticeLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Bridge listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()
	s.logger.Println("Bridge stopped")
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// noticeLoop forwards engine notices to connected clients.
func (s *Server) noticeLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case n := <-s.eng.Notices():
			data, err := json.Marshal(n)
			if err != nil {
				s.logger.Printf("Failed to marshal notice: %v", err)
				continue
			}
			s.Broadcast(Message{Type: string(n.Kind), Timestamp: n.Time, Data: data})
		}
	}
}

// Broadcast queues a message for every connected client.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()

	go s.readLoop(conn)
}

// readLoop keeps the connection alive; client frames are ignored.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		s.clientsMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	s.clientsMu.Unlock()
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// handlePlan navigates to (term, class, week) and returns the hydrated
// record with its canonical triple. Week defaults to the current week when
// omitted, matching the sheet's opening behavior.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	term := q.Get("term")
	if term == "" {
		term = "1"
	}
	className := q.Get("class")
	week := q.Get("week")
	if week == "" {
		week = calendar.ISODate(calendar.MondayOf(time.Now()))
	}

	nav, err := s.eng.Navigate(r.Context(), term, className, week)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, nav)
}

type editRequest struct {
	Row   int    `json:"row"`
	Field string `json:"field"`
	Text  string `json:"text"`
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed edit request: %w", err))
		return
	}

	ref := engine.FieldRef{Row: req.Row, Field: engine.Field(req.Field)}
	if err := s.eng.ApplyFieldEdit(ref, req.Text); err != nil {
		if errors.Is(err, engine.ErrUnknownField) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "dirty": s.eng.DirtyCount()})
}

// handleSave reports the local write result; the remote outcome arrives on
// the WebSocket stream as its own notice.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Save(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "key": s.eng.CurrentKey()})
}

// handleWeeks returns the week-picker options for a month.
func (s *Server) handleWeeks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := time.Now()

	year := now.Year()
	if v := q.Get("year"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid year %q", v))
			return
		}
		year = parsed
	}

	month := now.Month()
	if v := q.Get("month"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 12 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid month %q", v))
			return
		}
		month = time.Month(parsed)
	}

	type weekOption struct {
		WeekStart string `json:"weekStart"`
		Label     string `json:"label"`
	}
	var options []weekOption
	for _, wr := range calendar.BusinessWeeksOfMonth(year, month) {
		options = append(options, weekOption{
			WeekStart: calendar.ISODate(wr.Monday),
			Label:     wr.Label,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": year, "month": int(month), "weeks": options})
}

// handleShare builds the read-only view link for the active record, which
// the UI wraps into its outbound share message.
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	rec := s.eng.Active()
	if rec == nil {
		writeError(w, http.StatusConflict, fmt.Errorf("no active record: navigate to a week first"))
		return
	}

	base := r.URL.Query().Get("base")
	if base == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("base parameter is required"))
		return
	}

	params := url.Values{
		"term":  {rec.Term},
		"class": {rec.ClassName},
		"week":  {rec.WeekStart},
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"link": base + "view.html?" + params.Encode(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
		"key":     s.eng.CurrentKey(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"ok": false, "error": err.Error()})
}
