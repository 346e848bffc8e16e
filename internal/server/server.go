package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"ledremote/internal/core"
	"ledremote/internal/logging"
	"ledremote/internal/metrics"
)

// IndexFile is the root document served at "/".
const IndexFile = "index.html"

const maxMessageSize = 1024

// Dispatcher accepts commands decoded from the control channel. It must
// not block; false means the command was dropped.
type Dispatcher interface {
	Dispatch(cmd core.Command) bool
}

// Server manages the HTTP and WebSocket services.
type Server struct {
	Hub        *Hub
	dispatcher Dispatcher
	status     func() core.Snapshot
	metrics    *metrics.Metrics
	httpServer *http.Server
	listener   net.Listener
	log        *logrus.Entry

	staticFilesDir string
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewServer creates a server instance. status returns the state shown to
// newly connected clients and on /api/status.
func NewServer(hub *Hub, dispatcher Dispatcher, status func() core.Snapshot, m *metrics.Metrics, port string, staticFilesDir string, allowedOrigins []string) *Server {
	s := &Server{
		Hub:            hub,
		dispatcher:     dispatcher,
		status:         status,
		metrics:        m,
		log:            logging.For("server"),
		staticFilesDir: staticFilesDir,
		allowedOrigins: allowedOrigins,
	}

	if len(s.allowedOrigins) == 0 {
		s.log.Warn("WebSocket origin check is disabled")
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			s.log.WithField("origin", origin).Warn("WebSocket connection blocked: origin not in allowed list")
			return false
		},
	}

	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/api/status", s.handleStatus)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Handle("/*", http.FileServer(http.Dir(s.staticFilesDir)))
	return r
}

// Listen binds the HTTP port. Serve must be called afterwards.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.log.WithField("addr", ln.Addr().String()).Info("http server listening")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve handles requests on the listener bound by Listen until Shutdown.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server: Serve called before Listen")
	}
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully. A listener that was bound but
// never served is closed as well.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.listener != nil {
		if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
			err = cerr
		}
	}
	return err
}

var placeholder = regexp.MustCompile(`%([A-Za-z0-9_]+)%`)

// processor fills template placeholders in the root document. The page
// learns the real state over the WebSocket, so every placeholder renders
// as the idle value.
func processor(string) string {
	return "off"
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	page, err := os.ReadFile(filepath.Join(s.staticFilesDir, IndexFile))
	if err != nil {
		s.log.WithError(err).Error("cannot read root document")
		http.Error(w, "index not available", http.StatusInternalServerError)
		return
	}
	out := placeholder.ReplaceAllFunc(page, func(m []byte) []byte {
		return []byte(processor(string(m[1 : len(m)-1])))
	})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(out); err != nil {
		s.log.WithError(err).Debug("writing root document failed")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.status()
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(StatusResponse{
		Status:  snap.Color.String(),
		Primary: snap.Primary,
		Hex:     snap.Color.RGB().Hex(),
	})
	if err != nil {
		s.log.WithError(err).Debug("writing status failed")
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade error")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	c := s.Hub.newClient(conn, func() interface{} {
		return NewStatusMessage(s.status().Color)
	})
	if !s.Hub.add(c) {
		return
	}
	defer s.Hub.remove(conn)

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		// only complete text frames carry actions
		if kind != websocket.TextMessage {
			continue
		}
		s.handleMessage(data)
	}
}

func (s *Server) handleMessage(data []byte) {
	var msg ActionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.WithError(err).Warn("dropping malformed control message")
		if s.metrics != nil {
			s.metrics.WSMalformed.Inc()
		}
		return
	}
	s.log.WithField("action", msg.Action).Debug("control message")

	c, ok := core.ColorByName(msg.Action)
	if !ok {
		return
	}
	if !s.dispatcher.Dispatch(core.Command{Type: core.CmdToggle, Color: c, Source: core.SourceWS}) {
		s.log.WithField("action", msg.Action).Warn("command queue full, dropping action")
	}
}
