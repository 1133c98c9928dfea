package main

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/coordinator"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/platform/local"
)

const (
	keyHeader      = "X-LG-Key"
	adminKeyHeader = "X-LG-Admin-Key"
)

// HTTPServer exposes the game over HTTP: read-only JSON views for the game
// master and a websocket per member for commands and notices.
type HTTPServer struct {
	coord    *coordinator.Coordinator
	router   *CommandRouter
	guild    *local.Guild
	upgrader websocket.Upgrader
}

func NewHTTPServer(coord *coordinator.Coordinator, router *CommandRouter, guild *local.Guild) *HTTPServer {
	return &HTTPServer{
		coord:  coord,
		router: router,
		guild:  guild,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router is shared by the relay listener and the local listener.
func (s *HTTPServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAdminKey)
		r.Get("/state", s.handleState)
		r.Get("/votes", s.handleVotes)
	})
	r.Get("/ws", s.handleWebSocket)
	return r
}

// hasKey reports whether r carries want in header. An empty want never
// matches.
func hasKey(r *http.Request, header, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(r.Header.Get(header)), []byte(want)) == 1
}

func (s *HTTPServer) requireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !hasKey(r, adminKeyHeader, s.coord.Config().HTTP.AdminKey) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handleState(w http.ResponseWriter, r *http.Request) {
	status, err := s.coord.Status(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("[http] load status")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeHTTPJSON(w, status)
}

func (s *HTTPServer) handleVotes(w http.ResponseWriter, r *http.Request) {
	status, err := s.coord.Status(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("[http] load votes")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeHTTPJSON(w, status.Sessions)
}

func (s *HTTPServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	member := r.URL.Query().Get("member")
	if member == "" {
		http.Error(w, "missing member", http.StatusBadRequest)
		return
	}
	cfg := s.coord.Config()
	if cfg.HTTP.AuthKey != "" && !hasKey(r, keyHeader, cfg.HTTP.AuthKey) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	// Admin names are only honoured with the admin key; anyone can type one.
	if cfg.IsAdmin(member) && !hasKey(r, adminKeyHeader, cfg.HTTP.AdminKey) {
		log.Warn().Str("member", member).Msg("[ws] admin connection without admin key")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if s.guild.Join(member, cfg.Guild.AliveRole) {
		log.Info().Str("member", member).Msg("[ws] new player joined")
	}
	// Subscribe before the handshake completes so nothing sent after it is
	// missed.
	deliveries, cancel := s.guild.Subscribe(sendBufferSize)
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("[ws] upgrade websocket")
		return
	}

	client := NewClient(member, conn, s.router, s.guild)
	go client.forward(deliveries)
	go client.writeLoop()
	client.readLoop(r.Context())
}

func writeHTTPJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		log.Debug().Err(err).Msg("[http] write json")
	}
}
