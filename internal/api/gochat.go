package api

import (
	"log"
	"net/http"
	"slices"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chathub/internal/auth"
	"github.com/npezzotti/go-chathub/internal/config"
	"github.com/npezzotti/go-chathub/internal/database"
	"github.com/npezzotti/go-chathub/internal/server"
)

type GoChatApp struct {
	log            *log.Logger
	db             database.ChatRepository
	srv            *http.Server
	cs             *server.ChatServer
	verifier       *auth.Verifier
	upgrader       websocket.Upgrader
	allowedOrigins []string
	historyLimit   int
}

func NewGoChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.ChatRepository, verifier *auth.Verifier, cfg *config.Config) *GoChatApp {
	s := &GoChatApp{
		log:            logger,
		db:             db,
		cs:             cs,
		verifier:       verifier,
		allowedOrigins: cfg.AllowedOrigins,
		historyLimit:   cfg.HistoryLimit,
	}

	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}

	mux.HandleFunc("GET /api/healthz", s.healthCheck)
	mux.Handle("GET /api/conversations", s.authMiddleware(s.getConversations))
	mux.Handle("GET /api/rooms/{id}/messages", s.authMiddleware(s.getRoomMessages))
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *GoChatApp) Handler() http.Handler {
	return s.srv.Handler
}
