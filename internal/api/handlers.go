package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chathub/internal/auth"
	"github.com/npezzotti/go-chathub/internal/server"
	"github.com/npezzotti/go-chathub/internal/types"
)

const closeWait = time.Second

func (s *GoChatApp) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *GoChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.cs.StoreContext(r.Context())
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.log.Printf("health check: %v", err)
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *GoChatApp) getConversations(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		errResp := NewUnauthorizedError(auth.ErrMissingToken)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ctx, cancel := s.cs.StoreContext(r.Context())
	defer cancel()

	conversations, err := s.cs.Conversations(ctx, user.Id)
	if err != nil {
		s.log.Printf("list conversations for %q: %v", user.Id, err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if conversations == nil {
		conversations = []types.ConversationView{}
	}

	s.writeJson(w, http.StatusOK, conversations)
}

// getRoomMessages returns a room's history, newest first. Rooms the caller
// does not participate in are reported as missing.
func (s *GoChatApp) getRoomMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		errResp := NewUnauthorizedError(auth.ErrMissingToken)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	limit := s.historyLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		limit = min(n, s.historyLimit)
	}

	ctx, cancel := s.cs.StoreContext(r.Context())
	defer cancel()

	room, err := s.db.GetRoom(ctx, r.PathValue("id"))
	if err != nil {
		errResp := storeError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !room.ToType().HasParticipant(user.Id) {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	history, err := s.db.RoomMessages(ctx, room.Id, limit)
	if err != nil {
		s.log.Printf("messages for room %q: %v", room.Id, err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages := make([]types.Message, 0, len(history))
	for _, msg := range history {
		messages = append(messages, msg.ToType())
	}

	s.writeJson(w, http.StatusOK, messages)
}

// serveWs upgrades first so that authentication failures can be reported as
// an error envelope before the socket is closed.
func (s *GoChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	ctx, cancel := s.cs.StoreContext(r.Context())
	defer cancel()

	user, err := s.verifier.Verify(ctx, token)
	if err != nil {
		s.log.Printf("rejecting websocket connection: %v", err)
		s.reject(conn, server.ErrAuth(auth.Message(err), err))
		return
	}

	client := server.NewClient(user, conn, s.cs, s.log)
	if err := s.cs.Register(client); err != nil {
		s.log.Printf("rejecting websocket connection: %v", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(closeWait))
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}

func (s *GoChatApp) reject(conn *websocket.Conn, herr *server.HubError) {
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(closeWait))
	if err := conn.WriteJSON(herr.Event()); err != nil {
		s.log.Printf("write auth error: %v", err)
		return
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, herr.Message),
		time.Now().Add(closeWait))
}
