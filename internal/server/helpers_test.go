package server

import (
	"testing"
	"time"

	"github.com/npezzotti/go-chathub/internal/database"
	"github.com/npezzotti/go-chathub/internal/stats"
	"github.com/npezzotti/go-chathub/internal/testutil"
	"github.com/stretchr/testify/mock"
)

var (
	alice = database.User{Id: "alice", FirstName: "Alice", LastName: "Smith", ProfilePhoto: "alice.png", IsEmailVerified: true}
	bob   = database.User{Id: "bob", FirstName: "Bob", LastName: "Jones", IsEmailVerified: true}
	carol = database.User{Id: "carol", FirstName: "Carol", IsEmailVerified: true}
)

// newTestChatServer creates a new ChatServer instance for testing purposes
func newTestChatServer(t *testing.T, db database.ChatRepository, su *stats.MockStatsUpdater) *ChatServer {
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(4)

	logger := testutil.TestLogger(t)
	cs, err := NewChatServer(logger, db, su, DefaultOptions())
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	return cs
}

// newTestStats accepts any counter update.
func newTestStats() *stats.MockStatsUpdater {
	return new(stats.MockStatsUpdater).AllowUpdates()
}

func newMemoryRepo(users ...database.User) *database.MemoryChatRepository {
	db := database.NewMemoryChatRepository()
	for _, u := range users {
		db.AddUser(u)
	}
	return db
}

// connect registers a connection without a socket and drains the initial
// conversation-list.
func connect(t *testing.T, cs *ChatServer, u database.User) *Client {
	t.Helper()

	c := NewClient(u.Identity(), nil, cs, cs.log)
	if err := cs.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, ok := receive(t, c).(*ConversationList); !ok {
		t.Fatal("expected initial conversation-list")
	}
	return c
}

func send(cs *ChatServer, c *Client, raw string) {
	cs.dispatch(c, []byte(raw))
}

func receive(t *testing.T, c *Client) ServerMessage {
	t.Helper()

	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("expected a message for connection of %q", c.user.Id)
	}
	return nil
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()

	select {
	case msg := <-c.send:
		t.Errorf("expected no message for connection of %q, got %#v", c.user.Id, msg)
	default:
	}
}

func receiveError(t *testing.T, c *Client) string {
	t.Helper()

	msg := receive(t, c)
	e, ok := msg.(*Error)
	if !ok {
		t.Fatalf("expected error envelope, got %#v", msg)
	}
	return e.Message
}
