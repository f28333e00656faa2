package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/npezzotti/go-chathub/internal/auth"
	"github.com/npezzotti/go-chathub/internal/config"
	"github.com/npezzotti/go-chathub/internal/database"
	"github.com/npezzotti/go-chathub/internal/server"
	"github.com/npezzotti/go-chathub/internal/stats"
	"github.com/npezzotti/go-chathub/internal/testutil"
	"github.com/stretchr/testify/mock"
)

var (
	testSigningKey = []byte("test-signing-key")

	alice = database.User{Id: "alice", FirstName: "Alice", LastName: "Smith", IsEmailVerified: true}
	bob   = database.User{Id: "bob", FirstName: "Bob", LastName: "Jones", IsEmailVerified: true}
	carol = database.User{Id: "carol", FirstName: "Carol", IsEmailVerified: true}
)

func newTestApp(t *testing.T, db database.ChatRepository) *GoChatApp {
	su := new(stats.MockStatsUpdater).AllowUpdates()
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(4)

	logger := testutil.TestLogger(t)
	cs, err := server.NewChatServer(logger, db, su, server.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to create chat server: %v", err)
	}

	cfg := &config.Config{
		ServerAddr:     "localhost:0",
		AllowedOrigins: []string{"http://localhost:3000"},
		HistoryLimit:   100,
	}

	return NewGoChatApp(http.NewServeMux(), logger, cs, db, auth.NewVerifier(testSigningKey, db), cfg)
}

func newMemoryRepo(users ...database.User) *database.MemoryChatRepository {
	db := database.NewMemoryChatRepository()
	for _, u := range users {
		db.AddUser(u)
	}
	return db
}

func tokenFor(t *testing.T, u database.User) string {
	return testutil.SignToken(t, testSigningKey, u.Id, time.Hour)
}
