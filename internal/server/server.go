package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-chathub/internal/config"
	"github.com/npezzotti/go-chathub/internal/database"
	"github.com/npezzotti/go-chathub/internal/stats"
)

var (
	ErrShuttingDown      = errors.New("chat server is shutting down")
	ErrAlreadyRegistered = errors.New("connection already registered")
)

type Options struct {
	StoreTimeout      time.Duration
	HistoryLimit      int
	MaxMessageSize    int64
	PingInterval      time.Duration
	PongWait          time.Duration
	RateLimitBurst    int
	RateLimitInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		StoreTimeout:      5 * time.Second,
		HistoryLimit:      100,
		MaxMessageSize:    4096,
		PingInterval:      30 * time.Second,
		PongWait:          60 * time.Second,
		RateLimitBurst:    20,
		RateLimitInterval: 100 * time.Millisecond,
	}
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		StoreTimeout:      cfg.StoreTimeout,
		HistoryLimit:      cfg.HistoryLimit,
		MaxMessageSize:    cfg.MaxMessageSize,
		PingInterval:      cfg.PingInterval,
		PongWait:          cfg.PongWait,
		RateLimitBurst:    cfg.RateLimitBurst,
		RateLimitInterval: cfg.RateLimitInterval,
	}
}

type ChatServer struct {
	log          *log.Logger
	db           database.ChatRepository
	stats        stats.StatsProvider
	opts         Options
	registry     *Registry
	presence     Presence
	wg           sync.WaitGroup
	mu           sync.Mutex
	shuttingDown bool
}

func NewChatServer(logger *log.Logger, db database.ChatRepository, su stats.StatsProvider, opts Options) (*ChatServer, error) {
	if db == nil {
		return nil, errors.New("chat repository is required")
	}
	if su == nil {
		return nil, errors.New("stats provider is required")
	}

	su.RegisterMetric(stats.NumActiveClients)
	su.RegisterMetric(stats.NumActiveUsers)
	su.RegisterMetric(stats.NumActiveRooms)
	su.RegisterMetric(stats.NumMessagesSent)

	registry := NewRegistry(su)

	return &ChatServer{
		log:      logger,
		db:       db,
		stats:    su,
		opts:     opts,
		registry: registry,
		presence: registry,
	}, nil
}

func (cs *ChatServer) Registry() *Registry {
	return cs.registry
}

// Register admits an authenticated connection and queues its initial
// conversation-list. The caller starts the client's pumps afterwards.
func (cs *ChatServer) Register(c *Client) error {
	cs.mu.Lock()
	if cs.shuttingDown {
		cs.mu.Unlock()
		return ErrShuttingDown
	}
	cs.wg.Add(1)
	cs.mu.Unlock()

	if _, err := cs.registry.Register(c); err != nil {
		cs.wg.Done()
		return err
	}
	cs.log.Printf("registered connection %s for user %q", c.id, c.user.Id)

	cs.mu.Lock()
	stopping := cs.shuttingDown
	cs.mu.Unlock()
	if stopping {
		c.stopClient()
		return nil
	}

	ctx, cancel := cs.storeContext()
	defer cancel()

	conversations, err := cs.Conversations(ctx, c.user.Id)
	if err != nil {
		cs.log.Printf("initial conversation list for user %q: %v", c.user.Id, err)
		c.queueMessage(ErrPersistence(err).Event())
		return nil
	}

	c.queueMessage(NewConversationList(conversations))

	return nil
}

// Unregister removes the connection from every index. Only the first call
// for a connection has any effect.
func (cs *ChatServer) Unregister(c *Client) {
	if !cs.registry.Unregister(c) {
		return
	}

	cs.log.Printf("unregistered connection %s for user %q", c.id, c.user.Id)
	cs.wg.Done()
}

// Shutdown stops every connection and waits for their pumps to unregister
// them, or for ctx to expire.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	cs.mu.Lock()
	cs.shuttingDown = true
	cs.mu.Unlock()

	for _, c := range cs.registry.Clients() {
		c.stopClient()
	}

	done := make(chan struct{})
	go func() {
		cs.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StoreContext bounds a persistence call by the configured store timeout.
func (cs *ChatServer) StoreContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, cs.opts.StoreTimeout)
}

func (cs *ChatServer) storeContext() (context.Context, context.CancelFunc) {
	return cs.StoreContext(context.Background())
}

func (cs *ChatServer) sendToUser(userId string, msg ServerMessage, skip *Client) {
	for _, c := range cs.registry.ClientsForUser(userId) {
		if c != skip {
			c.queueMessage(msg)
		}
	}
}

func (cs *ChatServer) sendToRoom(roomId string, msg ServerMessage, skip *Client) {
	for _, c := range cs.registry.MembersOf(roomId) {
		if c != skip {
			c.queueMessage(msg)
		}
	}
}
