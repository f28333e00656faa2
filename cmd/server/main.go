package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-chathub/internal/api"
	"github.com/npezzotti/go-chathub/internal/auth"
	"github.com/npezzotti/go-chathub/internal/config"
	"github.com/npezzotti/go-chathub/internal/database"
	"github.com/npezzotti/go-chathub/internal/server"
	"github.com/npezzotti/go-chathub/internal/stats"
)

const shutdownTimeout = 10 * time.Second

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

type closer interface {
	Close() error
}

func main() {
	logger := log.New(os.Stderr, "[go-chat] ", log.LstdFlags)

	e, err := config.LoadEnv()
	if err != nil {
		logger.Fatal("config: ", err)
	}

	var allowedOrigins stringSliceFlag
	flag.StringVar(&e.ServerAddr, "addr", e.ServerAddr, "server address")
	flag.StringVar(&e.DatabaseDSN, "dsn", e.DatabaseDSN, "database connection string")
	flag.StringVar(&e.Store, "store", e.Store, "persistence backend: postgres or memory")
	flag.StringVar(&e.SigningKey, "signing-key", e.SigningKey, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.DurationVar(&e.StoreTimeout, "store-timeout", e.StoreTimeout, "timeout for each persistence call")
	flag.Int64Var(&e.MaxMessageSize, "max-message-size", e.MaxMessageSize, "maximum inbound frame size in bytes")
	flag.DurationVar(&e.PingInterval, "ping-interval", e.PingInterval, "interval between websocket pings")
	flag.DurationVar(&e.PongWait, "pong-wait", e.PongWait, "time allowed for a ping to be answered")
	flag.IntVar(&e.RateLimitBurst, "rate-limit-burst", e.RateLimitBurst, "inbound frames allowed in a burst per connection")
	flag.DurationVar(&e.RateLimitInterval, "rate-limit-interval", e.RateLimitInterval, "interval at which a connection regains one frame")
	flag.IntVar(&e.HistoryLimit, "history-limit", e.HistoryLimit, "maximum number of messages returned as history")
	flag.StringVar(&e.SeedFile, "seed", e.SeedFile, "JSON file of users and rooms to load into the memory store")
	flag.Parse()

	if len(allowedOrigins) > 0 {
		e.AllowedOrigins = allowedOrigins
	}

	cfg, err := config.NewConfig(e)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	repo, err := openStore(logger, cfg)
	if err != nil {
		logger.Fatal("store: ", err)
	}
	if c, ok := repo.(closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				logger.Println("db close:", err)
			}
		}()
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, repo, statsUpdater, server.OptionsFromConfig(cfg))
	if err != nil {
		logger.Fatal("new chat server: ", err)
	}

	verifier := auth.NewVerifier(cfg.SigningKey, repo)
	srv := api.NewGoChatApp(mux, logger, chatServer, repo, verifier, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}

func openStore(logger *log.Logger, cfg *config.Config) (database.ChatRepository, error) {
	if cfg.Store == config.StoreMemory {
		logger.Println("using in-memory store")
		repo := database.NewMemoryChatRepository()
		if cfg.SeedFile == "" {
			return repo, nil
		}

		f, err := os.Open(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if err := repo.LoadSeed(f); err != nil {
			return nil, err
		}
		return repo, nil
	}

	repo, err := database.NewPgChatRepository(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if err := repo.Migrate(); err != nil {
		repo.Close()
		return nil, err
	}

	return repo, nil
}
