package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Start serves until Shutdown is called.
func (s *GoChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *GoChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
