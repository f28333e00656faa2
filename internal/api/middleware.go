package api

import (
	"fmt"
	"net/http"

	"github.com/npezzotti/go-chathub/internal/auth"
)

func (s *GoChatApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicError)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// authMiddleware accepts the same credentials as the websocket endpoint: a
// token query parameter or an Authorization header.
func (s *GoChatApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.cs.StoreContext(r.Context())
		defer cancel()

		user, err := s.verifier.Verify(ctx, auth.TokenFromRequest(r))
		if err != nil {
			s.log.Printf("failed to authenticate request: %v", err)
			errResp := NewUnauthorizedError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(WithUser(r.Context(), user)))
	}
}
