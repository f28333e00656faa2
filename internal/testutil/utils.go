package testutil

import (
	"log"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
)

func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}

// SignToken returns an HS256 token carrying the user id claim, expiring after exp.
func SignToken(t *testing.T, key []byte, userId string, exp time.Duration) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  userId,
		"exp": time.Now().Add(exp).Unix(),
	})

	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
