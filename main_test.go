package main

import (
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe(t *testing.T) {
	t.Run("returns listener errors", func(t *testing.T) {
		srv := &http.Server{Addr: "127.0.0.1:-1", Handler: http.NotFoundHandler()}

		done := make(chan error, 1)
		go func() { done <- serve(srv, make(chan os.Signal)) }()

		select {
		case err := <-done:
			assert.Error(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("serve did not return after the listener failed")
		}
	})

	t.Run("stops on signal", func(t *testing.T) {
		srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
		quit := make(chan os.Signal, 1)
		quit <- syscall.SIGTERM

		done := make(chan error, 1)
		go func() { done <- serve(srv, quit) }()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("serve did not return after a signal")
		}
	})
}
